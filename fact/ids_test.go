package fact_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// STATEMENT ID UNIQUENESS
// =============================================================================

func TestIDSequence_RapidGeneration_NoCollisions(t *testing.T) {
	// GIVEN: A frozen clock, so every generation shares one timestamp
	// WHEN: Generating many statement ids for the same (subject, predicate)
	// THEN: Every id is unique

	frozen := time.Date(2025, time.October, 14, 10, 0, 0, 123456000, time.UTC)
	seq := fact.NewIDSequenceAt(func() time.Time { return frozen })

	seen := make(map[fact.StatementID]struct{})
	for i := 0; i < 10000; i++ {
		id := seq.NextStatementID(fact.StatementKindAttribute, "evt_1", "amount")
		_, dup := seen[id]
		assert.False(t, dup, "collision at iteration %d: %s", i, id)
		seen[id] = struct{}{}
	}
}

func TestIDSequence_StatementID_DerivedFromSubjectPredicateTimestamp(t *testing.T) {
	frozen := time.Date(2025, time.October, 14, 10, 0, 0, 123456000, time.UTC)
	seq := fact.NewIDSequenceAt(func() time.Time { return frozen })

	id := seq.NextStatementID(fact.StatementKindAttribute, "evt_tx_991", "amount")
	assert.Equal(t, fact.StatementID("attr_evt_tx_991_amount_20251014100000123456"), id)
}

func TestFieldStatementID_Deterministic(t *testing.T) {
	// The decision builder and the migration step must derive the same id.
	a := fact.FieldStatementID(fact.StatementKindAttribute, "evt_tx_991", "amount")
	b := fact.FieldStatementID(fact.StatementKindAttribute, "evt_tx_991", "amount")
	assert.Equal(t, a, b)
	assert.Equal(t, fact.StatementID("attr_evt_tx_991_amount"), a)
}

// =============================================================================
// RUN-SCOPED COUNTERS
// =============================================================================

func TestIDSequence_CountersAreSequenceLocal(t *testing.T) {
	// Two sequences (two runs) do not share counters.
	s1 := fact.NewIDSequence()
	s2 := fact.NewIDSequence()

	assert.Equal(t, fact.LineageID("lineage_000000"), s1.NextLineageID())
	assert.Equal(t, fact.LineageID("lineage_000001"), s1.NextLineageID())
	assert.Equal(t, fact.LineageID("lineage_000000"), s2.NextLineageID())

	assert.Equal(t, fact.DecisionID("recon_decision_000000"), s1.NextDecisionID())
	assert.Equal(t, fact.DecisionID("recon_decision_000001"), s1.NextDecisionID())

	assert.NotEqual(t, s1.RunNonce(), s2.RunNonce())
}
