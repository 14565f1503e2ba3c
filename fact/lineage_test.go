package fact_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func mergeRecord(id, oldID, newID string, at time.Time) *fact.EntityLineage {
	return &fact.EntityLineage{
		LineageID:   fact.LineageID(id),
		Timestamp:   fact.At(at),
		OldEntityID: fact.NodeID(oldID),
		NewEntityID: fact.NodeID(newID),
		Operation:   fact.LineageMerge,
		Reason:      "Duplicate detection: similarity 0.92",
		Confidence:  0.92,
		PerformedBy: "automated_merge",
		CreatedAt:   fact.At(at),
	}
}

var t0 = time.Date(2025, time.October, 14, 10, 0, 0, 0, time.UTC)

// =============================================================================
// RESOLUTION
// =============================================================================

func TestLedger_Resolve_NoLineageResolvesToSelf(t *testing.T) {
	ledger := fact.NewLineageLedger()
	assert.Equal(t, fact.NodeID("ent_a"), ledger.ResolveCurrentEntityID("ent_a"))
}

func TestLedger_Resolve_FollowsChain(t *testing.T) {
	// GIVEN: X merged into Y, later Y merged into Z
	// WHEN: Resolving X
	// THEN: The current canonical id is Z

	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "X", "Y", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "Y", "Z", t0.Add(time.Hour))))

	assert.Equal(t, fact.NodeID("Z"), ledger.ResolveCurrentEntityID("X"))
	assert.Equal(t, fact.NodeID("Z"), ledger.ResolveCurrentEntityID("Y"))
	assert.Equal(t, fact.NodeID("Z"), ledger.ResolveCurrentEntityID("Z"))
}

func TestLedger_Resolve_Idempotent(t *testing.T) {
	// resolve(resolve(id)) == resolve(id) for every recorded entity.
	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "A", "B", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "B", "C", t0.Add(time.Minute))))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000002", "D", "C", t0.Add(2*time.Minute))))

	for _, id := range []fact.NodeID{"A", "B", "C", "D", "unrelated"} {
		once := ledger.ResolveCurrentEntityID(id)
		twice := ledger.ResolveCurrentEntityID(once)
		assert.Equal(t, once, twice, "resolution must be idempotent for %s", id)
	}
}

func TestLedger_Resolve_CycleTerminates(t *testing.T) {
	// GIVEN: An (incorrect) cycle A -> B -> A in the ledger
	// WHEN: Resolving A
	// THEN: Resolution terminates at the last valid id reached

	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "A", "B", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "B", "A", t0.Add(time.Minute))))

	assert.Equal(t, fact.NodeID("B"), ledger.ResolveCurrentEntityID("A"))
	assert.Equal(t, fact.NodeID("A"), ledger.ResolveCurrentEntityID("B"))
}

func TestLedger_Resolve_MultipleEdges_LatestTimestampWins(t *testing.T) {
	// GIVEN: Two out-of-order records for the same old id
	// WHEN: Resolving it
	// THEN: The edge with the latest timestamp is followed, deterministically

	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "A", "stale", t0.Add(time.Hour))))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "A", "early", t0)))

	assert.Equal(t, fact.NodeID("stale"), ledger.ResolveCurrentEntityID("A"))
}

func TestLedger_Resolve_MultipleEdges_TimestampTie_LatestAppendWins(t *testing.T) {
	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "A", "first", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "A", "second", t0)))

	assert.Equal(t, fact.NodeID("second"), ledger.ResolveCurrentEntityID("A"))
}

// =============================================================================
// LEDGER DISCIPLINE
// =============================================================================

func TestLedger_History_EitherEndpointInsertionOrder(t *testing.T) {
	ledger := fact.NewLineageLedger()
	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "X", "Y", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000001", "Q", "R", t0)))
	require.NoError(t, ledger.Append(mergeRecord("lineage_000002", "Y", "Z", t0)))

	history := ledger.History("Y")
	require.Len(t, history, 2)
	assert.Equal(t, fact.LineageID("lineage_000000"), history[0].LineageID)
	assert.Equal(t, fact.LineageID("lineage_000002"), history[1].LineageID)

	assert.Empty(t, ledger.History("absent"))
}

func TestLedger_Append_Validation(t *testing.T) {
	ledger := fact.NewLineageLedger()

	rec := mergeRecord("lineage_000000", "X", "Y", t0)
	rec.Operation = "obliterate"
	assert.ErrorIs(t, ledger.Append(rec), fact.ErrInvalidLineageOperation)

	rec = mergeRecord("lineage_000000", "X", "Y", t0)
	rec.Confidence = -0.1
	assert.ErrorIs(t, ledger.Append(rec), fact.ErrConfidenceOutOfRange)

	require.NoError(t, ledger.Append(mergeRecord("lineage_000000", "X", "Y", t0)))
	assert.ErrorIs(t, ledger.Append(mergeRecord("lineage_000000", "P", "Q", t0)), fact.ErrDuplicateLineageID)
	assert.Equal(t, 1, ledger.Len())
}
