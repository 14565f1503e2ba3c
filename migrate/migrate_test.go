package migrate_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/migrate"
	"github.com/veridian/fact-engine/reconcile"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, time.October, 14, 10, 0, 0, 0, time.UTC)
	}
}

func scalar(v any) reconcile.FieldValue {
	return reconcile.FieldValue{Value: v}
}

func canonicalTx(id string) *reconcile.CanonicalRecord {
	return &reconcile.CanonicalRecord{
		ID:                       id,
		ReconciliationDecisionID: "recon_decision_000001",
		Confidence:               0.95,
		Provenance: &fact.Provenance{
			ObservationIDs: []string{"bofa_001", "apple_001"},
			SourceMethod:   "reconciliation",
			Observer:       "reconciler",
			CreatedAt:      fact.At(time.Date(2025, time.March, 11, 8, 0, 0, 0, time.UTC)),
			Confidence:     0.95,
		},
		Fields: map[string]reconcile.FieldValue{
			"date":        scalar("2025-03-10"),
			"amount":      scalar(42.50),
			"currency":    scalar("USD"),
			"description": scalar("COFFEE SHOP PURCHASE"),
			"category":    scalar("dining"),
			"merchant":    scalar("Blue Bottle Coffee"),
		},
	}
}

func run(t *testing.T, records ...*reconcile.CanonicalRecord) (*fact.Store, *migrate.Summary) {
	t.Helper()
	s := fact.NewStore()
	m := migrate.New(s, nil, nil).WithClock(testClock())
	summary, err := m.Run(records)
	require.NoError(t, err)
	return s, summary
}

// =============================================================================
// EVENT MATERIALIZATION
// =============================================================================

func TestMigrate_Record_CreatesEventNodeWithSnapshot(t *testing.T) {
	// GIVEN: One canonical transaction
	// WHEN: Migrating it
	// THEN: An evt_ node exists with the transaction snapshot

	s, summary := run(t, canonicalTx("tx_001"))

	assert.Equal(t, 1, summary.Events)
	node, ok := s.Node("evt_tx_001")
	require.True(t, ok)
	event, ok := node.(*fact.EventNode)
	require.True(t, ok)
	assert.Equal(t, fact.EventFinanceTransaction, event.Type)
	assert.Equal(t, "2025-03-10", event.HappenedAt)
	assert.Equal(t, 42.50, event.Snapshot["amount"])
	assert.Equal(t, "USD", event.Snapshot["currency"])
	assert.Equal(t, "COFFEE SHOP PURCHASE", event.Snapshot["description"])
}

func TestMigrate_Record_CreatesOneFactPerSchemaField(t *testing.T) {
	// GIVEN: A canonical transaction carrying five schema fields plus merchant
	// WHEN: Migrating it
	// THEN: Each non-merchant field becomes an attribute fact on the event

	s, summary := run(t, canonicalTx("tx_001"))

	for _, field := range []string{"date", "amount", "currency", "description", "category"} {
		facts := s.Attributes("evt_tx_001", field)
		require.Len(t, facts, 1, "field %s", field)
		assert.Equal(t, fact.DecisionID("recon_decision_000001"), facts[0].ReconciliationDecisionID)
	}
	// 5 event fields + 1 merchant canonical_name
	assert.Equal(t, 6, summary.AttributeFacts)
}

func TestMigrate_StatementIDs_MatchDecisionBuilderForm(t *testing.T) {
	// GIVEN: A migrated transaction
	// WHEN: Reading the amount fact
	// THEN: Its id is the deterministic form the decision builder records,
	//       so created_statement_ids resolve to real statements

	s, _ := run(t, canonicalTx("tx_001"))

	facts := s.Attributes("evt_tx_001", "amount")
	require.Len(t, facts, 1)
	want := fact.FieldStatementID(fact.StatementKindAttribute, "evt_tx_001", "amount")
	assert.Equal(t, want, facts[0].StatementID)
}

func TestMigrate_AmountFact_TypedNumberWithCurrencyUnit(t *testing.T) {
	// GIVEN: A transaction in USD
	// WHEN: Migrating it
	// THEN: The amount fact is a number carrying the currency as its unit

	s, _ := run(t, canonicalTx("tx_001"))

	facts := s.Attributes("evt_tx_001", "amount")
	require.Len(t, facts, 1)
	assert.Equal(t, fact.ValueNumber, facts[0].Object.Type)
	assert.Equal(t, "USD", facts[0].Object.Unit)
	d, ok := facts[0].Object.Value.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromFloat(42.50)))
}

func TestMigrate_Temporal_ValidFromIsTransactionDate(t *testing.T) {
	// GIVEN: A transaction dated 2025-03-10 observed on 2025-03-11
	// WHEN: Migrating it
	// THEN: valid_from is the transaction date, observed_at the provenance time

	s, _ := run(t, canonicalTx("tx_001"))

	facts := s.Attributes("evt_tx_001", "amount")
	require.Len(t, facts, 1)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), facts[0].Temporal.ValidFrom.Time)
	assert.Equal(t, time.Date(2025, time.March, 11, 8, 0, 0, 0, time.UTC), facts[0].Temporal.ObservedAt.Time)
}

// =============================================================================
// MERCHANT MATERIALIZATION
// =============================================================================

func TestMigrate_Merchant_CreatedOncePerName(t *testing.T) {
	// GIVEN: Two transactions at the same merchant, one at another
	// WHEN: Migrating all three
	// THEN: Two merchant entities exist, each transaction linked to its own

	tx2 := canonicalTx("tx_002")
	tx3 := canonicalTx("tx_003")
	tx3.Fields["merchant"] = scalar("Whole Foods")

	s, summary := run(t, canonicalTx("tx_001"), tx2, tx3)

	assert.Equal(t, 2, summary.Merchants)
	assert.Equal(t, 3, summary.RelationshipFacts)

	_, ok := s.Node("ent_merchant_0")
	assert.True(t, ok)
	_, ok = s.Node("ent_merchant_1")
	assert.True(t, ok)

	rels := s.Relationships("evt_tx_001", "merchant")
	require.Len(t, rels, 1)
	assert.Equal(t, fact.NodeID("ent_merchant_0"), rels[0].TargetID)

	rels = s.Relationships("evt_tx_003", "merchant")
	require.Len(t, rels, 1)
	assert.Equal(t, fact.NodeID("ent_merchant_1"), rels[0].TargetID)
}

func TestMigrate_Merchant_GetsCanonicalNameFact(t *testing.T) {
	// GIVEN: A transaction naming a merchant
	// WHEN: Migrating it
	// THEN: The merchant entity carries a canonical_name attribute fact

	s, _ := run(t, canonicalTx("tx_001"))

	facts := s.Attributes("ent_merchant_0", "canonical_name")
	require.Len(t, facts, 1)
	assert.Equal(t, "Blue Bottle Coffee", facts[0].Object.Value)

	node, ok := s.Node("ent_merchant_0")
	require.True(t, ok)
	entity, ok := node.(*fact.EntityNode)
	require.True(t, ok)
	assert.Equal(t, []string{"Blue Bottle Coffee"}, entity.Aliases)
}

func TestMigrate_NoMerchantField_NoRelationship(t *testing.T) {
	// GIVEN: A transaction with no merchant field
	// WHEN: Migrating it
	// THEN: No entity and no relationship fact are created

	tx := canonicalTx("tx_001")
	delete(tx.Fields, "merchant")

	s, summary := run(t, tx)

	assert.Equal(t, 0, summary.Merchants)
	assert.Equal(t, 0, summary.RelationshipFacts)
	assert.Empty(t, s.RelationshipFacts())
}

// =============================================================================
// ERROR HANDLING
// =============================================================================

func TestMigrate_DuplicateRecordID_SkippedWithRestOfBatchIntact(t *testing.T) {
	// GIVEN: A batch containing the same canonical id twice
	// WHEN: Migrating the batch
	// THEN: The duplicate is skipped and the distinct record still lands

	s, summary := run(t, canonicalTx("tx_001"), canonicalTx("tx_001"), canonicalTx("tx_002"))

	assert.Equal(t, 2, summary.Events)
	assert.Equal(t, 1, summary.Skipped)
	_, ok := s.Node("evt_tx_002")
	assert.True(t, ok)
}

func TestMigrate_MissingProvenance_DefaultsApplied(t *testing.T) {
	// GIVEN: A canonical record with no provenance envelope
	// WHEN: Migrating it
	// THEN: Facts carry sentinel provenance with the record confidence

	tx := canonicalTx("tx_001")
	tx.Provenance = nil
	tx.Confidence = 0.8

	s, _ := run(t, tx)

	facts := s.Attributes("evt_tx_001", "amount")
	require.Len(t, facts, 1)
	assert.Equal(t, "unknown", facts[0].Provenance.SourceMethod)
	assert.Equal(t, "unknown", facts[0].Provenance.Observer)
	assert.Equal(t, 0.8, facts[0].Provenance.Confidence)
}

// =============================================================================
// DECISION ALIGNMENT
// =============================================================================

func TestMigrate_EveryCreatedStatementID_ResolvesToAMaterializedStatement(t *testing.T) {
	// GIVEN: A decision built over a canonical record with reconciled fields,
	//        merchant included
	// WHEN: Migrating the record
	// THEN: Every created_statement_id names a statement in the store, and
	//       the merchant id resolves to the relationship fact

	tx := canonicalTx("tx_001")
	for field, fv := range tx.Fields {
		tx.Fields[field] = reconcile.FieldValue{
			Value:               fv.Value,
			Reconciled:          true,
			Method:              "first_source",
			SourceObservationID: "bofa_001",
			Confidence:          0.9,
		}
	}
	observations := []reconcile.Observation{
		{"observation_id": "bofa_001", "data_source": "bofa"},
		{"observation_id": "apple_001", "data_source": "apple"},
	}
	builder := reconcile.NewBuilder(nil, fact.NewIDSequence()).WithClock(testClock())
	decision, err := builder.Build(observations, tx)
	require.NoError(t, err)
	require.NotEmpty(t, decision.CreatedStatementIDs)

	s, _ := run(t, tx)

	for _, id := range decision.CreatedStatementIDs {
		_, ok := s.Statement(id)
		assert.True(t, ok, "created_statement_id %s has no materialized statement", id)
	}

	st, ok := s.Statement(fact.FieldStatementID(fact.StatementKindRelationship, tx.EventNodeID(), "merchant"))
	require.True(t, ok)
	rel, ok := st.(*fact.RelationshipFact)
	require.True(t, ok)
	assert.Equal(t, "merchant", rel.Predicate)
}
