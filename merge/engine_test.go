package merge_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/merge"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var runTime = time.Date(2025, time.October, 14, 10, 0, 0, 0, time.UTC)

func newTestEngine() *merge.Engine {
	return merge.NewEngine(fact.NewIDSequence(), nil).WithClock(func() time.Time { return runTime })
}

func record(name string, txCount int, amount float64) *merge.EntityRecord {
	return &merge.EntityRecord{
		CanonicalName:    name,
		Aliases:          []string{name},
		TransactionCount: txCount,
		TotalAmountUSD:   decimal.NewFromFloat(amount),
	}
}

func registry(entities map[string]*merge.EntityRecord) *merge.Registry {
	return &merge.Registry{Entities: entities}
}

// =============================================================================
// MERGE SCENARIOS
// =============================================================================

func TestEngine_Merge_PrimaryByTransactionCount(t *testing.T) {
	// GIVEN: A (tx=10, amount=500) and B (tx=3, amount=90), similarity 0.92
	// WHEN: Merging the pair
	// THEN: A survives with summed aggregates; B is superseded, not deleted

	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme Stores", 10, 500),
		"B": record("ACME Store #42", 3, 90),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "B", Similarity: 0.92},
	})
	require.NoError(t, err)

	primary := result.Registry.Entities["A"]
	assert.Equal(t, 13, primary.TransactionCount)
	assert.True(t, primary.TotalAmountUSD.Equal(decimal.NewFromInt(590)),
		"total_amount_usd should be 590, got %s", primary.TotalAmountUSD)
	assert.Contains(t, primary.Aliases, "ACME Store #42", "secondary canonical name joins aliases")
	assert.Equal(t, []string{"B"}, primary.MergedFrom)
	assert.NotNil(t, primary.LastMerged)

	secondary := result.Registry.Entities["B"]
	require.NotNil(t, secondary, "merged-away entity must be retained")
	assert.Equal(t, "superseded", secondary.Status)
	assert.Equal(t, "A", secondary.SupersededBy)
	assert.NotNil(t, secondary.SupersededAt)

	require.Len(t, result.Lineage, 1)
	lin := result.Lineage[0]
	assert.Equal(t, fact.NodeID("B"), lin.OldEntityID)
	assert.Equal(t, fact.NodeID("A"), lin.NewEntityID)
	assert.Equal(t, fact.LineageMerge, lin.Operation)
	assert.Equal(t, 0.92, lin.Confidence)
	assert.Equal(t, "automated_merge", lin.PerformedBy)
	assert.Equal(t, "Duplicate detection: similarity 0.92", lin.Reason)
	assert.Equal(t, "ACME Store #42", lin.Metadata["merged_canonical_name"])
	assert.Equal(t, 3, lin.Metadata["transaction_count_transferred"])
}

func TestEngine_LineageRecord_AffectedStatementIDsSerializeAsEmptyList(t *testing.T) {
	// Registry merges rewrite no statements; the lineage file must still
	// carry "affected_statement_ids": [], not null.
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme Stores", 10, 500),
		"B": record("ACME Store #42", 3, 90),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "B", Similarity: 0.92},
	})
	require.NoError(t, err)
	require.Len(t, result.Lineage, 1)

	raw, err := json.Marshal(result.Lineage[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"affected_statement_ids":[]`)
}

func TestEngine_Merge_TieBreaksToFirstOfPair(t *testing.T) {
	// Equal transaction counts: the pair's first id wins.
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 5, 100),
		"B": record("Acme Inc", 5, 100),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "B", ID2: "A", Similarity: 0.9},
	})
	require.NoError(t, err)

	assert.Equal(t, "superseded", result.Registry.Entities["A"].Status)
	assert.Equal(t, "B", result.Registry.Entities["A"].SupersededBy)
}

func TestEngine_AtMostOneMergePerEntityPerRun(t *testing.T) {
	// GIVEN: Three pairs all touching entity A
	// WHEN: Running a batch
	// THEN: Only the strongest pair involving A is applied

	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
		"B": record("Acme Inc", 5, 50),
		"C": record("Acme LLC", 2, 20),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "C", Similarity: 0.80},
		{ID1: "A", ID2: "B", Similarity: 0.95},
	})
	require.NoError(t, err)

	// Pairs sort by descending similarity, so (A,B) applies and (A,C) skips.
	require.Len(t, result.Report.MergeLog, 1)
	assert.Equal(t, "A", result.Report.MergeLog[0].Primary)
	assert.Equal(t, "B", result.Report.MergeLog[0].Secondary)
	assert.Equal(t, "", result.Registry.Entities["C"].Status, "C stays untouched")

	seen := map[string]int{}
	for _, entry := range result.Report.MergeLog {
		seen[entry.Primary]++
		seen[entry.Secondary]++
	}
	for id, n := range seen {
		assert.LessOrEqual(t, n, 1, "entity %s merged more than once in one run", id)
	}
}

func TestEngine_OrderingContract_DescendingSimilarity(t *testing.T) {
	// Input order does not matter; the sorted order decides the outcome.
	entities := func() map[string]*merge.EntityRecord {
		return map[string]*merge.EntityRecord{
			"A": record("Acme", 10, 100),
			"B": record("Acme Inc", 5, 50),
			"C": record("Acme LLC", 2, 20),
		}
	}
	pairsForward := []merge.CandidatePair{
		{ID1: "A", ID2: "B", Similarity: 0.95},
		{ID1: "A", ID2: "C", Similarity: 0.80},
	}
	pairsReversed := []merge.CandidatePair{pairsForward[1], pairsForward[0]}

	r1, err := newTestEngine().Run(registry(entities()), pairsForward)
	require.NoError(t, err)
	r2, err := newTestEngine().Run(registry(entities()), pairsReversed)
	require.NoError(t, err)

	assert.Equal(t, r1.Report.MergeLog, r2.Report.MergeLog)
}

// =============================================================================
// INPUT ERRORS AND EDGE CASES
// =============================================================================

func TestEngine_UnknownID_SkippedNotFatal(t *testing.T) {
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "ghost", Similarity: 0.9},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Report.MergeLog)
	assert.Equal(t, 1, result.Report.DuplicatesFound)
	assert.Equal(t, 0, result.Report.EntitiesMerged)
}

func TestEngine_SelfMerge_Rejected(t *testing.T) {
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "A", Similarity: 1.0},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Report.MergeLog)
	assert.Equal(t, "", result.Registry.Entities["A"].Status)
}

func TestEngine_InputSnapshotNotMutated(t *testing.T) {
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
		"B": record("Acme Inc", 3, 50),
	})

	_, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "B", Similarity: 0.9},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, in.Entities["A"].TransactionCount, "input snapshot must stay untouched")
	assert.Equal(t, "", in.Entities["B"].Status)
	assert.Empty(t, in.Entities["B"].SupersededBy)
}

func TestEngine_Reapplication_IsNoOp(t *testing.T) {
	// GIVEN: A registry that already went through a merge run
	// WHEN: Re-applying the same pairs (crash-recovery at-least-once)
	// THEN: Nothing changes the second time

	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
		"B": record("Acme Inc", 3, 50),
	})
	pairs := []merge.CandidatePair{{ID1: "A", ID2: "B", Similarity: 0.9}}

	first, err := newTestEngine().Run(in, pairs)
	require.NoError(t, err)
	second, err := newTestEngine().Run(first.Registry, pairs)
	require.NoError(t, err)

	assert.Empty(t, second.Report.MergeLog)
	assert.Equal(t, 13, second.Registry.Entities["A"].TransactionCount,
		"aggregates must not be double-counted")
}

func TestEngine_Report_Counts(t *testing.T) {
	in := registry(map[string]*merge.EntityRecord{
		"A": record("Acme", 10, 100),
		"B": record("Acme Inc", 3, 50),
		"C": record("Umbrella", 7, 70),
	})

	result, err := newTestEngine().Run(in, []merge.CandidatePair{
		{ID1: "A", ID2: "B", Similarity: 0.9},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Report.EntitiesBefore)
	assert.Equal(t, 2, result.Report.EntitiesAfter, "after = entities still active")
	assert.Equal(t, 1, result.Report.EntitiesMerged)
	assert.Equal(t, 1, result.Report.LineageRecordsCreated)
}
