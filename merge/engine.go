/*
engine.go - The merge state machine

PURPOSE:
  Applies candidate duplicate pairs to an entity registry snapshot. Per pair:
    1. Skip if either id was already consumed this run (at most one merge
       per entity per run)
    2. Select the primary: greater transaction_count wins, ties go to the
       pair's first id
    3. Emit an EntityLineage record (operation "merge")
    4. Merge aggregates into the primary (alias union, count/amount sums)
    5. Tombstone the secondary (status "superseded", superseded_by pointer)
    6. Record a merge-log entry

ORDERING CONTRACT:
  Pairs are sorted by descending similarity before application, ties broken
  by (id1, id2) lexicographic order. Because of the one-merge-per-entity
  rule the outcome depends on this order, so it is part of the public
  algorithm, not an implementation accident.

ERROR CONDITIONS:
  - A pair naming an unknown id is an input error: skipped with a warning,
    the run continues.
  - A pair naming the same id twice is never merged.
  - A pair touching an already-superseded record is skipped, which makes
    re-applying a merge run to its own output a no-op.

SEE ALSO:
  - registry.go: Input/output shapes
  - fact/lineage.go: Lineage ledger discipline
*/
package merge

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	ids   *fact.IDSequence
	log   *zap.SugaredLogger
	clock func() time.Time
}

func NewEngine(ids *fact.IDSequence, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{ids: ids, log: log, clock: time.Now}
}

// WithClock pins the engine to a clock for deterministic runs.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// =============================================================================
// RESULT SHAPES
// =============================================================================

// LogEntry is one applied merge, as persisted in the merge report.
type LogEntry struct {
	Primary    string         `json:"primary"`
	Secondary  string         `json:"secondary"`
	Similarity float64        `json:"similarity"`
	Timestamp  fact.Timestamp `json:"timestamp"`
	LineageID  fact.LineageID `json:"lineage_id"`
}

// Report is the persisted merge report document.
type Report struct {
	Timestamp             fact.Timestamp `json:"timestamp"`
	DuplicatesFound       int            `json:"duplicates_found"`
	EntitiesBefore        int            `json:"entities_before"`
	EntitiesAfter         int            `json:"entities_after"`
	EntitiesMerged        int            `json:"entities_merged"`
	LineageRecordsCreated int            `json:"lineage_records_created"`
	MergeLog              []LogEntry     `json:"merge_log"`
}

// Result carries the output snapshot plus the audit artifacts of one run.
type Result struct {
	Registry *Registry
	Lineage  []*fact.EntityLineage
	Report   Report
}

// =============================================================================
// RUN
// =============================================================================

// Run applies pairs to the registry snapshot and returns a new registry; the
// input is never mutated. Pairs are re-sorted per the ordering contract.
func (e *Engine) Run(input *Registry, pairs []CandidatePair) (*Result, error) {
	now := fact.At(e.clock())

	// Read-only input, write-only output: merge into copies.
	out := &Registry{
		Entities:  make(map[string]*EntityRecord, len(input.Entities)),
		LastMerge: &now,
	}
	for id, rec := range input.Entities {
		out.Entities[id] = rec.Clone()
	}

	ordered := orderPairs(pairs)

	var (
		lineage  []*fact.EntityLineage
		mergeLog []LogEntry
		consumed = map[string]struct{}{}
	)

	for _, pair := range ordered {
		if pair.ID1 == pair.ID2 {
			e.log.Warnw("skipping self-merge pair", "id", pair.ID1)
			continue
		}
		if err := fact.ValidateConfidence(pair.Similarity); err != nil {
			e.log.Warnw("skipping pair with invalid similarity",
				"id1", pair.ID1, "id2", pair.ID2, "similarity", pair.Similarity)
			continue
		}
		if _, done := consumed[pair.ID1]; done {
			continue
		}
		if _, done := consumed[pair.ID2]; done {
			continue
		}

		first, ok1 := out.Entities[pair.ID1]
		second, ok2 := out.Entities[pair.ID2]
		if !ok1 || !ok2 {
			e.log.Warnw("skipping pair referencing unknown entity",
				"id1", pair.ID1, "id2", pair.ID2)
			continue
		}
		if first.Superseded() || second.Superseded() {
			// Already applied in a previous run; re-application is a no-op.
			continue
		}

		primaryID, secondaryID := pair.ID1, pair.ID2
		if second.TransactionCount > first.TransactionCount {
			primaryID, secondaryID = pair.ID2, pair.ID1
		}
		primary := out.Entities[primaryID]
		secondary := out.Entities[secondaryID]

		rec := &fact.EntityLineage{
			LineageID:   e.ids.NextLineageID(),
			Timestamp:   now,
			OldEntityID: fact.NodeID(secondaryID),
			NewEntityID: fact.NodeID(primaryID),
			Operation:   fact.LineageMerge,
			Reason:      fmt.Sprintf("Duplicate detection: similarity %.2f", pair.Similarity),
			Confidence:  pair.Similarity,
			PerformedBy: "automated_merge",
			// Registry merges rewrite no statements; emit [] rather than null.
			AffectedStatementIDs: []fact.StatementID{},
			Metadata: map[string]any{
				"merged_canonical_name":        secondary.CanonicalName,
				"primary_canonical_name":       primary.CanonicalName,
				"transaction_count_transferred": secondary.TransactionCount,
				"amount_transferred":            secondary.TotalAmountUSD,
			},
			CreatedAt: now,
		}
		lineage = append(lineage, rec)

		mergeAggregates(primary, secondary, secondaryID, now, rec.LineageID)
		secondary.Status = string(fact.StatusSuperseded)
		secondary.SupersededBy = primaryID
		supersededAt := now
		secondary.SupersededAt = &supersededAt
		secondary.LineageID = rec.LineageID

		consumed[pair.ID1] = struct{}{}
		consumed[pair.ID2] = struct{}{}

		mergeLog = append(mergeLog, LogEntry{
			Primary:    primaryID,
			Secondary:  secondaryID,
			Similarity: pair.Similarity,
			Timestamp:  now,
			LineageID:  rec.LineageID,
		})

		e.log.Infow("merged entities",
			"primary", primaryID, "secondary", secondaryID, "similarity", pair.Similarity)
	}

	result := &Result{
		Registry: out,
		Lineage:  lineage,
		Report: Report{
			Timestamp:             now,
			DuplicatesFound:       len(pairs),
			EntitiesBefore:        len(input.Entities),
			EntitiesAfter:         out.ActiveCount(),
			EntitiesMerged:        len(mergeLog),
			LineageRecordsCreated: len(lineage),
			MergeLog:              mergeLog,
		},
	}
	if result.Report.MergeLog == nil {
		result.Report.MergeLog = []LogEntry{}
	}
	return result, nil
}

// orderPairs sorts by descending similarity, ties by (id1, id2).
func orderPairs(pairs []CandidatePair) []CandidatePair {
	out := append([]CandidatePair(nil), pairs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].ID1 != out[j].ID1 {
			return out[i].ID1 < out[j].ID1
		}
		return out[i].ID2 < out[j].ID2
	})
	return out
}

func mergeAggregates(primary, secondary *EntityRecord, secondaryID string, now fact.Timestamp, lineageID fact.LineageID) {
	primary.Aliases = unionAliases(primary.Aliases, secondary.Aliases, secondary.CanonicalName)
	primary.TransactionCount += secondary.TransactionCount
	primary.TotalAmountUSD = primary.TotalAmountUSD.Add(secondary.TotalAmountUSD)
	primary.MergedFrom = append(primary.MergedFrom, secondaryID)
	lastMerged := now
	primary.LastMerged = &lastMerged
	primary.LineageID = lineageID
}

// unionAliases merges alias sets plus the secondary's canonical name,
// preserving first-seen order.
func unionAliases(primary, secondary []string, secondaryName string) []string {
	seen := make(map[string]struct{}, len(primary)+len(secondary)+1)
	var out []string
	add := func(a string) {
		if a == "" {
			return
		}
		if _, dup := seen[a]; dup {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, a := range primary {
		add(a)
	}
	for _, a := range secondary {
		add(a)
	}
	add(secondaryName)
	return out
}
