/*
Package merge implements the entity merge engine.

PURPOSE:
  Consumes candidate duplicate pairs produced by an external matcher and the
  current entity registry, decides which of two entities survives, merges
  aggregates into the survivor, writes a lineage record, and tombstones the
  loser. Nothing is ever deleted: a merged-away entity stays in the registry
  as status "superseded" with a pointer to its survivor.

KEY CONCEPTS IN THIS FILE (registry.go):
  - EntityRecord: Aggregate registry record for one entity (canonical name,
    aliases, transaction count, total amount)
  - Registry: The persisted entities file ({entities: {id: record}, last_merge})
  - CandidatePair: One scored duplicate candidate from the external matcher

DESIGN PRINCIPLES:
  1. Precision: total_amount_usd is decimal.Decimal, never float math
  2. Snapshot in, snapshot out: the input registry is never mutated
  3. Auditability: every applied merge leaves a lineage record and a log entry

SEE ALSO:
  - engine.go: The merge state machine
  - fact/lineage.go: Where merge history is recorded
*/
package merge

import (
	"github.com/shopspring/decimal"
	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// ENTITY RECORD - Aggregate registry entry
// =============================================================================

type EntityRecord struct {
	CanonicalName    string          `json:"canonical_name"`
	Aliases          []string        `json:"aliases"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmountUSD   decimal.Decimal `json:"total_amount_usd"`

	// Merge lifecycle. Populated only once an entity has been part of a merge.
	Status       string          `json:"status,omitempty"`
	SupersededBy string          `json:"superseded_by,omitempty"`
	SupersededAt *fact.Timestamp `json:"superseded_at,omitempty"`
	MergedFrom   []string        `json:"merged_from,omitempty"`
	LastMerged   *fact.Timestamp `json:"last_merged,omitempty"`
	LineageID    fact.LineageID  `json:"lineage_id,omitempty"`
}

// Superseded reports whether this record has been merged away.
func (r *EntityRecord) Superseded() bool {
	return r.Status == string(fact.StatusSuperseded)
}

// Clone returns a deep copy. The engine merges into copies so the input
// snapshot stays untouched.
func (r *EntityRecord) Clone() *EntityRecord {
	out := *r
	out.Aliases = append([]string(nil), r.Aliases...)
	out.MergedFrom = append([]string(nil), r.MergedFrom...)
	if r.SupersededAt != nil {
		ts := *r.SupersededAt
		out.SupersededAt = &ts
	}
	if r.LastMerged != nil {
		ts := *r.LastMerged
		out.LastMerged = &ts
	}
	return &out
}

// =============================================================================
// REGISTRY - The persisted entities file
// =============================================================================

type Registry struct {
	Entities  map[string]*EntityRecord `json:"entities"`
	LastMerge *fact.Timestamp          `json:"last_merge,omitempty"`
}

// ActiveCount returns the number of entities not merged away.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, rec := range r.Entities {
		if !rec.Superseded() {
			n++
		}
	}
	return n
}

// =============================================================================
// CANDIDATE PAIR - External matcher contract
// =============================================================================

// CandidatePair is one scored duplicate candidate. The matcher that produces
// pairs is an external collaborator; only its output contract matters here.
type CandidatePair struct {
	ID1        string  `json:"id1"`
	ID2        string  `json:"id2"`
	Similarity float64 `json:"similarity"`
}
