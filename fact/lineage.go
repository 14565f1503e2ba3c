/*
lineage.go - Entity lineage ledger and resolver

PURPOSE:
  The lineage ledger is the sole source of truth for entity identifier
  history. When entities are merged, split, renamed, or deprecated, the old
  id is never deleted or reassigned - a lineage record points from it to its
  successor, and the resolver walks that chain to the current canonical id.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IDEMPOTENT RESOLUTION: resolve(resolve(id)) == resolve(id).
  3. TERMINATION: Resolution keeps a visited set, so even an (incorrect)
     cycle in the ledger terminates at the last id reached before revisiting.
  4. DETERMINISM: If several records share the same old_entity_id (out-of-
     order production), the edge with the latest timestamp wins; among equal
     timestamps the latest-appended record wins.

SEE ALSO:
  - store.go: The store owns one ledger instance
  - merge package: Writes merge records here
*/
package fact

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// ENTITY LINEAGE RECORD
// =============================================================================

type LineageOperation string

const (
	LineageMerge     LineageOperation = "merge"
	LineageSplit     LineageOperation = "split"
	LineageRename    LineageOperation = "rename"
	LineageDeprecate LineageOperation = "deprecate"
)

type EntityLineage struct {
	LineageID LineageID `json:"lineage_id"`
	Timestamp Timestamp `json:"timestamp"`

	OldEntityID NodeID           `json:"old_entity_id"`
	NewEntityID NodeID           `json:"new_entity_id"`
	Operation   LineageOperation `json:"operation"`

	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	PerformedBy string  `json:"performed_by"`

	AffectedStatementIDs []StatementID  `json:"affected_statement_ids"`
	Metadata             map[string]any `json:"metadata"`

	CreatedAt Timestamp `json:"created_at"`
}

func (l *EntityLineage) Validate() error {
	if l.LineageID == "" {
		return errors.New("lineage id must not be empty")
	}
	if l.OldEntityID == "" || l.NewEntityID == "" {
		return errors.Newf("lineage %s: both endpoints are required", l.LineageID)
	}
	switch l.Operation {
	case LineageMerge, LineageSplit, LineageRename, LineageDeprecate:
	default:
		return errors.Wrapf(ErrInvalidLineageOperation, "%q", l.Operation)
	}
	if err := ValidateConfidence(l.Confidence); err != nil {
		return errors.Wrapf(err, "lineage %s", l.LineageID)
	}
	return nil
}

// =============================================================================
// LINEAGE LEDGER - Append-only identity history
// =============================================================================

type LineageLedger struct {
	mu      sync.RWMutex
	records []*EntityLineage
	ids     map[LineageID]struct{}

	// byOld indexes outgoing edges per historical id for the resolver.
	byOld map[NodeID][]*EntityLineage
}

func NewLineageLedger() *LineageLedger {
	return &LineageLedger{
		ids:   make(map[LineageID]struct{}),
		byOld: make(map[NodeID][]*EntityLineage),
	}
}

// Append records an identity change. This is the ONLY write operation.
func (l *LineageLedger) Append(rec *EntityLineage) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.ids[rec.LineageID]; exists {
		return errors.Wrapf(ErrDuplicateLineageID, "%s", rec.LineageID)
	}
	l.ids[rec.LineageID] = struct{}{}
	l.records = append(l.records, rec)
	l.byOld[rec.OldEntityID] = append(l.byOld[rec.OldEntityID], rec)
	return nil
}

// Len returns the number of recorded identity changes.
func (l *LineageLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns all lineage records in insertion order.
func (l *LineageLedger) Records() []*EntityLineage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*EntityLineage, len(l.records))
	copy(out, l.records)
	return out
}

// History returns every record where the id appears as either endpoint,
// in insertion order.
func (l *LineageLedger) History(id NodeID) []*EntityLineage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*EntityLineage
	for _, rec := range l.records {
		if rec.OldEntityID == id || rec.NewEntityID == id {
			out = append(out, rec)
		}
	}
	return out
}

// ResolveCurrentEntityID walks the chain old_entity_id -> new_entity_id
// starting at id and returns the current canonical id. At most one outgoing
// edge is followed per id: when several records share the same old id, the
// one with the latest timestamp wins, ties going to the latest-appended
// record. A visited set guarantees termination even if the ledger
// (incorrectly) contains a cycle; resolution then stops at the last valid id
// reached. Ids with no lineage resolve to themselves.
func (l *LineageLedger) ResolveCurrentEntityID(id NodeID) NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	current := id
	visited := map[NodeID]struct{}{}
	for {
		if _, seen := visited[current]; seen {
			return current
		}
		visited[current] = struct{}{}

		edge := l.outgoingEdgeLocked(current)
		if edge == nil {
			return current
		}
		if _, seen := visited[edge.NewEntityID]; seen {
			// Cycle: stop at the last id reached before revisiting.
			return current
		}
		current = edge.NewEntityID
	}
}

func (l *LineageLedger) outgoingEdgeLocked(id NodeID) *EntityLineage {
	edges := l.byOld[id]
	if len(edges) == 0 {
		return nil
	}
	best := edges[0]
	for _, e := range edges[1:] {
		// >= keeps the latest-appended record on timestamp ties.
		if !e.Timestamp.Before(best.Timestamp.Time) {
			best = e
		}
	}
	return best
}
