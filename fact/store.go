/*
store.go - The in-memory fact store

PURPOSE:
  Store exclusively owns all Node and Statement instances plus the two
  append-only logs (lineage ledger, decision log). It is the single top-level
  object a batch run reads from and writes into.

OWNERSHIP:
  - Nodes are keyed by id; add operations insert or overwrite by id.
    Overwrite exists only so the merge engine can persist updated aggregates,
    never to erase history.
  - Statements are insertion-ordered logs filtered by subject/predicate.
  - Lineage records and decisions are referenced BY statements via id;
    ledger records never point back into the store.

READS:
  All read operations are total: a missing node or empty filter yields an
  absent value or an empty slice, never an error.

REFERENTIAL INTEGRITY:
  Whether a statement may reference a node id that does not (yet) exist is a
  configuration choice (WithStrictReferences), permissive by default so
  forward references during migration are tolerated.

CONCURRENCY:
  The batch pipeline is single-writer, but the read-only query API serves a
  finished snapshot concurrently, so access is guarded by an RWMutex the same
  way the memory store guards its collections.

SEE ALSO:
  - lineage.go: Ledger owned by the store
  - store/sqlite: Durable persistence of a finished snapshot
*/
package fact

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// OPTIONS
// =============================================================================

type Option func(*Store)

// WithStrictReferences makes the store reject statements whose subject (and,
// for relationships, target) id does not name an existing node.
func WithStrictReferences(strict bool) Option {
	return func(s *Store) { s.strictReferences = strict }
}

// WithIDSequence installs the run-scoped id sequence the store hands out to
// collaborators.
func WithIDSequence(ids *IDSequence) Option {
	return func(s *Store) { s.ids = ids }
}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	nodes     map[NodeID]Node
	nodeOrder []NodeID

	attributes    []*AttributeFact
	relationships []*RelationshipFact
	statementIDs  map[StatementID]Statement

	decisions     []*ReconciliationDecision
	decisionIndex map[DecisionID]*ReconciliationDecision

	lineage *LineageLedger
	ids     *IDSequence

	strictReferences bool
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:         make(map[NodeID]Node),
		statementIDs:  make(map[StatementID]Statement),
		decisionIndex: make(map[DecisionID]*ReconciliationDecision),
		lineage:       NewLineageLedger(),
		ids:           NewIDSequence(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lineage returns the ledger of entity identifier history owned by this store.
func (s *Store) Lineage() *LineageLedger { return s.lineage }

// IDs returns the run-scoped id sequence owned by this store.
func (s *Store) IDs() *IDSequence { return s.ids }

// =============================================================================
// NODES
// =============================================================================

// AddEntity inserts or overwrites an entity node by id.
func (s *Store) AddEntity(n *EntityNode) { s.addNode(n) }

// AddEvent inserts or overwrites an event node by id.
func (s *Store) AddEvent(n *EventNode) { s.addNode(n) }

// AddSeries inserts or overwrites a series node by id.
func (s *Store) AddSeries(n *SeriesNode) { s.addNode(n) }

func (s *Store) addNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := n.NodeID()
	if _, exists := s.nodes[id]; !exists {
		s.nodeOrder = append(s.nodeOrder, id)
	}
	s.nodes[id] = n
}

// Node returns the node with the given id, if present.
func (s *Store) Node(id NodeID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns all nodes in first-insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, s.nodes[id])
	}
	return out
}

// =============================================================================
// STATEMENTS
// =============================================================================

// AddAttributeFact records a new attribute fact. Statement ids must be
// unique; in strict-reference mode the subject must name an existing node.
func (s *Store) AddAttributeFact(f *AttributeFact) error {
	if err := f.Provenance.Validate(); err != nil {
		return errors.Wrapf(err, "statement %s", f.StatementID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStatementLocked(f.StatementID, f.SubjectID); err != nil {
		return err
	}
	s.attributes = append(s.attributes, f)
	s.statementIDs[f.StatementID] = f
	return nil
}

// AddRelationshipFact records a new relationship fact. In strict-reference
// mode both endpoints must name existing nodes.
func (s *Store) AddRelationshipFact(f *RelationshipFact) error {
	if err := f.Provenance.Validate(); err != nil {
		return errors.Wrapf(err, "statement %s", f.StatementID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStatementLocked(f.StatementID, f.SubjectID); err != nil {
		return err
	}
	if s.strictReferences {
		if _, ok := s.nodes[f.TargetID]; !ok {
			return errors.Wrapf(ErrUnknownTarget, "statement %s target %s", f.StatementID, f.TargetID)
		}
	}
	s.relationships = append(s.relationships, f)
	s.statementIDs[f.StatementID] = f
	return nil
}

func (s *Store) checkStatementLocked(id StatementID, subject NodeID) error {
	if _, exists := s.statementIDs[id]; exists {
		return errors.Wrapf(ErrDuplicateStatementID, "%s", id)
	}
	if s.strictReferences {
		if _, ok := s.nodes[subject]; !ok {
			return errors.Wrapf(ErrUnknownSubject, "statement %s subject %s", id, subject)
		}
	}
	return nil
}

// Statement returns the attribute or relationship fact with the given id,
// if one was materialized.
func (s *Store) Statement(id StatementID) (Statement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statementIDs[id]
	return st, ok
}

// Attributes returns attribute facts for the subject in insertion order,
// optionally filtered by exact predicate (empty predicate means all).
func (s *Store) Attributes(subject NodeID, predicate string) []*AttributeFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AttributeFact
	for _, f := range s.attributes {
		if f.SubjectID != subject {
			continue
		}
		if predicate != "" && f.Predicate != predicate {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Relationships is the RelationshipFact counterpart of Attributes.
func (s *Store) Relationships(subject NodeID, predicate string) []*RelationshipFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RelationshipFact
	for _, f := range s.relationships {
		if f.SubjectID != subject {
			continue
		}
		if predicate != "" && f.Predicate != predicate {
			continue
		}
		out = append(out, f)
	}
	return out
}

// AttributeFacts returns the full attribute log in insertion order.
func (s *Store) AttributeFacts() []*AttributeFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AttributeFact, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// RelationshipFacts returns the full relationship log in insertion order.
func (s *Store) RelationshipFacts() []*RelationshipFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RelationshipFact, len(s.relationships))
	copy(out, s.relationships)
	return out
}

// CorrectAttribute writes replacement and stamps superseded_at on the old
// statement. The old statement is retained; correcting is never an edit.
func (s *Store) CorrectAttribute(oldID StatementID, replacement *AttributeFact, at Timestamp) error {
	s.mu.RLock()
	old, ok := s.statementIDs[oldID]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownStatement, "%s", oldID)
	}
	oldAttr, ok := old.(*AttributeFact)
	if !ok {
		return errors.Wrapf(ErrUnknownStatement, "%s is not an attribute fact", oldID)
	}
	if err := s.AddAttributeFact(replacement); err != nil {
		return err
	}
	oldAttr.Supersede(at)
	return nil
}

// =============================================================================
// DECISION LOG
// =============================================================================

// AddDecision appends a reconciliation decision to the audit log.
func (s *Store) AddDecision(d *ReconciliationDecision) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.decisionIndex[d.DecisionID]; exists {
		return errors.Wrapf(ErrDuplicateDecisionID, "%s", d.DecisionID)
	}
	s.decisions = append(s.decisions, d)
	s.decisionIndex[d.DecisionID] = d
	return nil
}

// Decision returns the decision with the given id, if present.
func (s *Store) Decision(id DecisionID) (*ReconciliationDecision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisionIndex[id]
	return d, ok
}

// Decisions returns the decision log in insertion order.
func (s *Store) Decisions() []*ReconciliationDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ReconciliationDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// =============================================================================
// STATISTICS
// =============================================================================

type Stats struct {
	TotalNodes        int `json:"total_nodes"`
	EventNodes        int `json:"event_nodes"`
	EntityNodes       int `json:"entity_nodes"`
	SeriesNodes       int `json:"series_nodes"`
	AttributeFacts    int `json:"attribute_facts"`
	RelationshipFacts int `json:"relationship_facts"`
	Decisions         int `json:"reconciliation_decisions"`
	LineageRecords    int `json:"entity_lineage_records"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		TotalNodes:        len(s.nodes),
		AttributeFacts:    len(s.attributes),
		RelationshipFacts: len(s.relationships),
		Decisions:         len(s.decisions),
		LineageRecords:    s.lineage.Len(),
	}
	for _, n := range s.nodes {
		switch n.NodeKind() {
		case NodeKindEvent:
			st.EventNodes++
		case NodeKindEntity:
			st.EntityNodes++
		case NodeKindSeries:
			st.SeriesNodes++
		}
	}
	return st
}
