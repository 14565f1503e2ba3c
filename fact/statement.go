/*
statement.go - Provenanced, bitemporal statements

PURPOSE:
  Statements are the unit of knowledge in the store:
  - AttributeFact: (subject, predicate, typed scalar) - a property of a node
  - RelationshipFact: (subject, predicate, target) - an edge between nodes

CRITICAL INVARIANTS:
  1. IMMUTABLE: A statement is never edited in place. EVER.
  2. CORRECTIONS: Write a new statement and stamp superseded_at on the old
     one. Both remain in the store.
  3. ACTIVE: A statement is active iff valid_to and superseded_at are both
     unset.
  4. PROVENANCED: Every statement names the observations it came from and
     the reconciliation decision (if any) that chose its value.

SEE ALSO:
  - ids.go: Deterministic statement id generation
  - store.go: Insertion-ordered statement collections
*/
package fact

// Statement is implemented by AttributeFact and RelationshipFact.
type Statement interface {
	ID() StatementID
	Subject() NodeID
	Pred() string
	Active() bool
}

// =============================================================================
// ATTRIBUTE FACT - Scalar property of a node
// =============================================================================

type AttributeFact struct {
	StatementID StatementID `json:"statement_id"`
	SubjectID   NodeID      `json:"subject_id"`
	Predicate   string      `json:"predicate"`
	Object      ObjectValue `json:"object"`

	Temporal   TemporalQualifiers `json:"temporal"`
	Provenance Provenance         `json:"provenance"`

	// Audit trail back to the reconciliation decision that produced this
	// fact, plus the candidate values that lost.
	ReconciliationDecisionID DecisionID    `json:"reconciliation_decision_id,omitempty"`
	RejectedAlternatives     []Alternative `json:"rejected_alternatives"`
}

func (f *AttributeFact) ID() StatementID { return f.StatementID }
func (f *AttributeFact) Subject() NodeID { return f.SubjectID }
func (f *AttributeFact) Pred() string    { return f.Predicate }
func (f *AttributeFact) Active() bool    { return f.Temporal.Active() }

// Supersede marks this fact as corrected knowledge. The fact is retained;
// the replacement is written separately.
func (f *AttributeFact) Supersede(at Timestamp) { f.Temporal.SupersededAt = &at }

// =============================================================================
// RELATIONSHIP FACT - First-class edge between nodes
// =============================================================================

type RelationshipFact struct {
	StatementID StatementID `json:"statement_id"`
	SubjectID   NodeID      `json:"subject_id"`
	Predicate   string      `json:"predicate"`
	TargetID    NodeID      `json:"target_id"`

	Temporal   TemporalQualifiers `json:"temporal"`
	Provenance Provenance         `json:"provenance"`

	ReconciliationDecisionID DecisionID    `json:"reconciliation_decision_id,omitempty"`
	RejectedAlternatives     []Alternative `json:"rejected_alternatives"`
}

func (f *RelationshipFact) ID() StatementID { return f.StatementID }
func (f *RelationshipFact) Subject() NodeID { return f.SubjectID }
func (f *RelationshipFact) Pred() string    { return f.Predicate }
func (f *RelationshipFact) Active() bool    { return f.Temporal.Active() }

func (f *RelationshipFact) Supersede(at Timestamp) { f.Temporal.SupersededAt = &at }
