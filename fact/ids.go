/*
ids.go - Run-scoped identifier generation

PURPOSE:
  All identifier generation is owned by an IDSequence value, not by package
  globals. A batch run creates one sequence and threads it through the merge
  engine, the decision builder, and the migration step, so a run is
  reproducible and two concurrent runs never share counters.

ID FORMS:
  Statement (generated): attr_<subject>_<predicate>_<stamp>[_<n>]
  Statement (field):     attr_<subject>_<predicate>   (deterministic; the
                         decision builder and the migration step must both
                         derive the same id for a reconciled field)
  Lineage:               lineage_000001
  Decision:              recon_decision_000001

UNIQUENESS:
  Generated statement ids embed a microsecond wall-clock stamp; when two
  generations land on the same stamp, a per-sequence counter suffix keeps
  them distinct. Rapid successive generation therefore never collides.

SEE ALSO:
  - store.go: The store owns the sequence for its run
*/
package fact

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STATEMENT KINDS
// =============================================================================

const (
	StatementKindAttribute    = "attr"
	StatementKindRelationship = "rel"
)

// FieldStatementID derives the deterministic statement id the migration step
// materializes for a reconciled field. The decision builder synthesizes the
// same id ahead of time for created_statement_ids.
func FieldStatementID(kind string, subject NodeID, predicate string) StatementID {
	return StatementID(fmt.Sprintf("%s_%s_%s", kind, subject, predicate))
}

// =============================================================================
// ID SEQUENCE - Monotonic, run-scoped
// =============================================================================

type IDSequence struct {
	mu        sync.Mutex
	runNonce  string
	clock     func() time.Time
	lastStamp string
	stampSeq  int
	lineageN  int
	decisionN int
}

func NewIDSequence() *IDSequence {
	return &IDSequence{
		runNonce: uuid.NewString(),
		clock:    time.Now,
	}
}

// NewIDSequenceAt pins the sequence to a clock, for deterministic tests and
// replayable runs.
func NewIDSequenceAt(clock func() time.Time) *IDSequence {
	s := NewIDSequence()
	s.clock = clock
	return s
}

// RunNonce identifies the batch run this sequence belongs to.
func (s *IDSequence) RunNonce() string { return s.runNonce }

// NextStatementID derives a unique statement id from (subject, predicate,
// timestamp). Two calls within the same microsecond get a counter suffix.
func (s *IDSequence) NextStatementID(kind string, subject NodeID, predicate string) StatementID {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	stamp := now.Format("20060102150405") + fmt.Sprintf("%06d", now.Nanosecond()/1000)
	if stamp == s.lastStamp {
		s.stampSeq++
		return StatementID(fmt.Sprintf("%s_%s_%s_%s_%d", kind, subject, predicate, stamp, s.stampSeq))
	}
	s.lastStamp = stamp
	s.stampSeq = 0
	return StatementID(fmt.Sprintf("%s_%s_%s_%s", kind, subject, predicate, stamp))
}

// NextLineageID returns the next lineage id in this run.
func (s *IDSequence) NextLineageID() LineageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := LineageID(fmt.Sprintf("lineage_%06d", s.lineageN))
	s.lineageN++
	return id
}

// NextDecisionID returns the next reconciliation decision id in this run.
func (s *IDSequence) NextDecisionID() DecisionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := DecisionID(fmt.Sprintf("recon_decision_%06d", s.decisionN))
	s.decisionN++
	return id
}
