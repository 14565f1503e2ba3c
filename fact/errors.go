/*
errors.go - Centralized error types for the fact store

PURPOSE:
  All sentinel errors of the core packages in one place. Domain packages
  (merge, reconcile, migrate) wrap these with additional context via
  cockroachdb/errors so call sites keep stack traces while errors.Is
  still matches the sentinel.

USAGE:
    if errors.Is(err, fact.ErrUnknownSubject) {
        // tolerate or reject depending on store configuration
    }

SEE ALSO:
  - store.go: Uses these errors
  - lineage.go: Uses these errors
*/
package fact

import "github.com/cockroachdb/errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfidenceOutOfRange is returned when a confidence value falls
	// outside [0,1].
	ErrConfidenceOutOfRange = errors.New("confidence out of range [0,1]")

	// ErrDuplicateStatementID is returned when a statement with the same id
	// has already been recorded. Statement ids must be unique within a store.
	ErrDuplicateStatementID = errors.New("duplicate statement id")

	// ErrDuplicateDecisionID is returned when a reconciliation decision with
	// the same id has already been logged.
	ErrDuplicateDecisionID = errors.New("duplicate decision id")

	// ErrDuplicateLineageID is returned when a lineage record with the same
	// id has already been appended.
	ErrDuplicateLineageID = errors.New("duplicate lineage id")

	// ErrUnknownSubject is returned in strict-reference mode when a
	// statement's subject id does not name an existing node.
	ErrUnknownSubject = errors.New("statement subject refers to unknown node")

	// ErrUnknownTarget is returned in strict-reference mode when a
	// relationship's target id does not name an existing node.
	ErrUnknownTarget = errors.New("relationship target refers to unknown node")

	// ErrUnknownStatement is returned when a correction names a statement id
	// that was never recorded.
	ErrUnknownStatement = errors.New("unknown statement id")

	// ErrInvalidLineageOperation is returned for operations outside
	// merge/split/rename/deprecate.
	ErrInvalidLineageOperation = errors.New("invalid lineage operation")

	// ErrInvalidDecisionMethod is returned for decision methods outside the
	// known set.
	ErrInvalidDecisionMethod = errors.New("invalid decision method")
)
