/*
decision.go - Reconciliation decision records

PURPOSE:
  A ReconciliationDecision is the audit record of how one canonical output
  was assembled from its input observations: per field, which strategy ran,
  which observation won, what confidence it carried, and which alternatives
  were rejected.

INVARIANTS:
  - Exactly one decision exists per canonical record, including single-source
    clusters.
  - Every statement listed in created_statement_ids carries this decision's
    id in its own reconciliation_decision_id.
  - Overall confidence is the arithmetic mean of collected field confidences,
    or 1.0 when no field carried confidence data.

SEE ALSO:
  - statement.go: Statements that back-reference decisions
  - store.go: Append-only decision log owned by the store
*/
package fact

import "github.com/cockroachdb/errors"

// =============================================================================
// DECISION METHOD
// =============================================================================

type DecisionMethod string

const (
	DecisionSingleSource  DecisionMethod = "single_source"
	DecisionAutomated     DecisionMethod = "automated"
	DecisionManualReview  DecisionMethod = "manual_review"
	DecisionHumanOverride DecisionMethod = "human_override"
)

// =============================================================================
// FIELD STRATEGY - Per-predicate outcome of reconciliation
// =============================================================================

type FieldStrategy struct {
	Strategy          string        `json:"strategy"`
	ChosenObservation string        `json:"chosen_obs"`
	Confidence        float64       `json:"confidence"`
	Alternatives      []Alternative `json:"alternatives"`
}

// =============================================================================
// RECONCILIATION DECISION
// =============================================================================

type ReconciliationDecision struct {
	DecisionID DecisionID `json:"decision_id"`
	Timestamp  Timestamp  `json:"timestamp"`

	// Input cluster
	ObservationIDs  []string       `json:"observation_ids"`
	ClusterMetadata map[string]any `json:"cluster_metadata"`

	// Field-level outcomes, keyed by predicate.
	FieldStrategies map[string]FieldStrategy `json:"field_strategies"`

	// Statement ids the migration step materializes for these fields.
	CreatedStatementIDs []StatementID `json:"created_statement_ids"`

	Confidence     float64        `json:"confidence"`
	DecisionMethod DecisionMethod `json:"decision_method"`
	CreatedAt      Timestamp      `json:"created_at"`
}

func (d *ReconciliationDecision) Validate() error {
	if d.DecisionID == "" {
		return errors.New("decision id must not be empty")
	}
	if err := ValidateConfidence(d.Confidence); err != nil {
		return errors.Wrapf(err, "decision %s", d.DecisionID)
	}
	for predicate, fs := range d.FieldStrategies {
		if err := ValidateConfidence(fs.Confidence); err != nil {
			return errors.Wrapf(err, "decision %s field %s", d.DecisionID, predicate)
		}
	}
	switch d.DecisionMethod {
	case DecisionSingleSource, DecisionAutomated, DecisionManualReview, DecisionHumanOverride:
	default:
		return errors.Wrapf(ErrInvalidDecisionMethod, "%q", d.DecisionMethod)
	}
	return nil
}
