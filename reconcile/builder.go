/*
builder.go - Reconciliation decision construction

PURPOSE:
  Builds one ReconciliationDecision per canonical record, documenting per
  field which strategy ran, which observation won, with what confidence, and
  what was rejected - all read from metadata the external reconciler already
  embedded. Missing metadata degrades to sentinels ("unknown" strategy,
  confidence 1.0) rather than failing.

FIELD SCHEMA:
  Only predicates in the known field schema are documented, in schema order,
  so decisions are deterministic and created_statement_ids line up with what
  the migration step materializes.

SEE ALSO:
  - fieldvalue.go: The Scalar | Reconciled variant
  - migrate package: Consumes created_statement_ids
*/
package reconcile

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// FIELD SCHEMA
// =============================================================================

// FieldSchema is the ordered set of predicates the decision builder and the
// migration step know about.
type FieldSchema []string

func (s FieldSchema) Contains(name string) bool {
	for _, f := range s {
		if f == name {
			return true
		}
	}
	return false
}

// FieldMerchant is the one schema predicate materialized as a relationship
// fact to a merchant entity instead of an attribute fact on the event.
const FieldMerchant = "merchant"

// DefaultFieldSchema covers the canonical transaction fields.
var DefaultFieldSchema = FieldSchema{
	"date",
	"amount",
	"currency",
	"description",
	FieldMerchant,
	"category",
	"account",
}

// =============================================================================
// BUILDER
// =============================================================================

type Builder struct {
	schema FieldSchema
	ids    *fact.IDSequence
	clock  func() time.Time
}

func NewBuilder(schema FieldSchema, ids *fact.IDSequence) *Builder {
	if schema == nil {
		schema = DefaultFieldSchema
	}
	return &Builder{schema: schema, ids: ids, clock: time.Now}
}

// WithClock pins the builder to a clock for deterministic runs.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build documents the choices embedded in canonical for a cluster of
// observations. Every canonical record gets exactly one decision; a cluster
// of one observation is decision_method "single_source".
func (b *Builder) Build(observations []Observation, canonical *CanonicalRecord) (*fact.ReconciliationDecision, error) {
	if len(observations) == 0 {
		return nil, errors.New("decision requires at least one observation")
	}
	if canonical == nil || canonical.ID == "" {
		return nil, errors.New("decision requires a canonical record with an id")
	}

	now := fact.At(b.clock())

	obsIDs := make([]string, 0, len(observations))
	for _, obs := range observations {
		obsIDs = append(obsIDs, obs.ObservationID())
	}

	fieldStrategies := make(map[string]fact.FieldStrategy)
	createdStatementIDs := []fact.StatementID{}
	var confidences []float64

	for _, field := range b.schema {
		fv, present := canonical.Fields[field]
		if !present || !fv.Reconciled {
			continue
		}
		strategy := fv.Method
		if strategy == "" {
			strategy = "unknown"
		}
		chosen := fv.SourceObservationID
		if chosen == "" {
			chosen = "unknown"
		}
		alternatives := fv.Alternatives
		if alternatives == nil {
			alternatives = []fact.Alternative{}
		}
		fieldStrategies[field] = fact.FieldStrategy{
			Strategy:          strategy,
			ChosenObservation: chosen,
			Confidence:        fv.Confidence,
			Alternatives:      alternatives,
		}
		confidences = append(confidences, fv.Confidence)
		if id, ok := materializedStatementID(canonical.EventNodeID(), field, fv); ok {
			createdStatementIDs = append(createdStatementIDs, id)
		}
	}

	// Mean of collected field confidences; 1.0 when nothing carried
	// confidence data. Never a division by zero.
	overall := 1.0
	if len(confidences) > 0 {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		overall = sum / float64(len(confidences))
	}

	method := fact.DecisionAutomated
	if len(observations) == 1 {
		method = fact.DecisionSingleSource
	}

	decision := &fact.ReconciliationDecision{
		DecisionID:          b.ids.NextDecisionID(),
		Timestamp:           now,
		ObservationIDs:      obsIDs,
		ClusterMetadata:     clusterMetadata(observations, now),
		FieldStrategies:     fieldStrategies,
		CreatedStatementIDs: createdStatementIDs,
		Confidence:          overall,
		DecisionMethod:      method,
		CreatedAt:           now,
	}
	if err := decision.Validate(); err != nil {
		return nil, errors.Wrapf(err, "canonical record %s", canonical.ID)
	}
	return decision, nil
}

// materializedStatementID predicts the statement id the migration step will
// create for a reconciled field, mirroring its materialization rules: nil
// values produce no statement, and merchant becomes a relationship fact to
// the merchant entity rather than an attribute fact on the event.
func materializedStatementID(event fact.NodeID, field string, fv FieldValue) (fact.StatementID, bool) {
	value := fv.Scalar()
	if value == nil {
		return "", false
	}
	if field == FieldMerchant {
		name, ok := value.(string)
		if !ok || name == "" {
			return "", false
		}
		return fact.FieldStatementID(fact.StatementKindRelationship, event, field), true
	}
	return fact.FieldStatementID(fact.StatementKindAttribute, event, field), true
}

func clusterMetadata(observations []Observation, now fact.Timestamp) map[string]any {
	sources := make(map[string]struct{})
	for _, obs := range observations {
		sources[obs.DataSource()] = struct{}{}
	}
	sorted := make([]string, 0, len(sources))
	for s := range sources {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)
	return map[string]any{
		"observation_count":        len(observations),
		"data_sources":             sorted,
		"reconciliation_timestamp": now,
	}
}
