/*
Package reconcile implements the reconciliation decision builder.

PURPOSE:
  Field-level reconciliation itself is an external collaborator: a pure
  function from a cluster of observations to one canonical record. This
  package does not choose values - it DOCUMENTS choices already embedded in
  the canonical record's per-field metadata, emitting exactly one
  ReconciliationDecision per canonical output.

KEY CONCEPTS IN THIS FILE (fieldvalue.go):
  - FieldValue: Tagged variant. A canonical field is either a bare scalar or
    a reconciled value with strategy/source/confidence/alternatives metadata.
  - CanonicalRecord: One reconciled representation of a real-world event,
    with reserved envelope keys (id, reconciliation_decision_id, provenance,
    confidence, reconciliation_metadata) split from payload fields.

GUARANTEE:
  Every canonical record, single- or multi-source, receives exactly one
  decision. Single-source clusters are not special-cased away.

SEE ALSO:
  - builder.go: Decision construction
  - cluster.go: Observations, overlap groups, cluster processing
*/
package reconcile

import (
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// FIELD VALUE - Scalar | Reconciled tagged variant
// =============================================================================

// FieldValue is one canonical field. Upstream reconciliation emits either a
// raw scalar or an object carrying the winning value plus decision metadata;
// Reconciled distinguishes the two.
type FieldValue struct {
	Value      any
	Reconciled bool

	// Set only when Reconciled.
	Method              string
	SourceObservationID string
	Confidence          float64
	Alternatives        []fact.Alternative
}

// Scalar returns the underlying value regardless of variant.
func (v FieldValue) Scalar() any { return v.Value }

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if !v.Reconciled {
		return json.Marshal(v.Value)
	}
	return json.Marshal(struct {
		Value               any                `json:"value"`
		Method              string             `json:"reconciliation_method"`
		SourceObservationID string             `json:"source_observation_id"`
		Confidence          float64            `json:"confidence"`
		Alternatives        []fact.Alternative `json:"alternatives"`
	}{v.Value, v.Method, v.SourceObservationID, v.Confidence, v.Alternatives})
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		// Not an object: bare scalar variant (number, string, bool, array, null).
		v.Reconciled = false
		return json.Unmarshal(data, &v.Value)
	}

	// Any JSON object is the reconciled variant, with defaults for missing
	// metadata: strategy "unknown" comes later from the builder, confidence
	// defaults to 1.0 here.
	var obj struct {
		Value               any                `json:"value"`
		Method              string             `json:"reconciliation_method"`
		SourceObservationID string             `json:"source_observation_id"`
		Confidence          *float64           `json:"confidence"`
		Alternatives        []fact.Alternative `json:"alternatives"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrap(err, "reconciled field value")
	}
	v.Reconciled = true
	v.Value = obj.Value
	v.Method = obj.Method
	v.SourceObservationID = obj.SourceObservationID
	v.Confidence = 1.0
	if obj.Confidence != nil {
		v.Confidence = *obj.Confidence
	}
	v.Alternatives = obj.Alternatives
	return nil
}

// =============================================================================
// CANONICAL RECORD
// =============================================================================

// Reserved envelope keys that are not payload fields.
const (
	keyID         = "id"
	keyDecisionID = "reconciliation_decision_id"
	keyProvenance = "provenance"
	keyConfidence = "confidence"
	keyMetadata   = "reconciliation_metadata"
)

type CanonicalRecord struct {
	ID                       string
	ReconciliationDecisionID fact.DecisionID
	Provenance               *fact.Provenance
	Confidence               float64
	Metadata                 map[string]any
	Fields                   map[string]FieldValue
}

// EventNodeID returns the id of the event node the migration step creates
// for this record.
func (r *CanonicalRecord) EventNodeID() fact.NodeID {
	return fact.NodeID("evt_" + r.ID)
}

func (r *CanonicalRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "canonical record")
	}

	r.Confidence = 1.0
	r.Fields = make(map[string]FieldValue, len(raw))
	for key, val := range raw {
		switch key {
		case keyID:
			if err := json.Unmarshal(val, &r.ID); err != nil {
				return errors.Wrap(err, "canonical record id")
			}
		case keyDecisionID:
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				r.ReconciliationDecisionID = fact.DecisionID(s)
			}
		case keyProvenance:
			var p fact.Provenance
			if err := json.Unmarshal(val, &p); err == nil {
				r.Provenance = &p
			}
		case keyConfidence:
			r.Confidence = parseConfidence(val)
		case keyMetadata:
			_ = json.Unmarshal(val, &r.Metadata)
		default:
			var fv FieldValue
			if err := json.Unmarshal(val, &fv); err != nil {
				return errors.Wrapf(err, "canonical field %s", key)
			}
			r.Fields[key] = fv
		}
	}
	if r.ID == "" {
		return errors.New("canonical record missing id")
	}
	return nil
}

func (r *CanonicalRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+5)
	out[keyID] = r.ID
	if r.ReconciliationDecisionID != "" {
		out[keyDecisionID] = r.ReconciliationDecisionID
	}
	if r.Provenance != nil {
		out[keyProvenance] = r.Provenance
	}
	out[keyConfidence] = r.Confidence
	if r.Metadata != nil {
		out[keyMetadata] = r.Metadata
	}
	for key, fv := range r.Fields {
		out[key] = fv
	}
	return json.Marshal(out)
}

// parseConfidence accepts the two upstream forms: a bare number or an object
// with an "overall" key.
func parseConfidence(raw json.RawMessage) float64 {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var obj struct {
		Overall *float64 `json:"overall"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Overall != nil {
		return *obj.Overall
	}
	return 1.0
}

// FieldNames returns the record's payload field names, sorted for
// deterministic iteration.
func (r *CanonicalRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
