/*
Package fact provides the core bitemporal fact store.

PURPOSE:
  This package contains the data model and store for financial facts derived
  from overlapping observations: nodes (entities, events, series), statements
  (attribute facts, relationship facts), the entity lineage ledger, and the
  reconciliation decision log. Every derived value carries provenance and
  bitemporal qualifiers so that it can be traced back to its sources.

KEY CONCEPTS IN THIS FILE (types.go):
  - Timestamp: A point in time with tolerant JSON parsing (date-only or RFC3339)
  - Provenance: Where a fact came from (observations, method, observer, confidence)
  - TemporalQualifiers: Bitemporal tracking (valid_from/valid_to, observed_at/superseded_at)
  - ObjectValue: The typed scalar value of an attribute fact
  - Alternative: A rejected candidate value recorded for audit

DESIGN PRINCIPLES:
  1. Immutability: Statements are never mutated, only superseded
  2. Auditability: Every fact carries full provenance
  3. Precision: Monetary aggregates use decimal.Decimal, never float arithmetic
  4. Type Safety: Strong typing for node, statement, lineage, and decision IDs

SEE ALSO:
  - node.go: Node variants (entity, event, series)
  - statement.go: Attribute and relationship facts
  - lineage.go: Entity lineage ledger and resolver
  - store.go: The in-memory fact store
*/
package fact

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

func init() {
	// Monetary values are serialized as JSON numbers for compatibility with
	// the persisted artifact formats.
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type NodeID string
type StatementID string
type LineageID string
type DecisionID string

// =============================================================================
// TIMESTAMP - Tolerant ISO-8601 point in time
// =============================================================================

// Timestamp wraps time.Time with JSON parsing that accepts both full RFC3339
// timestamps and date-only strings ("2025-03-10"), since upstream observation
// files carry both forms.
type Timestamp struct {
	time.Time
}

func Now() Timestamp { return Timestamp{Time: time.Now().UTC()} }

func At(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, errors.Newf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "timestamp must be a JSON string")
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// PROVENANCE - Where a fact came from
// =============================================================================

type Provenance struct {
	ObservationIDs []string       `json:"observation_ids"`
	SourceMethod   string         `json:"source_method"`
	Observer       string         `json:"observer"`
	CreatedAt      Timestamp      `json:"created_at"`
	Confidence     float64        `json:"confidence"`
	SourceDocument map[string]any `json:"source_document,omitempty"`
}

func (p Provenance) Validate() error {
	if err := ValidateConfidence(p.Confidence); err != nil {
		return errors.Wrap(err, "provenance")
	}
	return nil
}

// ValidateConfidence enforces the [0,1] bound shared by provenance,
// lineage records, and reconciliation decisions.
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return errors.Wrapf(ErrConfidenceOutOfRange, "got %v", c)
	}
	return nil
}

// =============================================================================
// TEMPORAL QUALIFIERS - Bitemporal tracking
// =============================================================================

// TemporalQualifiers tracks both when something was true in reality
// (valid_from/valid_to) and when the system learned or unlearned it
// (observed_at/superseded_at).
type TemporalQualifiers struct {
	ValidFrom    Timestamp  `json:"valid_from"`
	ValidTo      *Timestamp `json:"valid_to"`
	ObservedAt   Timestamp  `json:"observed_at"`
	SupersededAt *Timestamp `json:"superseded_at"`
}

// Active reports whether the qualified statement is still current knowledge:
// it has neither stopped being true nor been superseded by a correction.
func (t TemporalQualifiers) Active() bool {
	return t.ValidTo == nil && t.SupersededAt == nil
}

// =============================================================================
// OBJECT VALUE - Typed scalar carried by an attribute fact
// =============================================================================

type ValueType string

const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
	ValueDate   ValueType = "date"
	ValueBool   ValueType = "boolean"
)

type ObjectValue struct {
	Value any       `json:"value"`
	Type  ValueType `json:"type"`
	Unit  string    `json:"unit,omitempty"`
}

func StringValue(v string) ObjectValue { return ObjectValue{Value: v, Type: ValueString} }
func DateValue(v string) ObjectValue   { return ObjectValue{Value: v, Type: ValueDate} }

// NumberValue carries a monetary or numeric value with an optional unit
// (currency code for amounts).
func NumberValue(v decimal.Decimal, unit string) ObjectValue {
	return ObjectValue{Value: v, Type: ValueNumber, Unit: unit}
}

// =============================================================================
// ALTERNATIVE - Rejected candidate value, kept for audit
// =============================================================================

// Alternative records a value that lost field-level reconciliation. Upstream
// files encode alternatives either as bare scalars or as objects with value
// and source metadata; both forms decode into this type.
type Alternative struct {
	Value         any    `json:"value"`
	ObservationID string `json:"observation_id,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

func (a *Alternative) UnmarshalJSON(data []byte) error {
	var obj struct {
		Value         any    `json:"value"`
		ObservationID string `json:"observation_id"`
		Strategy      string `json:"strategy"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Value != nil {
		a.Value = obj.Value
		a.ObservationID = obj.ObservationID
		a.Strategy = obj.Strategy
		return nil
	}
	// Bare scalar form.
	return json.Unmarshal(data, &a.Value)
}
