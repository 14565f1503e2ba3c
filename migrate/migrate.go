/*
Package migrate materializes canonical records into the fact store.

PURPOSE:
  The final pipeline step: each canonical record becomes one EventNode plus
  attribute facts for its schema fields, and each merchant becomes one
  EntityNode (created once, with a canonical_name fact) linked from the
  event by a relationship fact. Statement ids use the deterministic
  attr_<event>_<predicate> form (rel_<event>_merchant for the merchant link)
  so they match the ids the decision builder recorded in
  created_statement_ids.

WHAT ONE RECORD PRODUCES:
  - 1 EventNode (snapshot: amount, currency, description)
  - 1 AttributeFact per schema field present (amount, description, date,
    currency, category, account)
  - 1 EntityNode + canonical_name fact per NEW merchant
  - 1 RelationshipFact event -> merchant

ERROR HANDLING:
  A record whose statements collide with already-materialized ids (a
  duplicate canonical id in the input) is skipped with a warning; the batch
  continues.

SEE ALSO:
  - reconcile: Produces the canonical records and decisions
  - fact: Owns everything this package writes
*/
package migrate

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/reconcile"
)

// =============================================================================
// MIGRATOR
// =============================================================================

type Migrator struct {
	store  *fact.Store
	schema reconcile.FieldSchema
	log    *zap.SugaredLogger
	clock  func() time.Time

	// merchant canonical name -> entity node id, built during the run
	merchants map[string]fact.NodeID
}

func New(store *fact.Store, schema reconcile.FieldSchema, log *zap.SugaredLogger) *Migrator {
	if schema == nil {
		schema = reconcile.DefaultFieldSchema
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Migrator{
		store:     store,
		schema:    schema,
		log:       log,
		clock:     time.Now,
		merchants: make(map[string]fact.NodeID),
	}
}

// WithClock pins the migrator to a clock for deterministic runs.
func (m *Migrator) WithClock(clock func() time.Time) *Migrator {
	m.clock = clock
	return m
}

// Summary reports what one migration run materialized.
type Summary struct {
	Events            int `json:"events"`
	Merchants         int `json:"merchants"`
	AttributeFacts    int `json:"attribute_facts"`
	RelationshipFacts int `json:"relationship_facts"`
	Skipped           int `json:"skipped"`
}

// Run materializes records into the store.
func (m *Migrator) Run(records []*reconcile.CanonicalRecord) (*Summary, error) {
	summary := &Summary{}
	for _, rec := range records {
		if err := m.migrateRecord(rec, summary); err != nil {
			if errors.Is(err, fact.ErrDuplicateStatementID) {
				summary.Skipped++
				m.log.Warnw("skipping canonical record with colliding statements",
					"record", rec.ID, "error", err)
				continue
			}
			return summary, errors.Wrapf(err, "record %s", rec.ID)
		}
		summary.Events++
	}
	m.log.Infow("migration complete",
		"events", summary.Events,
		"merchants", summary.Merchants,
		"attribute_facts", summary.AttributeFacts,
		"relationship_facts", summary.RelationshipFacts,
		"skipped", summary.Skipped)
	return summary, nil
}

func (m *Migrator) migrateRecord(rec *reconcile.CanonicalRecord, summary *Summary) error {
	now := fact.At(m.clock())
	eventID := rec.EventNodeID()

	event := fact.NewEventNode(eventID, fact.EventFinanceTransaction, scalarString(rec, "date"), now)
	event.Snapshot = map[string]any{
		"amount":      scalarOf(rec, "amount"),
		"currency":    currencyOf(rec),
		"description": scalarOf(rec, "description"),
	}
	m.store.AddEvent(event)

	temporal := m.temporalFor(rec, now)
	provenance := m.provenanceFor(rec, now)

	for _, field := range m.schema {
		if field == reconcile.FieldMerchant {
			continue
		}
		fv, present := rec.Fields[field]
		if !present || fv.Scalar() == nil {
			continue
		}
		attr := &fact.AttributeFact{
			StatementID:              fact.FieldStatementID(fact.StatementKindAttribute, eventID, field),
			SubjectID:                eventID,
			Predicate:                field,
			Object:                   objectFor(field, fv, currencyOf(rec)),
			Temporal:                 temporal,
			Provenance:               provenance,
			ReconciliationDecisionID: rec.ReconciliationDecisionID,
			RejectedAlternatives:     alternativesOf(fv),
		}
		if err := m.store.AddAttributeFact(attr); err != nil {
			return err
		}
		summary.AttributeFacts++
	}

	if name, ok := scalarOf(rec, reconcile.FieldMerchant).(string); ok && name != "" {
		if err := m.linkMerchant(rec, eventID, name, temporal, provenance, now, summary); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) linkMerchant(rec *reconcile.CanonicalRecord, eventID fact.NodeID, name string,
	temporal fact.TemporalQualifiers, provenance fact.Provenance, now fact.Timestamp, summary *Summary) error {

	entityID, known := m.merchants[name]
	if !known {
		entityID = fact.NodeID(fmt.Sprintf("ent_merchant_%d", len(m.merchants)))
		m.merchants[name] = entityID

		entity := fact.NewEntityNode(entityID, fact.EntityMerchant, now)
		entity.Aliases = []string{name}
		m.store.AddEntity(entity)

		nameFact := &fact.AttributeFact{
			StatementID: fact.FieldStatementID(fact.StatementKindAttribute, entityID, "canonical_name"),
			SubjectID:   entityID,
			Predicate:   "canonical_name",
			Object:      fact.StringValue(name),
			Temporal:    temporal,
			Provenance:  provenance,
		}
		if err := m.store.AddAttributeFact(nameFact); err != nil {
			return err
		}
		summary.AttributeFacts++
		summary.Merchants++
	}

	rel := &fact.RelationshipFact{
		StatementID:              fact.FieldStatementID(fact.StatementKindRelationship, eventID, reconcile.FieldMerchant),
		SubjectID:                eventID,
		Predicate:                reconcile.FieldMerchant,
		TargetID:                 entityID,
		Temporal:                 temporal,
		Provenance:               provenance,
		ReconciliationDecisionID: rec.ReconciliationDecisionID,
		RejectedAlternatives:     alternativesOf(rec.Fields[reconcile.FieldMerchant]),
	}
	if err := m.store.AddRelationshipFact(rel); err != nil {
		return err
	}
	summary.RelationshipFacts++
	return nil
}

// =============================================================================
// QUALIFIER CONSTRUCTION
// =============================================================================

// temporalFor uses the transaction date as valid_from (facts about a
// transaction are permanently true from when it happened) and the
// provenance created_at as observed_at.
func (m *Migrator) temporalFor(rec *reconcile.CanonicalRecord, now fact.Timestamp) fact.TemporalQualifiers {
	validFrom := now
	if raw := scalarString(rec, "date"); raw != "" {
		if ts, err := fact.ParseTimestamp(raw); err == nil {
			validFrom = ts
		}
	}
	observedAt := now
	if rec.Provenance != nil && !rec.Provenance.CreatedAt.IsZero() {
		observedAt = rec.Provenance.CreatedAt
	}
	return fact.TemporalQualifiers{ValidFrom: validFrom, ObservedAt: observedAt}
}

func (m *Migrator) provenanceFor(rec *reconcile.CanonicalRecord, now fact.Timestamp) fact.Provenance {
	if rec.Provenance != nil {
		p := *rec.Provenance
		if p.Confidence == 0 {
			p.Confidence = rec.Confidence
		}
		return p
	}
	return fact.Provenance{
		ObservationIDs: []string{},
		SourceMethod:   "unknown",
		Observer:       "unknown",
		CreatedAt:      now,
		Confidence:     rec.Confidence,
	}
}

// =============================================================================
// VALUE EXTRACTION
// =============================================================================

func scalarOf(rec *reconcile.CanonicalRecord, field string) any {
	if fv, ok := rec.Fields[field]; ok {
		return fv.Scalar()
	}
	return nil
}

func scalarString(rec *reconcile.CanonicalRecord, field string) string {
	s, _ := scalarOf(rec, field).(string)
	return s
}

func currencyOf(rec *reconcile.CanonicalRecord) string {
	if c, ok := scalarOf(rec, "currency").(string); ok && c != "" {
		return c
	}
	return "USD"
}

func alternativesOf(fv reconcile.FieldValue) []fact.Alternative {
	if fv.Alternatives == nil {
		return []fact.Alternative{}
	}
	return fv.Alternatives
}

func objectFor(field string, fv reconcile.FieldValue, currency string) fact.ObjectValue {
	value := fv.Scalar()
	switch field {
	case "amount":
		return fact.NumberValue(toDecimal(value), currency)
	case "date":
		s, _ := value.(string)
		return fact.DateValue(s)
	default:
		if n, ok := value.(float64); ok {
			return fact.ObjectValue{Value: decimal.NewFromFloat(n), Type: fact.ValueNumber}
		}
		s, _ := value.(string)
		return fact.StringValue(s)
	}
}

func toDecimal(value any) decimal.Decimal {
	switch v := value.(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}
