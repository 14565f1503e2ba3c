/*
Package artifact defines the persisted JSON documents the pipeline exchanges.

PURPOSE:
  Every stage reads its input and writes its output as one of these
  envelopes. Field names are part of the interchange contract: downstream
  consumers key on them, so they never change casually.

DOCUMENTS:
  - Registry file:        entity registry after merge (merge.Registry)
  - Lineage file:         every EntityLineage record of a run
  - Merge report:         merge.Report, written as-is
  - Canonical ledger:     reconciled transactions + decision references
  - Decisions file:       the full ReconciliationDecision audit log
  - Schema export:        the complete fact store, nodes and statements

SEE ALSO:
  - io.go: Backup-first, rename-atomic file handling
  - pipeline: Orchestrates who writes and reads which document
*/
package artifact

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/reconcile"
)

// Envelope version strings. The canonical ledger lineage predates the rest
// of the pipeline, hence the jump.
const (
	LineageFileVersion     = "1.0"
	DecisionsFileVersion   = "1.0"
	CanonicalLedgerVersion = "6.0"
	SchemaExportVersion    = "1.0"
)

// =============================================================================
// LINEAGE FILE
// =============================================================================

type LineageFile struct {
	GeneratedAt  fact.Timestamp        `json:"generated_at"`
	Version      string                `json:"version"`
	LineageCount int                   `json:"lineage_count"`
	Lineage      []*fact.EntityLineage `json:"lineage"`
}

func NewLineageFile(records []*fact.EntityLineage, now fact.Timestamp) *LineageFile {
	if records == nil {
		records = []*fact.EntityLineage{}
	}
	return &LineageFile{
		GeneratedAt:  now,
		Version:      LineageFileVersion,
		LineageCount: len(records),
		Lineage:      records,
	}
}

// =============================================================================
// CANONICAL LEDGER
// =============================================================================

type CanonicalLedger struct {
	GeneratedAt        fact.Timestamp               `json:"generated_at"`
	Version            string                       `json:"version"`
	ReconciliationType string                       `json:"reconciliation_type"`
	SchemaVersion      reconcile.FieldSchema        `json:"schema_version"`
	TransactionCount   int                          `json:"transaction_count"`
	DecisionCount      int                          `json:"decision_count"`
	Transactions       []*reconcile.CanonicalRecord `json:"transactions"`
}

func NewCanonicalLedger(records []*reconcile.CanonicalRecord, schema reconcile.FieldSchema,
	decisionCount int, now fact.Timestamp) *CanonicalLedger {
	if records == nil {
		records = []*reconcile.CanonicalRecord{}
	}
	if schema == nil {
		schema = reconcile.DefaultFieldSchema
	}
	return &CanonicalLedger{
		GeneratedAt:        now,
		Version:            CanonicalLedgerVersion,
		ReconciliationType: "field_level_with_decisions",
		SchemaVersion:      schema,
		TransactionCount:   len(records),
		DecisionCount:      decisionCount,
		Transactions:       records,
	}
}

// =============================================================================
// DECISIONS FILE
// =============================================================================

type DecisionsFile struct {
	GeneratedAt   fact.Timestamp                 `json:"generated_at"`
	Version       string                         `json:"version"`
	DecisionCount int                            `json:"decision_count"`
	Decisions     []*fact.ReconciliationDecision `json:"decisions"`
}

func NewDecisionsFile(decisions []*fact.ReconciliationDecision, now fact.Timestamp) *DecisionsFile {
	if decisions == nil {
		decisions = []*fact.ReconciliationDecision{}
	}
	return &DecisionsFile{
		GeneratedAt:   now,
		Version:       DecisionsFileVersion,
		DecisionCount: len(decisions),
		Decisions:     decisions,
	}
}

// =============================================================================
// SCHEMA EXPORT
// =============================================================================

type SchemaExport struct {
	GeneratedAt   fact.Timestamp `json:"generated_at"`
	Source        string         `json:"source"`
	SchemaVersion string         `json:"schema_version"`
	Description   string         `json:"description,omitempty"`
	Statistics    fact.Stats     `json:"statistics"`

	Nodes                   map[fact.NodeID]fact.Node      `json:"nodes"`
	AttributeFacts          []*fact.AttributeFact          `json:"attribute_facts"`
	RelationshipFacts       []*fact.RelationshipFact       `json:"relationship_facts"`
	ReconciliationDecisions []*fact.ReconciliationDecision `json:"reconciliation_decisions"`
	EntityLineage           []*fact.EntityLineage          `json:"entity_lineage"`
}

// UnmarshalJSON decodes the export, picking concrete node types by their
// node_type discriminator.
func (e *SchemaExport) UnmarshalJSON(data []byte) error {
	type alias SchemaExport
	aux := struct {
		*alias
		Nodes map[fact.NodeID]json.RawMessage `json:"nodes"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.Nodes = make(map[fact.NodeID]fact.Node, len(aux.Nodes))
	for id, raw := range aux.Nodes {
		var probe struct {
			Kind fact.NodeKind `json:"node_type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return errors.Wrapf(err, "node %s", id)
		}
		var node fact.Node
		switch probe.Kind {
		case fact.NodeKindEntity:
			node = &fact.EntityNode{}
		case fact.NodeKindEvent:
			node = &fact.EventNode{}
		case fact.NodeKindSeries:
			node = &fact.SeriesNode{}
		default:
			return errors.Newf("node %s has unknown node_type %q", id, probe.Kind)
		}
		if err := json.Unmarshal(raw, node); err != nil {
			return errors.Wrapf(err, "node %s", id)
		}
		e.Nodes[id] = node
	}
	return nil
}

// Restore rebuilds a fact store from the export.
func (e *SchemaExport) Restore(opts ...fact.Option) (*fact.Store, error) {
	s := fact.NewStore(opts...)
	for _, n := range e.Nodes {
		switch node := n.(type) {
		case *fact.EntityNode:
			s.AddEntity(node)
		case *fact.EventNode:
			s.AddEvent(node)
		case *fact.SeriesNode:
			s.AddSeries(node)
		}
	}
	for _, f := range e.AttributeFacts {
		if err := s.AddAttributeFact(f); err != nil {
			return nil, errors.Wrapf(err, "statement %s", f.StatementID)
		}
	}
	for _, f := range e.RelationshipFacts {
		if err := s.AddRelationshipFact(f); err != nil {
			return nil, errors.Wrapf(err, "statement %s", f.StatementID)
		}
	}
	for _, d := range e.ReconciliationDecisions {
		if err := s.AddDecision(d); err != nil {
			return nil, errors.Wrapf(err, "decision %s", d.DecisionID)
		}
	}
	for _, l := range e.EntityLineage {
		if err := s.Lineage().Append(l); err != nil {
			return nil, errors.Wrapf(err, "lineage %s", l.LineageID)
		}
	}
	return s, nil
}

// NewSchemaExport snapshots a fact store into its interchange form.
func NewSchemaExport(s *fact.Store, source string, now fact.Timestamp) *SchemaExport {
	nodes := make(map[fact.NodeID]fact.Node)
	for _, n := range s.Nodes() {
		nodes[n.NodeID()] = n
	}
	return &SchemaExport{
		GeneratedAt:             now,
		Source:                  source,
		SchemaVersion:           SchemaExportVersion,
		Statistics:              s.Stats(),
		Nodes:                   nodes,
		AttributeFacts:          s.AttributeFacts(),
		RelationshipFacts:       s.RelationshipFacts(),
		ReconciliationDecisions: s.Decisions(),
		EntityLineage:           s.Lineage().Records(),
	}
}
