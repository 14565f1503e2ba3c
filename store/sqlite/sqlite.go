/*
Package sqlite persists fact store snapshots in SQLite.

PURPOSE:
  Durable storage for the in-memory fact store between runs. The unit of
  persistence is the whole snapshot: everything the store holds (nodes,
  statements, decisions, lineage) is written in one transaction and read
  back into a fresh store. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  nodes:                    Entity/event/series registry, keyed by node id
  attribute_facts:          Append-only attribute statements
  relationship_facts:       Append-only relationship statements
  reconciliation_decisions: Field-level audit records
  entity_lineage:           Identity change history

PAYLOAD COLUMNS:
  Each row carries its full record as payload_json next to the columns the
  indexes need. The JSON is the interchange form, so the snapshot survives
  column additions without a rewrite.

APPEND-ONLY ENFORCEMENT:
  Statements, decisions and lineage are never UPDATEd or DELETEd row by
  row; a snapshot save replaces the whole content transactionally.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  db, err := sqlite.New("./data/facts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  if err := db.SaveSnapshot(ctx, store); err != nil { ... }
  store, err := db.LoadSnapshot(ctx)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fact/store.go: The in-memory store this snapshots
  - artifact: JSON file counterpart of the same interchange shapes
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/veridian/fact-engine/fact"
)

// DB wraps the SQLite connection behind snapshot save/load.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path. Use ":memory:" for an
// in-memory database.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	schema := `
	-- Node registry (entities, events, series)
	CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		node_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);

	-- Attribute statements (append-only)
	CREATE TABLE IF NOT EXISTS attribute_facts (
		statement_id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		predicate TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attribute_subject_predicate
		ON attribute_facts(subject_id, predicate);

	-- Relationship statements (append-only)
	CREATE TABLE IF NOT EXISTS relationship_facts (
		statement_id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		predicate TEXT NOT NULL,
		target_id TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relationship_subject_predicate
		ON relationship_facts(subject_id, predicate);
	CREATE INDEX IF NOT EXISTS idx_relationship_target
		ON relationship_facts(target_id);

	-- Reconciliation audit records
	CREATE TABLE IF NOT EXISTS reconciliation_decisions (
		decision_id TEXT PRIMARY KEY,
		decision_method TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_method
		ON reconciliation_decisions(decision_method);

	-- Entity identity history
	CREATE TABLE IF NOT EXISTS entity_lineage (
		lineage_id TEXT PRIMARY KEY,
		old_entity_id TEXT NOT NULL,
		new_entity_id TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lineage_old ON entity_lineage(old_entity_id);
	CREATE INDEX IF NOT EXISTS idx_lineage_new ON entity_lineage(new_entity_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

// SaveSnapshot replaces the persisted content with the store's current
// state in one transaction.
func (d *DB) SaveSnapshot(ctx context.Context, s *fact.Store) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning snapshot transaction")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"nodes", "attribute_facts", "relationship_facts",
		"reconciliation_decisions", "entity_lineage",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "clearing %s", table)
		}
	}

	savedAt := time.Now().UTC().Format(time.RFC3339)
	for _, n := range s.Nodes() {
		payload, err := json.Marshal(n)
		if err != nil {
			return errors.Wrapf(err, "encoding node %s", n.NodeID())
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO nodes (node_id, node_type, payload_json, saved_at) VALUES (?, ?, ?, ?)",
			n.NodeID(), n.NodeKind(), string(payload), savedAt)
		if err != nil {
			return errors.Wrapf(err, "saving node %s", n.NodeID())
		}
	}

	for _, f := range s.AttributeFacts() {
		payload, err := json.Marshal(f)
		if err != nil {
			return errors.Wrapf(err, "encoding statement %s", f.StatementID)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO attribute_facts (statement_id, subject_id, predicate, payload_json) VALUES (?, ?, ?, ?)",
			f.StatementID, f.SubjectID, f.Predicate, string(payload))
		if err != nil {
			return errors.Wrapf(err, "saving statement %s", f.StatementID)
		}
	}

	for _, f := range s.RelationshipFacts() {
		payload, err := json.Marshal(f)
		if err != nil {
			return errors.Wrapf(err, "encoding statement %s", f.StatementID)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO relationship_facts (statement_id, subject_id, predicate, target_id, payload_json) VALUES (?, ?, ?, ?, ?)",
			f.StatementID, f.SubjectID, f.Predicate, f.TargetID, string(payload))
		if err != nil {
			return errors.Wrapf(err, "saving statement %s", f.StatementID)
		}
	}

	for _, dec := range s.Decisions() {
		payload, err := json.Marshal(dec)
		if err != nil {
			return errors.Wrapf(err, "encoding decision %s", dec.DecisionID)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO reconciliation_decisions (decision_id, decision_method, payload_json) VALUES (?, ?, ?)",
			dec.DecisionID, dec.DecisionMethod, string(payload))
		if err != nil {
			return errors.Wrapf(err, "saving decision %s", dec.DecisionID)
		}
	}

	for _, rec := range s.Lineage().Records() {
		payload, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "encoding lineage %s", rec.LineageID)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO entity_lineage (lineage_id, old_entity_id, new_entity_id, payload_json) VALUES (?, ?, ?, ?)",
			rec.LineageID, rec.OldEntityID, rec.NewEntityID, string(payload))
		if err != nil {
			return errors.Wrapf(err, "saving lineage %s", rec.LineageID)
		}
	}

	return tx.Commit()
}

// =============================================================================
// LOAD
// =============================================================================

// LoadSnapshot reads the persisted content into a fresh store. Insertion
// order is recovered from rowid, so filtered reads come back in the order
// the statements were originally added.
func (d *DB) LoadSnapshot(ctx context.Context, opts ...fact.Option) (*fact.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := fact.NewStore(opts...)

	if err := d.loadNodes(ctx, s); err != nil {
		return nil, err
	}
	if err := d.loadAttributeFacts(ctx, s); err != nil {
		return nil, err
	}
	if err := d.loadRelationshipFacts(ctx, s); err != nil {
		return nil, err
	}
	if err := d.loadDecisions(ctx, s); err != nil {
		return nil, err
	}
	if err := d.loadLineage(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *DB) loadNodes(ctx context.Context, s *fact.Store) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT node_type, payload_json FROM nodes ORDER BY rowid ASC")
	if err != nil {
		return errors.Wrap(err, "querying nodes")
	}
	defer rows.Close()

	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return errors.Wrap(err, "scanning node")
		}
		switch fact.NodeKind(kind) {
		case fact.NodeKindEntity:
			var n fact.EntityNode
			if err := json.Unmarshal([]byte(payload), &n); err != nil {
				return errors.Wrap(err, "decoding entity node")
			}
			s.AddEntity(&n)
		case fact.NodeKindEvent:
			var n fact.EventNode
			if err := json.Unmarshal([]byte(payload), &n); err != nil {
				return errors.Wrap(err, "decoding event node")
			}
			s.AddEvent(&n)
		case fact.NodeKindSeries:
			var n fact.SeriesNode
			if err := json.Unmarshal([]byte(payload), &n); err != nil {
				return errors.Wrap(err, "decoding series node")
			}
			s.AddSeries(&n)
		default:
			return errors.Newf("unknown node type %q", kind)
		}
	}
	return rows.Err()
}

func (d *DB) loadAttributeFacts(ctx context.Context, s *fact.Store) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT payload_json FROM attribute_facts ORDER BY rowid ASC")
	if err != nil {
		return errors.Wrap(err, "querying attribute facts")
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return errors.Wrap(err, "scanning attribute fact")
		}
		var f fact.AttributeFact
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return errors.Wrap(err, "decoding attribute fact")
		}
		if err := s.AddAttributeFact(&f); err != nil {
			return errors.Wrapf(err, "restoring statement %s", f.StatementID)
		}
	}
	return rows.Err()
}

func (d *DB) loadRelationshipFacts(ctx context.Context, s *fact.Store) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT payload_json FROM relationship_facts ORDER BY rowid ASC")
	if err != nil {
		return errors.Wrap(err, "querying relationship facts")
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return errors.Wrap(err, "scanning relationship fact")
		}
		var f fact.RelationshipFact
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return errors.Wrap(err, "decoding relationship fact")
		}
		if err := s.AddRelationshipFact(&f); err != nil {
			return errors.Wrapf(err, "restoring statement %s", f.StatementID)
		}
	}
	return rows.Err()
}

func (d *DB) loadDecisions(ctx context.Context, s *fact.Store) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT payload_json FROM reconciliation_decisions ORDER BY rowid ASC")
	if err != nil {
		return errors.Wrap(err, "querying decisions")
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return errors.Wrap(err, "scanning decision")
		}
		var dec fact.ReconciliationDecision
		if err := json.Unmarshal([]byte(payload), &dec); err != nil {
			return errors.Wrap(err, "decoding decision")
		}
		if err := s.AddDecision(&dec); err != nil {
			return errors.Wrapf(err, "restoring decision %s", dec.DecisionID)
		}
	}
	return rows.Err()
}

func (d *DB) loadLineage(ctx context.Context, s *fact.Store) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT payload_json FROM entity_lineage ORDER BY rowid ASC")
	if err != nil {
		return errors.Wrap(err, "querying lineage")
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return errors.Wrap(err, "scanning lineage")
		}
		var rec fact.EntityLineage
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return errors.Wrap(err, "decoding lineage")
		}
		if err := s.Lineage().Append(&rec); err != nil {
			return errors.Wrapf(err, "restoring lineage %s", rec.LineageID)
		}
	}
	return rows.Err()
}
