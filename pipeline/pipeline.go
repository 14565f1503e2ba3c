/*
Package pipeline orchestrates the end-to-end ledger run.

PURPOSE:
  One run moves raw observations through four stages, each reading and
  writing the artifact documents so any stage can be re-run from disk:

  1. MERGE      entities + duplicate pairs -> registry, lineage, report
  2. RECONCILE  observations + overlaps    -> canonical ledger, decisions
  3. MIGRATE    canonical ledger           -> fact store
  4. EXPORT     fact store                 -> schema export

SKIP SEMANTICS:
  A stage whose inputs are absent is skipped with a warning, never aborted:
  an installation may run merge-only or reconcile-only and pick up the rest
  later from the same artifacts. A reconciler FAILURE is fatal: a wrong
  canonical ledger is worse than no ledger.

SEE ALSO:
  - artifact: The document shapes stages exchange
  - cli: Command surface that drives runs
*/
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridian/fact-engine/artifact"
	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/merge"
	"github.com/veridian/fact-engine/migrate"
	"github.com/veridian/fact-engine/reconcile"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Paths locates every artifact a run touches. Inputs left empty are treated
// as absent and skip their stage.
type Paths struct {
	// inputs
	Entities     string
	Duplicates   string
	Observations string
	Overlaps     string

	// outputs
	MergedEntities  string
	LineageFile     string
	MergeReport     string
	CanonicalLedger string
	DecisionsFile   string
	SchemaExport    string
}

// DuplicatesFile is the external matcher's output contract.
type DuplicatesFile struct {
	Pairs []merge.CandidatePair `json:"duplicate_pairs"`
}

// ObservationsFile tolerates the historical payload layouts: the current
// observation layer plus the two legacy transaction-list keys.
type ObservationsFile struct {
	Observations    []reconcile.Observation `json:"observations"`
	AllTransactions []reconcile.Observation `json:"all_transactions"`
	Transactions    []reconcile.Observation `json:"transactions"`
}

func (f *ObservationsFile) Records() []reconcile.Observation {
	if len(f.Observations) > 0 {
		return f.Observations
	}
	if len(f.AllTransactions) > 0 {
		return f.AllTransactions
	}
	return f.Transactions
}

// OverlapsFile carries the overlap detector's clusters.
type OverlapsFile struct {
	Groups []reconcile.OverlapGroup `json:"overlap_groups"`
}

// =============================================================================
// RUNNER
// =============================================================================

type Runner struct {
	paths      Paths
	schema     reconcile.FieldSchema
	reconciler reconcile.ReconcileFunc
	ids        *fact.IDSequence
	storeOpts  []fact.Option
	log        *zap.SugaredLogger
	clock      func() time.Time
}

type Option func(*Runner)

// WithSchema overrides the field schema the reconciler documents.
func WithSchema(schema reconcile.FieldSchema) Option {
	return func(r *Runner) { r.schema = schema }
}

// WithReconciler supplies the field-level reconciler collaborator.
func WithReconciler(fn reconcile.ReconcileFunc) Option {
	return func(r *Runner) { r.reconciler = fn }
}

// WithClock pins the runner to a clock for deterministic artifacts.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) { r.clock = clock }
}

// WithStoreOptions configures the fact store the migrate stage builds,
// e.g. fact.WithStrictReferences(true).
func WithStoreOptions(opts ...fact.Option) Option {
	return func(r *Runner) { r.storeOpts = append(r.storeOpts, opts...) }
}

func NewRunner(paths Paths, log *zap.SugaredLogger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Runner{
		paths:      paths,
		schema:     reconcile.DefaultFieldSchema,
		reconciler: reconcile.PassthroughReconciler,
		ids:        fact.NewIDSequence(),
		log:        log,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes one run across all stages.
type Result struct {
	RunID string `json:"run_id"`

	MergeApplied   bool          `json:"merge_applied"`
	MergeReport    *merge.Report `json:"merge_report,omitempty"`
	LineageRecords int           `json:"lineage_records"`

	ReconcileApplied bool `json:"reconcile_applied"`
	Transactions     int  `json:"transactions"`
	Decisions        int  `json:"decisions"`

	MigrateApplied bool        `json:"migrate_applied"`
	Statistics     *fact.Stats `json:"statistics,omitempty"`
}

// Run executes every stage whose inputs are present.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	log := r.log.With("run_id", result.RunID)
	log.Infow("pipeline run starting")

	if err := r.runMerge(ctx, result, log); err != nil {
		return result, err
	}
	if err := r.runReconcile(ctx, result, log); err != nil {
		return result, err
	}
	if err := r.runMigrate(ctx, result, log); err != nil {
		return result, err
	}

	r.checkOutputs(result, log)
	log.Infow("pipeline run complete",
		"merge", result.MergeApplied,
		"reconcile", result.ReconcileApplied,
		"migrate", result.MigrateApplied)
	return result, nil
}

// checkOutputs verifies that every artifact an applied stage should have
// written is actually on disk. A missing output after a successful stage
// means something external removed it mid-run.
func (r *Runner) checkOutputs(result *Result, log *zap.SugaredLogger) {
	expected := map[string]bool{
		r.paths.MergedEntities:  result.MergeApplied,
		r.paths.LineageFile:     result.MergeApplied,
		r.paths.MergeReport:     result.MergeApplied,
		r.paths.CanonicalLedger: result.ReconcileApplied,
		r.paths.DecisionsFile:   result.ReconcileApplied,
		r.paths.SchemaExport:    result.MigrateApplied,
	}
	for path, wanted := range expected {
		if !wanted || path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Errorw("expected output artifact missing", "path", path, "error", err)
		}
	}
}

// =============================================================================
// STAGE 1 - ENTITY MERGE
// =============================================================================

func (r *Runner) runMerge(ctx context.Context, result *Result, log *zap.SugaredLogger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var registry merge.Registry
	if skipped := r.readOrSkip(r.paths.Entities, &registry, "entity registry", log); skipped {
		return nil
	}
	var duplicates DuplicatesFile
	if skipped := r.readOrSkip(r.paths.Duplicates, &duplicates, "duplicate pairs", log); skipped {
		return nil
	}

	engine := merge.NewEngine(r.ids, log).WithClock(r.clock)
	merged, err := engine.Run(&registry, duplicates.Pairs)
	if err != nil {
		return errors.Wrap(err, "merge stage")
	}

	now := fact.At(r.clock())
	if err := artifact.WriteJSON(r.paths.MergedEntities, merged.Registry); err != nil {
		return err
	}
	if err := artifact.WriteJSON(r.paths.LineageFile, artifact.NewLineageFile(merged.Lineage, now)); err != nil {
		return err
	}
	if err := artifact.WriteJSON(r.paths.MergeReport, merged.Report); err != nil {
		return err
	}

	result.MergeApplied = true
	result.MergeReport = &merged.Report
	result.LineageRecords = len(merged.Lineage)
	log.Infow("merge stage complete",
		"entities_merged", merged.Report.EntitiesMerged,
		"lineage_records", len(merged.Lineage))
	return nil
}

// =============================================================================
// STAGE 2 - FIELD-LEVEL RECONCILIATION
// =============================================================================

func (r *Runner) runReconcile(ctx context.Context, result *Result, log *zap.SugaredLogger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var observations ObservationsFile
	if skipped := r.readOrSkip(r.paths.Observations, &observations, "observations", log); skipped {
		return nil
	}

	// Absent overlaps just means every observation is single-source.
	var overlaps OverlapsFile
	if err := artifact.ReadJSON(r.paths.Overlaps, &overlaps); err != nil {
		if !errors.Is(err, artifact.ErrArtifactMissing) {
			return err
		}
		log.Warnw("no overlap groups, treating all observations as single-source")
	}

	builder := reconcile.NewBuilder(r.schema, r.ids).WithClock(r.clock)
	out, err := reconcile.Process(observations.Records(), overlaps.Groups, r.reconciler, builder, log)
	if err != nil {
		return errors.Wrap(err, "reconcile stage")
	}

	now := fact.At(r.clock())
	ledger := artifact.NewCanonicalLedger(out.Canonical, r.schema, len(out.Decisions), now)
	if err := artifact.WriteJSON(r.paths.CanonicalLedger, ledger); err != nil {
		return err
	}
	if err := artifact.WriteJSON(r.paths.DecisionsFile, artifact.NewDecisionsFile(out.Decisions, now)); err != nil {
		return err
	}

	result.ReconcileApplied = true
	result.Transactions = len(out.Canonical)
	result.Decisions = len(out.Decisions)
	log.Infow("reconcile stage complete",
		"transactions", len(out.Canonical),
		"decisions", len(out.Decisions),
		"multi_source", out.MultiSource,
		"single_source", out.SingleSource)
	return nil
}

// =============================================================================
// STAGE 3+4 - SCHEMA MIGRATION AND EXPORT
// =============================================================================

func (r *Runner) runMigrate(ctx context.Context, result *Result, log *zap.SugaredLogger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Migrate reads the ledger back from disk rather than from memory so a
	// migrate-only run over a previous run's artifacts behaves identically.
	var ledger artifact.CanonicalLedger
	if skipped := r.readOrSkip(r.paths.CanonicalLedger, &ledger, "canonical ledger", log); skipped {
		return nil
	}

	store := fact.NewStore(append([]fact.Option{fact.WithIDSequence(r.ids)}, r.storeOpts...)...)

	var decisions artifact.DecisionsFile
	if err := artifact.ReadJSON(r.paths.DecisionsFile, &decisions); err == nil {
		for _, d := range decisions.Decisions {
			if err := store.AddDecision(d); err != nil {
				log.Warnw("skipping invalid decision", "decision", d.DecisionID, "error", err)
			}
		}
	}
	var lineage artifact.LineageFile
	if err := artifact.ReadJSON(r.paths.LineageFile, &lineage); err == nil {
		for _, l := range lineage.Lineage {
			if err := store.Lineage().Append(l); err != nil {
				log.Warnw("skipping invalid lineage record", "lineage", l.LineageID, "error", err)
			}
		}
	}

	migrator := migrate.New(store, r.schema, log).WithClock(r.clock)
	summary, err := migrator.Run(ledger.Transactions)
	if err != nil {
		return errors.Wrap(err, "migrate stage")
	}

	export := artifact.NewSchemaExport(store, "canonical_ledger_v6", fact.At(r.clock()))
	if err := artifact.WriteJSON(r.paths.SchemaExport, export); err != nil {
		return err
	}

	result.MigrateApplied = true
	result.Statistics = &export.Statistics
	log.Infow("migrate stage complete",
		"events", summary.Events,
		"merchants", summary.Merchants,
		"total_nodes", export.Statistics.TotalNodes)
	return nil
}

// readOrSkip loads an input artifact, reporting true when the stage should
// be skipped because the file is absent or unconfigured. A file that exists
// but cannot be decoded is a corrupt artifact and also skips the stage, but
// loudly: overwriting outputs derived from garbage input helps nobody.
func (r *Runner) readOrSkip(path string, v any, what string, log *zap.SugaredLogger) bool {
	if path == "" {
		log.Warnw("stage input not configured, skipping", "input", what)
		return true
	}
	if err := artifact.ReadJSON(path, v); err != nil {
		if errors.Is(err, artifact.ErrArtifactMissing) {
			log.Warnw("stage input missing, skipping", "input", what, "path", path)
		} else {
			log.Errorw("stage input unreadable, skipping", "input", what, "path", path, "error", err)
		}
		return true
	}
	return false
}
