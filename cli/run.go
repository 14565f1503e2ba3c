/*
run.go - Pipeline commands

PURPOSE:
  `factctl run` executes every stage whose inputs exist under the data
  directory; `factctl merge` and `factctl reconcile` run a single stage by
  configuring only that stage's paths. Artifact file names follow the
  layout established by the ledger's data directory:

    data/
      entity-storage/entities.json
      entity-storage/duplicate_pairs.json
      entity-storage/entity_lineage.json
      entity-storage/entity_merge_report.json
      observations/raw_observations.json
      canonical/overlap_groups.json
      canonical/canonical_ledger_with_decisions.json
      canonical/reconciliation_decisions.json
      canonical/canonical_ledger_schema_v1.json

SEE ALSO:
  - pipeline: Stage orchestration and skip semantics
*/
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veridian/fact-engine/fact"
	"github.com/veridian/fact-engine/pipeline"
	"github.com/veridian/fact-engine/reconcile"
)

var dataDir string

func dataPaths(dir string) pipeline.Paths {
	return pipeline.Paths{
		Entities:        filepath.Join(dir, "entity-storage", "entities.json"),
		Duplicates:      filepath.Join(dir, "entity-storage", "duplicate_pairs.json"),
		Observations:    filepath.Join(dir, "observations", "raw_observations.json"),
		Overlaps:        filepath.Join(dir, "canonical", "overlap_groups.json"),
		MergedEntities:  filepath.Join(dir, "entity-storage", "entities.json"),
		LineageFile:     filepath.Join(dir, "entity-storage", "entity_lineage.json"),
		MergeReport:     filepath.Join(dir, "entity-storage", "entity_merge_report.json"),
		CanonicalLedger: filepath.Join(dir, "canonical", "canonical_ledger_with_decisions.json"),
		DecisionsFile:   filepath.Join(dir, "canonical", "reconciliation_decisions.json"),
		SchemaExport:    filepath.Join(dir, "canonical", "canonical_ledger_schema_v1.json"),
	}
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: merge, reconcile, migrate, export",
	Long: `Run executes every pipeline stage whose inputs are present:

  merge      entities + duplicate pairs -> registry, lineage, report
  reconcile  observations + overlaps    -> canonical ledger, decisions
  migrate    canonical ledger           -> fact schema export

Stages with missing inputs are skipped with a warning, so a data directory
holding only observations still produces a canonical ledger and schema
export.

Example:
  factctl run --data ./data
  factctl run --data ./data -v`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(dataPaths(resolveDataDir()))
	},
}

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run only the entity merge stage",
	Long: `Merge applies the duplicate pairs in entity-storage/duplicate_pairs.json
to entity-storage/entities.json, writing the merged registry (secondary
records tombstoned, never deleted), the lineage file, and the merge report.

Example:
  factctl merge --data ./data`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := dataPaths(resolveDataDir())
		paths.Observations = ""
		paths.CanonicalLedger = ""
		return runPipeline(paths)
	},
}

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run only the reconcile and migrate stages",
	Long: `Reconcile consolidates observations/raw_observations.json (grouped by
canonical/overlap_groups.json when present) into the canonical ledger,
records one reconciliation decision per canonical transaction, and
materializes the fact schema export.

Example:
  factctl reconcile --data ./data`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := dataPaths(resolveDataDir())
		paths.Entities = ""
		paths.Duplicates = ""
		return runPipeline(paths)
	},
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if dir := viper.GetString("data"); dir != "" {
		return dir
	}
	return "./data"
}

func runPipeline(paths pipeline.Paths) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config-driven knobs: the reconciled field schema and whether statement
	// references must name existing nodes.
	var opts []pipeline.Option
	if schema := viper.GetStringSlice("schema"); len(schema) > 0 {
		opts = append(opts, pipeline.WithSchema(reconcile.FieldSchema(schema)))
	}
	if viper.GetBool("strict_references") {
		opts = append(opts, pipeline.WithStoreOptions(fact.WithStrictReferences(true)))
	}

	runner := pipeline.NewRunner(paths, log, opts...)
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("run %s complete\n", result.RunID)
	if result.MergeApplied {
		fmt.Printf("  merge:     %d merged, %d lineage records\n",
			result.MergeReport.EntitiesMerged, result.LineageRecords)
	}
	if result.ReconcileApplied {
		fmt.Printf("  reconcile: %d transactions, %d decisions\n",
			result.Transactions, result.Decisions)
	}
	if result.MigrateApplied {
		fmt.Printf("  migrate:   %d nodes, %d attribute facts, %d relationship facts\n",
			result.Statistics.TotalNodes, result.Statistics.AttributeFacts,
			result.Statistics.RelationshipFacts)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(reconcileCmd)

	for _, cmd := range []*cobra.Command{runCmd, mergeCmd, reconcileCmd} {
		cmd.Flags().StringVar(&dataDir, "data", "", "data directory (default ./data)")
	}
	_ = viper.BindPFlag("data", runCmd.Flags().Lookup("data"))
}
