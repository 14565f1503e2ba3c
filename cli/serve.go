/*
serve.go - Snapshot and query server commands

PURPOSE:
  `factctl load` imports a schema export into the SQLite snapshot store;
  `factctl serve` loads that snapshot and serves the read-only query API
  with graceful shutdown.

SEE ALSO:
  - store/sqlite: Snapshot persistence
  - api: The query surface
*/
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veridian/fact-engine/api"
	"github.com/veridian/fact-engine/artifact"
	"github.com/veridian/fact-engine/store/sqlite"
)

var (
	dbPath     string
	exportPath string
	servePort  int
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a schema export into the snapshot database",
	Long: `Load reads a schema export file (the migrate stage's output) and
replaces the SQLite snapshot with its contents.

Example:
  factctl load --export ./data/canonical/canonical_ledger_schema_v1.json --db ./data/facts.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		var export artifact.SchemaExport
		if err := artifact.ReadJSON(exportPath, &export); err != nil {
			return err
		}
		store, err := export.Restore()
		if err != nil {
			return err
		}

		db, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.SaveSnapshot(cmd.Context(), store); err != nil {
			return err
		}

		stats := store.Stats()
		log.Infow("snapshot loaded",
			"db", dbPath,
			"total_nodes", stats.TotalNodes,
			"attribute_facts", stats.AttributeFacts,
			"relationship_facts", stats.RelationshipFacts)
		fmt.Printf("loaded %d nodes, %d statements into %s\n",
			stats.TotalNodes, stats.AttributeFacts+stats.RelationshipFacts, dbPath)
		return nil
	},
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API from the snapshot database",
	Long: `Serve loads the SQLite snapshot into memory and exposes the read-only
query API:

  GET /api/nodes/{id}
  GET /api/nodes/{id}/attributes
  GET /api/nodes/{id}/relationships
  GET /api/entities/{id}/resolve
  GET /api/entities/{id}/lineage
  GET /api/decisions
  GET /api/stats

Example:
  factctl serve --db ./data/facts.db --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := db.LoadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		stats := store.Stats()
		log.Infow("snapshot loaded", "total_nodes", stats.TotalNodes)

		router := api.NewRouter(api.NewHandler(store))
		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", servePort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Infow("server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalw("server failed", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		log.Infow("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(serveCmd)

	loadCmd.Flags().StringVar(&exportPath, "export", "./data/canonical/canonical_ledger_schema_v1.json", "schema export file")
	loadCmd.Flags().StringVar(&dbPath, "db", "./data/facts.db", "SQLite database path")

	serveCmd.Flags().StringVar(&dbPath, "db", "./data/facts.db", "SQLite database path")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
