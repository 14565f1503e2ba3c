/*
main.go - Query server entry point

PURPOSE:
  Serves the fact ledger query API standalone, without the factctl
  surface. Opens a SQLite snapshot, hydrates the in-memory store, and
  answers read-only queries until interrupted.

COMMAND-LINE FLAGS:
  -port    HTTP listen port (default: 8080)
  -db      SQLite snapshot path (default: facts.db)
           Use ":memory:" to start from an empty ledger

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the server stops accepting connections and waits
  up to 30s for in-flight requests before exiting.

EXAMPLES:
  # Serve a previously loaded snapshot
  ./server -db="./data/facts.db" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Snapshot persistence
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veridian/fact-engine/api"
	"github.com/veridian/fact-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	dbPath := flag.String("db", "facts.db", "SQLite snapshot path")
	flag.Parse()

	if err := run(*dbPath, *port); err != nil {
		log.Fatal(err)
	}
}

func run(dbPath string, port int) error {
	db, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("open snapshot database: %w", err)
	}
	defer db.Close()

	store, err := db.LoadSnapshot(context.Background())
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	stats := store.Stats()
	log.Printf("Ledger loaded: %d nodes (%d events, %d entities), %d attribute facts, %d relationship facts",
		stats.TotalNodes, stats.EventNodes, stats.EntityNodes, stats.AttributeFacts, stats.RelationshipFacts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(api.NewHandler(store)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Query API listening on http://localhost:%d/api", port)
		serveErr <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
