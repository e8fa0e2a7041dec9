package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/arbor.report/internal/api"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/store"
)

// newHandler mounts the JSON API under /api/, the report directory under
// /reports/ and, when admin is set, the debug pages under /debug/.
func newHandler(db *store.DB, reportDir, unit string, admin bool) (http.Handler, error) {
	mux := http.NewServeMux()
	if admin {
		if err := db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	apiMux := api.NewServer(db, unit).ServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))
	if reportDir != "" {
		mux.Handle("/reports/", http.StripPrefix("/reports/", http.FileServer(http.Dir(reportDir))))
	}
	return api.LoggingMiddleware(mux), nil
}

func handleServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite database path (required)")
	listen := fs.String("listen", ":8080", "HTTP listen address")
	reportDir := fs.String("output", "", "Report directory served under /reports/ (optional)")
	unit := fs.String("units", "m", "Length units for tree responses")
	admin := fs.Bool("debug", false, "Mount the SQL console and backup download under /debug/")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "Error: -db is required")
		return 2
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	h, err := newHandler(db, *reportDir, *unit, *admin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	server := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to start server: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		monitoring.Logf("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}
	return 0
}
