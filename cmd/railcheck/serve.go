package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rail-connection-check/internal/api"
	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/config"
	"rail-connection-check/internal/ingest"
	"rail-connection-check/internal/metrics"
	"rail-connection-check/internal/publisher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the recurring feed ingestion",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("no-ingest", false, "serve queries only; do not poll the feed")
}

func runServe(cmd *cobra.Command, args []string) error {
	noIngest, _ := cmd.Flags().GetBool("no-ingest")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.IngestInterval())
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	// Nil interfaces, not typed nils, when metrics are off.
	var (
		runnerMetrics ingest.RunnerMetrics
		observer      api.Observer
	)
	if mcol != nil {
		runnerMetrics = mcol
		observer = mcol
	}

	var notifier ingest.Notifier
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier = pub
	}

	var runner *ingest.Runner
	if !noIngest {
		runner = ingest.NewRunner(newSource(cfg, ""), ingest.NewPipeline(store), cfg.IngestInterval(), runnerMetrics, notifier)
		runner.Start(ctx)
		log.Printf("ingesting every %s", cfg.IngestInterval())
	}

	h := api.NewHandler(store, compare.NewEngine(store), observer, cfg.CompareCacheTTL())
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(h, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdown(srv)
	if runner != nil {
		runner.Stop()
	}
	log.Println("shutdown complete")
	return err
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown %s: %v", srv.Addr, err)
	}
}
