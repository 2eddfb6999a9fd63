// Package main runs the unified indexer service: the Query API and
// live feed, plus cron-scheduled ingestion passes and report generation
// in one process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"morpho-market-indexer/internal/api"
	"morpho-market-indexer/internal/config"
	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/evm"
	"morpho-market-indexer/internal/ingestion"
	"morpho-market-indexer/internal/reporting"
	"morpho-market-indexer/internal/storage"
	chstore "morpho-market-indexer/internal/storage/clickhouse"
	"morpho-market-indexer/internal/storage/memory"
	"morpho-market-indexer/internal/storage/migrations"
	pgstore "morpho-market-indexer/internal/storage/postgres"
)

// Server holds the scheduled-job state shared with the /status endpoint.
type Server struct {
	// Configuration
	outputDir string

	// Wiring
	stores *appStores
	client evm.Client
	feed   *api.Feed
	logger *log.Logger

	// State
	mu            sync.Mutex
	started       time.Time
	lastIngestRun time.Time
	lastReportRun time.Time
	ingestRunning bool
	reportRunning bool

	// Stats
	ingestRuns int
	reportRuns int
}

// appStores holds all storage implementations behind their interfaces.
type appStores struct {
	activities storage.ActivityStore
	positions  storage.UserPositionStore
	snapshots  storage.MarketSnapshotStore
	runs       storage.IngestRunStore
	history    storage.MarketHistoryStore // nil when ClickHouse is not configured
}

func main() {
	// Flag defaults come from the environment; .env fills it in first so
	// container deployments can run with no arguments at all.
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Load .env: %v", err)
	}

	addr := flag.String("addr", ":8080", "HTTP listen address for the Query API")
	rpcEndpoint := flag.String("rpc-endpoint", config.EnvOr("ETH_RPC_URL", ""), "Ethereum JSON-RPC endpoint")
	postgresDSN := flag.String("postgres-dsn", config.EnvOr("POSTGRES_DSN", ""), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", config.EnvOr("CLICKHOUSE_DSN", ""), "ClickHouse DSN for the history sink (empty to disable)")
	outputDir := flag.String("output-dir", "output", "Directory for JSON backups and generated reports")
	ingestSchedule := flag.String("ingest-schedule", "@every 1h", "Cron schedule for ingestion passes (empty to disable)")
	reportSchedule := flag.String("report-schedule", "@every 6h", "Cron schedule for report generation (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn or POSTGRES_DSN is required (use --use-memory for in-memory storage)")
	}
	if *ingestSchedule != "" && *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint or ETH_RPC_URL is required when ingestion is scheduled (use --ingest-schedule='' to disable)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, logger, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Dial the chain only when ingestion runs in this process.
	var client evm.Client
	if *ingestSchedule != "" {
		rpcClient, err := evm.Dial(ctx, *rpcEndpoint)
		if err != nil {
			logger.Fatalf("Failed to dial ethereum rpc: %v", err)
		}
		defer rpcClient.Close()
		client = rpcClient
	}

	// Live feed hub; the scheduler broadcasts a summary after each run.
	feed := api.NewFeed(logger)
	go feed.Run(ctx)

	server := &Server{
		outputDir: *outputDir,
		stores:    stores,
		client:    client,
		feed:      feed,
		logger:    logger,
		started:   time.Now(),
	}

	apiServer := api.NewServer(api.ServerOptions{
		ActivityStore: stores.activities,
		PositionStore: stores.positions,
		SnapshotStore: stores.snapshots,
		RunStore:      stores.runs,
		HistoryStore:  stores.history,
		Feed:          feed,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.Handle("/", apiServer.Router())

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Schedule the background jobs
	scheduler := cron.New()
	if *ingestSchedule != "" {
		if _, err := scheduler.AddFunc(*ingestSchedule, func() { server.runIngest(ctx) }); err != nil {
			logger.Fatalf("Invalid --ingest-schedule %q: %v", *ingestSchedule, err)
		}
		logger.Printf("Ingestion scheduled: %s", *ingestSchedule)
	}
	if *reportSchedule != "" {
		if _, err := scheduler.AddFunc(*reportSchedule, func() { server.runReport(ctx) }); err != nil {
			logger.Fatalf("Invalid --report-schedule %q: %v", *reportSchedule, err)
		}
		logger.Printf("Reports scheduled: %s", *reportSchedule)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	scheduler.Start()

	// Run the first ingestion pass immediately so a fresh deployment
	// serves data before the first cron tick.
	if *ingestSchedule != "" {
		go server.runIngest(ctx)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Printf("HTTP server error: %v", err)
		cancel()
	}

	// Drain: stop accepting requests, then wait for running jobs.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Println("Timed out waiting for scheduled jobs to finish")
	}

	done <- nil
	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, logger *log.Logger, postgresDSN, clickhouseDSN string, useMemory bool) (*appStores, func(), error) {
	stores := &appStores{
		activities: memory.NewActivityStore(),
		positions:  memory.NewUserPositionStore(),
		snapshots:  memory.NewMarketSnapshotStore(),
		runs:       memory.NewIngestRunStore(),
	}
	cleanup := func() {}

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}

		stores.activities = pgstore.NewActivityStore(pool)
		stores.positions = pgstore.NewUserPositionStore(pool)
		stores.snapshots = pgstore.NewMarketSnapshotStore(pool)
		stores.runs = pgstore.NewIngestRunStore(pool)
		cleanup = pool.Close
	}

	// ClickHouse is optional: failures disable the history sink, they
	// never block the API or ingestion.
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			logger.Printf("ClickHouse unavailable, history sink disabled: %v", err)
		} else {
			stores.history = chstore.NewMarketHistoryStore(conn)
			pgCleanup := cleanup
			cleanup = func() {
				conn.Close()
				pgCleanup()
			}
		}
	}

	return stores, cleanup, nil
}

// runIngest executes one scheduled ingestion pass over the fixed market.
func (s *Server) runIngest(ctx context.Context) {
	s.mu.Lock()
	if s.ingestRunning {
		s.mu.Unlock()
		s.logger.Println("Ingestion already running, skipping...")
		return
	}
	s.ingestRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ingestRunning = false
		s.lastIngestRun = time.Now()
		s.ingestRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Running scheduled ingestion...")
	start := time.Now()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Client:        s.client,
		Exporter:      reporting.NewExporter(s.outputDir),
		ActivityStore: s.stores.activities,
		PositionStore: s.stores.positions,
		SnapshotStore: s.stores.snapshots,
		RunStore:      s.stores.runs,
		HistoryStore:  s.stores.history,
		Logger:        log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	result, err := runner.Run(ctx, ingestion.RunOptions{Mode: domain.RunModeScheduled})
	if err != nil {
		s.logger.Printf("Scheduled ingestion error: %v", err)
		return
	}

	s.logger.Printf("Ingestion completed in %v: %d new activities (%d duplicates), snapshot at block %d",
		time.Since(start), result.ActivitiesIngested, result.DuplicatesSkipped, result.SnapshotBlock)

	s.feed.Broadcast(api.RunNotice{
		Type:               "run_complete",
		RunID:              result.RunID,
		Mode:               result.Mode,
		ActivitiesIngested: result.ActivitiesIngested,
		SnapshotBlock:      result.SnapshotBlock,
		FinishedAt:         time.Now().Unix(),
	})
}

// runReport renders the Markdown/CSV report set into the output directory.
func (s *Server) runReport(ctx context.Context) {
	s.mu.Lock()
	if s.reportRunning {
		s.mu.Unlock()
		s.logger.Println("Report generation already running, skipping...")
		return
	}
	s.reportRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reportRunning = false
		s.lastReportRun = time.Now()
		s.reportRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Generating reports...")
	start := time.Now()

	generator := reporting.NewGenerator(s.stores.activities, s.stores.positions, s.stores.snapshots, s.stores.runs)
	if _, err := generator.WriteFiles(ctx, s.outputDir); err != nil {
		s.logger.Printf("Report generation error: %v", err)
		return
	}

	s.logger.Printf("Reports generated in %v to %s/", time.Since(start), s.outputDir)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Started       time.Time `json:"started"`
	LastIngestRun time.Time `json:"last_ingest_run,omitempty"`
	LastReportRun time.Time `json:"last_report_run,omitempty"`
	IngestRuns    int       `json:"ingest_runs"`
	ReportRuns    int       `json:"report_runs"`
	IngestRunning bool      `json:"ingest_running"`
	ReportRunning bool      `json:"report_running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		Started:       s.started,
		LastIngestRun: s.lastIngestRun,
		LastReportRun: s.lastReportRun,
		IngestRuns:    s.ingestRuns,
		ReportRuns:    s.reportRuns,
		IngestRunning: s.ingestRunning,
		ReportRunning: s.reportRunning,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
