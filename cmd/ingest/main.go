package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"morpho-market-indexer/internal/config"
	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/evm"
	"morpho-market-indexer/internal/ingestion"
	"morpho-market-indexer/internal/observability"
	"morpho-market-indexer/internal/replay"
	"morpho-market-indexer/internal/reporting"
	"morpho-market-indexer/internal/storage"
	chstore "morpho-market-indexer/internal/storage/clickhouse"
	"morpho-market-indexer/internal/storage/memory"
	"morpho-market-indexer/internal/storage/migrations"
	pgstore "morpho-market-indexer/internal/storage/postgres"
	"morpho-market-indexer/internal/verification"
)

func main() {
	// Flag defaults come from the environment; .env fills it in first so
	// container deployments can run with no arguments at all.
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Load .env: %v", err)
	}

	mode := flag.String("mode", domain.RunModeBackfill, "Run mode: backfill or replay")
	fromBlock := flag.Uint64("from-block", 0, "First block to fetch (0 = market deploy block)")
	toBlock := flag.Uint64("to-block", 0, "Last block to fetch (0 = current chain head)")
	rpcEndpoint := flag.String("rpc-endpoint", config.EnvOr("ETH_RPC_URL", ""), "Ethereum JSON-RPC endpoint")
	postgresDSN := flag.String("postgres-dsn", config.EnvOr("POSTGRES_DSN", ""), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", config.EnvOr("CLICKHOUSE_DSN", ""), "ClickHouse DSN for the history sink (empty to disable)")
	outputDir := flag.String("output-dir", "output", "Directory for JSON backup files")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	verify := flag.Bool("verify", false, "Verify stored positions against a recompute instead of ingesting")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

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

	var err error
	switch {
	case *verify:
		err = runVerify(ctx, logger, *postgresDSN, *useMemory)
	case *mode == domain.RunModeBackfill:
		err = runBackfill(ctx, logger, *rpcEndpoint, *postgresDSN, *clickhouseDSN, *outputDir, *fromBlock, *toBlock, *useMemory)
	case *mode == domain.RunModeReplay:
		err = runReplay(ctx, logger, *postgresDSN, *outputDir, *useMemory)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runBackfill executes one chain ingestion pass over the fixed market.
func runBackfill(ctx context.Context, logger *log.Logger, rpcEndpoint, postgresDSN, clickhouseDSN, outputDir string, fromBlock, toBlock uint64, useMemory bool) error {
	if rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint or ETH_RPC_URL is required for backfill mode")
	}
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn or POSTGRES_DSN is required (use --use-memory for in-memory storage)")
	}

	client, err := evm.Dial(ctx, rpcEndpoint)
	if err != nil {
		return fmt.Errorf("dial ethereum rpc: %w", err)
	}
	defer client.Close()

	// Create stores (use interfaces)
	var activityStore storage.ActivityStore = memory.NewActivityStore()
	var positionStore storage.UserPositionStore = memory.NewUserPositionStore()
	var snapshotStore storage.MarketSnapshotStore = memory.NewMarketSnapshotStore()
	var runStore storage.IngestRunStore = memory.NewIngestRunStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		activityStore = pgstore.NewActivityStore(pool)
		positionStore = pgstore.NewUserPositionStore(pool)
		snapshotStore = pgstore.NewMarketSnapshotStore(pool)
		runStore = pgstore.NewIngestRunStore(pool)
	}

	historyStore, closeHistory := openHistoryStore(ctx, logger, clickhouseDSN)
	defer closeHistory()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Client:        client,
		Exporter:      reporting.NewExporter(outputDir),
		ActivityStore: activityStore,
		PositionStore: positionStore,
		SnapshotStore: snapshotStore,
		RunStore:      runStore,
		HistoryStore:  historyStore,
		Logger:        logger,
	})

	result, err := runner.Run(ctx, ingestion.RunOptions{
		Mode:      domain.RunModeBackfill,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	})
	if err != nil {
		return err
	}

	logger.Printf("Ingested %d new activities (%d duplicates) from blocks %d-%d",
		result.ActivitiesIngested, result.DuplicatesSkipped, result.FromBlock, result.ToBlock)
	return nil
}

// runReplay rebuilds positions, the snapshot, and the JSON backups from
// the stored activity table. No chain access.
func runReplay(ctx context.Context, logger *log.Logger, postgresDSN, outputDir string, useMemory bool) error {
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn or POSTGRES_DSN is required (use --use-memory for in-memory storage)")
	}

	// Create stores (use interfaces)
	var activityStore storage.ActivityStore = memory.NewActivityStore()
	var positionStore storage.UserPositionStore = memory.NewUserPositionStore()
	var snapshotStore storage.MarketSnapshotStore = memory.NewMarketSnapshotStore()
	var runStore storage.IngestRunStore = memory.NewIngestRunStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		activityStore = pgstore.NewActivityStore(pool)
		positionStore = pgstore.NewUserPositionStore(pool)
		snapshotStore = pgstore.NewMarketSnapshotStore(pool)
		runStore = pgstore.NewIngestRunStore(pool)
	}

	engine := replay.NewEngine(replay.EngineOptions{
		ActivityStore: activityStore,
		PositionStore: positionStore,
		SnapshotStore: snapshotStore,
		RunStore:      runStore,
		Exporter:      reporting.NewExporter(outputDir),
		Logger:        logger,
	})

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Printf("Replayed %d stored activities into %d positions, snapshot at block %d",
		result.ActivitiesLoaded, result.PositionsUpserted, result.SnapshotBlock)
	return nil
}

// runVerify checks every stored position against an independent recompute
// from the activity table and reports the divergent fields.
func runVerify(ctx context.Context, logger *log.Logger, postgresDSN string, useMemory bool) error {
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn or POSTGRES_DSN is required (use --use-memory for in-memory storage)")
	}

	var activityStore storage.ActivityStore = memory.NewActivityStore()
	var positionStore storage.UserPositionStore = memory.NewUserPositionStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		activityStore = pgstore.NewActivityStore(pool)
		positionStore = pgstore.NewUserPositionStore(pool)
	}

	report, err := verification.NewVerifier(activityStore, positionStore).VerifyAll(ctx)
	if err != nil {
		return fmt.Errorf("verify positions: %w", err)
	}

	logger.Printf("Verified %d positions: %d matched, %d divergent",
		report.TotalPositions, report.MatchedPositions, report.DivergentPositions)

	for _, r := range report.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			logger.Printf("Divergence %s %s: stored=%s recomputed=%s", r.ActorAddress, d.Field, d.Expected, d.Actual)
		}
	}

	// A non-zero exit keeps scripted checks honest.
	if report.DivergentPositions > 0 {
		return fmt.Errorf("%d positions diverge from the activity history", report.DivergentPositions)
	}
	return nil
}

// openHistoryStore connects the optional ClickHouse sink. Failures are
// logged and disable the sink; they never block ingestion.
func openHistoryStore(ctx context.Context, logger *log.Logger, dsn string) (storage.MarketHistoryStore, func()) {
	if dsn == "" {
		return nil, func() {}
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		logger.Printf("ClickHouse unavailable, history sink disabled: %v", err)
		return nil, func() {}
	}
	return chstore.NewMarketHistoryStore(conn), func() { conn.Close() }
}
