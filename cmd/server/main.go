// Package main runs the score indexer and its query API together:
// - Indexer (continuous): backfill from checkpoint, then live events
// - Query API: profiles, rankings, snapshots, admin endpoints
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

	"tipscore/internal/api"
	"tipscore/internal/chain"
	"tipscore/internal/config"
	"tipscore/internal/eventsource"
	"tipscore/internal/indexer"
	"tipscore/internal/storage"
	chstore "tipscore/internal/storage/clickhouse"
	"tipscore/internal/storage/memory"
	"tipscore/internal/storage/migrations"
	pgstore "tipscore/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	scores      storage.ScoreStore
	axes        storage.TokenAxisStore
	params      storage.ParamsStore
	checkpoints storage.CheckpointStore
	snapshots   storage.SnapshotArchive
	tips        storage.TipArchive // nil without an analytics store
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides TIPSCORE_CONFIG)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *configPath != "" {
		os.Setenv("TIPSCORE_CONFIG", *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

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

	err = run(ctx, cfg, stores, logger)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// run wires the indexer and HTTP server and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, stores *allStores, logger *log.Logger) error {
	errCh := make(chan error, 2)

	var stateReporter api.StateReporter
	if cfg.RPCEndpoint != "" {
		ix, err := buildIndexer(ctx, cfg, stores)
		if err != nil {
			return err
		}
		stateReporter = indexerState{ix}

		go func() {
			err := ix.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("indexer: %w", err)
			}
		}()
	} else {
		logger.Println("No RPC endpoint configured, running query API only")
	}

	server, err := api.NewServer(api.Options{
		Scores:    stores.scores,
		Axes:      stores.axes,
		Params:    stores.params,
		Snapshots: stores.snapshots,
		Indexer:   stateReporter,
		AdminKey:  cfg.AdminKey,
		Logger:    log.New(os.Stdout, "[api] ", log.LstdFlags),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		logger.Printf("HTTP server listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// buildIndexer assembles the chain clients, adapter and indexer.
func buildIndexer(ctx context.Context, cfg *config.Config, stores *allStores) (*indexer.Indexer, error) {
	rpc := chain.NewHTTPClient(cfg.RPCEndpoint, chain.WithTimeout(cfg.RPCTimeout))

	var ws eventsource.LogSubscriber
	if cfg.WSEndpoint != "" {
		wsClient, err := chain.NewWSClient(ctx, cfg.WSEndpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create websocket client: %w", err)
		}
		ws = wsClient
	}

	source, err := eventsource.NewAdapter(eventsource.AdapterOptions{
		RPC:      rpc,
		WS:       ws,
		Contract: cfg.ContractAddress,
		Logger:   log.New(os.Stdout, "[eventsource] ", log.LstdFlags),
	})
	if err != nil {
		return nil, err
	}

	return indexer.New(indexer.Options{
		Source:        source,
		Scores:        stores.scores,
		Axes:          stores.axes,
		Params:        stores.params,
		Checkpoints:   stores.checkpoints,
		Tips:          stores.tips,
		GenesisBlock:  cfg.GenesisBlock,
		ChunkSize:     cfg.ChunkSize,
		Confirmations: cfg.Confirmations,
		Logger:        log.New(os.Stdout, "[indexer] ", log.LstdFlags),
	})
}

// indexerState adapts the indexer for the health endpoint.
type indexerState struct {
	ix *indexer.Indexer
}

func (a indexerState) State() string {
	return string(a.ix.State())
}

// createStores creates all required stores, running migrations first.
func createStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*allStores, func(), error) {
	if cfg.UseMemory {
		axes := memory.NewTokenAxisStore()
		params := memory.NewParamsStore()
		return &allStores{
			scores:      memory.NewScoreStore(axes, params),
			axes:        axes,
			params:      params,
			checkpoints: memory.NewCheckpointStore(),
			snapshots:   memory.NewSnapshotArchive(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	params := pgstore.NewParamsStore(pool)
	stores := &allStores{
		scores:      pgstore.NewScoreStore(pool, params),
		axes:        pgstore.NewTokenAxisStore(pool),
		params:      params,
		checkpoints: pgstore.NewCheckpointStore(pool),
	}

	cleanup := func() { pool.Close() }

	if cfg.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		stores.snapshots = chstore.NewSnapshotArchive(chConn)
		stores.tips = chstore.NewTipArchive(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	} else {
		logger.Println("No ClickHouse DSN configured, snapshot history kept in memory")
		stores.snapshots = memory.NewSnapshotArchive()
	}

	return stores, cleanup, nil
}
