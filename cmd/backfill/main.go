// Package main runs a one-shot historical backfill over a block range,
// applying events through the same pipeline the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tipscore/internal/chain"
	"tipscore/internal/config"
	"tipscore/internal/eventsource"
	"tipscore/internal/indexer"
	"tipscore/internal/storage/memory"
	"tipscore/internal/storage/migrations"
	pgstore "tipscore/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides TIPSCORE_CONFIG)")
	from := flag.Uint64("from", 0, "First block to backfill (default: resume from checkpoint or genesis)")
	to := flag.Uint64("to", 0, "Last block to backfill (default: head minus confirmations)")
	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags)

	if *configPath != "" {
		os.Setenv("TIPSCORE_CONFIG", *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RPCEndpoint == "" {
		logger.Fatal("rpc_endpoint is required for backfill")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ix, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build backfill pipeline: %v", err)
	}
	defer cleanup()

	start, end, err := resolveRange(ctx, cfg, *from, *to)
	if err != nil {
		logger.Fatalf("Failed to resolve block range: %v", err)
	}
	if start > end {
		logger.Printf("Nothing to do: start block %d is past end block %d", start, end)
		return
	}

	logger.Printf("Backfilling blocks %d..%d", start, end)
	if err := ix.Backfill(ctx, start, end); err != nil {
		logger.Fatalf("Backfill failed: %v", err)
	}
	logger.Println("Backfill complete")
}

// build assembles stores, adapter and indexer for a one-shot run.
func build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*indexer.Indexer, func(), error) {
	rpc := chain.NewHTTPClient(cfg.RPCEndpoint, chain.WithTimeout(cfg.RPCTimeout))

	source, err := eventsource.NewAdapter(eventsource.AdapterOptions{
		RPC:      rpc,
		Contract: cfg.ContractAddress,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := indexer.Options{
		Source:        source,
		GenesisBlock:  cfg.GenesisBlock,
		ChunkSize:     cfg.ChunkSize,
		Confirmations: cfg.Confirmations,
		Logger:        logger,
	}

	cleanup := func() {}
	if cfg.UseMemory {
		axes := memory.NewTokenAxisStore()
		params := memory.NewParamsStore()
		opts.Scores = memory.NewScoreStore(axes, params)
		opts.Axes = axes
		opts.Params = params
		opts.Checkpoints = memory.NewCheckpointStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		params := pgstore.NewParamsStore(pool)
		opts.Scores = pgstore.NewScoreStore(pool, params)
		opts.Axes = pgstore.NewTokenAxisStore(pool)
		opts.Params = params
		opts.Checkpoints = pgstore.NewCheckpointStore(pool)
		cleanup = pool.Close
	}

	ix, err := indexer.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return ix, cleanup, nil
}

// resolveRange fills in flag defaults from the chain head and genesis.
func resolveRange(ctx context.Context, cfg *config.Config, from, to uint64) (uint64, uint64, error) {
	rpc := chain.NewHTTPClient(cfg.RPCEndpoint, chain.WithTimeout(cfg.RPCTimeout))

	start := from
	if start == 0 {
		start = cfg.GenesisBlock
	}

	end := to
	if end == 0 {
		head, err := rpc.BlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("fetch head block: %w", err)
		}
		if head < cfg.Confirmations {
			return 0, 0, fmt.Errorf("head block %d is below the confirmation window", head)
		}
		end = head - cfg.Confirmations
	}
	return start, end, nil
}
