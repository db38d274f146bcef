package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drips-network/dripfeed-sub001/internal/config"
	"github.com/drips-network/dripfeed-sub001/internal/coordinator"
	"github.com/drips-network/dripfeed-sub001/internal/db"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/drips-network/dripfeed-sub001/internal/dispatcher"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/migrations"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "indexer",
	Short:   "dripfeed-sub001 - single-writer EVM event indexer",
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

// registrations returns the contract bindings and handler registry for the
// chain this process indexes. Domain handler business rules are an
// external-collaborator concern (spec §1, Non-goals): a real deployment
// supplies its own bindings/handlers here; this default build wires none,
// so the process runs the full fetch/dispatch pipeline against an empty
// decoder that logs every log as unknown_event, never fails to start.
func registrations() (coordinator.Deps, error) {
	return coordinator.Deps{
		Bindings: []decoder.ContractBinding{},
		Registry: dispatcher.Registry{},
	}, nil
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	schema := os.Getenv("NETWORK")
	if schema == "" {
		return fmt.Errorf("NETWORK environment variable is required (used as the schema name)")
	}
	if err := config.ValidateSchema(schema); err != nil {
		return fmt.Errorf("invalid NETWORK/schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infow("shutdown signal received, cancelling tasks")
		cancel()
	}()

	migrationPool, err := db.Open(ctx, databaseURL, db.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("opening database for migrations: %w", err)
	}
	if err := migrations.Run(log, migrationPool, schema); err != nil {
		migrationPool.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	migrationPool.Close()

	deps, err := registrations()
	if err != nil {
		return fmt.Errorf("building handler registrations: %w", err)
	}

	coord, err := coordinator.New(ctx, *cfg, schema, databaseURL, deps, log)
	if err != nil {
		return fmt.Errorf("initializing coordinator: %w", err)
	}
	defer func() {
		if closeErr := coord.Close(context.Background()); closeErr != nil {
			log.Warnw("error during coordinator shutdown", "error", closeErr)
		}
	}()

	log.Infow("dripfeed-sub001 starting", "schema", schema, "chain_id", cfg.Chain.ChainID, "version", version)

	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("coordinator run failed: %w", err)
	}

	log.Event("shutdown_complete").Infow("shutdown complete")
	return nil
}
