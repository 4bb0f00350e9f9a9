// Command sw is the salewatch CLI: credential management, sync runs and the
// admin HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/salewatch/salewatch/internal/config"
	"github.com/salewatch/salewatch/internal/engine"
	"github.com/salewatch/salewatch/internal/secret"
	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/storage/factory"
	"github.com/salewatch/salewatch/internal/telemetry"
)

var (
	cfg     *config.Settings
	store   storage.Store
	secrets *secret.Provider
	eng     *engine.Engine

	databaseURL string
	jsonOutput  bool

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "sw - incremental partner sales sync",
	Long:  `salewatch pulls partner financial sales data incrementally and keeps a local queryable copy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}

		if err := telemetry.Init(rootCtx, "salewatch", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		secrets, err = secret.FromEnv()
		if err != nil {
			return err
		}

		store, err = factory.Open(rootCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		store = telemetry.WrapStore(store)

		eng = engine.New(store, secrets, cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db", "", "Database URL (default: $DATABASE_URL or ~/.salewatch/salewatch.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
