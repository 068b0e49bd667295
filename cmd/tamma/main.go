// Command tamma is the workflow supervision engine CLI: it supervises
// external resources (PRs, pipelines), records every decision in the
// event-sourced audit log, and manages escalations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tammahq/tamma/internal/config"
	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/storage/factory"
	"github.com/tammahq/tamma/internal/telemetry"
)

var (
	dbPath      string
	backend     string
	actorFlag   string
	providerURL string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	cfg      *config.Config
	tammaDir string
	store    storage.Store
	log      *eventlog.Log
)

// noStoreCommands lists commands that never touch the database.
var noStoreCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
	"db":         true, // maintenance opens its own exclusive connection
}

func needsStore(cmd *cobra.Command) bool {
	if !cmd.HasParent() {
		return false // bare "tamma" just prints help or the version
	}
	for c := cmd; c != nil; c = c.Parent() {
		if noStoreCommands[c.Name()] {
			return false
		}
	}
	return true
}

// getActor returns the actor recorded on resolutions and comments.
// Priority: --actor flag > TAMMA_ACTOR env > config file > $USER > "unknown"
func getActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if envActor := os.Getenv("TAMMA_ACTOR"); envActor != "" {
		return envActor
	}
	if cfg != nil && cfg.Actor != "" {
		return cfg.Actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path or DSN (default: .tamma/tamma.db)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: sqlite or mysql (default: config file, then sqlite)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name recorded on resolutions (default: $TAMMA_ACTOR, config, $USER)")
	rootCmd.PersistentFlags().StringVar(&providerURL, "provider-url", "", "Platform bridge base URL for live status polling")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (one object per line)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	viper.SetEnvPrefix("TAMMA")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("provider-url", rootCmd.PersistentFlags().Lookup("provider-url"))
}

var rootCmd = &cobra.Command{
	Use:   "tamma",
	Short: "tamma - workflow supervision engine",
	Long: `Supervises long-running external workflows: monitors resource status,
decides retries with backoff, escalates to humans, and records every
decision in an append-only audit log before acting on it.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("tamma version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		setupSignalContext()

		tammaDir = config.Dir()
		cfg = config.LoadWithEnv(tammaDir)

		if err := telemetry.Init(rootCtx, "tamma", Version); err != nil {
			slog.Warn("telemetry init failed", "error", err)
		}

		if !needsStore(cmd) {
			return nil
		}
		return openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()

		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupLogging() {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	if quietFlag {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// schemaVersion is stamped into new databases and checked on open, so an
// old binary fails fast on a database written by a newer one instead of
// misreading it.
const (
	schemaVersionKey = "schema_version"
	schemaVersion    = "1"
)

func openStore() error {
	selected := firstNonEmpty(viper.GetString("backend"), cfg.Backend)
	path := firstNonEmpty(viper.GetString("db"), cfg.DatabasePath(tammaDir))

	s, err := factory.New(rootCtx, selected, path)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", selected, err)
	}
	if err := checkSchemaVersion(rootCtx, s); err != nil {
		_ = s.Close()
		return err
	}
	store = telemetry.WrapStore(s)
	log = eventlog.New(store)
	return nil
}

func checkSchemaVersion(ctx context.Context, s storage.Store) error {
	v, err := s.GetConfig(ctx, schemaVersionKey)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.SetConfig(ctx, schemaVersionKey, schemaVersion); err != nil {
			return fmt.Errorf("stamping schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("database schema version %s, this binary supports %s", v, schemaVersion)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
