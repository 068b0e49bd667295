package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tammahq/tamma/internal/storage/sqlite"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the SQLite database file",
	Long: `Reclaims space from deleted rows and truncates the write-ahead log.
Only the sqlite backend supports local maintenance; a mysql backend is
maintained on the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if b := firstNonEmpty(viper.GetString("backend"), cfg.Backend); b != "" && b != "sqlite" {
			return fmt.Errorf("db vacuum only supports the sqlite backend, not %s", b)
		}
		path := firstNonEmpty(viper.GetString("db"), cfg.DatabasePath(tammaDir))

		// Opened directly rather than through the root command's store so
		// vacuum holds the only connection to the file.
		s, err := sqlite.New(rootCtx, path)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		defer s.Close()

		db := s.UnderlyingDB()
		var free int64
		_ = db.QueryRowContext(rootCtx, `PRAGMA freelist_count`).Scan(&free)
		if _, err := db.ExecContext(rootCtx, `VACUUM`); err != nil {
			return fmt.Errorf("vacuuming %s: %w", path, err)
		}
		if _, err := db.ExecContext(rootCtx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
			return fmt.Errorf("checkpointing WAL: %w", err)
		}
		if !quietFlag {
			fmt.Printf("vacuumed %s (%d free pages reclaimed)\n", s.Path(), free)
		}
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbVacuumCmd)
	rootCmd.AddCommand(dbCmd)
}
