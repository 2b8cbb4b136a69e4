package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	applied, err := pool.MigrationsApplied(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing applied migrations: %w", err)
	}

	fmt.Printf("Database is up to date (%d migration(s) applied)\n", len(applied))
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
