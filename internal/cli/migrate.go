package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashvattha/ashvattha/internal/store/postgres"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Migrate brings the postgres schema up to date. serve and agent run
migrations automatically on startup; this command exists for running
them separately, e.g. in a deploy step.

Example:
  ashvattha migrate --db postgres://localhost/ashvattha`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("migrate requires a postgres connection string (--db or ASHVATTHA_DATABASE_URL)")
		}
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
