package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph and queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := buildLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx := context.Background()
		st, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		stats, err := st.Stats(ctx)
		if err != nil {
			return fmt.Errorf("read stats: %w", err)
		}
		sched := queue.NewScheduler(st, cfg.Policy, cfg.Agent.StaleAfter, log)
		counts, err := sched.Counts(ctx)
		if err != nil {
			return fmt.Errorf("read queue counts: %w", err)
		}

		fmt.Printf("Persons:        %d\n", stats.TotalPersons)
		fmt.Printf("Relationships:  %d\n", stats.TotalRelationships)
		fmt.Printf("Genesis blocks: %d open\n", stats.OpenGenesisBlocks)
		fmt.Printf("Merges:         %d completed\n", stats.MergesCompleted)
		fmt.Printf("Coverage:       %.1f%% of parent slots filled\n", stats.CoveragePct)
		fmt.Println()
		fmt.Printf("Queue: %d pending, %d processing, %d done, %d failed\n",
			counts[model.StatusPending], counts[model.StatusProcessing],
			counts[model.StatusDone], counts[model.StatusFailed])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
