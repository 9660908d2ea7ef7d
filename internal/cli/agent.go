package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/agent"
	"github.com/ashvattha/ashvattha/internal/factsource"
	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/resolve"
)

var (
	agentWorkers int
	agentOnce    bool
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the research workers",
	Long: `Agent works the research queue: claims persons, consults the
configured fact sources, applies the resolved parent links, and
requeues newly discovered relatives.

By default the agent runs until interrupted. With --once it drains the
queue and exits, which is handy for cron-style batch research.

Example:
  ashvattha agent
  ashvattha agent --workers 4
  ashvattha agent --once --db postgres://localhost/ashvattha`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().IntVar(&agentWorkers, "workers", 0, "worker count (default from config)")
	agentCmd.Flags().BoolVar(&agentOnce, "once", false, "drain the queue and exit")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if agentWorkers > 0 {
		cfg.Agent.Workers = agentWorkers
	}
	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := factsource.FromConfig(cfg.Source)
	if err != nil {
		return err
	}
	sched := queue.NewScheduler(st, cfg.Policy, cfg.Agent.StaleAfter, log)
	agg := lineage.NewAggregator(cfg.Policy, log)
	merger := merge.NewEngine(cfg.Policy, log)
	r := resolve.NewResolver(st, src, agg, merger, sched, cfg.Policy, log)
	a := agent.New(sched, r, cfg.Agent, log)

	if agentOnce {
		n, err := a.Drain(ctx)
		if err != nil {
			return fmt.Errorf("drain queue: %w", err)
		}
		fmt.Printf("Processed %d queue item(s)\n", n)
		return nil
	}

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Info("agent exiting", zap.String("reason", "interrupted"))
	return nil
}
