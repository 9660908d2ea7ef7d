package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/agent"
	"github.com/ashvattha/ashvattha/internal/api"
	"github.com/ashvattha/ashvattha/internal/factsource"
	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/resolve"
)

var (
	serveAddr      string
	serveWithAgent bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the graph over HTTP",
	Long: `Serve starts the HTTP API: stats, person search and detail, tree
rendering, categories, the activity feed, and the seed/verify write
endpoints.

With --with-agent the research workers run in the same process, which
is the usual setup for the in-memory store.

Example:
  ashvattha serve
  ashvattha serve --addr :9090 --with-agent
  ashvattha serve --db postgres://localhost/ashvattha`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&serveWithAgent, "with-agent", false, "run research workers in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
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

	sched := queue.NewScheduler(st, cfg.Policy, cfg.Agent.StaleAfter, log)
	agg := lineage.NewAggregator(cfg.Policy, log)
	merger := merge.NewEngine(cfg.Policy, log)
	srv := api.NewServer(st, sched, agg, merger, cfg.Policy, log)

	errc := make(chan error, 2)
	go func() { errc <- srv.Start(cfg.HTTP.Addr) }()

	if serveWithAgent {
		src, err := factsource.FromConfig(cfg.Source)
		if err != nil {
			return err
		}
		r := resolve.NewResolver(st, src, agg, merger, sched, cfg.Policy, log)
		a := agent.New(sched, r, cfg.Agent, log)
		go func() { errc <- a.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}
