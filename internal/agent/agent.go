// Package agent runs the research loop: a pool of workers claiming queue
// items and feeding them through the resolver until told to stop.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/factsource"
	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/resolve"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Agent drives concurrent research workers
type Agent struct {
	scheduler *queue.Scheduler
	resolver  *resolve.Resolver
	cfg       model.AgentConfig
	log       *zap.Logger
}

// New creates an agent
func New(sched *queue.Scheduler, r *resolve.Resolver, cfg model.AgentConfig, log *zap.Logger) *Agent {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{scheduler: sched, resolver: r, cfg: cfg, log: log}
}

// RunOnce claims and processes a single item. Reports whether there was
// work; an empty queue is the normal idle state, not an error. Item
// failures are absorbed into queue state and do not surface here.
func (a *Agent) RunOnce(ctx context.Context) (bool, error) {
	item, err := a.scheduler.Claim(ctx)
	if errors.Is(err, store.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if perr := a.resolver.Process(ctx, item); perr != nil {
		if ferr := a.scheduler.Fail(ctx, item, perr, factsource.IsTransient(perr)); ferr != nil {
			return true, ferr
		}
		return true, nil
	}
	if err := a.scheduler.Complete(ctx, item); err != nil {
		return true, err
	}
	return true, nil
}

// Run works the queue with the configured number of workers until the
// context is canceled. Idle workers poll at the configured interval.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("agent starting",
		zap.Int("workers", a.cfg.Workers),
		zap.Duration("poll_interval", a.cfg.PollInterval))

	var wg sync.WaitGroup
	for i := 0; i < a.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			a.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	a.log.Info("agent stopped")
	return ctx.Err()
}

func (a *Agent) worker(ctx context.Context, id int) {
	log := a.log.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := a.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("worker cycle failed", zap.Error(err))
		}
		if worked && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

// Drain processes items until the queue empties or the context ends.
// Used by the one-shot CLI mode and tests.
func (a *Agent) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		worked, err := a.RunOnce(ctx)
		if err != nil {
			return processed, err
		}
		if !worked {
			return processed, nil
		}
		processed++
	}
}
