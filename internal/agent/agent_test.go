package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ashvattha/ashvattha/internal/factsource"
	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/resolve"
	"github.com/ashvattha/ashvattha/internal/store"
)

type stubSource struct {
	facts []factsource.CandidateFact
	err   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Lookup(context.Context, factsource.Identity, model.Direction) ([]factsource.CandidateFact, error) {
	return s.facts, s.err
}

func testAgent(t *testing.T, src factsource.Source) (*Agent, *queue.Scheduler, store.Store) {
	t.Helper()
	st := store.NewMemory()
	policy := model.DefaultConfig().Policy
	sched := queue.NewScheduler(st, policy, 0, nil)
	r := resolve.NewResolver(st, src,
		lineage.NewAggregator(policy, nil),
		merge.NewEngine(policy, nil),
		sched, policy, nil)
	a := New(sched, r, model.AgentConfig{Workers: 1, PollInterval: time.Millisecond}, nil)
	return a, sched, st
}

func TestRunOnceIdle(t *testing.T) {
	a, _, _ := testAgent(t, &stubSource{})
	worked, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("idle cycle errored: %v", err)
	}
	if worked {
		t.Error("empty queue reported as work")
	}
}

func TestDrainProcessesQueue(t *testing.T) {
	ctx := context.Background()
	a, sched, st := testAgent(t, &stubSource{})

	for _, name := range []string{"A", "B", "C"} {
		p := &model.Person{Name: name, Kind: model.KindHuman}
		if err := st.CreatePerson(ctx, p); err != nil {
			t.Fatal(err)
		}
		if _, err := sched.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
			t.Fatal(err)
		}
	}

	n, err := a.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 3 {
		t.Errorf("processed = %d, want 3", n)
	}

	counts, err := sched.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusDone] != 3 {
		t.Errorf("done = %d, want 3", counts[model.StatusDone])
	}
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{err: fmt.Errorf("rate limited: %w", factsource.ErrTransient)}
	a, sched, st := testAgent(t, src)

	p := &model.Person{Name: "Unlucky", Kind: model.KindHuman}
	if err := st.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}

	// Attempts 1..3 each requeue or finally fail; the 4th cycle is idle
	n, err := a.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 3 {
		t.Errorf("cycles = %d, want 3 attempts before terminal failure", n)
	}

	counts, err := sched.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusFailed] != 1 {
		t.Errorf("failed = %d, want 1", counts[model.StatusFailed])
	}
}

func TestPermanentFailureNoRetry(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{err: fmt.Errorf("person makes no sense")}
	a, sched, st := testAgent(t, src)

	p := &model.Person{Name: "Odd", Kind: model.KindHuman}
	if err := st.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}

	n, err := a.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cycles = %d, want a single non-retried attempt", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, _, _ := testAgent(t, &stubSource{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}
}
