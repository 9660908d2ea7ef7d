package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

func testScheduler(t *testing.T) (*Scheduler, store.Store) {
	t.Helper()
	st := store.NewMemory()
	policy := model.DefaultConfig().Policy
	return NewScheduler(st, policy, 0, nil), st
}

func addPerson(t *testing.T, st store.Store, name string) *model.Person {
	t.Helper()
	p := &model.Person{Name: name, Kind: model.KindHuman}
	if err := st.CreatePerson(context.Background(), p); err != nil {
		t.Fatalf("create person: %v", err)
	}
	return p
}

func TestEnqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Ashoka")

	created, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 50)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}

	// Re-enqueue at higher priority merges into the open item
	created, err = s.Enqueue(ctx, p.ID, model.DirAncestors, 80)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created {
		t.Error("duplicate enqueue created a second item")
	}

	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item.Priority != 80 {
		t.Errorf("priority = %d, want raised to 80", item.Priority)
	}
	if _, err := s.Claim(ctx); !errors.Is(err, store.ErrEmpty) {
		t.Errorf("expected empty queue after single claim, got %v", err)
	}
}

func TestEnqueueLowerPriorityKept(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Ashoka")

	if _, err := s.Enqueue(ctx, p.ID, model.DirBoth, 90); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(ctx, p.ID, model.DirBoth, 10); err != nil {
		t.Fatal(err)
	}

	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item.Priority != 90 {
		t.Errorf("priority = %d, lower re-enqueue must not reduce it", item.Priority)
	}
}

func TestEnqueueDirectionWidening(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Ashoka")

	if _, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}

	// A both-sides request widens the open ancestors item
	created, err := s.Enqueue(ctx, p.ID, model.DirBoth, 50)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("both-request should widen the open item, not create one")
	}

	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item.Direction != model.DirBoth {
		t.Errorf("direction = %s, want both", item.Direction)
	}

	// And a one-sided request is already covered by an open both item
	if err := s.Fail(ctx, item, errors.New("x"), true); err != nil {
		t.Fatal(err)
	}
	created, err = s.Enqueue(ctx, p.ID, model.DirDescendants, 50)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("request covered by an open both item created a duplicate")
	}
}

func TestClaimOrder(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	low := addPerson(t, st, "Low")
	high := addPerson(t, st, "High")

	if _, err := s.Enqueue(ctx, low.ID, model.DirAncestors, 20); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(ctx, high.ID, model.DirAncestors, 90); err != nil {
		t.Fatal(err)
	}

	first, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.PersonID != high.ID {
		t.Errorf("claimed person %d first, want the high-priority one", first.PersonID)
	}
	second, err := s.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second.PersonID != low.ID {
		t.Errorf("claimed person %d second, want the low-priority one", second.PersonID)
	}
}

func TestFailRetriesThenTerminal(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Flaky")

	if _, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("upstream timeout")
	var item *model.QueueItem
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		item, err = s.Claim(ctx)
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		if item.Attempts != attempt {
			t.Errorf("attempt %d: counter = %d", attempt, item.Attempts)
		}
		if err := s.Fail(ctx, item, cause, true); err != nil {
			t.Fatalf("fail attempt %d: %v", attempt, err)
		}
	}

	// Third failure exhausted the budget (MaxAttempts=3): terminal
	if _, err := s.Claim(ctx); !errors.Is(err, store.ErrEmpty) {
		t.Fatalf("expected empty queue after terminal failure, got %v", err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusFailed] != 1 {
		t.Errorf("failed count = %d, want 1", counts[model.StatusFailed])
	}

	acts, err := st.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range acts {
		if a.Action == model.ActionFailed && a.PersonID == p.ID {
			found = true
			if a.PersonName != "Flaky" {
				t.Errorf("activity name = %q, want Flaky", a.PersonName)
			}
		}
	}
	if !found {
		t.Error("terminal failure not recorded in activity log")
	}
}

func TestFailPriorityDecay(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Decay")

	if _, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 12); err != nil {
		t.Fatal(err)
	}
	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fail(ctx, item, errors.New("x"), true); err != nil {
		t.Fatal(err)
	}

	item, err = s.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 12 - 10 decay clamps at the floor of 5
	if item.Priority != 5 {
		t.Errorf("priority after decay = %d, want floor 5", item.Priority)
	}
}

func TestFailNonRetryableIsTerminal(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Broken")

	if _, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}
	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fail(ctx, item, errors.New("malformed person"), false); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Claim(ctx); !errors.Is(err, store.ErrEmpty) {
		t.Errorf("non-retryable failure must not requeue, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	s, st := testScheduler(t)
	p := addPerson(t, st, "Done")

	if _, err := s.Enqueue(ctx, p.ID, model.DirAncestors, 50); err != nil {
		t.Fatal(err)
	}
	item, err := s.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, item); err != nil {
		t.Fatal(err)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusDone] != 1 || counts[model.StatusPending] != 0 {
		t.Errorf("counts = %v, want one done item", counts)
	}
}
