// Package queue schedules research work. It owns the lifecycle of queue
// items — enqueue, claim, complete, retry, terminal failure — while the
// store provides the claim atomicity underneath.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Scheduler applies queue policy on top of the store
type Scheduler struct {
	store      store.Store
	policy     model.PolicyConfig
	staleAfter time.Duration
	log        *zap.Logger
}

// NewScheduler creates a scheduler with the given policy
func NewScheduler(st store.Store, policy model.PolicyConfig, staleAfter time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{store: st, policy: policy, staleAfter: staleAfter, log: log}
}

// Enqueue schedules research for a person. Enqueueing a person who already
// has an open item merges into it instead of creating a duplicate: the
// priority rises to the higher of the two and the direction widens when
// the requests disagree. Reports whether a new item was created.
func (s *Scheduler) Enqueue(ctx context.Context, personID int64, dir model.Direction, priority int) (bool, error) {
	return s.EnqueueIn(ctx, s.store, personID, dir, priority)
}

// EnqueueIn is Enqueue running against an explicit store, for callers
// already inside a transaction.
func (s *Scheduler) EnqueueIn(ctx context.Context, st store.Store, personID int64, dir model.Direction, priority int) (bool, error) {
	if priority < s.policy.MinPriority {
		priority = s.policy.MinPriority
	}
	if priority > 100 {
		priority = 100
	}

	created := false
	err := st.InTx(ctx, func(tx store.Store) error {
		open, err := openItemCovering(ctx, tx, personID, dir)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if open != nil {
			changed := false
			if priority > open.Priority {
				open.Priority = priority
				changed = true
			}
			if dir == model.DirBoth && open.Direction != model.DirBoth {
				open.Direction = model.DirBoth
				changed = true
			}
			if changed {
				return tx.UpdateQueueItem(ctx, open)
			}
			return nil
		}

		created = true
		return tx.Enqueue(ctx, &model.QueueItem{
			PersonID:  personID,
			Direction: dir,
			Priority:  priority,
			Status:    model.StatusPending,
		})
	})
	if err != nil {
		return false, fmt.Errorf("enqueue person %d: %w", personID, err)
	}
	if created {
		s.log.Debug("enqueued research", zap.Int64("person", personID), zap.String("direction", string(dir)), zap.Int("priority", priority))
	}
	return created, nil
}

// openItemCovering finds an open item whose direction already covers dir,
// or an item the request should widen (a one-sided item when dir is both).
func openItemCovering(ctx context.Context, tx store.Store, personID int64, dir model.Direction) (*model.QueueItem, error) {
	if open, err := tx.OpenQueueItem(ctx, personID, dir); err == nil {
		return open, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var others []model.Direction
	if dir == model.DirBoth {
		others = []model.Direction{model.DirAncestors, model.DirDescendants}
	} else {
		others = []model.Direction{model.DirBoth}
	}
	for _, d := range others {
		if open, err := tx.OpenQueueItem(ctx, personID, d); err == nil {
			return open, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, store.ErrNotFound
}

// Claim takes the next runnable item. Returns store.ErrEmpty when idle.
func (s *Scheduler) Claim(ctx context.Context) (*model.QueueItem, error) {
	item, err := s.store.ClaimNext(ctx, s.staleAfter)
	if err != nil {
		return nil, err
	}
	s.log.Debug("claimed queue item", zap.Int64("item", item.ID), zap.Int64("person", item.PersonID), zap.Int("attempt", item.Attempts))
	return item, nil
}

// Complete marks a claimed item done
func (s *Scheduler) Complete(ctx context.Context, item *model.QueueItem) error {
	item.Status = model.StatusDone
	if err := s.store.UpdateQueueItem(ctx, item); err != nil {
		return fmt.Errorf("complete item %d: %w", item.ID, err)
	}
	return nil
}

// Fail records a failed attempt. Retryable failures go back to pending
// with decayed priority until the attempt budget runs out; everything
// else is terminal and lands in the activity log.
func (s *Scheduler) Fail(ctx context.Context, item *model.QueueItem, cause error, retryable bool) error {
	if retryable && item.Attempts < s.policy.MaxAttempts {
		item.Status = model.StatusPending
		item.Priority -= s.policy.PriorityDecay
		if item.Priority < s.policy.MinPriority {
			item.Priority = s.policy.MinPriority
		}
		if err := s.store.UpdateQueueItem(ctx, item); err != nil {
			return fmt.Errorf("requeue item %d: %w", item.ID, err)
		}
		s.log.Warn("research attempt failed, requeued",
			zap.Int64("item", item.ID), zap.Int64("person", item.PersonID),
			zap.Int("attempt", item.Attempts), zap.Int("priority", item.Priority),
			zap.Error(cause))
		return nil
	}

	err := s.store.InTx(ctx, func(tx store.Store) error {
		item.Status = model.StatusFailed
		if err := tx.UpdateQueueItem(ctx, item); err != nil {
			return err
		}
		name := fmt.Sprintf("person %d", item.PersonID)
		if p, perr := tx.Person(ctx, item.PersonID); perr == nil {
			name = p.Name
		}
		return tx.AppendActivity(ctx, &model.ActivityEntry{
			PersonID:   item.PersonID,
			PersonName: name,
			Action:     model.ActionFailed,
			Detail:     cause.Error(),
		})
	})
	if err != nil {
		return fmt.Errorf("fail item %d: %w", item.ID, err)
	}
	s.log.Warn("research failed permanently",
		zap.Int64("item", item.ID), zap.Int64("person", item.PersonID),
		zap.Int("attempts", item.Attempts), zap.Error(cause))
	return nil
}

// Counts exposes queue depth by status
func (s *Scheduler) Counts(ctx context.Context) (map[model.QueueStatus]int, error) {
	return s.store.QueueCounts(ctx)
}
