// Package activity records what the engine did, for the feed the UI and
// operators read. Entries are observational: a failed write must never
// fail the work being logged.
package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Logger appends activity entries, swallowing store errors
type Logger struct {
	store store.Store
	log   *zap.Logger
}

// NewLogger creates an activity logger
func NewLogger(st store.Store, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{store: st, log: log}
}

// Record appends one entry. Store failures are logged and dropped.
func (l *Logger) Record(ctx context.Context, person *model.Person, action model.Action, detail string) {
	e := &model.ActivityEntry{
		Action: action,
		Detail: detail,
	}
	if person != nil {
		e.PersonID = person.ID
		e.PersonName = person.Name
	}
	if err := l.store.AppendActivity(ctx, e); err != nil {
		l.log.Warn("activity entry dropped",
			zap.String("action", string(action)),
			zap.Int64("person", e.PersonID),
			zap.Error(err))
	}
}

// Recent returns the latest entries, newest first
func (l *Logger) Recent(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	return l.store.RecentActivity(ctx, limit)
}
