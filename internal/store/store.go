// Package store defines the persisted graph state consumed by the
// resolution engine, and provides an in-memory implementation. The
// PostgreSQL implementation lives in store/postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashvattha/ashvattha/internal/model"
)

var (
	// ErrNotFound means the requested row does not exist
	ErrNotFound = errors.New("store: not found")

	// ErrEmpty means no claimable queue item exists. This is a normal
	// idle condition, not a failure.
	ErrEmpty = errors.New("store: queue empty")
)

// Store is the transactional graph state shared by all engine components.
//
// Write methods called inside InTx apply atomically: either every write in
// the closure is visible or none is. InTx joins an ambient transaction when
// nested, so components can compose without double-begin errors.
type Store interface {
	// Persons
	CreatePerson(ctx context.Context, p *model.Person) error
	Person(ctx context.Context, id int64) (*model.Person, error) // follows merged_into to the canonical record
	PersonByExternalKey(ctx context.Context, key string) (*model.Person, error)
	// PersonByNameEra is the fuzzy dedup lookup: folded-name equality plus
	// a birth-year window. A nil birthYear matches only persons whose
	// birth year is also unknown.
	PersonByNameEra(ctx context.Context, name string, birthYear *int, windowYears int) (*model.Person, error)
	UpdatePerson(ctx context.Context, p *model.Person) error
	SearchPersons(ctx context.Context, query string, limit int) ([]model.Person, error)
	// NextGenesisCode allocates a fresh unique genesis code ("G1", "G2", …).
	NextGenesisCode(ctx context.Context) (string, error)
	// RepointRelationships moves every edge touching fromID onto toID,
	// skipping moves that would violate (child, parent, role) uniqueness.
	RepointRelationships(ctx context.Context, fromID, toID int64) error

	// Relationships
	RelationshipsForChild(ctx context.Context, childID int64, role model.Role) ([]model.Relationship, error)
	ParentsOf(ctx context.Context, childID int64) ([]model.Relationship, error)
	ChildrenOf(ctx context.Context, parentID int64, limit int) ([]model.Relationship, error) // primary standing only
	CreateRelationship(ctx context.Context, r *model.Relationship) error
	UpdateRelationship(ctx context.Context, r *model.Relationship) error
	AddSource(ctx context.Context, s *model.Source) error
	SourcesFor(ctx context.Context, relationshipID int64) ([]model.Source, error)

	// Queue
	Enqueue(ctx context.Context, item *model.QueueItem) error
	// OpenQueueItem finds a pending or processing item for (person,
	// direction), used for idempotent enqueue.
	OpenQueueItem(ctx context.Context, personID int64, dir model.Direction) (*model.QueueItem, error)
	// ClaimNext atomically claims the highest-priority pending item (ties
	// broken by earliest creation), stamping last_attempt_at and counting
	// the attempt. Processing
	// items whose last attempt is older than staleAfter count as pending
	// again. Returns ErrEmpty when nothing is claimable.
	ClaimNext(ctx context.Context, staleAfter time.Duration) (*model.QueueItem, error)
	UpdateQueueItem(ctx context.Context, item *model.QueueItem) error
	QueueCounts(ctx context.Context) (map[model.QueueStatus]int, error)

	// Logs
	AppendActivity(ctx context.Context, e *model.ActivityEntry) error
	RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)
	AppendMergeLog(ctx context.Context, e *model.MergeLogEntry) error

	// Categories (curated groupings surfaced by the API)
	CreateCategory(ctx context.Context, c *model.Category) error
	// AddPersonToCategory is idempotent; re-adding an existing membership
	// is a no-op.
	AddPersonToCategory(ctx context.Context, personID, categoryID int64) error
	Categories(ctx context.Context) ([]model.Category, error)
	CategoriesFor(ctx context.Context, personID int64) ([]model.Category, error)
	PersonsInCategory(ctx context.Context, categoryID int64, limit, offset int) ([]model.Person, error)

	Stats(ctx context.Context) (*model.Stats, error)

	// InTx runs fn atomically. A nested call joins the outer transaction.
	InTx(ctx context.Context, fn func(Store) error) error
	Close() error
}
