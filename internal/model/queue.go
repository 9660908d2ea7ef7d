package model

import "time"

// Direction selects which side of the tree a research job explores
type Direction string

const (
	DirAncestors   Direction = "ancestors"
	DirDescendants Direction = "descendants"
	DirBoth        Direction = "both"
)

// Ancestors reports whether the direction includes the upward side
func (d Direction) Ancestors() bool { return d == DirAncestors || d == DirBoth }

// Descendants reports whether the direction includes the downward side
func (d Direction) Descendants() bool { return d == DirDescendants || d == DirBoth }

// QueueStatus is the lifecycle state of a research job
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusDone       QueueStatus = "done"
	StatusFailed     QueueStatus = "failed"
)

// QueueItem is one pending unit of research work
type QueueItem struct {
	ID            int64       `json:"id"`
	PersonID      int64       `json:"person_id"`
	Direction     Direction   `json:"direction"`
	Priority      int         `json:"priority"`
	Status        QueueStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Action classifies an activity log entry
type Action string

const (
	ActionDiscovered Action = "discovered"
	ActionLinked     Action = "linked"
	ActionMerged     Action = "merged"
	ActionFailed     Action = "failed"
)

// ActivityEntry is one append-only record of engine work.
// Entries are observational; nothing in the pipeline reads them back.
type ActivityEntry struct {
	ID         int64     `json:"id"`
	PersonID   int64     `json:"person_id"`
	PersonName string    `json:"person_name"`
	Action     Action    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
}

// Stats is the read API's aggregate progress view
type Stats struct {
	TotalPersons       int     `json:"total_persons"`
	TotalRelationships int     `json:"total_relationships"`
	OpenGenesisBlocks  int     `json:"unresolved_genesis_blocks"`
	MergesCompleted    int     `json:"merges_completed"`
	QueuePending       int     `json:"queue_pending"`
	QueueFailed        int     `json:"queue_failed"`
	CoveragePct        float64 `json:"coverage_pct"`
}
