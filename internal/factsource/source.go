// Package factsource defines the external biographical fact suppliers and
// their shared HTTP plumbing. The engine only sees the Source interface;
// how facts are fetched (Wikidata claims, Wikipedia infoboxes, an LLM)
// stays behind it.
package factsource

import (
	"context"
	"errors"

	"github.com/ashvattha/ashvattha/internal/model"
)

// ErrTransient marks a failure worth retrying: timeouts, rate limits,
// upstream 5xx. The engine treats every transient cause identically.
var ErrTransient = errors.New("factsource: transient failure")

// IsTransient reports whether err should be routed to a queue retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Identity names the person a lookup is about
type Identity struct {
	Name        string
	ExternalKey string // Wikidata QID when known
	BirthYear   *int
}

// Relation is the role a candidate fact asserts relative to the subject
type Relation string

const (
	RelFather Relation = "father"
	RelMother Relation = "mother"
	RelChild  Relation = "child"
)

// CandidateFact is one raw parentage assertion with provenance
type CandidateFact struct {
	Relation    Relation
	Name        string
	ExternalKey string
	Gender      string
	BirthYear   *int
	DeathYear   *int
	Confidence  float64 // Intrinsic signal strength, 0..100
	SourceURL   string
	SourceTitle string
	SourceKind  model.SourceKind
	Authority   model.AuthorityTier
}

// Source supplies candidate facts for a person
type Source interface {
	Name() string
	Lookup(ctx context.Context, id Identity, dir model.Direction) ([]CandidateFact, error)
}

// Multi consults several sources in order and concatenates their facts.
// A transient failure from one source fails the whole lookup only when no
// other source produced anything; partial results win over retries.
type Multi struct {
	sources []Source
}

// NewMulti builds a fan-in source
func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Lookup(ctx context.Context, id Identity, dir model.Direction) ([]CandidateFact, error) {
	var facts []CandidateFact
	var firstErr error
	for _, s := range m.sources {
		fs, err := s.Lookup(ctx, id, dir)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		facts = append(facts, fs...)
	}
	if len(facts) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return facts, nil
}
