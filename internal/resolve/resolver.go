// Package resolve turns raw candidate facts into graph changes. The
// resolver is the per-item worker body: it consults the fact sources,
// deduplicates the named people, folds the claims through the confidence
// aggregator, retires genesis blocks that settle, and queues follow-up
// research for everyone it touched.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/factsource"
	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Resolver processes one research item end to end
type Resolver struct {
	store     store.Store
	source    factsource.Source
	agg       *lineage.Aggregator
	merger    *merge.Engine
	scheduler *queue.Scheduler
	policy    model.PolicyConfig
	log       *zap.Logger
}

// NewResolver wires the resolver over its collaborators
func NewResolver(st store.Store, src factsource.Source, agg *lineage.Aggregator, merger *merge.Engine, sched *queue.Scheduler, policy model.PolicyConfig, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		store: st, source: src, agg: agg, merger: merger,
		scheduler: sched, policy: policy, log: log,
	}
}

// Process researches a claimed queue item. A returned error wrapping
// factsource.ErrTransient means the attempt may be retried; anything
// else is a permanent failure of this item.
func (r *Resolver) Process(ctx context.Context, item *model.QueueItem) error {
	person, err := r.store.Person(ctx, item.PersonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("person %d vanished from the graph", item.PersonID)
		}
		return fmt.Errorf("load person %d: %v: %w", item.PersonID, err, factsource.ErrTransient)
	}

	facts, err := r.source.Lookup(ctx, factsource.Identity{
		Name:        person.Name,
		ExternalKey: person.ExternalKey,
		BirthYear:   person.BirthYear,
	}, item.Direction)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", person.Name, err)
	}

	applied := 0
	for _, fact := range facts {
		if err := r.applyFact(ctx, person, item, fact); err != nil {
			// One malformed fact must not sink the rest of the batch
			r.log.Warn("fact skipped",
				zap.String("person", person.Name),
				zap.String("candidate", fact.Name),
				zap.Error(err))
			continue
		}
		applied++
	}

	// Re-read before marking researched: applying facts may have changed
	// the row (a dissolve clears the genesis code).
	fresh, err := r.store.Person(ctx, person.ID)
	if err != nil {
		return fmt.Errorf("reload person %d: %v: %w", person.ID, err, factsource.ErrTransient)
	}
	fresh.Researched = true
	if err := r.store.UpdatePerson(ctx, fresh); err != nil {
		return fmt.Errorf("mark researched: %v: %w", err, factsource.ErrTransient)
	}

	r.log.Info("research item processed",
		zap.String("person", person.Name),
		zap.String("direction", string(item.Direction)),
		zap.Int("facts", len(facts)), zap.Int("applied", applied))
	return nil
}

// applyFact folds one candidate fact into the graph atomically
func (r *Resolver) applyFact(ctx context.Context, subject *model.Person, item *model.QueueItem, fact factsource.CandidateFact) error {
	if fact.Name == "" {
		return fmt.Errorf("fact without a name")
	}

	childID, parentID, role, err := edgeFor(subject, fact)
	if err != nil {
		return err
	}

	return r.store.InTx(ctx, func(tx store.Store) error {
		other, created, err := r.resolveCandidate(ctx, tx, subject, fact)
		if err != nil {
			return err
		}
		if other.ID == subject.ID {
			return fmt.Errorf("candidate %q resolved to the subject", fact.Name)
		}

		// Fill the unresolved endpoint id now that the person exists
		if childID == 0 {
			childID = other.ID
		}
		if parentID == 0 {
			parentID = other.ID
		}

		var src *model.Source
		if fact.SourceURL != "" || fact.SourceKind != "" {
			src = &model.Source{
				URL:       fact.SourceURL,
				Title:     fact.SourceTitle,
				Kind:      fact.SourceKind,
				Authority: fact.Authority,
			}
		}
		out, err := r.agg.Apply(ctx, tx, lineage.Claim{
			ChildID:    childID,
			ParentID:   parentID,
			Role:       role,
			Confidence: fact.Confidence,
			Source:     src,
		})
		if err != nil {
			return err
		}

		if created {
			if err := tx.AppendActivity(ctx, &model.ActivityEntry{
				PersonID:   other.ID,
				PersonName: other.Name,
				Action:     model.ActionDiscovered,
				Detail:     fmt.Sprintf("%s of %s via %s", fact.Relation, subject.Name, fact.SourceKind),
			}); err != nil {
				return err
			}
		}
		if out.Created {
			if err := tx.AppendActivity(ctx, &model.ActivityEntry{
				PersonID:   childID,
				PersonName: subjectNameFor(subject, other, childID),
				Action:     model.ActionLinked,
				Detail: fmt.Sprintf("%s candidate %q at confidence %.0f",
					role, other.Name, out.Relationship.Confidence),
			}); err != nil {
				return err
			}
		}

		// A settled edge may release the child's genesis block
		if _, err := r.merger.CheckDissolve(ctx, tx, childID); err != nil {
			return err
		}

		return r.enqueueFollowup(ctx, tx, other, created, item)
	})
}

// edgeFor maps a fact onto a child→parent edge. Parent facts hang above
// the subject; child facts hang below, with the subject's role chosen by
// their gender (unknown defaults to father, matching how sparse sources
// record male lineages).
func edgeFor(subject *model.Person, fact factsource.CandidateFact) (childID, parentID int64, role model.Role, err error) {
	switch fact.Relation {
	case factsource.RelFather:
		return subject.ID, 0, model.RoleFather, nil
	case factsource.RelMother:
		return subject.ID, 0, model.RoleMother, nil
	case factsource.RelChild:
		role = model.RoleFather
		if subject.Gender == "female" {
			role = model.RoleMother
		}
		return 0, subject.ID, role, nil
	default:
		return 0, 0, "", fmt.Errorf("unknown relation %q", fact.Relation)
	}
}

// resolveCandidate finds or creates the person a fact names. Matching
// order: exact external key, then folded name within the era window.
// Reports whether a new person was created.
func (r *Resolver) resolveCandidate(ctx context.Context, tx store.Store, subject *model.Person, fact factsource.CandidateFact) (*model.Person, bool, error) {
	if fact.ExternalKey != "" {
		p, err := tx.PersonByExternalKey(ctx, fact.ExternalKey)
		if err == nil {
			if err := r.absorbDoppelganger(ctx, tx, subject, p, fact); err != nil {
				return nil, false, err
			}
			return p, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	p, err := tx.PersonByNameEra(ctx, fact.Name, fact.BirthYear, r.policy.EraWindowYears)
	if err == nil {
		// A keyed fact upgrades an unkeyed fuzzy match to a firm identity
		if fact.ExternalKey != "" && p.ExternalKey == "" {
			p.ExternalKey = fact.ExternalKey
			if err := tx.UpdatePerson(ctx, p); err != nil {
				return nil, false, err
			}
		}
		if fact.ExternalKey == "" || p.ExternalKey == fact.ExternalKey {
			return p, false, nil
		}
		// Same name and era but a different key: a distinct person
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	created := &model.Person{
		Name:        fact.Name,
		Kind:        model.KindHuman,
		Gender:      fact.Gender,
		Era:         subject.Era,
		BirthYear:   fact.BirthYear,
		DeathYear:   fact.DeathYear,
		ExternalKey: fact.ExternalKey,
	}
	// A newly discovered parent is an unconnected root until its own
	// parentage settles: it opens a genesis block and carries the genesis
	// kind so stats count only connected persons.
	if fact.Relation == factsource.RelFather || fact.Relation == factsource.RelMother {
		code, err := tx.NextGenesisCode(ctx)
		if err != nil {
			return nil, false, err
		}
		created.GenesisCode = code
		created.Kind = model.KindGenesis
	}
	if err := tx.CreatePerson(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// absorbDoppelganger folds an unkeyed genesis placeholder into the
// record that holds the fact's external key. Two placeholders for the
// same name and era turning out to share an identity key means they are
// the same individual discovered twice.
func (r *Resolver) absorbDoppelganger(ctx context.Context, tx store.Store, subject, canon *model.Person, fact factsource.CandidateFact) error {
	dup, err := tx.PersonByNameEra(ctx, fact.Name, fact.BirthYear, r.policy.EraWindowYears)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if dup.ID == canon.ID || dup.ID == subject.ID {
		return nil
	}
	if dup.ExternalKey != "" || !dup.IsGenesis() {
		return nil
	}
	return r.merger.Absorb(ctx, tx, dup.ID, canon.ID)
}

// enqueueFollowup schedules research on the person a fact touched. New
// people inherit the triggering item's priority minus one decay step so
// exploration spreads breadth-first and fades with distance.
func (r *Resolver) enqueueFollowup(ctx context.Context, tx store.Store, other *model.Person, created bool, item *model.QueueItem) error {
	if !created && other.Researched {
		return nil
	}
	priority := item.Priority - r.policy.PriorityDecay
	if priority < r.policy.MinPriority {
		priority = r.policy.MinPriority
	}
	_, err := r.scheduler.EnqueueIn(ctx, tx, other.ID, item.Direction, priority)
	return err
}

func subjectNameFor(subject, other *model.Person, childID int64) string {
	if subject.ID == childID {
		return subject.Name
	}
	return other.Name
}
