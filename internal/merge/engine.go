// Package merge retires genesis blocks. A genesis person is an
// unresolved root carrying a G-code; it leaves that state either by
// dissolving (its parentage reached the auto-merge threshold) or by
// being absorbed into a canonical person it duplicated.
package merge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Engine applies merge policy. Methods take the store explicitly so
// callers already inside a transaction can pass their handle and stay
// atomic end to end.
type Engine struct {
	policy model.PolicyConfig
	log    *zap.Logger
}

// NewEngine creates a merge engine
func NewEngine(policy model.PolicyConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{policy: policy, log: log}
}

// CheckDissolve dissolves a genesis block whose connection to the graph is
// settled: a primary parent edge at or above the auto-merge threshold.
// The person keeps their id; only the genesis marker goes away. Reports
// whether a dissolve happened. Safe to call on any person; non-genesis
// persons and the universal root are left alone.
func (e *Engine) CheckDissolve(ctx context.Context, st store.Store, personID int64) (bool, error) {
	dissolved := false
	err := st.InTx(ctx, func(tx store.Store) error {
		p, err := tx.Person(ctx, personID)
		if err != nil {
			return err
		}
		if !p.IsGenesis() || p.GenesisCode == model.UniversalRootCode {
			return nil
		}

		parents, err := tx.ParentsOf(ctx, p.ID)
		if err != nil {
			return err
		}
		var settled *model.Relationship
		for i := range parents {
			if parents[i].IsPrimary() && parents[i].Confidence >= e.policy.AutoMergeThreshold {
				settled = &parents[i]
				break
			}
		}
		if settled == nil {
			return nil
		}

		code := p.GenesisCode
		p.GenesisCode = ""
		if p.Kind == model.KindGenesis {
			p.Kind = model.KindHuman
		}
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendMergeLog(ctx, &model.MergeLogEntry{
			GenesisPersonID: p.ID,
			GenesisCode:     code,
			MergedIntoID:    p.ID,
			Confidence:      settled.Confidence,
			Kind:            model.MergeDissolved,
		}); err != nil {
			return err
		}
		if err := tx.AppendActivity(ctx, &model.ActivityEntry{
			PersonID:   p.ID,
			PersonName: p.Name,
			Action:     model.ActionMerged,
			Detail:     fmt.Sprintf("genesis block %s dissolved at confidence %.0f", code, settled.Confidence),
		}); err != nil {
			return err
		}
		dissolved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check dissolve person %d: %w", personID, err)
	}
	if dissolved {
		e.log.Info("genesis block dissolved", zap.Int64("person", personID))
	}
	return dissolved, nil
}

// Absorb folds a duplicate person into a canonical one: every edge is
// repointed, aliases carry over, and the duplicate becomes a tombstone
// redirecting to the canonical id. Used when research proves a genesis
// placeholder names someone already in the graph.
func (e *Engine) Absorb(ctx context.Context, st store.Store, duplicateID, canonicalID int64) error {
	if duplicateID == canonicalID {
		return fmt.Errorf("absorb: person %d into itself", duplicateID)
	}
	err := st.InTx(ctx, func(tx store.Store) error {
		dup, err := tx.Person(ctx, duplicateID)
		if err != nil {
			return err
		}
		canon, err := tx.Person(ctx, canonicalID)
		if err != nil {
			return err
		}
		if dup.ID == canon.ID {
			// Already merged by an earlier pass
			return nil
		}

		if err := tx.RepointRelationships(ctx, dup.ID, canon.ID); err != nil {
			return err
		}

		// Tombstone the duplicate first so its external key is free for
		// the canonical row within the same transaction.
		code := dup.GenesisCode
		key := dup.ExternalKey
		dup.GenesisCode = ""
		dup.ExternalKey = ""
		dup.MergedInto = canon.ID
		if err := tx.UpdatePerson(ctx, dup); err != nil {
			return err
		}

		if !canon.HasAlias(dup.Name) && model.NormalizeName(dup.Name) != model.NormalizeName(canon.Name) {
			canon.Aliases = append(canon.Aliases, dup.Name)
		}
		for _, alias := range dup.Aliases {
			if !canon.HasAlias(alias) && model.NormalizeName(alias) != model.NormalizeName(canon.Name) {
				canon.Aliases = append(canon.Aliases, alias)
			}
		}
		if canon.ExternalKey == "" && key != "" {
			canon.ExternalKey = key
		}
		if canon.BirthYear == nil {
			canon.BirthYear = dup.BirthYear
		}
		if canon.DeathYear == nil {
			canon.DeathYear = dup.DeathYear
		}
		if err := tx.UpdatePerson(ctx, canon); err != nil {
			return err
		}

		if err := tx.AppendMergeLog(ctx, &model.MergeLogEntry{
			GenesisPersonID: dup.ID,
			GenesisCode:     code,
			MergedIntoID:    canon.ID,
			Kind:            model.MergeAbsorbed,
		}); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &model.ActivityEntry{
			PersonID:   canon.ID,
			PersonName: canon.Name,
			Action:     model.ActionMerged,
			Detail:     fmt.Sprintf("absorbed duplicate %q (id %d)", dup.Name, dup.ID),
		})
	})
	if err != nil {
		return fmt.Errorf("absorb person %d into %d: %w", duplicateID, canonicalID, err)
	}
	e.log.Info("duplicate absorbed", zap.Int64("duplicate", duplicateID), zap.Int64("canonical", canonicalID))
	return nil
}
