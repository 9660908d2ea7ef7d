package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashvattha/ashvattha/internal/model"
)

const relColumns = `id, child_id, parent_id, role, confidence, standing,
	branch_group, verified, created_at`

func scanRelationship(row pgx.Row) (*model.Relationship, error) {
	var r model.Relationship
	err := row.Scan(&r.ID, &r.ChildID, &r.ParentID, &r.Role, &r.Confidence,
		&r.Standing, &r.BranchGroup, &r.Verified, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}
	return &r, nil
}

func (s *Store) collectRelationships(ctx context.Context, rows pgx.Rows, withSources bool) ([]model.Relationship, error) {
	var out []model.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if withSources {
		for i := range out {
			srcs, err := s.SourcesFor(ctx, out[i].ID)
			if err != nil {
				return nil, err
			}
			out[i].Sources = srcs
		}
	}
	return out, nil
}

func (s *Store) RelationshipsForChild(ctx context.Context, childID int64, role model.Role) ([]model.Relationship, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+relColumns+` FROM relationships
		WHERE child_id = $1 AND role = $2
		ORDER BY id`, childID, role)
	if err != nil {
		return nil, fmt.Errorf("relationships for child: %w", err)
	}
	return s.collectRelationships(ctx, rows, true)
}

func (s *Store) ParentsOf(ctx context.Context, childID int64) ([]model.Relationship, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+relColumns+` FROM relationships
		WHERE child_id = $1
		ORDER BY (standing = 'primary') DESC, confidence DESC, id`, childID)
	if err != nil {
		return nil, fmt.Errorf("parents of: %w", err)
	}
	return s.collectRelationships(ctx, rows, true)
}

func (s *Store) ChildrenOf(ctx context.Context, parentID int64, limit int) ([]model.Relationship, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+relColumns+` FROM relationships
		WHERE parent_id = $1 AND standing = 'primary'
		ORDER BY id
		LIMIT $2`, parentID, limit)
	if err != nil {
		return nil, fmt.Errorf("children of: %w", err)
	}
	return s.collectRelationships(ctx, rows, false)
}

func (s *Store) CreateRelationship(ctx context.Context, r *model.Relationship) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO relationships (child_id, parent_id, role, confidence, standing,
			branch_group, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		r.ChildID, r.ParentID, r.Role, r.Confidence, r.Standing, r.BranchGroup, r.Verified,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (s *Store) UpdateRelationship(ctx context.Context, r *model.Relationship) error {
	_, err := s.q.Exec(ctx, `
		UPDATE relationships SET confidence=$2, standing=$3, branch_group=$4, verified=$5
		WHERE id=$1`,
		r.ID, r.Confidence, r.Standing, r.BranchGroup, r.Verified)
	if err != nil {
		return fmt.Errorf("update relationship: %w", err)
	}
	return nil
}

func (s *Store) AddSource(ctx context.Context, src *model.Source) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO sources (relationship_id, url, title, kind, authority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, retrieved_at`,
		src.RelationshipID, src.URL, src.Title, src.Kind, src.Authority,
	).Scan(&src.ID, &src.RetrievedAt)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (s *Store) SourcesFor(ctx context.Context, relationshipID int64) ([]model.Source, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, relationship_id, url, title, kind, authority, retrieved_at
		FROM sources WHERE relationship_id = $1 ORDER BY id`, relationshipID)
	if err != nil {
		return nil, fmt.Errorf("sources for: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.RelationshipID, &src.URL, &src.Title,
			&src.Kind, &src.Authority, &src.RetrievedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
