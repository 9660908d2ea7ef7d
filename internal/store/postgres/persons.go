package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

const personColumns = `id, name, aliases, kind, gender, era, birth_year, death_year,
	external_key, genesis_code, merged_into, researched, created_at, updated_at`

func scanPerson(row pgx.Row) (*model.Person, error) {
	var p model.Person
	err := row.Scan(&p.ID, &p.Name, &p.Aliases, &p.Kind, &p.Gender, &p.Era,
		&p.BirthYear, &p.DeathYear, &p.ExternalKey, &p.GenesisCode,
		&p.MergedInto, &p.Researched, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan person: %w", err)
	}
	return &p, nil
}

func (s *Store) CreatePerson(ctx context.Context, p *model.Person) error {
	if p.Aliases == nil {
		p.Aliases = []string{}
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO persons (name, aliases, kind, gender, era, birth_year, death_year,
			external_key, genesis_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Aliases, p.Kind, p.Gender, p.Era, p.BirthYear, p.DeathYear,
		p.ExternalKey, p.GenesisCode,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Store) Person(ctx context.Context, id int64) (*model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	// Retired records forward to their canonical person.
	for p.MergedInto != 0 {
		p, err = scanPerson(s.q.QueryRow(ctx,
			`SELECT `+personColumns+` FROM persons WHERE id = $1`, p.MergedInto))
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Store) PersonByExternalKey(ctx context.Context, key string) (*model.Person, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return scanPerson(s.q.QueryRow(ctx, `
		SELECT `+personColumns+` FROM persons
		WHERE external_key = $1 AND merged_into = 0`, key))
}

// foldedName collapses case and internal whitespace on the stored side,
// mirroring model.NormalizeName so both stores fold identically.
const foldedName = `regexp_replace(btrim(lower(%s)), '\s+', ' ', 'g')`

func (s *Store) PersonByNameEra(ctx context.Context, name string, birthYear *int, windowYears int) (*model.Person, error) {
	folded := model.NormalizeName(name)
	nameMatch := fmt.Sprintf(
		`(`+foldedName+` = $1 OR $1 = ANY (SELECT `+foldedName+` FROM unnest(aliases) a))`,
		"name", "a")
	if birthYear == nil {
		return scanPerson(s.q.QueryRow(ctx, `
			SELECT `+personColumns+` FROM persons
			WHERE merged_into = 0 AND birth_year IS NULL
			  AND `+nameMatch+`
			ORDER BY id LIMIT 1`, folded))
	}
	return scanPerson(s.q.QueryRow(ctx, `
		SELECT `+personColumns+` FROM persons
		WHERE merged_into = 0 AND birth_year IS NOT NULL
		  AND abs(birth_year - $2) <= $3
		  AND `+nameMatch+`
		ORDER BY id LIMIT 1`, folded, *birthYear, windowYears))
}

func (s *Store) UpdatePerson(ctx context.Context, p *model.Person) error {
	if p.Aliases == nil {
		p.Aliases = []string{}
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE persons SET name=$2, aliases=$3, kind=$4, gender=$5, era=$6,
			birth_year=$7, death_year=$8, external_key=$9, genesis_code=$10,
			merged_into=$11, researched=$12, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Name, p.Aliases, p.Kind, p.Gender, p.Era, p.BirthYear,
		p.DeathYear, p.ExternalKey, p.GenesisCode, p.MergedInto, p.Researched)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SearchPersons(ctx context.Context, query string, limit int) ([]model.Person, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+personColumns+` FROM persons
		WHERE merged_into = 0
		  AND (to_tsvector('english', name) @@ plainto_tsquery('english', $1)
		       OR lower(name) LIKE '%' || lower($1) || '%')
		ORDER BY researched DESC, id ASC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search persons: %w", err)
	}
	defer rows.Close()
	return collectPersons(rows)
}

func (s *Store) NextGenesisCode(ctx context.Context) (string, error) {
	var n int64
	if err := s.q.QueryRow(ctx, `SELECT nextval('genesis_code_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next genesis code: %w", err)
	}
	return fmt.Sprintf("G%d", n), nil
}

func (s *Store) RepointRelationships(ctx context.Context, fromID, toID int64) error {
	// Skip moves that would collide with an existing (child, parent, role)
	// row; the surviving duplicate already carries the evidence.
	_, err := s.q.Exec(ctx, `
		UPDATE relationships r SET child_id = $2
		WHERE r.child_id = $1 AND NOT EXISTS (
			SELECT 1 FROM relationships x
			WHERE x.child_id = $2 AND x.parent_id = r.parent_id AND x.role = r.role)`,
		fromID, toID)
	if err != nil {
		return fmt.Errorf("repoint child edges: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		UPDATE relationships r SET parent_id = $2
		WHERE r.parent_id = $1 AND NOT EXISTS (
			SELECT 1 FROM relationships x
			WHERE x.child_id = r.child_id AND x.parent_id = $2 AND x.role = r.role)`,
		fromID, toID)
	if err != nil {
		return fmt.Errorf("repoint parent edges: %w", err)
	}
	return nil
}

// qualify prefixes each column in a comma-separated list with a table alias
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func collectPersons(rows pgx.Rows) ([]model.Person, error) {
	var out []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO categories (name, icon, parent_id, display_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		c.Name, c.Icon, c.ParentID, c.DisplayOrder,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *Store) AddPersonToCategory(ctx context.Context, personID, categoryID int64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO person_categories (person_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, personID, categoryID)
	if err != nil {
		return fmt.Errorf("add person to category: %w", err)
	}
	return nil
}

func (s *Store) CategoriesFor(ctx context.Context, personID int64) ([]model.Category, error) {
	rows, err := s.q.Query(ctx, `
		SELECT c.id, c.name, c.icon, c.parent_id, c.display_order,
		       (SELECT count(*) FROM person_categories x WHERE x.category_id = c.id) AS person_count
		FROM categories c
		JOIN person_categories pc ON pc.category_id = c.id
		WHERE pc.person_id = $1
		ORDER BY c.display_order, c.name`, personID)
	if err != nil {
		return nil, fmt.Errorf("categories for person: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.ParentID, &c.DisplayOrder, &c.PersonCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.q.Query(ctx, `
		SELECT c.id, c.name, c.icon, c.parent_id, c.display_order,
		       count(pc.person_id) AS person_count
		FROM categories c
		LEFT JOIN person_categories pc ON pc.category_id = c.id
		GROUP BY c.id
		ORDER BY c.display_order, c.name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.ParentID, &c.DisplayOrder, &c.PersonCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) PersonsInCategory(ctx context.Context, categoryID int64, limit, offset int) ([]model.Person, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+qualify(personColumns, "p")+`
		FROM persons p
		JOIN person_categories pc ON pc.person_id = p.id
		WHERE pc.category_id = $1 AND p.merged_into = 0
		ORDER BY p.birth_year ASC NULLS LAST, p.name ASC
		LIMIT $2 OFFSET $3`, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("persons in category: %w", err)
	}
	defer rows.Close()
	return collectPersons(rows)
}
