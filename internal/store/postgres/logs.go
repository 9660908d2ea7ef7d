package postgres

import (
	"context"
	"fmt"

	"github.com/ashvattha/ashvattha/internal/model"
)

func (s *Store) AppendActivity(ctx context.Context, e *model.ActivityEntry) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO activity_log (person_id, person_name, action, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, logged_at`,
		e.PersonID, e.PersonName, e.Action, e.Detail,
	).Scan(&e.ID, &e.LoggedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *Store) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, person_id, person_name, action, detail, logged_at
		FROM activity_log
		ORDER BY logged_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		if err := rows.Scan(&e.ID, &e.PersonID, &e.PersonName, &e.Action, &e.Detail, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendMergeLog(ctx context.Context, e *model.MergeLogEntry) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO merge_log (genesis_person_id, genesis_code, merged_into_id, confidence, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.GenesisPersonID, e.GenesisCode, e.MergedIntoID, e.Confidence, e.Kind,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert merge log: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{}
	err := s.q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM persons WHERE kind <> 'genesis' AND merged_into = 0),
			(SELECT count(*) FROM relationships),
			(SELECT count(*) FROM persons
			 WHERE genesis_code <> '' AND genesis_code <> $1 AND merged_into = 0),
			(SELECT count(*) FROM merge_log),
			(SELECT count(*) FROM research_queue WHERE status = 'pending'),
			(SELECT count(*) FROM research_queue WHERE status = 'failed')`,
		model.UniversalRootCode,
	).Scan(&st.TotalPersons, &st.TotalRelationships, &st.OpenGenesisBlocks,
		&st.MergesCompleted, &st.QueuePending, &st.QueueFailed)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if st.MergesCompleted+st.OpenGenesisBlocks > 0 {
		st.CoveragePct = float64(st.MergesCompleted) / float64(st.MergesCompleted+st.OpenGenesisBlocks) * 100
	}
	return st, nil
}
