package store

import (
	"context"
	"database/sql"
	"time"

	"labjobs/internal/errors"
	"labjobs/internal/models"
)

// EnsureSources inserts the given labs and refreshes their name and color.
// last_updated is left alone.
func (s *Store) EnsureSources(ctx context.Context, sources []models.Source) error {
	return s.Update(ctx, func(tx *Tx) error {
		for _, src := range sources {
			if _, err := tx.q.ExecContext(ctx, `
				INSERT INTO labs (id, name, color) VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					color = excluded.color
			`, src.ID, src.Name, src.Color); err != nil {
				return errors.Storage("upserting lab "+src.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	return s.direct().ListSources(ctx)
}

func (t *Tx) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT id, name, color, last_updated FROM labs ORDER BY id`)
	if err != nil {
		return nil, errors.Storage("querying labs", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var src models.Source
		var lastUpdated sql.NullInt64
		if err := rows.Scan(&src.ID, &src.Name, &src.Color, &lastUpdated); err != nil {
			return nil, errors.Storage("scanning lab", err)
		}
		if lastUpdated.Valid {
			ts := fromUnix(lastUpdated.Int64)
			src.LastUpdated = &ts
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating labs", err)
	}
	return sources, nil
}

// TouchSource records a successful reconciliation of the lab.
func (t *Tx) TouchSource(ctx context.Context, sourceID string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE labs SET last_updated = ? WHERE id = ?`, toUnix(at), sourceID)
	if err != nil {
		return errors.Storage("updating lab "+sourceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Storage("lab "+sourceID+" is not registered", nil)
	}
	return nil
}
