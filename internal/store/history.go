package store

import (
	"context"

	"labjobs/internal/errors"
	"labjobs/internal/models"
)

// PutHistory writes the day's count for a lab, replacing an earlier write for
// the same day.
func (t *Tx) PutHistory(ctx context.Context, rec models.HistoryRecord) error {
	if rec.JobCount < 0 {
		return errors.InvalidInput("job_count must not be negative", nil)
	}
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO job_history (date, lab_id, job_count) VALUES (?, ?, ?)
		ON CONFLICT(date, lab_id) DO UPDATE SET job_count = excluded.job_count
	`, rec.Date, rec.SourceID, rec.JobCount); err != nil {
		return errors.Storage("writing history for "+rec.SourceID, err)
	}
	return nil
}

// History returns every record, oldest day first.
func (s *Store) History(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.date, h.lab_id, h.job_count, l.name, l.color
		FROM job_history h
		JOIN labs l ON l.id = h.lab_id
		ORDER BY h.date ASC, h.lab_id ASC
	`)
	if err != nil {
		return nil, errors.Storage("querying history", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var r models.HistoryRecord
		if err := rows.Scan(&r.Date, &r.SourceID, &r.JobCount, &r.SourceName, &r.SourceColor); err != nil {
			return nil, errors.Storage("scanning history", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating history", err)
	}
	return records, nil
}

// LatestCountsOnOrBefore returns, per lab, the job_count of its most recent
// record dated on or before date. Labs with no such record are absent.
func (t *Tx) LatestCountsOnOrBefore(ctx context.Context, date string) (map[string]int, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT h.lab_id, h.job_count
		FROM job_history h
		JOIN (
			SELECT lab_id, MAX(date) AS date
			FROM job_history
			WHERE date <= ?
			GROUP BY lab_id
		) latest ON latest.lab_id = h.lab_id AND latest.date = h.date
	`, date)
	if err != nil {
		return nil, errors.Storage("querying history on or before "+date, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.Storage("scanning history count", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating history counts", err)
	}
	return counts, nil
}
