package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labjobs/internal/errors"
	"labjobs/internal/models"
)

const postingColumns = `
	j.id, j.lab_id, j.title, j.team, j.location,
	COALESCE(j.type, ''), COALESCE(j.compensation, ''),
	j.first_seen, j.last_seen, j.is_active, l.name, l.color`

// groupable maps CountActiveByField's field names to columns.
var groupable = map[string]string{
	"team":     "team",
	"location": "location",
}

// UpsertPosting inserts p as a new active posting first seen at `at`, or
// refreshes the attributes of the existing one, marks it active and advances
// last_seen. first_seen is never changed. It reports whether a row was
// inserted.
func (t *Tx) UpsertPosting(ctx context.Context, sourceID string, p models.NormalizedPosting, at time.Time) (bool, error) {
	ts := toUnix(at)

	var firstSeen int64
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO jobs (id, lab_id, title, team, location, type, compensation, first_seen, last_seen, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id, lab_id) DO UPDATE SET
			title = excluded.title,
			team = excluded.team,
			location = excluded.location,
			type = excluded.type,
			compensation = excluded.compensation,
			last_seen = MAX(jobs.first_seen, excluded.last_seen),
			is_active = 1
		RETURNING first_seen
	`, p.ExternalID, sourceID, p.Title, p.Team, p.Location, p.EmploymentType, p.Compensation, ts, ts).Scan(&firstSeen)
	if err != nil {
		return false, errors.Storage(fmt.Sprintf("upserting posting %s/%s", sourceID, p.ExternalID), err)
	}
	return firstSeen == ts, nil
}

// ActivePostingIDs returns the external ids of the source's active postings.
func (t *Tx) ActivePostingIDs(ctx context.Context, sourceID string) (map[string]struct{}, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT id FROM jobs WHERE lab_id = ? AND is_active = 1`, sourceID)
	if err != nil {
		return nil, errors.Storage("querying active postings of "+sourceID, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Storage("scanning posting id", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating active postings", err)
	}
	return ids, nil
}

// DeactivatePostings flips is_active off for the given postings of a source.
// last_seen keeps the time the posting was last observed.
func (t *Tx) DeactivatePostings(ctx context.Context, sourceID string, ids []string) error {
	for _, id := range ids {
		if _, err := t.q.ExecContext(ctx,
			`UPDATE jobs SET is_active = 0 WHERE lab_id = ? AND id = ?`, sourceID, id); err != nil {
			return errors.Storage(fmt.Sprintf("deactivating posting %s/%s", sourceID, id), err)
		}
	}
	return nil
}

func (s *Store) GetPosting(ctx context.Context, sourceID, id string) (*models.Posting, error) {
	postings, err := s.direct().queryPostings(ctx, `j.lab_id = ? AND j.id = ?`, `j.id`, sourceID, id)
	if err != nil {
		return nil, err
	}
	if len(postings) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("posting %s/%s", sourceID, id), nil)
	}
	return &postings[0], nil
}

// ActivePostings lists active postings, newest first.
func (s *Store) ActivePostings(ctx context.Context) ([]models.Posting, error) {
	return s.direct().queryPostings(ctx, `j.is_active = 1`, `j.first_seen DESC, j.lab_id, j.id`)
}

// ActivePostingsSince lists active postings first seen at or after since.
func (s *Store) ActivePostingsSince(ctx context.Context, since time.Time) ([]models.Posting, error) {
	return s.direct().queryPostings(ctx, `j.is_active = 1 AND j.first_seen >= ?`,
		`j.first_seen DESC, j.lab_id, j.id`, toUnix(since))
}

// InactivePostingsSince lists inactive postings last seen at or after since.
func (s *Store) InactivePostingsSince(ctx context.Context, since time.Time) ([]models.Posting, error) {
	return s.direct().queryPostings(ctx, `j.is_active = 0 AND j.last_seen >= ?`,
		`j.last_seen DESC, j.lab_id, j.id`, toUnix(since))
}

func (t *Tx) queryPostings(ctx context.Context, where, orderBy string, args ...any) ([]models.Posting, error) {
	query := `SELECT ` + postingColumns + `
		FROM jobs j
		JOIN labs l ON l.id = j.lab_id
		WHERE ` + where + `
		ORDER BY ` + orderBy

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Storage("querying postings", err)
	}
	defer rows.Close()

	postings := make([]models.Posting, 0)
	for rows.Next() {
		var p models.Posting
		var firstSeen, lastSeen int64
		var active int
		if err := rows.Scan(&p.ID, &p.SourceID, &p.Title, &p.Team, &p.Location,
			&p.EmploymentType, &p.Compensation, &firstSeen, &lastSeen, &active,
			&p.SourceName, &p.SourceColor); err != nil {
			return nil, errors.Storage("scanning posting", err)
		}
		p.FirstSeen = fromUnix(firstSeen)
		p.LastSeen = fromUnix(lastSeen)
		p.IsActive = active == 1
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating postings", err)
	}
	return postings, nil
}

// ActiveCountsBySource counts active postings per lab. Labs without active
// postings are present with 0.
func (t *Tx) ActiveCountsBySource(ctx context.Context) (map[string]int, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT l.id, COUNT(j.id)
		FROM labs l
		LEFT JOIN jobs j ON j.lab_id = l.id AND j.is_active = 1
		GROUP BY l.id
	`)
	if err != nil {
		return nil, errors.Storage("counting active postings", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.Storage("scanning count", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating counts", err)
	}
	return counts, nil
}

// CountActiveByField groups active postings by team or location, largest
// group first.
func (s *Store) CountActiveByField(ctx context.Context, field string) ([]models.FieldCount, error) {
	column, ok := groupable[strings.ToLower(field)]
	if !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot group postings by %q", field), nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS n
		FROM jobs
		WHERE is_active = 1
		GROUP BY `+column+`
		ORDER BY n DESC, `+column+` ASC
	`)
	if err != nil {
		return nil, errors.Storage("grouping postings by "+column, err)
	}
	defer rows.Close()

	counts := make([]models.FieldCount, 0)
	for rows.Next() {
		var c models.FieldCount
		if err := rows.Scan(&c.Value, &c.Count); err != nil {
			return nil, errors.Storage("scanning group", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterating groups", err)
	}
	return counts, nil
}
