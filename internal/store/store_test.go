package store_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"labjobs/internal/errors"
	"labjobs/internal/models"
	"labjobs/internal/store"
	"labjobs/internal/store/storetest"
)

var (
	labA = models.Source{ID: "alpha", Name: "Alpha", Color: "#111111"}
	labB = models.Source{ID: "beta", Name: "Beta", Color: "#222222"}

	t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
)

func posting(id, title string) models.NormalizedPosting {
	return models.NormalizedPosting{ExternalID: id, Title: title}.WithDefaults()
}

func TestUpsertPostingInsertThenUpdate(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()

	var inserted bool
	err := s.Update(ctx, func(tx *store.Tx) error {
		var err error
		inserted, err = tx.UpsertPosting(ctx, labA.ID, posting("1", "Engineer"), t0)
		return err
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !inserted {
		t.Error("first upsert reported an update, want insert")
	}

	t1 := t0.Add(24 * time.Hour)
	changed := posting("1", "Senior Engineer")
	changed.Team = "Research"
	err = s.Update(ctx, func(tx *store.Tx) error {
		var err error
		inserted, err = tx.UpsertPosting(ctx, labA.ID, changed, t1)
		return err
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if inserted {
		t.Error("second upsert reported an insert, want update")
	}

	got, err := s.GetPosting(ctx, labA.ID, "1")
	if err != nil {
		t.Fatalf("GetPosting() error = %v", err)
	}
	if got.Title != "Senior Engineer" || got.Team != "Research" {
		t.Errorf("attributes = %q/%q, want updated", got.Title, got.Team)
	}
	if !got.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, t0)
	}
	if !got.LastSeen.Equal(t1) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, t1)
	}
	if got.SourceName != "Alpha" || got.SourceColor != "#111111" {
		t.Errorf("source join = %q/%q", got.SourceName, got.SourceColor)
	}
}

func TestUpsertPostingKeepsLastSeenAfterFirstSeen(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()
	storetest.Seed(t, s, labA.ID, t0, posting("1", "Engineer"))

	// A clock that moved backwards must not produce last_seen < first_seen.
	storetest.Seed(t, s, labA.ID, t0.Add(-time.Hour), posting("1", "Engineer"))

	got, err := s.GetPosting(ctx, labA.ID, "1")
	if err != nil {
		t.Fatalf("GetPosting() error = %v", err)
	}
	if got.LastSeen.Before(got.FirstSeen) {
		t.Errorf("LastSeen %v before FirstSeen %v", got.LastSeen, got.FirstSeen)
	}
}

func TestDeactivatePostingsKeepsLastSeen(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()
	storetest.Seed(t, s, labA.ID, t0, posting("1", "a"), posting("2", "b"))

	err := s.Update(ctx, func(tx *store.Tx) error {
		return tx.DeactivatePostings(ctx, labA.ID, []string{"2"})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := s.GetPosting(ctx, labA.ID, "2")
	if err != nil {
		t.Fatalf("GetPosting() error = %v", err)
	}
	if got.IsActive {
		t.Error("posting 2 still active")
	}
	if !got.LastSeen.Equal(t0) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, t0)
	}

	var ids map[string]struct{}
	_ = s.View(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = tx.ActivePostingIDs(ctx, labA.ID)
		return err
	})
	if _, ok := ids["1"]; !ok || len(ids) != 1 {
		t.Errorf("ActivePostingIDs() = %v, want only 1", ids)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()
	boom := stderrors.New("boom")

	err := s.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.UpsertPosting(ctx, labA.ID, posting("1", "a"), t0); err != nil {
			return err
		}
		if err := tx.PutHistory(ctx, models.HistoryRecord{Date: "2026-10-01", SourceID: labA.ID, JobCount: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, errors.ErrTypeStorage) {
		t.Errorf("Update() error = %v, want STORAGE", err)
	}
	if !stderrors.Is(err, boom) {
		t.Errorf("Update() error = %v, want it to wrap the cause", err)
	}

	if _, err := s.GetPosting(ctx, labA.ID, "1"); !errors.Is(err, errors.ErrTypeNotFound) {
		t.Errorf("GetPosting() error = %v, want NOT_FOUND after rollback", err)
	}
	history, err := s.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History() = %v, want empty after rollback", history)
	}
}

func TestUpsertPostingUnknownSourceFails(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *store.Tx) error {
		_, err := tx.UpsertPosting(ctx, "missing", posting("1", "a"), t0)
		return err
	})
	if !errors.Is(err, errors.ErrTypeStorage) {
		t.Errorf("Update() error = %v, want STORAGE from the foreign key", err)
	}
}

func TestPutHistoryReplacesSameDay(t *testing.T) {
	s := storetest.New(t, labA, labB)
	ctx := context.Background()

	writes := []models.HistoryRecord{
		{Date: "2026-10-02", SourceID: labA.ID, JobCount: 5},
		{Date: "2026-10-01", SourceID: labA.ID, JobCount: 3},
		{Date: "2026-10-02", SourceID: labA.ID, JobCount: 7},
		{Date: "2026-10-02", SourceID: labB.ID, JobCount: 1},
	}
	for _, rec := range writes {
		rec := rec
		if err := s.Update(ctx, func(tx *store.Tx) error { return tx.PutHistory(ctx, rec) }); err != nil {
			t.Fatalf("PutHistory(%+v) error = %v", rec, err)
		}
	}

	history, err := s.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []models.HistoryRecord{
		{Date: "2026-10-01", SourceID: labA.ID, JobCount: 3, SourceName: "Alpha", SourceColor: "#111111"},
		{Date: "2026-10-02", SourceID: labA.ID, JobCount: 7, SourceName: "Alpha", SourceColor: "#111111"},
		{Date: "2026-10-02", SourceID: labB.ID, JobCount: 1, SourceName: "Beta", SourceColor: "#222222"},
	}
	if len(history) != len(want) {
		t.Fatalf("History() = %+v, want %+v", history, want)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("History()[%d] = %+v, want %+v", i, history[i], want[i])
		}
	}
}

func TestPutHistoryRejectsNegativeCount(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *store.Tx) error {
		return tx.PutHistory(ctx, models.HistoryRecord{Date: "2026-10-01", SourceID: labA.ID, JobCount: -1})
	})
	if !errors.Is(err, errors.ErrTypeInvalidInput) {
		t.Errorf("PutHistory() error = %v, want INVALID_INPUT", err)
	}
}

func TestLatestCountsOnOrBefore(t *testing.T) {
	s := storetest.New(t, labA, labB)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *store.Tx) error {
		for _, rec := range []models.HistoryRecord{
			{Date: "2026-09-20", SourceID: labA.ID, JobCount: 10},
			{Date: "2026-09-24", SourceID: labA.ID, JobCount: 12},
			{Date: "2026-09-30", SourceID: labA.ID, JobCount: 20},
			{Date: "2026-09-28", SourceID: labB.ID, JobCount: 4},
		} {
			if err := tx.PutHistory(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	var counts map[string]int
	err = s.View(ctx, func(tx *store.Tx) error {
		var err error
		counts, err = tx.LatestCountsOnOrBefore(ctx, "2026-09-24")
		return err
	})
	if err != nil {
		t.Fatalf("LatestCountsOnOrBefore() error = %v", err)
	}
	if counts[labA.ID] != 12 {
		t.Errorf("alpha = %d, want 12", counts[labA.ID])
	}
	if _, ok := counts[labB.ID]; ok {
		t.Errorf("beta present = %d, want absent", counts[labB.ID])
	}
}

func TestPostingWindows(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()
	now := t0.Add(10 * 24 * time.Hour)

	storetest.Seed(t, s, labA.ID, t0, posting("old", "old"), posting("gone", "gone"))
	storetest.Seed(t, s, labA.ID, now.Add(-2*24*time.Hour), posting("old", "old"))
	storetest.Seed(t, s, labA.ID, now, posting("fresh", "fresh"))
	err := s.Update(ctx, func(tx *store.Tx) error {
		return tx.DeactivatePostings(ctx, labA.ID, []string{"gone"})
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := s.ActivePostings(ctx)
	if err != nil {
		t.Fatalf("ActivePostings() error = %v", err)
	}
	if len(active) != 2 || active[0].ID != "fresh" || active[1].ID != "old" {
		t.Errorf("ActivePostings() = %+v, want fresh then old", active)
	}

	fresh, err := s.ActivePostingsSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ActivePostingsSince() error = %v", err)
	}
	if len(fresh) != 1 || fresh[0].ID != "fresh" {
		t.Errorf("ActivePostingsSince() = %+v, want only fresh", fresh)
	}

	removed, err := s.InactivePostingsSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("InactivePostingsSince() error = %v", err)
	}
	if len(removed) != 1 || removed[0].ID != "gone" {
		t.Errorf("InactivePostingsSince() = %+v, want only gone", removed)
	}

	none, err := s.InactivePostingsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("InactivePostingsSince() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("InactivePostingsSince() = %+v, want empty", none)
	}
}

func TestCountActiveByField(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()

	mk := func(id, team, location string) models.NormalizedPosting {
		p := posting(id, "role "+id)
		p.Team, p.Location = team, location
		return p
	}
	storetest.Seed(t, s, labA.ID, t0,
		mk("1", "Research", "SF"),
		mk("2", "Research", "London"),
		mk("3", "Applied", "SF"),
		mk("4", "Policy", "SF"),
	)

	teams, err := s.CountActiveByField(ctx, "team")
	if err != nil {
		t.Fatalf("CountActiveByField(team) error = %v", err)
	}
	want := []models.FieldCount{{Value: "Research", Count: 2}, {Value: "Applied", Count: 1}, {Value: "Policy", Count: 1}}
	if len(teams) != len(want) {
		t.Fatalf("teams = %+v, want %+v", teams, want)
	}
	for i := range want {
		if teams[i] != want[i] {
			t.Errorf("teams[%d] = %+v, want %+v", i, teams[i], want[i])
		}
	}

	locations, err := s.CountActiveByField(ctx, "location")
	if err != nil {
		t.Fatalf("CountActiveByField(location) error = %v", err)
	}
	if locations[0] != (models.FieldCount{Value: "SF", Count: 3}) {
		t.Errorf("locations[0] = %+v, want SF/3", locations[0])
	}

	if _, err := s.CountActiveByField(ctx, "title; DROP TABLE jobs"); !errors.Is(err, errors.ErrTypeInvalidInput) {
		t.Errorf("CountActiveByField(bad) error = %v, want INVALID_INPUT", err)
	}
}

func TestSourcesLifecycle(t *testing.T) {
	s := storetest.New(t, labA)
	ctx := context.Background()

	renamed := labA
	renamed.Name = "Alpha Labs"
	if err := s.EnsureSources(ctx, []models.Source{renamed, labB}); err != nil {
		t.Fatalf("EnsureSources() error = %v", err)
	}

	if err := s.Update(ctx, func(tx *store.Tx) error { return tx.TouchSource(ctx, labA.ID, t0) }); err != nil {
		t.Fatalf("TouchSource() error = %v", err)
	}
	if err := s.Update(ctx, func(tx *store.Tx) error { return tx.TouchSource(ctx, "missing", t0) }); !errors.Is(err, errors.ErrTypeStorage) {
		t.Errorf("TouchSource(missing) error = %v, want STORAGE", err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("ListSources() = %+v, want 2 labs", sources)
	}
	if sources[0].Name != "Alpha Labs" {
		t.Errorf("Name = %q, want refreshed name", sources[0].Name)
	}
	if sources[0].LastUpdated == nil || !sources[0].LastUpdated.Equal(t0) {
		t.Errorf("LastUpdated = %v, want %v", sources[0].LastUpdated, t0)
	}
	if sources[1].LastUpdated != nil {
		t.Errorf("beta LastUpdated = %v, want nil", sources[1].LastUpdated)
	}
}

func TestActiveCountsBySourceIncludesEmptyLabs(t *testing.T) {
	s := storetest.New(t, labA, labB)
	ctx := context.Background()
	storetest.Seed(t, s, labA.ID, t0, posting("1", "a"), posting("2", "b"))

	var counts map[string]int
	if err := s.View(ctx, func(tx *store.Tx) error {
		var err error
		counts, err = tx.ActiveCountsBySource(ctx)
		return err
	}); err != nil {
		t.Fatalf("ActiveCountsBySource() error = %v", err)
	}
	if counts[labA.ID] != 2 {
		t.Errorf("alpha = %d, want 2", counts[labA.ID])
	}
	if n, ok := counts[labB.ID]; !ok || n != 0 {
		t.Errorf("beta = %d (present %v), want 0 present", n, ok)
	}
}
