package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labjobs/internal/config"
	"labjobs/internal/errors"
	"labjobs/internal/models"
	"labjobs/internal/query"
	"labjobs/internal/store"
	"labjobs/internal/store/storetest"
	"labjobs/internal/trends"

	"go.uber.org/zap/zaptest"
)

var now = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

type syncFlag bool

func (s syncFlag) Running() bool { return bool(s) }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := storetest.New(t,
		models.Source{ID: "openai", Name: "OpenAI", Color: "#10a37f"},
		models.Source{ID: "anthropic", Name: "Anthropic", Color: "#6b5ce7"},
	)
	clock := func() time.Time { return now }
	svc := query.NewService(st, trends.NewCalculator(st, trends.WithClock(clock)), query.WithClock(clock))
	return NewServer(&config.Config{AppEnv: "test"}, svc, syncFlag(false), zaptest.NewLogger(t)), st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Syncing bool   `json:"syncing"`
	}
	decode(t, rec, &body)
	if body.Status != "ok" || body.Syncing {
		t.Errorf("body = %+v", body)
	}
}

func TestJobRoutes(t *testing.T) {
	srv, st := newTestServer(t)
	storetest.Seed(t, st, "openai", now.Add(-time.Hour),
		models.NormalizedPosting{ExternalID: "a1", Title: "Research Engineer", Team: "Research"})
	storetest.Seed(t, st, "anthropic", now.Add(-9*24*time.Hour),
		models.NormalizedPosting{ExternalID: "4001", Title: "Software Engineer", Team: "Engineering"})

	rec := get(t, srv.Handler(), "/api/jobs")
	var jobs []models.Posting
	decode(t, rec, &jobs)
	if rec.Code != http.StatusOK || len(jobs) != 2 || jobs[0].ID != "a1" || jobs[0].SourceName != "OpenAI" {
		t.Errorf("/api/jobs = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"lab_id":"openai"`) {
		t.Errorf("/api/jobs body lacks lab_id: %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/api/new-jobs")
	decode(t, rec, &jobs)
	if len(jobs) != 1 || jobs[0].ID != "a1" {
		t.Errorf("/api/new-jobs = %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/api/new-jobs?days=10")
	decode(t, rec, &jobs)
	if len(jobs) != 2 {
		t.Errorf("/api/new-jobs?days=10 = %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/api/removed-jobs")
	decode(t, rec, &jobs)
	if rec.Code != http.StatusOK || len(jobs) != 0 || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("/api/removed-jobs = %d %s", rec.Code, rec.Body.String())
	}
}

func TestDaysValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{"/api/new-jobs?days=abc", "/api/removed-jobs?days=0", "/api/new-jobs?days=-3"} {
		rec := get(t, srv.Handler(), target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rec.Code)
			continue
		}
		var body errorBody
		decode(t, rec, &body)
		if body.Error.Type != string(errors.ErrTypeInvalidInput) {
			t.Errorf("%s error = %+v", target, body.Error)
		}
	}
}

func TestAggregateRoutes(t *testing.T) {
	srv, st := newTestServer(t)
	storetest.Seed(t, st, "openai", now,
		models.NormalizedPosting{ExternalID: "1", Title: "A", Team: "Research", Location: "SF"},
		models.NormalizedPosting{ExternalID: "2", Title: "B", Team: "Research", Location: "London"},
		models.NormalizedPosting{ExternalID: "3", Title: "C", Team: "Policy", Location: "SF"},
	)

	var counts []models.FieldCount
	rec := get(t, srv.Handler(), "/api/teams")
	decode(t, rec, &counts)
	if len(counts) != 2 || counts[0] != (models.FieldCount{Value: "Research", Count: 2}) {
		t.Errorf("/api/teams = %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/api/locations")
	decode(t, rec, &counts)
	if len(counts) != 2 || counts[0] != (models.FieldCount{Value: "SF", Count: 2}) {
		t.Errorf("/api/locations = %s", rec.Body.String())
	}

	var labs []models.Source
	rec = get(t, srv.Handler(), "/api/labs")
	decode(t, rec, &labs)
	if len(labs) != 2 || labs[1].Color != "#10a37f" {
		t.Errorf("/api/labs = %s", rec.Body.String())
	}

	var records []models.TrendRecord
	rec = get(t, srv.Handler(), "/api/trends")
	decode(t, rec, &records)
	if len(records) != 2 || records[1].CurrentCount != 3 || records[1].WeekAgoCount != nil {
		t.Errorf("/api/trends = %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"percentage_change":null`) {
		t.Errorf("/api/trends should report a null percentage: %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/api/history")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("/api/history = %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv.Handler(), "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

type failingQueries struct {
	QueryService
}

func (failingQueries) ActivePostings(ctx context.Context) ([]models.Posting, error) {
	return nil, errors.Storage("querying postings", errors.Internal("database disk image is malformed", nil))
}

func TestStorageFailureIsOpaque(t *testing.T) {
	srv := NewServer(&config.Config{AppEnv: "test"}, failingQueries{}, syncFlag(true), zaptest.NewLogger(t))

	rec := get(t, srv.Handler(), "/api/jobs")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Error.Type != string(errors.ErrTypeStorage) || strings.Contains(body.Error.Message, "malformed") {
		t.Errorf("error = %+v", body.Error)
	}

	rec = get(t, srv.Handler(), "/health")
	if !strings.Contains(rec.Body.String(), `"syncing":true`) {
		t.Errorf("/health = %s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}
