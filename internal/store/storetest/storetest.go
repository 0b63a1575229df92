// Package storetest builds migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"labjobs/common/database"
	"labjobs/common/database/schema"
	"labjobs/common/database/schema/migrations"
	"labjobs/internal/models"
	"labjobs/internal/store"

	"go.uber.org/zap/zaptest"
)

// New returns a Store over a fresh, fully migrated in-memory database with
// the given labs registered.
func New(t *testing.T, sources ...models.Source) *store.Store {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	db, err := database.New(ctx, database.Options{Path: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := schema.NewMigrator(db.Conn(), logger).Up(ctx, migrations.All()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	s := store.New(db.Conn(), logger)
	if len(sources) > 0 {
		if err := s.EnsureSources(ctx, sources); err != nil {
			t.Fatalf("register test sources: %v", err)
		}
	}
	return s
}

// Seed upserts postings for a source at the given time inside one
// transaction, the way a successful cycle would.
func Seed(t *testing.T, s *store.Store, sourceID string, at time.Time, postings ...models.NormalizedPosting) {
	t.Helper()
	err := s.Update(context.Background(), func(tx *store.Tx) error {
		for _, p := range postings {
			if _, err := tx.UpsertPosting(context.Background(), sourceID, p.WithDefaults(), at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed postings: %v", err)
	}
}
