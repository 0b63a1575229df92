// Package sources defines the source adapter contract and the registry of
// job boards polled by the reconciliation engine.
package sources

import (
	"context"
	"fmt"

	"labjobs/internal/models"
)

// Adapter fetches a source's listings and normalizes them. Transform must not
// perform I/O.
type Adapter interface {
	Fetch(ctx context.Context) (models.RawPayload, error)
	Transform(payload models.RawPayload) ([]models.NormalizedPosting, error)
}

// Entry binds a source's display metadata to its adapter.
type Entry struct {
	ID      string
	Name    string
	Color   string
	Adapter Adapter
}

func (e Entry) Source() models.Source {
	return models.Source{ID: e.ID, Name: e.Name, Color: e.Color}
}

// Registry is an ordered lookup table of entries, built once at startup.
type Registry struct {
	order []string
	byID  map[string]Entry
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{byID: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("source with empty id")
		}
		if e.Adapter == nil {
			return nil, fmt.Errorf("source %q has no adapter", e.ID)
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("source %q registered twice", e.ID)
		}
		r.order = append(r.order, e.ID)
		r.byID[e.ID] = e
	}
	return r, nil
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.byID[id])
	}
	return entries
}

func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Sources returns the labs rows to seed the store with.
func (r *Registry) Sources() []models.Source {
	sources := make([]models.Source, 0, len(r.order))
	for _, e := range r.Entries() {
		sources = append(sources, e.Source())
	}
	return sources
}
