package sources

import (
	"fmt"

	"labjobs/common/cache"
	"labjobs/internal/config"

	"go.uber.org/zap"
)

// Catalog lists the built-in sources in polling order.
func Catalog(cfg *config.Config) []Entry {
	client := NewHTTPClient(cfg.FetchTimeout)
	return []Entry{
		{
			ID:      "openai",
			Name:    "OpenAI",
			Color:   "#10a37f",
			Adapter: NewAshbyAdapter(client, "openai"),
		},
		{
			ID:      "anthropic",
			Name:    "Anthropic",
			Color:   "#6b5ce7",
			Adapter: NewGreenhouseAdapter(client, "anthropic"),
		},
	}
}

// NewRegistryFromConfig builds the registry from the catalog, keeping only
// cfg.Sources when set and fronting every adapter with c when it is non-nil.
func NewRegistryFromConfig(cfg *config.Config, c cache.Cache, logger *zap.Logger) (*Registry, error) {
	catalog := Catalog(cfg)

	selected := catalog
	if len(cfg.Sources) > 0 {
		byID := make(map[string]Entry, len(catalog))
		for _, e := range catalog {
			byID[e.ID] = e
		}
		selected = selected[:0:0]
		for _, id := range cfg.Sources {
			e, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("unknown source %q", id)
			}
			selected = append(selected, e)
		}
	}

	if c != nil {
		for i := range selected {
			selected[i].Adapter = WithCache(selected[i].Adapter, selected[i].ID, c, cfg.CacheTTL, logger)
		}
	}

	logger.Info("source registry built", zap.Int("sources", len(selected)))
	return NewRegistry(selected...)
}
