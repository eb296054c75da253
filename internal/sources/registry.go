// Package sources holds the curated catalog of content sources and the
// read-only views the crawler schedules from.
package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Priority is the re-crawl tier of a source.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Type classifies where a source sits in the ecosystem.
type Type string

const (
	TypeOfficial  Type = "official"
	TypeMedia     Type = "media"
	TypeAcademic  Type = "academic"
	TypeCommunity Type = "community"
)

// Source describes a single feed endpoint.
type Source struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	FeedURL  string   `yaml:"feedUrl" json:"feedUrl"`
	SiteURL  string   `yaml:"siteUrl" json:"siteUrl"`
	Language string   `yaml:"language" json:"language"`
	Category string   `yaml:"category" json:"category"`
	Priority Priority `yaml:"priority" json:"priority"`
	Type     Type     `yaml:"type" json:"type"`
	Active   bool     `yaml:"active" json:"active"`
}

// Stats is the aggregate breakdown of the catalog.
type Stats struct {
	Total      int            `json:"total"`
	ByLanguage map[string]int `json:"byLanguage"`
	ByPriority map[string]int `json:"byPriority"`
	ByType     map[string]int `json:"byType"`
}

// Registry is a read-only filtered view over the static catalog.
// It is configured once at startup and never mutated afterwards; the
// crawler keeps its per-source bookkeeping in the database, not here.
type Registry struct {
	sources []Source
	byID    map[string]Source
}

// NewRegistry builds a registry from a catalog slice.
func NewRegistry(catalog []Source) *Registry {
	byID := make(map[string]Source, len(catalog))
	for _, s := range catalog {
		byID[s.ID] = s
	}
	return &Registry{sources: catalog, byID: byID}
}

// NewDefaultRegistry returns the built-in curated catalog.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultCatalog())
}

// LoadCatalogFile reads a YAML source catalog, replacing the default one.
func LoadCatalogFile(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var catalog struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(catalog.Sources) == 0 {
		return nil, fmt.Errorf("catalog %s contains no sources", path)
	}
	return catalog.Sources, nil
}

// Get returns the source with the given id, or false.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns every source in catalog order.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Active returns every active source in catalog order.
func (r *Registry) Active() []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// ByPriority returns the active sources in a tier. Unknown tiers yield an
// empty slice, never an error.
func (r *Registry) ByPriority(tier Priority) []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Active && s.Priority == tier {
			out = append(out, s)
		}
	}
	return out
}

// ByType returns the active sources of a given type.
func (r *Registry) ByType(t Type) []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Active && s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Representative returns the source whose bookkeeping stands in for a whole
// tier in scheduling decisions: the first active source of the tier in
// catalog order.
func (r *Registry) Representative(tier Priority) (Source, bool) {
	for _, s := range r.sources {
		if s.Active && s.Priority == tier {
			return s, true
		}
	}
	return Source{}, false
}

// Stats aggregates the catalog breakdown.
func (r *Registry) Stats() Stats {
	stats := Stats{
		Total:      len(r.sources),
		ByLanguage: map[string]int{},
		ByPriority: map[string]int{},
		ByType:     map[string]int{},
	}
	for _, s := range r.sources {
		stats.ByLanguage[s.Language]++
		stats.ByPriority[string(s.Priority)]++
		stats.ByType[string(s.Type)]++
	}
	return stats
}
