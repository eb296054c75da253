package search

import (
	"log"
	"sort"
	"strings"
	"time"

	"aiscope/internal/database"
	"aiscope/internal/metrics"
)

// Options narrows and orders a search. Zero values mean "not applied".
type Options struct {
	Query        string
	Category     string
	Source       string
	Tag          string
	From         time.Time
	To           time.Time
	HotOnly      bool
	EnrichedOnly bool
	MinOverall   float64
	Sort         string // relevance (default), date, score, views
	Limit        int
	Offset       int
}

// Facets counts the filtered result set along its browsable dimensions.
type Facets struct {
	Categories map[string]int `json:"categories"`
	Sources    map[string]int `json:"sources"`
	Tags       map[string]int `json:"tags"`
	DateRanges map[string]int `json:"dateRanges"`
}

// Result is one page of hits plus aggregate counts over the whole filtered set.
type Result struct {
	Items   []Hit  `json:"items"`
	Total   int    `json:"total"`
	HasMore bool   `json:"hasMore"`
	Facets  Facets `json:"facets"`
}

// Hit is an item with its relevance score. Score is zero for browse-style
// queries with no search terms.
type Hit struct {
	database.Item
	Score float64 `json:"score,omitempty"`
}

// Service answers search and browse queries from the index. Filters and
// facets are computed after ranking, over the matched set.
type Service struct {
	index   *Index
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewService(index *Index, m *metrics.Metrics, logger *log.Logger) *Service {
	return &Service{index: index, metrics: m, logger: logger}
}

// Index exposes the underlying index for ingest wiring.
func (s *Service) Index() *Index {
	return s.index
}

// Search runs a query. An empty query string browses the whole corpus,
// newest first unless another sort is requested.
func (s *Service) Search(opts Options) Result {
	s.metrics.SearchQuery()

	var hits []Hit
	if strings.TrimSpace(opts.Query) == "" {
		for _, item := range s.index.All() {
			hits = append(hits, Hit{Item: item})
		}
		if opts.Sort == "" || opts.Sort == "relevance" {
			opts.Sort = "date"
		}
	} else {
		for _, scored := range s.index.Search(opts.Query) {
			hits = append(hits, Hit{Item: scored.Item, Score: scored.Score})
		}
	}

	filtered := hits[:0:0]
	for _, hit := range hits {
		if matches(hit.Item, opts) {
			filtered = append(filtered, hit)
		}
	}

	result := Result{
		Total:  len(filtered),
		Facets: buildFacets(filtered),
	}
	sortHits(filtered, opts.Sort)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	result.Items = filtered[offset:end]
	result.HasMore = end < len(filtered)
	if result.Items == nil {
		result.Items = []Hit{}
	}
	return result
}

func matches(item database.Item, opts Options) bool {
	if opts.Category != "" &&
		!strings.EqualFold(item.Category, opts.Category) &&
		!strings.EqualFold(item.Enrichment.Category, opts.Category) {
		return false
	}
	if opts.Source != "" && item.SourceID != opts.Source {
		return false
	}
	if opts.Tag != "" {
		found := false
		for _, tag := range item.Tags {
			if strings.EqualFold(tag, opts.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !opts.From.IsZero() && item.PublishedAt.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && item.PublishedAt.After(opts.To) {
		return false
	}
	if opts.HotOnly && !item.IsHot {
		return false
	}
	if opts.EnrichedOnly && item.Status != database.StatusCompleted {
		return false
	}
	if opts.MinOverall > 0 && item.Overall < opts.MinOverall {
		return false
	}
	return true
}

func sortHits(hits []Hit, order string) {
	less := func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	}
	switch order {
	case "date":
		less = func(i, j int) bool {
			if !hits[i].PublishedAt.Equal(hits[j].PublishedAt) {
				return hits[i].PublishedAt.After(hits[j].PublishedAt)
			}
			return hits[i].ID < hits[j].ID
		}
	case "score":
		less = func(i, j int) bool {
			if hits[i].Overall != hits[j].Overall {
				return hits[i].Overall > hits[j].Overall
			}
			return hits[i].ID < hits[j].ID
		}
	case "views":
		less = func(i, j int) bool {
			if hits[i].ViewCount != hits[j].ViewCount {
				return hits[i].ViewCount > hits[j].ViewCount
			}
			return hits[i].ID < hits[j].ID
		}
	}
	sort.SliceStable(hits, less)
}

func buildFacets(hits []Hit) Facets {
	facets := Facets{
		Categories: map[string]int{},
		Sources:    map[string]int{},
		Tags:       map[string]int{},
		DateRanges: map[string]int{},
	}
	now := time.Now().UTC()
	for _, hit := range hits {
		category := hit.Enrichment.Category
		if category == "" {
			category = hit.Item.Category
		}
		if category != "" {
			facets.Categories[category]++
		}
		facets.Sources[hit.SourceID]++
		for _, tag := range hit.Tags {
			facets.Tags[tag]++
		}
		facets.DateRanges[dateRange(now, hit.PublishedAt)]++
	}
	return facets
}

func dateRange(now, published time.Time) string {
	age := now.Sub(published)
	switch {
	case age <= 24*time.Hour:
		return "today"
	case age <= 7*24*time.Hour:
		return "week"
	case age <= 30*24*time.Hour:
		return "month"
	default:
		return "older"
	}
}
