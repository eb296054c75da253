package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProcessingStatus tracks the enrichment lifecycle of an item.
// Allowed transitions: pending -> completed, pending -> failed -> pending
// (retry on a later batch). Completed items are never reset automatically.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// StringSlice stores a []string as a JSON-encoded TEXT column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		s = StringSlice{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(src interface{}) error {
	if src == nil {
		*s = StringSlice{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", src)
	}
	if len(data) == 0 {
		*s = StringSlice{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Enrichment is the AI-generated sub-record attached to an item.
// Zero values mean "not yet processed"; Status carries the lifecycle.
type Enrichment struct {
	Relevance       int              `db:"ai_relevance" json:"relevance"`
	Quality         int              `db:"ai_quality" json:"quality"`
	Timeliness      int              `db:"ai_timeliness" json:"timeliness"`
	Overall         float64          `db:"ai_overall" json:"overall"`
	Category        string           `db:"ai_category" json:"aiCategory,omitempty"`
	TranslatedTitle string           `db:"translated_title" json:"translatedTitle,omitempty"`
	Summary         string           `db:"ai_summary" json:"aiSummary,omitempty"`
	Recommendation  string           `db:"recommendation" json:"recommendation,omitempty"`
	Keywords        StringSlice      `db:"ai_keywords" json:"keywords,omitempty"`
	Status          ProcessingStatus `db:"ai_status" json:"status"`
	ProcessedAt     *time.Time       `db:"ai_processed_at" json:"processedAt,omitempty"`
	Error           string           `db:"ai_error" json:"error,omitempty"`
}

// Item is the canonical aggregated content unit.
type Item struct {
	ID          string      `db:"id" json:"id"`
	Title       string      `db:"title" json:"title"`
	Summary     string      `db:"summary" json:"summary"`
	Content     string      `db:"content" json:"content,omitempty"`
	URL         string      `db:"url" json:"url"`
	Source      string      `db:"source" json:"source"`
	SourceID    string      `db:"source_id" json:"sourceId"`
	Category    string      `db:"category" json:"category"`
	Tags        StringSlice `db:"tags" json:"tags"`
	ImageURL    string      `db:"image_url" json:"imageUrl,omitempty"`
	Language    string      `db:"language" json:"language"`
	PublishedAt time.Time   `db:"published_at" json:"publishedAt"`
	FetchedAt   time.Time   `db:"fetched_at" json:"fetchedAt"`
	ViewCount   int64       `db:"view_count" json:"viewCount"`
	IsHot       bool        `db:"is_hot" json:"isHot"`
	IsFeatured  bool        `db:"is_featured" json:"isFeatured"`

	Enrichment
}

// ItemFilter narrows ListItems. Nil pointer fields are not applied.
type ItemFilter struct {
	Status   *ProcessingStatus
	Category string
	Source   string
	IsHot    *bool
	Limit    int
	Offset   int
}

// SourceState is the per-source crawl bookkeeping row.
type SourceState struct {
	SourceID    string     `db:"source_id"`
	LastCrawled *time.Time `db:"last_crawled"`
	LastSuccess bool       `db:"last_success"`
	ErrorCount  int        `db:"error_count"`
}

// Keys used in the crawl_state table.
const (
	StateLastCrawl      = "last_crawl"
	StateLastFullCrawl  = "last_full_crawl"
	StateLastEnrichment = "last_enrichment"
)
