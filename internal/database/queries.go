package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const itemColumns = `id, title, summary, content, url, source, source_id, category, tags,
    image_url, language, published_at, fetched_at, view_count, is_hot, is_featured,
    ai_status, ai_relevance, ai_quality, ai_timeliness, ai_overall, ai_category,
    translated_title, ai_summary, recommendation, ai_keywords, ai_processed_at, ai_error`

// UpsertItem inserts an item or refreshes its mutable fields.
// published_at, view_count and the enrichment sub-record are never touched on
// conflict; a second item arriving with the same non-empty URL but a
// different id is dropped by the url uniqueness index. Link-less items carry
// url = '' and never collide with each other.
func (db *DB) UpsertItem(ctx context.Context, item *Item) error {
	if item.Status == "" {
		item.Status = StatusPending
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now().UTC()
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = item.FetchedAt
	}

	_, err := db.ExecContext(ctx, `
        INSERT INTO items (
            id, title, summary, content, url, source, source_id, category, tags,
            image_url, language, published_at, fetched_at, is_hot, is_featured, ai_status
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            summary = excluded.summary,
            content = CASE WHEN excluded.content != '' THEN excluded.content ELSE content END,
            tags = excluded.tags,
            image_url = excluded.image_url,
            fetched_at = MAX(fetched_at, excluded.fetched_at)
        ON CONFLICT(url) WHERE url != '' DO NOTHING`,
		item.ID, item.Title, item.Summary, item.Content, item.URL,
		item.Source, item.SourceID, item.Category, item.Tags,
		item.ImageURL, item.Language, item.PublishedAt.UTC(), item.FetchedAt.UTC(),
		item.IsHot, item.IsFeatured, item.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem fetches a single item by identifier. Returns nil when absent.
func (db *DB) GetItem(ctx context.Context, id string) (*Item, error) {
	var item Item
	err := db.GetContext(ctx, &item,
		"SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// ListItems returns items matching the filter, newest-published first.
func (db *DB) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	builder := sq.Select(itemColumns).
		From("items").
		OrderBy("published_at DESC", "id ASC")

	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"ai_status": string(*filter.Status)})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Or{
			sq.Eq{"category": filter.Category},
			sq.Eq{"ai_category": filter.Category},
		})
	}
	if filter.Source != "" {
		builder = builder.Where(sq.Eq{"source_id": filter.Source})
	}
	if filter.IsHot != nil {
		builder = builder.Where(sq.Eq{"is_hot": *filter.IsHot})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	items := []Item{}
	if err := db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// AllItems streams the whole corpus in insertion order, used for index rebuilds.
func (db *DB) AllItems(ctx context.Context) ([]Item, error) {
	items := []Item{}
	err := db.SelectContext(ctx, &items,
		"SELECT "+itemColumns+" FROM items ORDER BY fetched_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("all items: %w", err)
	}
	return items, nil
}

// PendingItems selects up to limit items awaiting enrichment (pending, or
// previously failed and eligible for retry), oldest-first so the order is
// deterministic across invocations.
func (db *DB) PendingItems(ctx context.Context, limit int) ([]Item, error) {
	items := []Item{}
	err := db.SelectContext(ctx, &items,
		"SELECT "+itemColumns+` FROM items
         WHERE ai_status IN ('pending', 'failed')
         ORDER BY fetched_at ASC, id ASC
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending items: %w", err)
	}
	return items, nil
}

// IncrementViewCount bumps the read counter for an item.
func (db *DB) IncrementViewCount(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE items SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment view count %s: %w", id, err)
	}
	return nil
}

// SetHot flags or unflags an item as hot.
func (db *DB) SetHot(ctx context.Context, id string, hot bool) error {
	_, err := db.ExecContext(ctx, "UPDATE items SET is_hot = ? WHERE id = ?", hot, id)
	return err
}

// SaveEnrichment marks an item completed and stores the enrichment fields.
// Completed items are left alone: the status guard enforces the
// pending/failed -> completed transition.
func (db *DB) SaveEnrichment(ctx context.Context, id string, e Enrichment) error {
	processedAt := time.Now().UTC()
	if e.ProcessedAt != nil {
		processedAt = e.ProcessedAt.UTC()
	}
	res, err := db.ExecContext(ctx, `
        UPDATE items SET
            ai_status = 'completed',
            ai_relevance = ?, ai_quality = ?, ai_timeliness = ?, ai_overall = ?,
            ai_category = ?, translated_title = ?, ai_summary = ?, recommendation = ?,
            ai_keywords = ?, ai_processed_at = ?, ai_error = ''
        WHERE id = ? AND ai_status != 'completed'`,
		e.Relevance, e.Quality, e.Timeliness, e.Overall,
		e.Category, e.TranslatedTitle, e.Summary, e.Recommendation,
		e.Keywords, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("save enrichment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save enrichment %s: item missing or already completed", id)
	}
	return nil
}

// MarkEnrichmentFailed records a per-item enrichment failure. The original
// fields are untouched; only the status and error message change.
func (db *DB) MarkEnrichmentFailed(ctx context.Context, id, message string) error {
	_, err := db.ExecContext(ctx, `
        UPDATE items SET ai_status = 'failed', ai_error = ?
        WHERE id = ? AND ai_status != 'completed'`,
		message, id)
	if err != nil {
		return fmt.Errorf("mark enrichment failed %s: %w", id, err)
	}
	return nil
}

// ItemStats summarizes the store for status endpoints.
type ItemStats struct {
	Total     int `db:"total"`
	Completed int `db:"completed"`
	Pending   int `db:"pending"`
	Failed    int `db:"failed"`
}

func (db *DB) Stats(ctx context.Context) (ItemStats, error) {
	var stats ItemStats
	err := db.GetContext(ctx, &stats, `
        SELECT COUNT(*) AS total,
               COALESCE(SUM(CASE WHEN ai_status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
               COALESCE(SUM(CASE WHEN ai_status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
               COALESCE(SUM(CASE WHEN ai_status = 'failed' THEN 1 ELSE 0 END), 0) AS failed
        FROM items`)
	if err != nil {
		return ItemStats{}, fmt.Errorf("item stats: %w", err)
	}
	return stats, nil
}

// HasSeen reports whether a dedup key was already recorded.
func (db *DB) HasSeen(ctx context.Context, key string) (bool, error) {
	var n int
	err := db.GetContext(ctx, &n,
		"SELECT COUNT(1) FROM seen_urls WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records a dedup key. Racing inserts of the same key are harmless:
// INSERT OR IGNORE makes the second writer a no-op.
func (db *DB) MarkSeen(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seen_urls (key) VALUES (?)", key)
	if err != nil {
		return fmt.Errorf("dedup insert: %w", err)
	}
	return nil
}

// CrawlStateValue reads a process-wide crawl timestamp. Absent keys return
// the empty string, not an error.
func (db *DB) CrawlStateValue(ctx context.Context, key string) (string, error) {
	var value string
	err := db.GetContext(ctx, &value,
		"SELECT value FROM crawl_state WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("crawl state %s: %w", key, err)
	}
	return value, nil
}

// SetCrawlStateValue stores a process-wide crawl timestamp.
func (db *DB) SetCrawlStateValue(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO crawl_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set crawl state %s: %w", key, err)
	}
	return nil
}

// GetSourceState returns the bookkeeping row for a source, or nil if the
// source has never been crawled.
func (db *DB) GetSourceState(ctx context.Context, sourceID string) (*SourceState, error) {
	var state SourceState
	err := db.GetContext(ctx, &state,
		"SELECT source_id, last_crawled, last_success, error_count FROM source_state WHERE source_id = ?",
		sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source state %s: %w", sourceID, err)
	}
	return &state, nil
}

// AllSourceStates returns bookkeeping for every source that has been crawled.
func (db *DB) AllSourceStates(ctx context.Context) ([]SourceState, error) {
	states := []SourceState{}
	err := db.SelectContext(ctx, &states,
		"SELECT source_id, last_crawled, last_success, error_count FROM source_state ORDER BY source_id")
	if err != nil {
		return nil, fmt.Errorf("source states: %w", err)
	}
	return states, nil
}

// UpdateSourceState records a crawl attempt. The consecutive error count
// resets on success and increments on failure.
func (db *DB) UpdateSourceState(ctx context.Context, sourceID string, success bool) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
        INSERT INTO source_state (source_id, last_crawled, last_success, error_count, updated_at)
        VALUES (?, ?, ?, CASE WHEN ? THEN 0 ELSE 1 END, CURRENT_TIMESTAMP)
        ON CONFLICT(source_id) DO UPDATE SET
            last_crawled = excluded.last_crawled,
            last_success = excluded.last_success,
            error_count = CASE WHEN excluded.last_success THEN 0 ELSE error_count + 1 END,
            updated_at = CURRENT_TIMESTAMP`,
		sourceID, now, success, success)
	if err != nil {
		return fmt.Errorf("update source state %s: %w", sourceID, err)
	}
	return nil
}
