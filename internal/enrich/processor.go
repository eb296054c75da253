package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"aiscope/internal/database"
	"aiscope/internal/metrics"
)

// Categories is the closed set the model must classify into. Anything else
// coming back from the model is coerced to "Other".
var Categories = []string{
	"AI/ML", "Security", "Engineering", "Tooling", "Open Source", "Opinion", "Other",
}

// minContentRunes is the threshold below which the item's page is fetched
// for more context before prompting.
const minContentRunes = 500

// Generator produces a completion for a prompt. Satisfied by *Client; tests
// substitute a canned implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Disabled stands in for the model when no credentials are configured.
// Every call fails, which leaves items in the retryable failed state.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", fmt.Errorf("enrichment disabled: no model credentials configured")
}

// PageFetcher supplies page text for items whose feed content was thin.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Indexer receives items whose stored copy changed, so search results pick
// up enrichment outcomes without waiting for a restart rebuild.
type Indexer interface {
	Add(item *database.Item)
}

// BatchResult summarizes one enrichment batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessorConfig bounds the enrichment batch processor.
type ProcessorConfig struct {
	Concurrency int // parallel model calls (default 3)
	MaxTokens   int // completion cap per item (default 800)
}

// Processor drives enrichment batches: select pending items, call the model
// for each with bounded parallelism, persist per-item outcomes.
type Processor struct {
	cfg     ProcessorConfig
	db      *database.DB
	gen     Generator
	pages   PageFetcher
	index   Indexer
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewProcessor wires a processor. pages may be nil to skip page fetching;
// index may be nil when no search index is kept.
func NewProcessor(cfg ProcessorConfig, db *database.DB, gen Generator,
	pages PageFetcher, index Indexer, m *metrics.Metrics, logger *log.Logger) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	return &Processor{cfg: cfg, db: db, gen: gen, pages: pages, index: index, metrics: m, logger: logger}
}

// payload is the JSON object the model is asked to return.
type payload struct {
	Relevance       int      `json:"relevance"`
	Quality         int      `json:"quality"`
	Timeliness      int      `json:"timeliness"`
	Category        string   `json:"category"`
	TranslatedTitle string   `json:"translatedTitle"`
	Summary         string   `json:"summary"`
	Recommendation  string   `json:"recommendation"`
	Keywords        []string `json:"keywords"`
}

// ProcessPending enriches up to limit pending or retryable items. Model and
// parse failures are recorded per item and never abort the batch; store
// failures do.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult
	items, err := p.db.PendingItems(ctx, limit)
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		return result, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, p.cfg.Concurrency)
		storeErr error
	)
	for i := range items {
		item := items[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.processOne(ctx, &item)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch {
			case err == nil:
				result.Succeeded++
				p.metrics.EnrichProcessed("completed")
			case isStoreError(err):
				if storeErr == nil {
					storeErr = err
				}
			default:
				result.Failed++
				p.metrics.EnrichProcessed("failed")
				p.logger.Printf("Enrichment failed for %s: %v", item.ID, err)
			}
		}()
	}
	wg.Wait()

	if storeErr != nil {
		return result, storeErr
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := p.db.SetCrawlStateValue(ctx, database.StateLastEnrichment, stamp); err != nil {
		return result, err
	}
	return result, nil
}

// storeFailure wraps database errors so the batch loop can tell them apart
// from per-item model failures.
type storeFailure struct{ err error }

func (e storeFailure) Error() string { return e.err.Error() }
func (e storeFailure) Unwrap() error { return e.err }

func isStoreError(err error) bool {
	_, ok := err.(storeFailure)
	return ok
}

// processOne runs the full enrichment of a single item. A returned non-store
// error has already been written to the item's failure fields.
func (p *Processor) processOne(ctx context.Context, item *database.Item) error {
	content := item.Content
	if utf8.RuneCountInString(content) < minContentRunes && p.pages != nil && item.URL != "" {
		if text, err := p.pages.FetchText(ctx, item.URL); err == nil && text != "" {
			content = text
		} else if err != nil {
			p.logger.Printf("Page fetch failed for %s, using feed content: %v", item.ID, err)
		}
	}

	raw, err := p.gen.Generate(ctx, buildPrompt(item, content), p.cfg.MaxTokens)
	if err != nil {
		return p.fail(ctx, item, fmt.Errorf("model call: %w", err))
	}

	parsed, err := parsePayload(raw)
	if err != nil {
		return p.fail(ctx, item, fmt.Errorf("parse model output: %w", err))
	}

	e := database.Enrichment{
		Relevance:       clampScore(parsed.Relevance),
		Quality:         clampScore(parsed.Quality),
		Timeliness:      clampScore(parsed.Timeliness),
		Category:        normalizeCategory(parsed.Category),
		TranslatedTitle: parsed.TranslatedTitle,
		Summary:         parsed.Summary,
		Recommendation:  parsed.Recommendation,
		Keywords:        parsed.Keywords,
	}
	e.Overall = Overall(e.Relevance, e.Quality, e.Timeliness)

	if err := p.db.SaveEnrichment(ctx, item.ID, e); err != nil {
		return storeFailure{err}
	}
	item.Enrichment = e
	item.Status = database.StatusCompleted
	now := time.Now().UTC()
	item.ProcessedAt = &now
	p.reindex(item)
	return nil
}

// fail records a per-item failure. If even that write fails, the store error
// takes precedence.
func (p *Processor) fail(ctx context.Context, item *database.Item, cause error) error {
	if err := p.db.MarkEnrichmentFailed(ctx, item.ID, cause.Error()); err != nil {
		return storeFailure{err}
	}
	item.Status = database.StatusFailed
	item.Error = cause.Error()
	p.reindex(item)
	return cause
}

// reindex pushes the item's new state into the search index so the indexed
// copy never lags the store inside a running process.
func (p *Processor) reindex(item *database.Item) {
	if p.index != nil {
		p.index.Add(item)
	}
}

// Overall combines the three scores with equal weight, rounded to one
// decimal place.
func Overall(relevance, quality, timeliness int) float64 {
	avg := float64(relevance+quality+timeliness) / 3
	return math.Round(avg*10) / 10
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	for _, known := range Categories {
		if strings.EqualFold(c, known) {
			return known
		}
	}
	return "Other"
}

// parsePayload decodes the model's JSON, tolerating a markdown code fence
// around it.
func parsePayload(raw string) (payload, error) {
	var out payload
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, err
	}
	return out, nil
}

// stripCodeFence removes a leading ```json (or bare ```) fence and its
// closing fence, returning the inner text.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func buildPrompt(item *database.Item, content string) string {
	var b strings.Builder
	b.WriteString("You are an editor for an AI industry news digest. Analyze the article below and respond with a single JSON object, no prose, with these fields:\n")
	b.WriteString(`  "relevance": integer 0-10, how relevant to AI/technology professionals` + "\n")
	b.WriteString(`  "quality": integer 0-10, depth and rigor of the writing` + "\n")
	b.WriteString(`  "timeliness": integer 0-10, how time-sensitive the news is` + "\n")
	fmt.Fprintf(&b, "  %q: one of %s\n", "category", strings.Join(Categories, ", "))
	b.WriteString(`  "translatedTitle": the title translated to Chinese` + "\n")
	b.WriteString(`  "summary": 2-3 sentence summary in Chinese` + "\n")
	b.WriteString(`  "recommendation": one sentence on who should read this and why, in Chinese` + "\n")
	b.WriteString(`  "keywords": up to 5 short keywords in English` + "\n\n")
	fmt.Fprintf(&b, "Title: %s\nSource: %s\nPublished: %s\n\n%s\n",
		item.Title, item.Source, item.PublishedAt.Format("2006-01-02"), content)
	return b.String()
}
