package crawler

import (
	"context"
	"log"
	"time"

	"aiscope/internal/database"
	"aiscope/internal/enrich"
	"aiscope/internal/metrics"
	"aiscope/internal/sources"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

// Config sets the re-crawl cadence per priority tier and the size of the
// enrichment batch handed off after a crawl.
type Config struct {
	HighInterval   time.Duration
	MediumInterval time.Duration
	LowInterval    time.Duration
	HandoffLimit   int
}

// DefaultConfig matches the tiers' design cadence.
func DefaultConfig() Config {
	return Config{
		HighInterval:   30 * time.Minute,
		MediumInterval: 2 * time.Hour,
		LowInterval:    6 * time.Hour,
		HandoffLimit:   5,
	}
}

func (c Config) interval(tier sources.Priority) time.Duration {
	switch tier {
	case sources.PriorityHigh:
		return c.HighInterval
	case sources.PriorityMedium:
		return c.MediumInterval
	default:
		return c.LowInterval
	}
}

// Enricher runs the AI enrichment batch the scheduler hands off to after a
// crawl brings in fresh items.
type Enricher interface {
	ProcessPending(ctx context.Context, limit int) (enrich.BatchResult, error)
}

// Indexer receives every stored item so the search index stays current
// without a rebuild.
type Indexer interface {
	Add(item *database.Item)
}

// SourceError is one source's failure inside an otherwise successful lane run.
type SourceError struct {
	SourceID string `json:"sourceId"`
	Message  string `json:"message"`
}

// LaneResult summarizes one priority tier's crawl. Success is defined purely
// by the absence of errors: a lane whose sources all responded with empty
// feeds still succeeded.
type LaneResult struct {
	Lane           sources.Priority `json:"lane"`
	SourcesCrawled int              `json:"sourcesCrawled"`
	ItemsFetched   int              `json:"itemsFetched"`
	ItemsNew       int              `json:"itemsNew"`
	Duplicates     int              `json:"duplicates"`
	ErrorCount     int              `json:"errorCount"`
	Errors         []SourceError    `json:"errors,omitempty"`
}

// Success reports whether every source in the lane was crawled cleanly.
func (r LaneResult) Success() bool {
	return r.ErrorCount == 0
}

// RunResult is the outcome of a scheduler invocation spanning one or more lanes.
type RunResult struct {
	RunID      string       `json:"runId"`
	Type       string       `json:"type"`
	StartedAt  time.Time    `json:"startedAt"`
	DurationMS int64        `json:"durationMs"`
	Lanes      []LaneResult `json:"lanes"`
	ItemsNew   int          `json:"itemsNew"`
	ErrorCount int          `json:"errorCount"`
	Success    bool         `json:"success"`
	Enriched   int          `json:"enriched,omitempty"`
}

// Scheduler decides which tiers are due, fans their sources out over the
// fetch queue, and ingests the results serially so store writes never race.
type Scheduler struct {
	cfg      Config
	registry *sources.Registry
	db       *database.DB
	queue    *Queue
	fetcher  *Fetcher
	norm     *Normalizer
	enricher Enricher
	indexer  Indexer
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewScheduler wires the crawl pipeline together. enricher and indexer may be
// nil; the corresponding hand-offs are then skipped.
func NewScheduler(cfg Config, registry *sources.Registry, db *database.DB,
	queue *Queue, fetcher *Fetcher, norm *Normalizer,
	enricher Enricher, indexer Indexer, m *metrics.Metrics, logger *log.Logger) *Scheduler {
	if cfg.HandoffLimit <= 0 {
		cfg.HandoffLimit = DefaultConfig().HandoffLimit
	}
	if cfg.HighInterval <= 0 {
		cfg.HighInterval = DefaultConfig().HighInterval
	}
	if cfg.MediumInterval <= 0 {
		cfg.MediumInterval = DefaultConfig().MediumInterval
	}
	if cfg.LowInterval <= 0 {
		cfg.LowInterval = DefaultConfig().LowInterval
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		db:       db,
		queue:    queue,
		fetcher:  fetcher,
		norm:     norm,
		enricher: enricher,
		indexer:  indexer,
		metrics:  m,
		logger:   logger,
	}
}

// RunLane crawls every active source of one tier. Source failures are
// isolated and reported in the result; only store failures abort the run.
func (s *Scheduler) RunLane(ctx context.Context, tier sources.Priority) (LaneResult, error) {
	result := LaneResult{Lane: tier}
	srcs := s.registry.ByPriority(tier)
	if len(srcs) == 0 {
		return result, nil
	}

	// All fetches go out concurrently through the queue; results are then
	// ingested serially in catalog order.
	pending := make([]<-chan TaskResult, len(srcs))
	for i, src := range srcs {
		src := src
		pending[i] = s.queue.Submit(func(taskCtx context.Context) ([]*gofeed.Item, error) {
			return s.fetcher.Fetch(taskCtx, src)
		})
	}

	for i, src := range srcs {
		res := <-pending[i]
		if res.Err != nil {
			s.logger.Printf("Crawl failed for %s after %d attempts: %v", src.ID, res.Attempts, res.Err)
			result.ErrorCount++
			result.Errors = append(result.Errors, SourceError{SourceID: src.ID, Message: res.Err.Error()})
			s.metrics.CrawlError(src.ID)
			if err := s.db.UpdateSourceState(ctx, src.ID, false); err != nil {
				return result, err
			}
			continue
		}

		result.SourcesCrawled++
		result.ItemsFetched += len(res.Items)
		for _, entry := range res.Items {
			item, err := s.norm.Normalize(ctx, src, entry)
			if err != nil {
				return result, err
			}
			if item == nil {
				result.Duplicates++
				continue
			}
			if err := s.db.UpsertItem(ctx, item); err != nil {
				return result, err
			}
			if err := s.db.MarkSeen(ctx, DedupKey(entry)); err != nil {
				return result, err
			}
			if s.indexer != nil {
				s.indexer.Add(item)
			}
			result.ItemsNew++
			s.metrics.ItemIngested(src.ID)
		}
		if err := s.db.UpdateSourceState(ctx, src.ID, true); err != nil {
			return result, err
		}
	}

	s.metrics.CrawlRun(string(tier))
	s.logger.Printf("Lane %s: %d sources, %d fetched, %d new, %d duplicates, %d errors",
		tier, result.SourcesCrawled, result.ItemsFetched, result.ItemsNew,
		result.Duplicates, result.ErrorCount)
	return result, nil
}

// RunFull crawls all three tiers regardless of cadence.
func (s *Scheduler) RunFull(ctx context.Context) (RunResult, error) {
	run := s.newRun("full")
	for _, tier := range []sources.Priority{sources.PriorityHigh, sources.PriorityMedium, sources.PriorityLow} {
		lane, err := s.RunLane(ctx, tier)
		run.Lanes = append(run.Lanes, lane)
		if err != nil {
			return s.finishRun(ctx, run), err
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.db.SetCrawlStateValue(ctx, database.StateLastFullCrawl, now); err != nil {
		return s.finishRun(ctx, run), err
	}
	run = s.finishRun(ctx, run)
	s.handoff(ctx, &run)
	return run, nil
}

// RunTier crawls a single named tier on demand.
func (s *Scheduler) RunTier(ctx context.Context, tier sources.Priority) (RunResult, error) {
	run := s.newRun(string(tier))
	lane, err := s.RunLane(ctx, tier)
	run.Lanes = append(run.Lanes, lane)
	if err != nil {
		return s.finishRun(ctx, run), err
	}
	run = s.finishRun(ctx, run)
	if tier == sources.PriorityHigh || tier == sources.PriorityMedium {
		s.handoff(ctx, &run)
	}
	return run, nil
}

// RunAuto crawls only the tiers whose cadence has elapsed. Each tier's
// due-ness is judged by the bookkeeping of its representative source, so one
// cheap lookup answers for the whole tier. Fresh items from the high or
// medium tier trigger an enrichment batch.
func (s *Scheduler) RunAuto(ctx context.Context) (RunResult, error) {
	run := s.newRun("auto")
	now := time.Now().UTC()

	crawledFast := false
	for _, tier := range []sources.Priority{sources.PriorityHigh, sources.PriorityMedium, sources.PriorityLow} {
		due, err := s.tierDue(ctx, tier, now)
		if err != nil {
			return s.finishRun(ctx, run), err
		}
		if !due {
			continue
		}
		lane, err := s.RunLane(ctx, tier)
		run.Lanes = append(run.Lanes, lane)
		if err != nil {
			return s.finishRun(ctx, run), err
		}
		if tier == sources.PriorityHigh || tier == sources.PriorityMedium {
			crawledFast = true
		}
	}

	run = s.finishRun(ctx, run)
	if crawledFast {
		s.handoff(ctx, &run)
	}
	return run, nil
}

func (s *Scheduler) tierDue(ctx context.Context, tier sources.Priority, now time.Time) (bool, error) {
	rep, ok := s.registry.Representative(tier)
	if !ok {
		return false, nil
	}
	state, err := s.db.GetSourceState(ctx, rep.ID)
	if err != nil {
		return false, err
	}
	if state == nil || state.LastCrawled == nil {
		return true, nil
	}
	return now.Sub(*state.LastCrawled) >= s.cfg.interval(tier), nil
}

func (s *Scheduler) newRun(runType string) RunResult {
	return RunResult{
		RunID:     uuid.NewString(),
		Type:      runType,
		StartedAt: time.Now().UTC(),
	}
}

// finishRun aggregates lane results and stamps the shared last-crawl marker.
func (s *Scheduler) finishRun(ctx context.Context, run RunResult) RunResult {
	for _, lane := range run.Lanes {
		run.ItemsNew += lane.ItemsNew
		run.ErrorCount += lane.ErrorCount
	}
	run.Success = run.ErrorCount == 0
	run.DurationMS = time.Since(run.StartedAt).Milliseconds()
	if len(run.Lanes) > 0 {
		stamp := time.Now().UTC().Format(time.RFC3339)
		if err := s.db.SetCrawlStateValue(ctx, database.StateLastCrawl, stamp); err != nil {
			s.logger.Printf("Failed to record last crawl time: %v", err)
		}
	}
	return run
}

// handoff kicks an enrichment batch after a crawl. Enrichment failures never
// fail the crawl that triggered them.
func (s *Scheduler) handoff(ctx context.Context, run *RunResult) {
	if s.enricher == nil || run.ItemsNew == 0 {
		return
	}
	batch, err := s.enricher.ProcessPending(ctx, s.cfg.HandoffLimit)
	if err != nil {
		s.logger.Printf("Post-crawl enrichment failed: %v", err)
		return
	}
	run.Enriched = batch.Succeeded
	s.logger.Printf("Post-crawl enrichment: %d processed, %d succeeded, %d failed",
		batch.Processed, batch.Succeeded, batch.Failed)
}

// Status is the crawl pipeline's bookkeeping snapshot.
type Status struct {
	LastCrawl      string                 `json:"lastCrawl,omitempty"`
	LastFullCrawl  string                 `json:"lastFullCrawl,omitempty"`
	LastEnrichment string                 `json:"lastEnrichment,omitempty"`
	Items          database.ItemStats     `json:"items"`
	Sources        []database.SourceState `json:"sources"`
}

// Status reports stored crawl timestamps, item counts by enrichment state,
// and per-source bookkeeping.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	var status Status
	var err error
	if status.LastCrawl, err = s.db.CrawlStateValue(ctx, database.StateLastCrawl); err != nil {
		return status, err
	}
	if status.LastFullCrawl, err = s.db.CrawlStateValue(ctx, database.StateLastFullCrawl); err != nil {
		return status, err
	}
	if status.LastEnrichment, err = s.db.CrawlStateValue(ctx, database.StateLastEnrichment); err != nil {
		return status, err
	}
	if status.Items, err = s.db.Stats(ctx); err != nil {
		return status, err
	}
	if status.Sources, err = s.db.AllSourceStates(ctx); err != nil {
		return status, err
	}
	return status, nil
}
