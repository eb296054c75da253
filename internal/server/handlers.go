package server

import (
	"net/http"
	"strconv"
	"time"

	"aiscope/internal/database"
	"aiscope/internal/search"
	"aiscope/internal/sources"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCrawl triggers a crawl run. The type parameter selects the scope:
// auto (default), full, one of the priority tiers, or ai for an
// enrichment-only pass.
func (s *Server) handleCrawl(c *gin.Context) {
	ctx := c.Request.Context()
	runType := c.DefaultQuery("type", "auto")

	switch runType {
	case "auto":
		run, err := s.scheduler.RunAuto(ctx)
		s.respondRun(c, run, err)
	case "full":
		run, err := s.scheduler.RunFull(ctx)
		s.respondRun(c, run, err)
	case "high", "medium", "low":
		run, err := s.scheduler.RunTier(ctx, sources.Priority(runType))
		s.respondRun(c, run, err)
	case "ai", "enrich":
		limit := intQuery(c, "limit", 5, 50)
		batch, err := s.processor.ProcessPending(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": batch})
			return
		}
		c.JSON(http.StatusOK, batch)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown crawl type: " + runType})
	}
}

func (s *Server) respondRun(c *gin.Context, run interface{}, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleCrawlStatus(c *gin.Context) {
	status, err := s.scheduler.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleEnrich(c *gin.Context) {
	limit := intQuery(c, "limit", 10, 100)
	batch, err := s.processor.ProcessPending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": batch})
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleSearch(c *gin.Context) {
	opts := search.Options{
		Query:        c.Query("q"),
		Category:     c.Query("category"),
		Source:       c.Query("source"),
		Tag:          c.Query("tag"),
		HotOnly:      c.Query("hot") == "true",
		EnrichedOnly: c.Query("enriched") == "true",
		Sort:         c.Query("sort"),
		Limit:        intQuery(c, "limit", 20, 100),
		Offset:       intQuery(c, "offset", 0, 10000),
	}
	if v := c.Query("minScore"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MinOverall = f
		}
	}
	if t, ok := timeQuery(c, "from"); ok {
		opts.From = t
	}
	if t, ok := timeQuery(c, "to"); ok {
		opts.To = t
	}
	c.JSON(http.StatusOK, s.searcher.Search(opts))
}

func (s *Server) handleListItems(c *gin.Context) {
	filter := database.ItemFilter{
		Category: c.Query("category"),
		Source:   c.Query("source"),
		Limit:    intQuery(c, "limit", 20, 100),
		Offset:   intQuery(c, "offset", 0, 10000),
	}
	if v := c.Query("status"); v != "" {
		status := database.ProcessingStatus(v)
		filter.Status = &status
	}
	if v := c.Query("hot"); v != "" {
		hot := v == "true"
		filter.IsHot = &hot
	}

	items, err := s.db.ListItems(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	item, err := s.db.GetItem(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	if err := s.db.IncrementViewCount(ctx, id); err != nil {
		s.logger.Printf("View count update failed for %s: %v", id, err)
	} else {
		item.ViewCount++
		s.searcher.Index().Add(item)
	}
	c.JSON(http.StatusOK, item)
}

// handleSetHot flags or clears an item's hot marker for curation.
func (s *Server) handleSetHot(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	item, err := s.db.GetItem(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}

	hot := c.DefaultQuery("value", "true") == "true"
	if err := s.db.SetHot(ctx, id, hot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	item.IsHot = hot
	s.searcher.Index().Add(item)
	c.JSON(http.StatusOK, gin.H{"id": id, "isHot": hot})
}

func (s *Server) handleSources(c *gin.Context) {
	states, err := s.db.AllSourceStates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stateByID := make(map[string]database.SourceState, len(states))
	for _, st := range states {
		stateByID[st.SourceID] = st
	}

	type sourceView struct {
		sources.Source
		LastCrawled *time.Time `json:"lastCrawled,omitempty"`
		LastSuccess bool       `json:"lastSuccess"`
		ErrorCount  int        `json:"errorCount"`
	}
	views := make([]sourceView, 0)
	for _, src := range s.registry.All() {
		view := sourceView{Source: src}
		if st, ok := stateByID[src.ID]; ok {
			view.LastCrawled = st.LastCrawled
			view.LastSuccess = st.LastSuccess
			view.ErrorCount = st.ErrorCount
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"sources": views, "stats": s.registry.Stats()})
}

func intQuery(c *gin.Context, name string, def, max int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func timeQuery(c *gin.Context, name string) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
