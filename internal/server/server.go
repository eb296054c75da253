// Package server exposes the aggregation pipeline over a JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"aiscope/internal/crawler"
	"aiscope/internal/database"
	"aiscope/internal/enrich"
	"aiscope/internal/metrics"
	"aiscope/internal/search"
	"aiscope/internal/sources"

	"github.com/gin-gonic/gin"
)

// Server holds the wired pipeline and the HTTP layer over it.
type Server struct {
	db        *database.DB
	registry  *sources.Registry
	scheduler *crawler.Scheduler
	processor *enrich.Processor
	searcher  *search.Service
	metrics   *metrics.Metrics
	logger    *log.Logger
	apiKey    string

	engine *gin.Engine
	http   *http.Server
}

// Config carries the HTTP-layer settings.
type Config struct {
	Addr   string
	APIKey string // required on mutating endpoints when non-empty
}

// New builds the router. Gin runs in release mode; request logging goes
// through the injected logger.
func New(cfg Config, db *database.DB, registry *sources.Registry,
	scheduler *crawler.Scheduler, processor *enrich.Processor,
	searcher *search.Service, m *metrics.Metrics, logger *log.Logger) *Server {

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		db:        db,
		registry:  registry,
		scheduler: scheduler,
		processor: processor,
		searcher:  searcher,
		metrics:   m,
		logger:    logger,
		apiKey:    cfg.APIKey,
		engine:    engine,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(s.requestLog())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/crawl", s.handleCrawlStatus)
		api.POST("/crawl", s.requireKey(), s.handleCrawl)
		api.POST("/enrich", s.requireKey(), s.handleEnrich)
		api.GET("/search", s.handleSearch)
		api.GET("/items", s.handleListItems)
		api.GET("/items/:id", s.handleGetItem)
		api.POST("/items/:id/hot", s.requireKey(), s.handleSetHot)
		api.GET("/sources", s.handleSources)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Printf("HTTP server listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requireKey gates mutating endpoints on the X-API-Key header. When no key
// is configured the gate is open, which keeps local development frictionless.
func (s *Server) requireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		presented := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Millisecond))
	}
}
