package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aiscope/internal/config"
	"aiscope/internal/crawler"
	"aiscope/internal/database"
	"aiscope/internal/enrich"
	"aiscope/internal/metrics"
	"aiscope/internal/search"
	"aiscope/internal/server"
	"aiscope/internal/sources"
)

const version = "0.9.0"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		port        = flag.Int("port", 0, "Override server port")
		dbPath      = flag.String("db", "", "Override database path")
		autoCrawl   = flag.Bool("auto", true, "Run the crawl scheduler in the background")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("aiscope version %s\n", version)
		return
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if err := run(logger, *configPath, *port, *dbPath, *autoCrawl); err != nil {
		logger.Fatalf("Startup failed: %v", err)
	}
}

func run(logger *log.Logger, configPath string, port int, dbPath string, autoCrawl bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := recordVersion(db, logger); err != nil {
		return err
	}

	registry := sources.NewDefaultRegistry()
	if cfg.CatalogPath != "" {
		catalog, err := sources.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			return err
		}
		registry = sources.NewRegistry(catalog)
	}
	logger.Printf("Source catalog: %d sources", registry.Stats().Total)

	m := metrics.New()

	queue := crawler.NewQueue(crawler.QueueConfig{
		Concurrency: cfg.Crawl.Concurrency,
		Timeout:     cfg.Crawl.Timeout.Std(),
		MaxRetries:  cfg.Crawl.MaxRetries,
		RetryBase:   cfg.Crawl.RetryBase.Std(),
	}, logger)
	defer queue.Close()

	fetcher := crawler.NewFetcher(logger, cfg.Crawl.MaxItems)
	normalizer := crawler.NewNormalizer(db)

	index := search.NewIndex()
	startup, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	items, err := db.AllItems(startup)
	cancelStartup()
	if err != nil {
		return fmt.Errorf("hydrate search index: %w", err)
	}
	index.Rebuild(items)
	logger.Printf("Search index: %d documents", index.Len())
	searcher := search.NewService(index, m, logger)

	var gen enrich.Generator
	if cfg.Enrich.APIKey != "" {
		gen = enrich.NewClient(enrich.ClientConfig{
			BaseURL: cfg.Enrich.BaseURL,
			APIKey:  cfg.Enrich.APIKey,
			Model:   cfg.Enrich.Model,
			Timeout: cfg.Enrich.Timeout.Std(),
		})
	} else {
		logger.Printf("No LLM API key configured, enrichment disabled")
		gen = enrich.Disabled{}
	}
	processor := enrich.NewProcessor(enrich.ProcessorConfig{
		Concurrency: cfg.Enrich.Concurrency,
	}, db, gen, enrich.NewBodyFetcher(), index, m, logger)

	scheduler := crawler.NewScheduler(crawler.Config{
		HighInterval:   cfg.Crawl.HighInterval.Std(),
		MediumInterval: cfg.Crawl.MediumInterval.Std(),
		LowInterval:    cfg.Crawl.LowInterval.Std(),
		HandoffLimit:   cfg.Enrich.HandoffLimit,
	}, registry, db, queue, fetcher, normalizer, processor, index, m, logger)

	srv := server.New(server.Config{
		Addr:   cfg.Address(),
		APIKey: cfg.APIKey,
	}, db, registry, scheduler, processor, searcher, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if autoCrawl {
		go autoLoop(ctx, scheduler, cfg.Crawl.AutoInterval.Std(), logger)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// recordVersion stamps the running version into settings so upgrades are
// visible in logs and in the database after the fact.
func recordVersion(db *database.DB, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	previous, err := db.GetSetting(ctx, "version")
	switch {
	case errors.Is(err, sql.ErrNoRows):
		logger.Printf("First run, version %s", version)
	case err != nil:
		return fmt.Errorf("read version setting: %w", err)
	case previous != version:
		logger.Printf("Upgraded %s -> %s", previous, version)
	}
	return db.UpdateSetting(ctx, "version", version)
}

// autoLoop ticks the scheduler so due tiers get crawled without external
// triggers. The first run fires immediately.
func autoLoop(ctx context.Context, scheduler *crawler.Scheduler, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := scheduler.RunAuto(ctx)
		if err != nil {
			logger.Printf("Auto crawl failed: %v", err)
		} else if len(run.Lanes) > 0 {
			logger.Printf("Auto crawl %s: %d new items across %d lanes", run.RunID, run.ItemsNew, len(run.Lanes))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
