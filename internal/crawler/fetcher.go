package crawler

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"aiscope/internal/sources"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; aiscope/1.0)"
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"

	// Feeds larger than this are cut off before parsing.
	maxFeedBytes = 5 << 20
)

// Fetcher downloads and parses a single source's feed.
type Fetcher struct {
	client   *http.Client
	parser   *gofeed.Parser
	logger   *log.Logger
	maxItems int
}

// NewFetcher builds a fetcher with a hardened HTTP client. maxItems caps how
// many entries are taken per source (0 means the design default of 10).
func NewFetcher(logger *log.Logger, maxItems int) *Fetcher {
	if maxItems <= 0 {
		maxItems = 10
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		parser:   gofeed.NewParser(),
		logger:   logger,
		maxItems: maxItems,
	}
}

// Fetch retrieves and parses one source's feed, returning at most maxItems
// entries in feed order. The caller's context bounds the network phase.
func (f *Fetcher) Fetch(ctx context.Context, src sources.Source) ([]*gofeed.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("error parsing feed: empty document")
	}

	items := parsed.Items
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}
	return items, nil
}
