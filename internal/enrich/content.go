package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxBodyRunes caps how much page text reaches the prompt.
const maxBodyRunes = 5000

// BodyFetcher pulls readable text from an item's page when the feed entry
// carried too little content to score meaningfully.
type BodyFetcher struct {
	client *http.Client
}

func NewBodyFetcher() *BodyFetcher {
	return &BodyFetcher{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchText downloads a page and returns its visible text, scripts and
// styles stripped, whitespace collapsed.
func (b *BodyFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aiscope/1.0)")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	runes := []rune(text)
	if len(runes) > maxBodyRunes {
		text = string(runes[:maxBodyRunes])
	}
	return text, nil
}
