package crawler

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"aiscope/internal/database"
	"aiscope/internal/sources"

	"github.com/mmcdole/gofeed"
)

const (
	maxTitleRunes   = 200
	maxSummaryRunes = 500
	maxTags         = 5
)

var (
	imgTagPattern  = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	wsPattern      = regexp.MustCompile(`\s+`)
)

// tagRule maps a lowercase keyword found in the title or summary to a tag.
// Rules are checked in order; earlier rules win the tag-count cap.
type tagRule struct {
	keyword string
	tag     string
}

var tagRules = []tagRule{
	{"gpt", "GPT"},
	{"claude", "Claude"},
	{"gemini", "Gemini"},
	{"llama", "Llama"},
	{"llm", "LLM"},
	{"large language model", "LLM"},
	{"open source", "Open Source"},
	{"open-source", "Open Source"},
	{"benchmark", "Benchmarks"},
	{"agent", "Agents"},
	{"robot", "Robotics"},
	{"multimodal", "Multimodal"},
	{"fine-tun", "Fine-tuning"},
	{"reinforcement learning", "RL"},
	{"diffusion", "Diffusion"},
	{"transformer", "Transformers"},
	{"security", "Security"},
	{"vulnerability", "Security"},
	{"regulation", "Policy"},
	{"policy", "Policy"},
	{"funding", "Funding"},
	{"startup", "Startups"},
	{"research", "Research"},
	{"paper", "Research"},
	{"dataset", "Datasets"},
	{"inference", "Inference"},
	{"chip", "Hardware"},
	{"gpu", "Hardware"},
}

// Normalizer turns raw feed entries into canonical store items, dropping
// entries whose dedup key has been seen before.
type Normalizer struct {
	dedup DedupStore
	now   func() time.Time
}

// DedupStore is the persistent seen-key set backing cross-run deduplication.
// The check and the later mark happen in separate statements, so two
// concurrent lanes can both pass the check for the same key. The items table
// url uniqueness constraint makes the second insert a no-op.
type DedupStore interface {
	HasSeen(ctx context.Context, key string) (bool, error)
}

// NewNormalizer builds a normalizer over the given dedup store.
func NewNormalizer(dedup DedupStore) *Normalizer {
	return &Normalizer{dedup: dedup, now: time.Now}
}

// Normalize converts one feed entry into a store item. A nil item with a nil
// error means the entry is a duplicate and should be skipped. Malformed
// fields never fail normalization; they degrade to empty values.
func (n *Normalizer) Normalize(ctx context.Context, src sources.Source, entry *gofeed.Item) (*database.Item, error) {
	key := DedupKey(entry)
	seen, err := n.dedup.HasSeen(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		return nil, nil
	}

	fetchedAt := n.now().UTC()
	publishedAt := fetchedAt
	if entry.PublishedParsed != nil {
		publishedAt = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		publishedAt = entry.UpdatedParsed.UTC()
	}

	title := truncateRunes(cleanText(entry.Title), maxTitleRunes)
	summary := truncateRunes(cleanText(entry.Description), maxSummaryRunes)
	if summary == "" {
		summary = truncateRunes(cleanText(entry.Content), maxSummaryRunes)
	}

	item := &database.Item{
		ID:          itemID(src.ID, title, publishedAt),
		Title:       title,
		Summary:     summary,
		Content:     entry.Content,
		URL:         entry.Link,
		Source:      src.Name,
		SourceID:    src.ID,
		Category:    src.Category,
		Tags:        deriveTags(src, entry, title, summary),
		ImageURL:    extractImage(entry),
		Language:    src.Language,
		PublishedAt: publishedAt,
		FetchedAt:   fetchedAt,
	}
	item.Status = database.StatusPending
	return item, nil
}

// DedupKey identifies an entry across runs: the link when present, the GUID
// as fallback, and a content hash as last resort.
func DedupKey(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if entry.GUID != "" {
		return entry.GUID
	}
	h := fnv.New64a()
	h.Write([]byte(entry.Title))
	h.Write([]byte{0})
	h.Write([]byte(entry.Description))
	return fmt.Sprintf("hash:%016x", h.Sum64())
}

// itemID derives a stable identifier from the fields that define an item's
// identity. Re-fetching the same entry always yields the same id, which is
// what lets UpsertItem refresh instead of duplicate.
func itemID(sourceID, title string, publishedAt time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", sourceID, title, publishedAt.Unix())
	return fmt.Sprintf("%s-%016x", sourceID, h.Sum64())
}

// extractImage finds a representative image for the entry, trying the
// structured fields first and falling back to the first <img> in the body.
func extractImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	if media, ok := entry.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}
	for _, enc := range entry.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || hasImageExtension(enc.URL) {
			return enc.URL
		}
	}
	for _, body := range []string{entry.Content, entry.Description} {
		if m := imgTagPattern.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

func hasImageExtension(url string) bool {
	url = strings.ToLower(url)
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(url, ext) {
			return true
		}
	}
	return false
}

// deriveTags merges feed categories, keyword matches, and the source's own
// category, deduplicated and capped.
func deriveTags(src sources.Source, entry *gofeed.Item, title, summary string) database.StringSlice {
	tags := make([]string, 0, maxTags)
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || len(tags) >= maxTags {
			return
		}
		lower := strings.ToLower(tag)
		if seen[lower] {
			return
		}
		seen[lower] = true
		tags = append(tags, tag)
	}

	for i, cat := range entry.Categories {
		if i >= 3 {
			break
		}
		add(cat)
	}

	haystack := strings.ToLower(title + " " + summary)
	for _, rule := range tagRules {
		if strings.Contains(haystack, rule.keyword) {
			add(rule.tag)
		}
	}

	add(src.Category)
	return tags
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	return strings.TrimSpace(wsPattern.ReplaceAllString(s, " "))
}

// truncateRunes cuts at a rune boundary so multibyte titles stay valid.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
