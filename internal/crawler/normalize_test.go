package crawler

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"aiscope/internal/database"
	"aiscope/internal/sources"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) HasSeen(ctx context.Context, key string) (bool, error) {
	return f.seen[key], nil
}

func testSource() sources.Source {
	return sources.Source{
		ID: "test-src", Name: "Test Source", Language: "en",
		Category: "AI/ML", Priority: sources.PriorityHigh, Active: true,
	}
}

func fixedNormalizer(seen ...string) *Normalizer {
	dedup := &fakeDedup{seen: map[string]bool{}}
	for _, k := range seen {
		dedup.seen[k] = true
	}
	n := NewNormalizer(dedup)
	n.now = func() time.Time { return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC) }
	return n
}

func TestNormalizeBasics(t *testing.T) {
	n := fixedNormalizer()
	ctx := context.Background()
	published := time.Date(2026, 8, 14, 9, 0, 0, 0, time.UTC)

	entry := &gofeed.Item{
		Title:           "A <b>bold</b> headline about LLM agents",
		Description:     "<p>Some summary with &amp; entities.</p>",
		Link:            "http://example.com/post",
		PublishedParsed: &published,
	}

	item, err := n.Normalize(ctx, testSource(), entry)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if item == nil {
		t.Fatal("Expected item, got duplicate skip")
	}
	if item.Title != "A bold headline about LLM agents" {
		t.Errorf("Markup not stripped from title: %q", item.Title)
	}
	if item.Summary != "Some summary with & entities." {
		t.Errorf("Summary not cleaned: %q", item.Summary)
	}
	if !item.PublishedAt.Equal(published) {
		t.Errorf("Expected published time preserved, got %v", item.PublishedAt)
	}
	if item.SourceID != "test-src" || item.Language != "en" {
		t.Errorf("Source fields not carried over: %+v", item)
	}
	if item.Status != database.StatusPending {
		t.Errorf("New items must start pending, got %s", item.Status)
	}
}

func TestNormalizeDuplicateSkip(t *testing.T) {
	n := fixedNormalizer("http://example.com/dup")
	item, err := n.Normalize(context.Background(), testSource(), &gofeed.Item{
		Title: "Already seen", Link: "http://example.com/dup",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if item != nil {
		t.Error("Seen entry should be skipped with a nil item")
	}
}

func TestDedupKey(t *testing.T) {
	t.Run("link wins", func(t *testing.T) {
		key := DedupKey(&gofeed.Item{Link: "http://a", GUID: "guid-1"})
		if key != "http://a" {
			t.Errorf("Expected link, got %q", key)
		}
	})
	t.Run("guid fallback", func(t *testing.T) {
		key := DedupKey(&gofeed.Item{GUID: "guid-1"})
		if key != "guid-1" {
			t.Errorf("Expected guid, got %q", key)
		}
	})
	t.Run("content hash last resort", func(t *testing.T) {
		a := DedupKey(&gofeed.Item{Title: "t", Description: "d"})
		b := DedupKey(&gofeed.Item{Title: "t", Description: "d"})
		c := DedupKey(&gofeed.Item{Title: "t", Description: "other"})
		if !strings.HasPrefix(a, "hash:") {
			t.Errorf("Expected hash key, got %q", a)
		}
		if a != b {
			t.Error("Identical content should hash identically")
		}
		if a == c {
			t.Error("Different content should hash differently")
		}
	})
}

func TestItemIDDeterminism(t *testing.T) {
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	a := itemID("src", "Title", at)
	b := itemID("src", "Title", at)
	if a != b {
		t.Errorf("Same identity fields must yield the same id: %q vs %q", a, b)
	}
	if itemID("other", "Title", at) == a {
		t.Error("Different source must yield a different id")
	}
	if itemID("src", "Other", at) == a {
		t.Error("Different title must yield a different id")
	}
	if !strings.HasPrefix(a, "src-") {
		t.Errorf("Id should be prefixed with the source id, got %q", a)
	}
}

func TestNormalizeTruncation(t *testing.T) {
	n := fixedNormalizer()
	longTitle := strings.Repeat("标题", 150) // 300 runes
	longBody := strings.Repeat("内容", 400)  // 800 runes

	item, err := n.Normalize(context.Background(), testSource(), &gofeed.Item{
		Title:       longTitle,
		Description: longBody,
		Link:        "http://example.com/long",
	})
	if err != nil || item == nil {
		t.Fatalf("Normalize failed: item=%v err=%v", item, err)
	}
	if got := utf8.RuneCountInString(item.Title); got != 200 {
		t.Errorf("Expected title truncated to 200 runes, got %d", got)
	}
	if got := utf8.RuneCountInString(item.Summary); got != 500 {
		t.Errorf("Expected summary truncated to 500 runes, got %d", got)
	}
	if !utf8.ValidString(item.Title) {
		t.Error("Truncation broke a multibyte rune")
	}
}

func TestNormalizeMissingPubDate(t *testing.T) {
	n := fixedNormalizer()
	item, err := n.Normalize(context.Background(), testSource(), &gofeed.Item{
		Title: "No date", Link: "http://example.com/nodate",
	})
	if err != nil || item == nil {
		t.Fatalf("Normalize failed: item=%v err=%v", item, err)
	}
	want := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	if !item.PublishedAt.Equal(want) {
		t.Errorf("Expected fetch time as published fallback, got %v", item.PublishedAt)
	}
	if !item.FetchedAt.Equal(want) {
		t.Errorf("Expected fetch time %v, got %v", want, item.FetchedAt)
	}
}

func TestExtractImage(t *testing.T) {
	t.Run("feed image field wins", func(t *testing.T) {
		got := extractImage(&gofeed.Item{
			Image:       &gofeed.Image{URL: "http://img/structured.png"},
			Description: `<img src="http://img/inline.png">`,
		})
		if got != "http://img/structured.png" {
			t.Errorf("Expected structured image, got %q", got)
		}
	})

	t.Run("media extension", func(t *testing.T) {
		got := extractImage(&gofeed.Item{
			Extensions: ext.Extensions{
				"media": {
					"content": []ext.Extension{{Attrs: map[string]string{"url": "http://img/media.jpg"}}},
				},
			},
		})
		if got != "http://img/media.jpg" {
			t.Errorf("Expected media extension image, got %q", got)
		}
	})

	t.Run("image enclosure", func(t *testing.T) {
		got := extractImage(&gofeed.Item{
			Enclosures: []*gofeed.Enclosure{
				{URL: "http://media/audio.mp3", Type: "audio/mpeg"},
				{URL: "http://img/enclosure.jpg", Type: "image/jpeg"},
			},
		})
		if got != "http://img/enclosure.jpg" {
			t.Errorf("Expected image enclosure, got %q", got)
		}
	})

	t.Run("inline img fallback", func(t *testing.T) {
		got := extractImage(&gofeed.Item{
			Content: `<p>text</p><img alt="x" src='http://img/first.png'><img src="http://img/second.png">`,
		})
		if got != "http://img/first.png" {
			t.Errorf("Expected first inline image, got %q", got)
		}
	})

	t.Run("no image", func(t *testing.T) {
		if got := extractImage(&gofeed.Item{Title: "plain"}); got != "" {
			t.Errorf("Expected empty, got %q", got)
		}
	})
}

func TestDeriveTags(t *testing.T) {
	src := testSource()

	t.Run("categories keywords and source category", func(t *testing.T) {
		tags := deriveTags(src, &gofeed.Item{Categories: []string{"News"}},
			"GPT release", "a new benchmark for agents")
		want := []string{"News", "GPT", "Benchmarks", "Agents", "AI/ML"}
		if len(tags) != len(want) {
			t.Fatalf("Expected %v, got %v", want, tags)
		}
		for i := range want {
			if tags[i] != want[i] {
				t.Errorf("Tag %d: expected %q, got %q", i, want[i], tags[i])
			}
		}
	})

	t.Run("cap at five", func(t *testing.T) {
		tags := deriveTags(src, &gofeed.Item{Categories: []string{"A", "B", "C", "D", "E", "F"}},
			"llm agents security", "")
		if len(tags) != maxTags {
			t.Errorf("Expected %d tags, got %d: %v", maxTags, len(tags), tags)
		}
		// Only the first three feed categories are considered.
		for _, tag := range tags {
			if tag == "D" || tag == "E" || tag == "F" {
				t.Errorf("Category past the cut made it in: %v", tags)
			}
		}
	})

	t.Run("case-insensitive dedup", func(t *testing.T) {
		tags := deriveTags(src, &gofeed.Item{Categories: []string{"llm"}}, "LLM news", "")
		count := 0
		for _, tag := range tags {
			if strings.EqualFold(tag, "llm") {
				count++
			}
		}
		if count != 1 {
			t.Errorf("Expected one llm tag, got %v", tags)
		}
	})
}
