package search

import (
	"fmt"
	"testing"
	"time"

	"aiscope/internal/database"
)

func doc(id, title, summary string, tags ...string) *database.Item {
	return &database.Item{
		ID: id, Title: title, Summary: summary, Tags: tags,
		Source: "Test", SourceID: "test",
		PublishedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestIndexAddSearch(t *testing.T) {
	ix := NewIndex()
	ix.Add(doc("d-1", "Transformer models explained", "A deep dive into attention"))
	ix.Add(doc("d-2", "Cooking with cast iron", "Nothing about machine learning"))
	ix.Add(doc("d-3", "Attention is all you need", "The transformer paper"))

	t.Run("relevant docs rank above irrelevant", func(t *testing.T) {
		hits := ix.Search("transformer attention")
		if len(hits) != 2 {
			t.Fatalf("Expected 2 hits, got %d", len(hits))
		}
		for _, hit := range hits {
			if hit.Item.ID == "d-2" {
				t.Error("Irrelevant document matched")
			}
		}
	})

	t.Run("title matches outweigh body matches", func(t *testing.T) {
		hits := ix.Search("transformer")
		if len(hits) != 2 {
			t.Fatalf("Expected 2 hits, got %d", len(hits))
		}
		if hits[0].Item.ID != "d-1" {
			t.Errorf("Expected title match first, got %s", hits[0].Item.ID)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if hits := ix.Search("quantum"); len(hits) != 0 {
			t.Errorf("Expected no hits, got %d", len(hits))
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if hits := ix.Search("   "); hits != nil {
			t.Errorf("Expected nil for empty query, got %v", hits)
		}
	})
}

func TestIndexUpsert(t *testing.T) {
	ix := NewIndex()
	ix.Add(doc("d-1", "Original title about kubernetes", ""))
	ix.Add(doc("d-1", "Replaced title about terraform", ""))

	if ix.Len() != 1 {
		t.Fatalf("Upsert should not grow the index, got %d docs", ix.Len())
	}
	if hits := ix.Search("kubernetes"); len(hits) != 0 {
		t.Error("Old terms should be gone after upsert")
	}
	if hits := ix.Search("terraform"); len(hits) != 1 {
		t.Error("New terms should be searchable after upsert")
	}
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ix.Add(doc("d-1", "solitary document", ""))
	ix.Remove("d-1")

	if ix.Len() != 0 {
		t.Errorf("Expected empty index, got %d docs", ix.Len())
	}
	if hits := ix.Search("solitary"); len(hits) != 0 {
		t.Error("Removed document still matches")
	}
	// Orphaned terms must not linger in the postings.
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.postings) != 0 {
		t.Errorf("Postings not cleaned up: %d terms remain", len(ix.postings))
	}
}

func TestIndexRebuildStability(t *testing.T) {
	items := []database.Item{
		*doc("d-1", "Go concurrency patterns", "channels and goroutines"),
		*doc("d-2", "Go generics deep dive", "type parameters in go"),
		*doc("d-3", "Rust ownership", "borrow checker"),
	}

	ix := NewIndex()
	for i := range items {
		ix.Add(&items[i])
	}
	before := ix.Search("go")

	rebuilt := NewIndex()
	rebuilt.Rebuild(items)
	after := rebuilt.Search("go")

	if len(before) != len(after) {
		t.Fatalf("Rebuild changed hit count: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Item.ID != after[i].Item.ID || before[i].Score != after[i].Score {
			t.Errorf("Hit %d differs after rebuild: %s/%v vs %s/%v",
				i, before[i].Item.ID, before[i].Score, after[i].Item.ID, after[i].Score)
		}
	}
}

func TestIndexTieBreak(t *testing.T) {
	ix := NewIndex()
	// Identical text: identical scores, so ordering must fall back to id.
	for _, id := range []string{"z-9", "a-1", "m-5"} {
		ix.Add(doc(id, "same exact words", "same exact words"))
	}
	hits := ix.Search("exact words")
	if len(hits) != 3 {
		t.Fatalf("Expected 3 hits, got %d", len(hits))
	}
	want := []string{"a-1", "m-5", "z-9"}
	for i, id := range want {
		if hits[i].Item.ID != id {
			t.Errorf("Hit %d: expected %s, got %s", i, id, hits[i].Item.ID)
		}
	}
}

func TestIndexRareTermsWeighMore(t *testing.T) {
	ix := NewIndex()
	// "common" appears everywhere, "unicorn" once.
	for i := 0; i < 10; i++ {
		ix.Add(doc(fmt.Sprintf("c-%d", i), "common topic", ""))
	}
	ix.Add(doc("rare", "common unicorn", ""))

	hits := ix.Search("common unicorn")
	if len(hits) != 11 {
		t.Fatalf("Expected 11 hits, got %d", len(hits))
	}
	if hits[0].Item.ID != "rare" {
		t.Errorf("Document with the rare term should rank first, got %s", hits[0].Item.ID)
	}
}

func TestIndexCategoryFields(t *testing.T) {
	ix := NewIndex()
	robotics := doc("d-1", "Boston Dynamics ships a new arm", "hardware news")
	robotics.Category = "Robotics"
	ix.Add(robotics)

	classified := doc("d-2", "Quarterly model roundup", "what changed")
	classified.Enrichment.Category = "Security"
	ix.Add(classified)

	t.Run("item category matches", func(t *testing.T) {
		hits := ix.Search("robotics")
		if len(hits) != 1 || hits[0].Item.ID != "d-1" {
			t.Errorf("Expected [d-1] for category term, got %d hits", len(hits))
		}
	})

	t.Run("generated category matches", func(t *testing.T) {
		hits := ix.Search("security")
		if len(hits) != 1 || hits[0].Item.ID != "d-2" {
			t.Errorf("Expected [d-2] for generated category term, got %d hits", len(hits))
		}
	})
}

func TestIndexLabelsDoNotDominate(t *testing.T) {
	ix := NewIndex()
	ix.Add(doc("text", "Transformer internals explained", ""))

	// Same term stacked across source, tag and keyword must not outscore a
	// single title mention.
	labeled := doc("label", "Unrelated headline", "", "transformer")
	labeled.Source = "Transformer Weekly"
	labeled.Keywords = database.StringSlice{"transformer"}
	ix.Add(labeled)

	hits := ix.Search("transformer")
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Item.ID != "text" {
		t.Errorf("Title match should rank above stacked labels, got %s first", hits[0].Item.ID)
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"GPT-4o mini", []string{"gpt", "4o", "mini"}},
		{"a I x", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := tokenize(c.in)
		if len(got) != len(c.want) {
			t.Errorf("tokenize(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}
