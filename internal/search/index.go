// Package search maintains the in-memory inverted index and the query
// service on top of it.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"aiscope/internal/database"
)

// Index is an in-memory TF-IDF inverted index over stored items. It is safe
// for concurrent use; the crawler adds documents while queries run.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]database.Item
	postings map[string]map[string]int // term -> doc id -> term frequency
}

func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]database.Item),
		postings: make(map[string]map[string]int),
	}
}

// Add indexes an item, replacing any previous version of the same id.
func (ix *Index) Add(item *database.Item) {
	if item == nil || item.ID == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(item.ID)
	ix.docs[item.ID] = *item
	for term, tf := range termFrequencies(item) {
		posting := ix.postings[term]
		if posting == nil {
			posting = make(map[string]int)
			ix.postings[term] = posting
		}
		posting[item.ID] = tf
	}
}

// Remove drops an item from the index. Terms left with no documents are
// dropped too, so document frequencies stay exact.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) {
	if _, ok := ix.docs[id]; !ok {
		return
	}
	delete(ix.docs, id)
	for term, posting := range ix.postings {
		if _, ok := posting[id]; ok {
			delete(posting, id)
			if len(posting) == 0 {
				delete(ix.postings, term)
			}
		}
	}
}

// Rebuild replaces the whole index contents, used at startup to hydrate from
// the store.
func (ix *Index) Rebuild(items []database.Item) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = make(map[string]database.Item, len(items))
	ix.postings = make(map[string]map[string]int)
	for i := range items {
		item := items[i]
		ix.docs[item.ID] = item
		for term, tf := range termFrequencies(&item) {
			posting := ix.postings[term]
			if posting == nil {
				posting = make(map[string]int)
				ix.postings[term] = posting
			}
			posting[item.ID] = tf
		}
	}
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Get returns an indexed document by id.
func (ix *Index) Get(id string) (database.Item, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	item, ok := ix.docs[id]
	return item, ok
}

// All returns every indexed document in unspecified order.
func (ix *Index) All() []database.Item {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]database.Item, 0, len(ix.docs))
	for _, item := range ix.docs {
		out = append(out, item)
	}
	return out
}

// Scored is one ranked hit.
type Scored struct {
	Item  database.Item
	Score float64
}

// Search ranks documents against the query by summed TF-IDF. Ties break on
// id so repeated queries over the same corpus return a stable order.
func (ix *Index) Search(query string) []Scored {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := float64(len(ix.docs))
	scores := make(map[string]float64)
	for _, term := range terms {
		posting := ix.postings[term]
		if len(posting) == 0 {
			continue
		}
		idf := math.Log(n/float64(len(posting)+1)) + 1
		for id, tf := range posting {
			scores[id] += float64(tf) * idf
		}
	}

	hits := make([]Scored, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Scored{Item: ix.docs[id], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Item.ID < hits[j].Item.ID
	})
	return hits
}

// termFrequencies tokenizes the searchable fields of an item. Scoring weight
// comes from the core text: title terms count double, translated title and
// both summaries count once. The remaining fields (source, categories, tags,
// keywords) make a document findable but contribute at most a frequency of
// one, so label matches never outrank the text itself.
func termFrequencies(item *database.Item) map[string]int {
	tf := make(map[string]int)
	for _, term := range tokenize(item.Title) {
		tf[term] += 2
	}
	for _, field := range []string{item.TranslatedTitle, item.Summary, item.Enrichment.Summary} {
		for _, term := range tokenize(field) {
			tf[term]++
		}
	}

	labels := []string{item.Source, item.Category, item.Enrichment.Category}
	labels = append(labels, item.Tags...)
	labels = append(labels, item.Keywords...)
	for _, field := range labels {
		for _, term := range tokenize(field) {
			if _, ok := tf[term]; !ok {
				tf[term] = 1
			}
		}
	}
	return tf
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// dropping single-rune fragments.
func tokenize(s string) []string {
	var terms []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) > 1 {
			terms = append(terms, tok)
		}
	}
	return terms
}
