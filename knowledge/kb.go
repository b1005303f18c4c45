package knowledge

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/debashishroy00/wpa-sub002/retrieval"
)

// Document is a curated advisory article. The ID is the stable citation
// token other components embed in responses, e.g. [KB-RET-001].
type Document struct {
	ID          string
	Category    string
	Tags        []string
	LastUpdated string
	Title       string
	Content     string
	Path        string
}

type SearchResult struct {
	Document    Document
	Score       float64
	Explanation string
}

type Filters struct {
	Category string
	Tags     []string
}

// Index caches the knowledge base in memory. It is loaded once at startup
// and replaced wholesale on re-ingestion, so reads never see a half-loaded
// corpus.
type Index struct {
	mu     sync.RWMutex
	docs   map[string]Document
	logger *log.Logger
}

func NewIndex(logger *log.Logger) *Index {
	if logger == nil {
		logger = log.Default()
	}
	return &Index{docs: make(map[string]Document), logger: logger}
}

func (x *Index) ReplaceAll(docs []Document) {
	next := make(map[string]Document, len(docs))
	for _, doc := range docs {
		next[doc.ID] = doc
	}
	x.mu.Lock()
	x.docs = next
	x.mu.Unlock()
	x.logger.Printf("knowledge base loaded: %d documents", len(next))
}

func (x *Index) Get(id string) (Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[id]
	return doc, ok
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

func (x *Index) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.docs))
	for id := range x.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Search ranks documents by the shared keyword scorer. Tags count like title
// hits; category and tag filters are hard filters, not boosts.
func (x *Index) Search(query string, filters Filters, topK int) []SearchResult {
	if topK <= 0 {
		topK = 3
	}
	terms := retrieval.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	x.mu.RLock()
	candidates := make([]Document, 0, len(x.docs))
	for _, doc := range x.docs {
		if filters.Category != "" && !strings.EqualFold(doc.Category, filters.Category) {
			continue
		}
		if len(filters.Tags) > 0 && !hasAnyTag(doc.Tags, filters.Tags) {
			continue
		}
		candidates = append(candidates, doc)
	}
	x.mu.RUnlock()

	results := make([]SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		heading := doc.Title + " " + strings.Join(doc.Tags, " ")
		score, explanation := retrieval.ScoreKeywords(terms, heading, doc.Content)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Document: doc, Score: score, Explanation: explanation})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

var citationPattern = regexp.MustCompile(`\[(KB-[A-Z]+-\d{3})\]`)

// ValidateCitations extracts every inline citation token and partitions by
// index membership. Order of first appearance is preserved; duplicates
// collapse.
func (x *Index) ValidateCitations(text string) (valid, invalid []string) {
	seen := make(map[string]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := x.Get(id); ok {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

// StripInvalid removes citation tokens that do not resolve in the index and
// returns the removed ids.
func (x *Index) StripInvalid(text string) (string, []string) {
	_, invalid := x.ValidateCitations(text)
	if len(invalid) == 0 {
		return text, nil
	}
	cleaned := citationPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := strings.Trim(token, "[]")
		if _, ok := x.Get(id); ok {
			return token
		}
		return ""
	})
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	return cleaned, invalid
}

func hasAnyTag(docTags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range docTags {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}
