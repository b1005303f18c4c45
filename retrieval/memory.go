package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/debashishroy00/wpa-sub002/embeddings"
)

const defaultSearchLimit = 5

// MemoryIndex keeps profile documents in a mutex-guarded map. Reads run
// concurrently; writes take the exclusive lock per document id. With a nil
// embedder every search uses the keyword scorer.
type MemoryIndex struct {
	mu       sync.RWMutex
	docs     map[string]Document
	embedder embeddings.Embedder
	logger   *log.Logger
}

func NewMemoryIndex(embedder embeddings.Embedder, logger *log.Logger) *MemoryIndex {
	if logger == nil {
		logger = log.Default()
	}
	return &MemoryIndex{
		docs:     make(map[string]Document),
		embedder: embedder,
		logger:   logger,
	}
}

func (m *MemoryIndex) Add(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Metadata.UserID = NormalizeUserID(doc.Metadata.UserID)

	if err := m.ensureEmbedding(ctx, &doc); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return doc.ID, nil
}

func (m *MemoryIndex) Get(ctx context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryIndex) Update(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("update without document id")
	}
	doc.Metadata.UserID = NormalizeUserID(doc.Metadata.UserID)
	if err := m.ensureEmbedding(ctx, &doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return ErrNotFound
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var queryVec []float32
	if m.embedder != nil {
		vecs, err := m.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) == 1 {
			queryVec = vecs[0]
		}
	}

	uid := NormalizeUserID(userID)

	m.mu.RLock()
	candidates := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		if doc.Metadata.UserID == uid {
			candidates = append(candidates, doc)
		}
	}
	m.mu.RUnlock()

	results := make([]SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		var score float64
		var explanation string
		if queryVec != nil && len(doc.Embedding) > 0 {
			score = embeddings.CosineSimilarity(queryVec, doc.Embedding)
			explanation = "cosine similarity"
		} else {
			score, explanation = ScoreKeywords(terms, doc.Metadata.Title, doc.Content)
		}
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
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryIndex) ensureEmbedding(ctx context.Context, doc *Document) error {
	if m.embedder == nil || len(doc.Embedding) > 0 {
		return nil
	}
	vecs, err := m.embedder.Embed(ctx, []string{doc.Metadata.Title + "\n" + doc.Content})
	if err != nil {
		return fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(vecs) == 1 {
		doc.Embedding = vecs[0]
	}
	return nil
}

var _ Index = (*MemoryIndex)(nil)
