package retrieval

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("document not found")

type Metadata struct {
	UserID   string `json:"user_id,omitempty"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
	KBID     string `json:"kb_id,omitempty"`
}

// Document is a profile snippet owned by the index: created at ingestion,
// mutated in place by Update, removed on Delete.
type Document struct {
	ID        string
	Content   string
	Metadata  Metadata
	Embedding []float32
}

// SearchResult is ephemeral, produced per query.
type SearchResult struct {
	Document    Document
	Score       float64
	Explanation string
}

// Index stores user-scoped profile documents. Search results are ranked and
// restricted to the given user; both implementations share the keyword
// scorer so behavior matches whether or not a similarity model is wired.
type Index interface {
	Add(ctx context.Context, doc Document) (string, error)
	Get(ctx context.Context, id string) (Document, error)
	Update(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error)
}

// NormalizeUserID maps the mixed id representations upstream systems emit to
// one canonical form, so numeric 123, "123", and "123.0" address the same
// partition. Applied once at the index boundary, never at comparison sites.
func NormalizeUserID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.ToLower(s)
}
