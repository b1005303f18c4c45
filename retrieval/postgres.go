package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/debashishroy00/wpa-sub002/embeddings"
)

// PostgresIndex persists profile documents in the profile_documents table.
// With an embedder it ranks by pgvector distance; without one it pulls the
// user's rows and runs the shared keyword scorer, so both paths honor the
// same contract.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPostgresIndex(pool *pgxpool.Pool, embedder embeddings.Embedder) *PostgresIndex {
	return &PostgresIndex{pool: pool, embedder: embedder}
}

func (s *PostgresIndex) Add(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Metadata.UserID = NormalizeUserID(doc.Metadata.UserID)
	if err := s.ensureEmbedding(ctx, &doc); err != nil {
		return "", err
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO profile_documents (id, user_id, category, title, kb_id, content, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            category = EXCLUDED.category,
            title = EXCLUDED.title,
            kb_id = EXCLUDED.kb_id,
            content = EXCLUDED.content,
            embedding = EXCLUDED.embedding,
            updated_at = NOW()
    `, doc.ID, doc.Metadata.UserID, doc.Metadata.Category, doc.Metadata.Title, doc.Metadata.KBID, doc.Content, vectorOrNil(doc.Embedding))
	if err != nil {
		return "", fmt.Errorf("insert profile document: %w", err)
	}
	return doc.ID, nil
}

func (s *PostgresIndex) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	var vec *pgvector.Vector
	err := s.pool.QueryRow(ctx, `
        SELECT id, user_id, COALESCE(category, ''), COALESCE(title, ''), COALESCE(kb_id, ''), content, embedding
        FROM profile_documents WHERE id = $1
    `, id).Scan(&doc.ID, &doc.Metadata.UserID, &doc.Metadata.Category, &doc.Metadata.Title, &doc.Metadata.KBID, &doc.Content, &vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get profile document: %w", err)
	}
	if vec != nil {
		doc.Embedding = vec.Slice()
	}
	return doc, nil
}

func (s *PostgresIndex) Update(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("update without document id")
	}
	doc.Metadata.UserID = NormalizeUserID(doc.Metadata.UserID)
	if err := s.ensureEmbedding(ctx, &doc); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
        UPDATE profile_documents
        SET user_id = $2, category = $3, title = $4, kb_id = $5, content = $6, embedding = $7, updated_at = NOW()
        WHERE id = $1
    `, doc.ID, doc.Metadata.UserID, doc.Metadata.Category, doc.Metadata.Title, doc.Metadata.KBID, doc.Content, vectorOrNil(doc.Embedding))
	if err != nil {
		return fmt.Errorf("update profile document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresIndex) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profile_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresIndex) Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	uid := NormalizeUserID(userID)
	if s.embedder != nil {
		return s.searchVector(ctx, query, uid, limit)
	}
	return s.searchKeyword(ctx, terms, uid, limit)
}

func (s *PostgresIndex) searchVector(ctx context.Context, query, uid string, limit int) ([]SearchResult, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, COALESCE(category, ''), COALESCE(title, ''), COALESCE(kb_id, ''), content,
               (embedding <-> $1::vector) AS distance
        FROM profile_documents
        WHERE user_id = $2 AND embedding IS NOT NULL
        ORDER BY embedding <-> $1::vector
        LIMIT $3
    `, pgvector.NewVector(vecs[0]), uid, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar documents: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, limit)
	for rows.Next() {
		var item SearchResult
		var distance float64
		if scanErr := rows.Scan(&item.Document.ID, &item.Document.Metadata.UserID, &item.Document.Metadata.Category,
			&item.Document.Metadata.Title, &item.Document.Metadata.KBID, &item.Document.Content, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar document: %w", scanErr)
		}
		item.Score = 1 / (1 + distance)
		item.Explanation = "vector distance"
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func (s *PostgresIndex) searchKeyword(ctx context.Context, terms []string, uid string, limit int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, user_id, COALESCE(category, ''), COALESCE(title, ''), COALESCE(kb_id, ''), content
        FROM profile_documents
        WHERE user_id = $1
    `, uid)
	if err != nil {
		return nil, fmt.Errorf("query profile documents: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var doc Document
		if scanErr := rows.Scan(&doc.ID, &doc.Metadata.UserID, &doc.Metadata.Category,
			&doc.Metadata.Title, &doc.Metadata.KBID, &doc.Content); scanErr != nil {
			return nil, fmt.Errorf("scan profile document: %w", scanErr)
		}
		score, explanation := ScoreKeywords(terms, doc.Metadata.Title, doc.Content)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Document: doc, Score: score, Explanation: explanation})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
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

func (s *PostgresIndex) ensureEmbedding(ctx context.Context, doc *Document) error {
	if s.embedder == nil || len(doc.Embedding) > 0 {
		return nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{doc.Metadata.Title + "\n" + doc.Content})
	if err != nil {
		return fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(vecs) == 1 {
		doc.Embedding = vecs[0]
	}
	return nil
}

func vectorOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

var _ Index = (*PostgresIndex)(nil)
