// Package knowledge provides semantic search over ingested document
// chunks, backed by PostgreSQL with pgvector.
package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/candor0/candor/internal/log"
)

// Embedder turns text into an embedding vector. Consumer-defined so tests
// and alternative providers can substitute their own.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunk is one searchable piece of an ingested document. Page spans are
// present for paginated sources and become citation metadata.
type Chunk struct {
	ID         uuid.UUID
	Title      string
	URL        string
	PageStart  *int
	PageEnd    *int
	Content    string
	Similarity float64
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store searches and ingests knowledge chunks.
type Store struct {
	db       DBTX
	embedder Embedder
	logger   log.Logger
}

// New creates a knowledge store.
func New(db DBTX, embedder Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

const searchSQL = `
SELECT id, title, url, page_span_start, page_span_end, content,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_chunks
ORDER BY embedding <=> $1
LIMIT $2`

// Search embeds the query and returns the closest chunks by cosine
// distance, best first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*Chunk, error) {
	if limit <= 0 {
		limit = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.Query(ctx, searchSQL, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		var (
			id         pgtype.UUID
			title      string
			url        *string
			pStart     *int32
			pEnd       *int32
			content    string
			similarity float64
		)
		if err := rows.Scan(&id, &title, &url, &pStart, &pEnd, &content, &similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c := &Chunk{Title: title, Content: content, Similarity: similarity}
		if id.Valid {
			c.ID = id.Bytes
		}
		if url != nil {
			c.URL = *url
		}
		if pStart != nil {
			v := int(*pStart)
			c.PageStart = &v
		}
		if pEnd != nil {
			v := int(*pEnd)
			c.PageEnd = &v
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("knowledge search", "query_length", len(query), "results", len(out))
	return out, nil
}

const insertChunkSQL = `
INSERT INTO knowledge_chunks (title, url, page_span_start, page_span_end, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`

// Ingest embeds and stores one chunk.
func (s *Store) Ingest(ctx context.Context, c *Chunk) error {
	embedding, err := s.embedder.Embed(ctx, c.Content)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}

	var url *string
	if c.URL != "" {
		url = &c.URL
	}
	_, err = s.db.Exec(ctx, insertChunkSQL,
		c.Title, url, c.PageStart, c.PageEnd, c.Content, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}
