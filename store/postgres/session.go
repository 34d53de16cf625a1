package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	omniagent "github.com/rishisan99/OmniAgent"
)

// SessionIndex implements omniagent.SessionIndex backed by PostgreSQL with
// pgvector. Chunks from session uploads are scoped by session id and
// searched with pgvector's cosine distance operator.
//
// SessionIndex accepts an externally-owned *pgxpool.Pool; pass the same
// pool used for Store so both share connections.
type SessionIndex struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

var _ omniagent.SessionIndex = (*SessionIndex)(nil)

// NewSessionIndex creates a SessionIndex using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func NewSessionIndex(pool *pgxpool.Pool, opts ...Option) *SessionIndex {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &SessionIndex{pool: pool, cfg: cfg}
}

// Init creates the session_chunks table and indexes.
func (s *SessionIndex) Init(ctx context.Context) error {
	vtype := "vector"
	if s.cfg.embeddingDimension > 0 {
		vtype = fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_chunks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL,
			embedding %s,
			created_at BIGINT NOT NULL
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS session_chunks_session_idx ON session_chunks(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: session index init: %w", err)
		}
	}
	return nil
}

// StoreChunks inserts chunks for a session in a single transaction.
func (s *SessionIndex) StoreChunks(ctx context.Context, sessionID string, chunks []omniagent.Chunk) error {
	now := omniagent.NowUnix()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			embStr := serializeEmbedding(chunk.Embedding)
			_, err = tx.Exec(ctx,
				`INSERT INTO session_chunks (id, session_id, document_id, content, source, page, chunk_index, embedding, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9)
				 ON CONFLICT (id) DO UPDATE SET
				   content = EXCLUDED.content,
				   embedding = EXCLUDED.embedding,
				   created_at = EXCLUDED.created_at`,
				chunk.ID, sessionID, chunk.DocumentID, chunk.Content, chunk.Source, chunk.Page, chunk.ChunkIndex, embStr, now)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO session_chunks (id, session_id, document_id, content, source, page, chunk_index, embedding, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)
				 ON CONFLICT (id) DO UPDATE SET
				   content = EXCLUDED.content,
				   embedding = NULL,
				   created_at = EXCLUDED.created_at`,
				chunk.ID, sessionID, chunk.DocumentID, chunk.Content, chunk.Source, chunk.Page, chunk.ChunkIndex, now)
		}
		if err != nil {
			return fmt.Errorf("postgres: insert session chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Search performs vector similarity search over the chunks of one session.
func (s *SessionIndex) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]omniagent.ScoredChunk, error) {
	embStr := serializeEmbedding(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, content, source, page, chunk_index,
		        1 - (embedding <=> $1::vector) AS score
		 FROM session_chunks
		 WHERE session_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $3`,
		embStr, sessionID, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search session chunks: %w", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// DeleteSession removes all chunks for a session.
func (s *SessionIndex) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_chunks WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("postgres: delete session chunks: %w", err)
	}
	return nil
}

// PruneOlderThan deletes chunks created before the given unix timestamp.
func (s *SessionIndex) PruneOlderThan(ctx context.Context, cutoff int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_chunks WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("postgres: prune session chunks: %w", err)
	}
	return nil
}
