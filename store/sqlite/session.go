package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	omniagent "github.com/rishisan99/OmniAgent"
)

// SessionIndexOption configures a SQLite SessionIndex.
type SessionIndexOption func(*SessionIndex)

// WithSessionLogger sets a structured logger for the session index.
// When set, the index emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithSessionLogger(l *slog.Logger) SessionIndexOption {
	return func(s *SessionIndex) { s.logger = l }
}

// SessionIndex implements omniagent.SessionIndex backed by SQLite.
// Chunks from session uploads are stored with their embedding as JSON text
// and searched in-process with brute-force cosine similarity.
//
// Use NewSessionIndex with a shared *sql.DB from Store.DB() so both
// Store and SessionIndex share the same serialized connection.
type SessionIndex struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ omniagent.SessionIndex = (*SessionIndex)(nil)

// NewSessionIndex creates a SessionIndex using an existing *sql.DB.
// Pass store.DB() to share the same connection as Store.
func NewSessionIndex(db *sql.DB, opts ...SessionIndexOption) *SessionIndex {
	s := &SessionIndex{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the session_chunks table.
func (s *SessionIndex) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: session index init started")
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS session_chunks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		chunk_index INTEGER NOT NULL,
		embedding TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		s.logger.Error("sqlite: session index init failed", "error", err, "duration", time.Since(start))
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks(session_id)`)
	s.logger.Info("sqlite: session index init completed", "duration", time.Since(start))
	return nil
}

// StoreChunks inserts chunks for a session in a single transaction.
// Re-uploading a file replaces its previous chunks via INSERT OR REPLACE.
func (s *SessionIndex) StoreChunks(ctx context.Context, sessionID string, chunks []omniagent.Chunk) error {
	start := time.Now()
	s.logger.Debug("sqlite: store session chunks", "session_id", sessionID, "chunks", len(chunks))
	now := omniagent.NowUnix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, chunk := range chunks {
		var embJSON *string
		if len(chunk.Embedding) > 0 {
			v := serializeEmbedding(chunk.Embedding)
			embJSON = &v
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO session_chunks (id, session_id, document_id, content, source, page, chunk_index, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, sessionID, chunk.DocumentID, chunk.Content, chunk.Source, chunk.Page, chunk.ChunkIndex, embJSON, now,
		)
		if err != nil {
			return fmt.Errorf("insert session chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: store session chunks commit failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: store session chunks ok", "session_id", sessionID, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// Search performs brute-force cosine similarity search over the chunks of
// one session, sorted by Score descending.
func (s *SessionIndex) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]omniagent.ScoredChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search session chunks", "session_id", sessionID, "top_k", topK, "embedding_dim", len(embedding))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, content, source, page, chunk_index, embedding
		 FROM session_chunks WHERE session_id = ? AND embedding IS NOT NULL`, sessionID)
	if err != nil {
		s.logger.Error("sqlite: search session chunks failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("search session chunks: %w", err)
	}
	defer rows.Close()

	var results []omniagent.ScoredChunk
	for rows.Next() {
		var c omniagent.Chunk
		var embJSON string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.Source, &c.Page, &c.ChunkIndex, &embJSON); err != nil {
			continue
		}
		stored, parseErr := deserializeEmbedding(embJSON)
		if parseErr != nil || len(stored) == 0 {
			continue
		}
		results = append(results, omniagent.ScoredChunk{Chunk: c, Score: cosineSimilarity(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search session chunks ok", "session_id", sessionID, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// DeleteSession removes all chunks for a session. Called when the session
// store evicts an idle session.
func (s *SessionIndex) DeleteSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete session chunks", "session_id", sessionID)
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_chunks WHERE session_id = ?`, sessionID)
	if err != nil {
		s.logger.Error("sqlite: delete session chunks failed", "session_id", sessionID, "error", err)
		return err
	}
	s.logger.Debug("sqlite: delete session chunks ok", "session_id", sessionID, "duration", time.Since(start))
	return nil
}

// PruneOlderThan deletes chunks created before the given unix timestamp.
// Backstop for sessions that were never explicitly evicted.
func (s *SessionIndex) PruneOlderThan(ctx context.Context, cutoff int64) error {
	start := time.Now()
	s.logger.Debug("sqlite: prune session chunks", "cutoff", cutoff)
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_chunks WHERE created_at < ?`, cutoff)
	if err != nil {
		s.logger.Error("sqlite: prune session chunks failed", "error", err)
		return err
	}
	s.logger.Debug("sqlite: prune session chunks ok", "duration", time.Since(start))
	return nil
}
