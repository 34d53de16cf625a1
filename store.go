package omniagent

import "context"

// VectorStore abstracts the knowledge-base index: document persistence plus
// vector and keyword retrieval over chunks.
type VectorStore interface {
	// --- Documents + Chunks ---
	StoreDocument(ctx context.Context, doc Document, chunks []Chunk) error
	ReplaceAll(ctx context.Context, docs []Document, chunks map[string][]Chunk) error
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountChunks(ctx context.Context) (int, error)

	// --- Retrieval ---
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error)
	SearchChunksKeyword(ctx context.Context, query string, topK int) ([]ScoredChunk, error)

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}

// SessionIndex abstracts per-session retrieval over uploaded attachments.
// Entries are scoped by session id and dropped when the session expires.
type SessionIndex interface {
	StoreChunks(ctx context.Context, sessionID string, chunks []Chunk) error
	Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]ScoredChunk, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Init(ctx context.Context) error
}
