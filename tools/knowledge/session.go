package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/ingest"
)

// Session lane defaults.
const (
	sessionDefaultTopK = 5
	sessionChunkSize   = 1200
	sessionOverlap     = 150
	sessionEmbedBatch  = 64
)

// SessionLane answers queries against documents uploaded into the current
// session. Attachments are extracted, chunked, and embedded into the session
// index the first time a query touches them.
type SessionLane struct {
	index    omniagent.SessionIndex
	embedder omniagent.EmbeddingProvider
	// assetRoot is the directory holding per-session upload subdirectories.
	assetRoot string
	logger    *slog.Logger

	mu      sync.Mutex
	indexed map[string]map[string]bool // session id -> attachment ids
}

// SessionOption configures a SessionLane.
type SessionOption func(*SessionLane)

// WithSessionLogger sets a structured logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionLane) { s.logger = l }
}

// NewSessionLane creates the session document lane. assetRoot is the upload
// directory; attachment paths are resolved under assetRoot/<session_id>/.
func NewSessionLane(index omniagent.SessionIndex, embedder omniagent.EmbeddingProvider, assetRoot string, opts ...SessionOption) *SessionLane {
	s := &SessionLane{
		index:     index,
		embedder:  embedder,
		assetRoot: assetRoot,
		logger:    omniagent.NopLogger(),
		indexed:   make(map[string]map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Kind implements omniagent.Lane.
func (s *SessionLane) Kind() string { return omniagent.TaskRAG }

// Run implements omniagent.Lane.
func (s *SessionLane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	if err := s.ensureIndexed(ctx, st.SessionID, st.Attachments); err != nil {
		s.logger.Error("session index failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	topK := t.TopK
	if topK <= 0 {
		topK = sessionDefaultTopK
	}
	vecs, err := s.embedder.Embed(ctx, []string{t.Query})
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "embed query: " + err.Error()}
	}
	if len(vecs) == 0 {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "embed query: no vector returned"}
	}
	scored, err := s.index.Search(ctx, st.SessionID, vecs[0], topK)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	matches := make([]any, 0, len(scored))
	for _, sc := range scored {
		matches = append(matches, map[string]any{
			"text":   sc.Chunk.Content,
			"source": sc.Chunk.Source,
			"page":   sc.Chunk.Page,
			"score":  float64(sc.Score),
		})
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"matches": matches,
			"count":   len(matches),
		},
	}
}

// ensureIndexed ingests any doc attachments not yet present in the session
// index. Unreadable files are logged and skipped so one broken upload does
// not take out the whole lane.
func (s *SessionLane) ensureIndexed(ctx context.Context, sessionID string, atts []omniagent.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.indexed[sessionID]
	if done == nil {
		done = make(map[string]bool)
		s.indexed[sessionID] = done
	}

	for _, att := range atts {
		if att.Kind != "doc" || done[att.ID] {
			continue
		}
		chunks, err := s.ingestAttachment(sessionID, att)
		if err != nil {
			s.logger.Warn("skipping unreadable attachment", "attachment_id", att.ID, "name", att.Name, "err", err)
			done[att.ID] = true
			continue
		}
		if len(chunks) == 0 {
			done[att.ID] = true
			continue
		}
		if err := s.embedChunks(ctx, chunks); err != nil {
			return err
		}
		if err := s.index.StoreChunks(ctx, sessionID, chunks); err != nil {
			return err
		}
		done[att.ID] = true
	}
	return nil
}

// ingestAttachment extracts and chunks one uploaded document. PDF pages are
// chunked per page so matches carry accurate page numbers.
func (s *SessionLane) ingestAttachment(sessionID string, att omniagent.Attachment) ([]omniagent.Chunk, error) {
	path := filepath.Join(s.assetRoot, sessionID, att.Path)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	chunker := ingest.NewRecursiveChunker(
		ingest.WithMaxChars(sessionChunkSize),
		ingest.WithOverlapChars(sessionOverlap),
	)
	newChunk := func(text string, page, idx int) omniagent.Chunk {
		return omniagent.Chunk{
			ID:         omniagent.NewID(),
			DocumentID: att.ID,
			Content:    text,
			Source:     att.Name,
			Page:       page,
			ChunkIndex: idx,
		}
	}

	var chunks []omniagent.Chunk
	switch strings.ToLower(filepath.Ext(att.Name)) {
	case ".pdf":
		result, err := ingest.NewPDFExtractor().ExtractWithMeta(content)
		if err != nil {
			return nil, err
		}
		for _, pm := range result.Meta {
			for _, c := range chunker.Chunk(result.Text[pm.StartByte:pm.EndByte]) {
				chunks = append(chunks, newChunk(c, pm.PageNumber-1, len(chunks)))
			}
		}
	case ".docx":
		text, err := ingest.NewDOCXExtractor().Extract(content)
		if err != nil {
			return nil, err
		}
		for _, c := range chunker.Chunk(text) {
			chunks = append(chunks, newChunk(c, 0, len(chunks)))
		}
	case ".md":
		text, err := ingest.MarkdownExtractor{}.Extract(content)
		if err != nil {
			return nil, err
		}
		for _, c := range chunker.Chunk(text) {
			chunks = append(chunks, newChunk(c, 0, len(chunks)))
		}
	case ".html", ".htm":
		text, err := ingest.HTMLExtractor{}.Extract(content)
		if err != nil {
			return nil, err
		}
		for _, c := range chunker.Chunk(text) {
			chunks = append(chunks, newChunk(c, 0, len(chunks)))
		}
	default:
		for _, c := range chunker.Chunk(string(content)) {
			chunks = append(chunks, newChunk(c, 0, len(chunks)))
		}
	}
	return chunks, nil
}

func (s *SessionLane) embedChunks(ctx context.Context, chunks []omniagent.Chunk) error {
	for start := 0; start < len(chunks); start += sessionEmbedBatch {
		end := start + sessionEmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed attachment chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for i, v := range vecs {
			batch[i].Embedding = v
		}
	}
	return nil
}

// ForgetSession drops the in-memory indexed markers for an expired session.
// The persistent rows are removed by the session index itself.
func (s *SessionLane) ForgetSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexed, sessionID)
}
