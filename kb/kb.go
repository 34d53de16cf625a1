// Package kb maintains the knowledge-base index over a directory of source
// documents and answers retrieval queries against it.
//
// The index is rebuilt only when the directory stamp (file count, latest
// mtime, root, chunking parameters) changes, and query results are cached
// for a short TTL keyed by query, top-k, and the index signature.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/ingest"
)

// Chunking and retrieval defaults.
const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 150
	DefaultTopK         = 5

	// minFetchK is the floor on candidates pulled from the store before
	// boosting and re-ranking.
	minFetchK = 8

	signatureKey = "kb_signature"
)

// allowedExts are the source file types indexed from the KB root.
var allowedExts = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".docx": true,
}

// Match is one retrieval hit surfaced to the lane envelope.
type Match struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

// Result is the outcome of one KB query.
type Result struct {
	Matches   []Match
	Citations []omniagent.Citation

	// EntityNotFound carries the unmatched entity hint when the query named
	// a specific entity and no indexed source covers it.
	EntityNotFound string
}

// Engine owns the KB index lifecycle and query path.
type Engine struct {
	root     string
	store    omniagent.VectorStore
	embedder omniagent.EmbeddingProvider
	logger   *slog.Logger

	chunkSize    int
	chunkOverlap int

	mu    sync.Mutex // serializes Ensure rebuilds
	sig   string     // last verified signature
	cache *queryCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithChunking overrides the chunk size and overlap (characters).
func WithChunking(size, overlap int) Option {
	return func(e *Engine) {
		e.chunkSize = size
		e.chunkOverlap = overlap
	}
}

// WithCacheTTL overrides the query cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cache = newQueryCache(ttl) }
}

// New creates a KB engine over root. Documents are persisted through store
// and embedded through embedder.
func New(root string, store omniagent.VectorStore, embedder omniagent.EmbeddingProvider, opts ...Option) *Engine {
	e := &Engine{
		root:         root,
		store:        store,
		embedder:     embedder,
		logger:       omniagent.NopLogger(),
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		cache:        newQueryCache(DefaultCacheTTL),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// stamp captures everything that invalidates the index when it changes.
// Fields are declared in key order so the JSON encoding is stable.
type stamp struct {
	ChunkOverlap  int    `json:"chunk_overlap"`
	ChunkSize     int    `json:"chunk_size"`
	Count         int    `json:"count"`
	LatestMtimeNS int64  `json:"latest_mtime_ns"`
	Root          string `json:"root"`
}

// Signature walks the KB root and returns the current index signature.
func (e *Engine) Signature() (string, error) {
	st := stamp{
		ChunkOverlap: e.chunkOverlap,
		ChunkSize:    e.chunkSize,
		Root:         e.root,
	}
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !allowedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.Count++
		if ns := info.ModTime().UnixNano(); ns > st.LatestMtimeNS {
			st.LatestMtimeNS = ns
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("kb: walk root: %w", err)
	}
	data, _ := json.Marshal(st)
	return string(data), nil
}

// Ensure makes the index current, rebuilding it when the directory stamp
// differs from the persisted signature. Returns the current signature.
func (e *Engine) Ensure(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sig, err := e.Signature()
	if err != nil {
		return "", err
	}
	if sig == e.sig {
		return sig, nil
	}

	stored, err := e.store.GetConfig(ctx, signatureKey)
	if err != nil {
		return "", err
	}
	if stored == sig {
		if n, err := e.store.CountChunks(ctx); err == nil && n > 0 {
			e.sig = sig
			return sig, nil
		}
	}

	e.logger.Info("kb: rebuilding index", "root", e.root)
	if err := e.rebuild(ctx); err != nil {
		return "", err
	}
	if err := e.store.SetConfig(ctx, signatureKey, sig); err != nil {
		return "", err
	}
	e.sig = sig
	e.cache.purge()
	return sig, nil
}

// rebuild re-extracts, re-chunks, and re-embeds every source file, then
// swaps the whole index atomically.
func (e *Engine) rebuild(ctx context.Context) error {
	var docs []omniagent.Document
	chunkMap := make(map[string][]omniagent.Chunk)
	var allChunks []*omniagent.Chunk

	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !allowedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, rerr := filepath.Rel(e.root, path)
		if rerr != nil {
			rel = filepath.Base(path)
		}
		doc, chunks, ferr := e.ingestFile(path, rel)
		if ferr != nil {
			e.logger.Warn("kb: skipping unreadable file", "path", rel, "err", ferr)
			return nil
		}
		if len(chunks) == 0 {
			return nil
		}
		docs = append(docs, doc)
		chunkMap[doc.ID] = chunks
		for i := range chunkMap[doc.ID] {
			allChunks = append(allChunks, &chunkMap[doc.ID][i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kb: walk root: %w", err)
	}

	if err := e.embedAll(ctx, allChunks); err != nil {
		return err
	}
	if err := e.store.ReplaceAll(ctx, docs, chunkMap); err != nil {
		return err
	}
	e.logger.Info("kb: index rebuilt", "documents", len(docs), "chunks", len(allChunks))
	return nil
}

// ingestFile extracts one source file into a document and its chunks.
// PDF pages are chunked per page so citations carry accurate page numbers.
func (e *Engine) ingestFile(path, rel string) (omniagent.Document, []omniagent.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return omniagent.Document{}, nil, err
	}

	doc := omniagent.Document{
		ID:        omniagent.NewID(),
		Title:     filepath.Base(rel),
		Source:    rel,
		CreatedAt: omniagent.NowUnix(),
	}

	ext := strings.ToLower(filepath.Ext(path))
	var chunks []omniagent.Chunk

	switch ext {
	case ".pdf":
		result, err := ingest.NewPDFExtractor().ExtractWithMeta(content)
		if err != nil {
			return omniagent.Document{}, nil, err
		}
		chunker := e.chunker(ext)
		for _, pm := range result.Meta {
			pageText := result.Text[pm.StartByte:pm.EndByte]
			for _, c := range chunker.Chunk(pageText) {
				chunks = append(chunks, e.newChunk(doc, rel, c, pm.PageNumber-1, len(chunks)))
			}
		}
	case ".docx":
		text, err := ingest.NewDOCXExtractor().Extract(content)
		if err != nil {
			return omniagent.Document{}, nil, err
		}
		for _, c := range e.chunker(ext).Chunk(text) {
			chunks = append(chunks, e.newChunk(doc, rel, c, 0, len(chunks)))
		}
	default: // .txt, .md
		for _, c := range e.chunker(ext).Chunk(string(content)) {
			chunks = append(chunks, e.newChunk(doc, rel, c, 0, len(chunks)))
		}
	}
	return doc, chunks, nil
}

// chunker picks the splitter for a file type. Markdown splits at heading
// boundaries; everything else uses recursive character chunking.
func (e *Engine) chunker(ext string) ingest.Chunker {
	opts := []ingest.ChunkerOption{
		ingest.WithMaxChars(e.chunkSize),
		ingest.WithOverlapChars(e.chunkOverlap),
	}
	if ext == ".md" {
		return ingest.NewMarkdownChunker(opts...)
	}
	return ingest.NewRecursiveChunker(opts...)
}

func (e *Engine) newChunk(doc omniagent.Document, rel, content string, page, idx int) omniagent.Chunk {
	return omniagent.Chunk{
		ID:         omniagent.NewID(),
		DocumentID: doc.ID,
		Content:    content,
		Source:     rel,
		Page:       page,
		ChunkIndex: idx,
	}
}

// embedBatchSize bounds texts per Embed call.
const embedBatchSize = 64

func (e *Engine) embedAll(ctx context.Context, chunks []*omniagent.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("kb: embed chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("kb: embed returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for i, v := range vecs {
			batch[i].Embedding = v
		}
	}
	return nil
}

// Search ensures the index is current and runs a boosted retrieval query.
// Results are served from the query cache when the index is unchanged.
func (e *Engine) Search(ctx context.Context, query string, topK int) (Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sig, err := e.Ensure(ctx)
	if err != nil {
		return Result{}, err
	}

	qKey := strings.ToLower(strings.TrimSpace(query))
	cacheKey := fmt.Sprintf("%s|k=%d|sig=%s", qKey, topK, sig)
	if cached, ok := e.cache.get(cacheKey); ok {
		return cached, nil
	}

	res, err := e.search(ctx, query, topK)
	if err != nil {
		return Result{}, err
	}
	e.cache.put(cacheKey, res)
	return res, nil
}

// search runs one uncached query: embed, over-fetch, boost, filter, rank.
func (e *Engine) search(ctx context.Context, query string, topK int) (Result, error) {
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("kb: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return Result{}, fmt.Errorf("kb: embed query: no vector returned")
	}

	fetchK := topK * 4
	if fetchK < minFetchK {
		fetchK = minFetchK
	}
	scored, err := e.store.SearchChunks(ctx, vecs[0], fetchK)
	if err != nil {
		return Result{}, err
	}

	hint := entityHint(query)
	hintToks := hintTokens(hint)
	qTokens := queryTokens(query)

	// Entity queries must be answered from a source that actually names
	// the entity; a near-miss from another record reads as a wrong answer.
	// When a strict source exists, chunks from every other source are
	// dropped so the top-k is never padded with another entity's record.
	if len(hintToks) > 0 {
		strict := make([]omniagent.ScoredChunk, 0, len(scored))
		for _, sc := range scored {
			if sourceCoversAll(fold(sc.Chunk.Source), hintToks) {
				strict = append(strict, sc)
			}
		}
		if len(strict) == 0 {
			return Result{EntityNotFound: hint}, nil
		}
		scored = strict
	}

	type boosted struct {
		sc    omniagent.ScoredChunk
		score float64
	}
	ranked := make([]boosted, 0, len(scored))
	for _, sc := range scored {
		score := float64(sc.Score)
		src := fold(sc.Chunk.Source)
		if len(hintToks) > 0 && sourceCoversAll(src, hintToks) {
			score += 100
		}
		for _, t := range qTokens {
			if strings.Contains(src, t) {
				score++
			}
		}
		ranked = append(ranked, boosted{sc: sc, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	var res Result
	seenCite := map[string]bool{}
	for _, b := range ranked {
		c := b.sc.Chunk
		res.Matches = append(res.Matches, Match{
			Text:   c.Content,
			Source: c.Source,
			Page:   c.Page,
			Score:  b.score,
		})
		title := fmt.Sprintf("%s (p.%d)", filepath.Base(c.Source), c.Page+1)
		url := "kb://" + filepath.ToSlash(c.Source)
		if key := title + "|" + url; !seenCite[key] {
			seenCite[key] = true
			res.Citations = append(res.Citations, omniagent.Citation{Title: title, URL: url})
		}
	}
	return res, nil
}

func sourceCoversAll(lowerSource string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(lowerSource, t) {
			return false
		}
	}
	return len(tokens) > 0
}

// queryTokens returns folded lowercase tokens of length >= 3.
func queryTokens(s string) []string { return tokensMinLen(s, 3) }

// hintTokens returns folded lowercase tokens of length >= 2. Entity name
// parts can legitimately be two characters ("Li", "Wu", "Jr"), so the
// strict coverage check uses a lower floor than query scoring.
func hintTokens(s string) []string { return tokensMinLen(s, 2) }

func tokensMinLen(s string, min int) []string {
	var out []string
	for _, w := range strings.Fields(fold(s)) {
		w = strings.Trim(w, ".,!?\"'()[]{}")
		if len(w) >= min {
			out = append(out, w)
		}
	}
	return out
}
