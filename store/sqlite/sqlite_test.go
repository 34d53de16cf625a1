package sqlite

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	omniagent "github.com/rishisan99/OmniAgent"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func testDoc(id, title string) omniagent.Document {
	return omniagent.Document{ID: id, Title: title, Source: title + ".md", CreatedAt: omniagent.NowUnix()}
}

func testChunk(docID string, idx int, content string, emb []float32) omniagent.Chunk {
	return omniagent.Chunk{
		ID:         omniagent.NewID(),
		DocumentID: docID,
		Content:    content,
		Source:     docID + ".md",
		ChunkIndex: idx,
		Embedding:  emb,
	}
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestStoreDocumentAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "Handbook")
	chunks := []omniagent.Chunk{
		testChunk("doc-1", 0, "first chunk", []float32{1, 0}),
		testChunk("doc-1", 1, "second chunk", []float32{0, 1}),
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	docs, err := s.ListDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "Handbook" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	n, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if n != 2 {
		t.Errorf("CountChunks = %d, want 2", n)
	}
}

func TestSearchChunks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "Vectors")
	chunks := []omniagent.Chunk{
		testChunk("doc-1", 0, "aligned", []float32{1, 0, 0}),
		testChunk("doc-1", 1, "orthogonal", []float32{0, 1, 0}),
		testChunk("doc-1", 2, "close", []float32{0.9, 0.1, 0}),
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	got, err := s.SearchChunks(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Chunk.Content != "aligned" {
		t.Errorf("best match = %q, want %q", got[0].Chunk.Content, "aligned")
	}
	if got[1].Chunk.Content != "close" {
		t.Errorf("second match = %q, want %q", got[1].Chunk.Content, "close")
	}
	if got[0].Score < got[1].Score {
		t.Error("results not sorted by score descending")
	}
}

func TestSearchChunks_SkipsMissingEmbeddings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "Mixed")
	chunks := []omniagent.Chunk{
		testChunk("doc-1", 0, "embedded", []float32{1, 0}),
		testChunk("doc-1", 1, "plain", nil),
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	got, err := s.SearchChunks(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.Content != "embedded" {
		t.Errorf("expected only the embedded chunk, got %+v", got)
	}
}

func TestSearchChunksKeyword(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "Policies")
	chunks := []omniagent.Chunk{
		testChunk("doc-1", 0, "The vacation policy allows twenty days per year", nil),
		testChunk("doc-1", 1, "Expense reports are due monthly", nil),
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	got, err := s.SearchChunksKeyword(ctx, "vacation", 5)
	if err != nil {
		t.Fatalf("SearchChunksKeyword: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Chunk.ChunkIndex != 0 {
		t.Errorf("matched wrong chunk: %+v", got[0].Chunk)
	}
}

func TestReplaceAll(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := testDoc("doc-old", "Old")
	if err := s.StoreDocument(ctx, old, []omniagent.Chunk{testChunk("doc-old", 0, "stale content", []float32{1})}); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	docs := []omniagent.Document{testDoc("doc-a", "A"), testDoc("doc-b", "B")}
	chunks := map[string][]omniagent.Chunk{
		"doc-a": {testChunk("doc-a", 0, "fresh alpha", []float32{1})},
		"doc-b": {testChunk("doc-b", 0, "fresh beta", []float32{0})},
	}
	if err := s.ReplaceAll(ctx, docs, chunks); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	listed, err := s.ListDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 documents after replace, got %d", len(listed))
	}
	for _, d := range listed {
		if d.ID == "doc-old" {
			t.Error("old document survived ReplaceAll")
		}
	}

	// FTS index must be rebuilt too.
	if got, _ := s.SearchChunksKeyword(ctx, "stale", 5); len(got) != 0 {
		t.Errorf("stale FTS entries survived ReplaceAll: %+v", got)
	}
	if got, _ := s.SearchChunksKeyword(ctx, "alpha", 5); len(got) != 1 {
		t.Errorf("new FTS entries missing after ReplaceAll: %+v", got)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testDoc("doc-1", "Gone")
	if err := s.StoreDocument(ctx, doc, []omniagent.Chunk{testChunk("doc-1", 0, "ephemeral text", []float32{1})}); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}
	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if n, _ := s.CountChunks(ctx); n != 0 {
		t.Errorf("CountChunks = %d after delete, want 0", n)
	}
	if got, _ := s.SearchChunksKeyword(ctx, "ephemeral", 5); len(got) != 0 {
		t.Errorf("FTS entries survived DeleteDocument: %+v", got)
	}
}

func TestConfig(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.GetConfig(ctx, "kb_signature")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty value for unset key, got %q", got)
	}

	if err := s.SetConfig(ctx, "kb_signature", "abc123"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if got, _ = s.GetConfig(ctx, "kb_signature"); got != "abc123" {
		t.Errorf("GetConfig = %q, want %q", got, "abc123")
	}

	// Overwrite
	if err := s.SetConfig(ctx, "kb_signature", "def456"); err != nil {
		t.Fatalf("SetConfig overwrite: %v", err)
	}
	if got, _ = s.GetConfig(ctx, "kb_signature"); got != "def456" {
		t.Errorf("GetConfig after overwrite = %q, want %q", got, "def456")
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			doc := testDoc(id, id)
			errs <- s.StoreDocument(ctx, doc, []omniagent.Chunk{testChunk(id, 0, "content "+id, []float32{float32(i)})})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent StoreDocument: %v", err)
		}
	}
	if n, _ := s.CountChunks(ctx); n != 10 {
		t.Errorf("CountChunks = %d, want 10", n)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 2}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
