package sqlite

import (
	"context"
	"testing"

	omniagent "github.com/rishisan99/OmniAgent"
)

func testSessionIndex(t *testing.T) *SessionIndex {
	t.Helper()
	s := testStore(t)
	idx := NewSessionIndex(s.DB())
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return idx
}

func TestSessionIndex_StoreAndSearch(t *testing.T) {
	idx := testSessionIndex(t)
	ctx := context.Background()

	chunks := []omniagent.Chunk{
		testChunk("upload-1", 0, "quarterly revenue figures", []float32{1, 0}),
		testChunk("upload-1", 1, "team travel schedule", []float32{0, 1}),
	}
	if err := idx.StoreChunks(ctx, "sess-a", chunks); err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	got, err := idx.Search(ctx, "sess-a", []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.Content != "quarterly revenue figures" {
		t.Errorf("unexpected results: %+v", got)
	}
}

func TestSessionIndex_ScopedBySession(t *testing.T) {
	idx := testSessionIndex(t)
	ctx := context.Background()

	if err := idx.StoreChunks(ctx, "sess-a", []omniagent.Chunk{testChunk("u1", 0, "alpha", []float32{1})}); err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}
	if err := idx.StoreChunks(ctx, "sess-b", []omniagent.Chunk{testChunk("u2", 0, "beta", []float32{1})}); err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}

	got, err := idx.Search(ctx, "sess-a", []float32{1}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.Content != "alpha" {
		t.Errorf("search leaked across sessions: %+v", got)
	}
}

func TestSessionIndex_DeleteSession(t *testing.T) {
	idx := testSessionIndex(t)
	ctx := context.Background()

	if err := idx.StoreChunks(ctx, "sess-a", []omniagent.Chunk{testChunk("u1", 0, "alpha", []float32{1})}); err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}
	if err := idx.DeleteSession(ctx, "sess-a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	got, err := idx.Search(ctx, "sess-a", []float32{1}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no chunks after DeleteSession, got %+v", got)
	}
}

func TestSessionIndex_PruneOlderThan(t *testing.T) {
	idx := testSessionIndex(t)
	ctx := context.Background()

	if err := idx.StoreChunks(ctx, "sess-a", []omniagent.Chunk{testChunk("u1", 0, "alpha", []float32{1})}); err != nil {
		t.Fatalf("StoreChunks: %v", err)
	}
	// Everything was created now, so a future cutoff removes it all.
	if err := idx.PruneOlderThan(ctx, omniagent.NowUnix()+10); err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	got, _ := idx.Search(ctx, "sess-a", []float32{1}, 10)
	if len(got) != 0 {
		t.Errorf("expected no chunks after prune, got %+v", got)
	}
}
