package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/store/sqlite"
)

func testSessionLane(t *testing.T) (*SessionLane, string) {
	t.Helper()
	store := sqlite.New(filepath.Join(t.TempDir(), "session.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	idx := sqlite.NewSessionIndex(store.DB())
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("index init: %v", err)
	}
	assetRoot := t.TempDir()
	return NewSessionLane(idx, stubEmbedder{}, assetRoot), assetRoot
}

func writeUpload(t *testing.T, assetRoot, sessionID, name, content string) omniagent.Attachment {
	t.Helper()
	dir := filepath.Join(assetRoot, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := "abc12345_" + name
	if err := os.WriteFile(filepath.Join(dir, path), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return omniagent.Attachment{ID: "abc12345", Kind: "doc", Name: name, Path: path}
}

func TestSessionLane_Kind(t *testing.T) {
	lane, _ := testSessionLane(t)
	if lane.Kind() != omniagent.TaskRAG {
		t.Errorf("Kind() = %q, want %q", lane.Kind(), omniagent.TaskRAG)
	}
}

func TestSessionLane_RunIndexesAndSearches(t *testing.T) {
	lane, assetRoot := testSessionLane(t)
	att := writeUpload(t, assetRoot, "s1", "report.txt", "Carllm revenue grew sharply this quarter.")

	st := &omniagent.RunState{SessionID: "s1", Attachments: []omniagent.Attachment{att}}
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskRAG, Query: "carllm revenue", TopK: 3}
	r := lane.Run(context.Background(), task, st, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	matches, ok := r.Data["matches"].([]any)
	if !ok || len(matches) == 0 {
		t.Fatalf("expected matches, got %T %v", r.Data["matches"], r.Data["matches"])
	}
	m := matches[0].(map[string]any)
	if src, _ := m["source"].(string); src != "report.txt" {
		t.Errorf("source = %q, want report.txt", src)
	}
	if text, _ := m["text"].(string); text == "" {
		t.Error("empty match text")
	}
}

func TestSessionLane_ScopedBySession(t *testing.T) {
	lane, assetRoot := testSessionLane(t)
	att := writeUpload(t, assetRoot, "s1", "notes.txt", "Carllm pricing notes.")

	st1 := &omniagent.RunState{SessionID: "s1", Attachments: []omniagent.Attachment{att}}
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskRAG, Query: "carllm pricing"}
	if r := lane.Run(context.Background(), task, st1, nil); !r.OK {
		t.Fatalf("Run s1 failed: %s", r.Err)
	}

	// A different session with no uploads sees nothing.
	st2 := &omniagent.RunState{SessionID: "s2"}
	r := lane.Run(context.Background(), task, st2, nil)
	if !r.OK {
		t.Fatalf("Run s2 failed: %s", r.Err)
	}
	if matches, _ := r.Data["matches"].([]any); len(matches) != 0 {
		t.Errorf("session s2 leaked %d matches from s1", len(matches))
	}
}

func TestSessionLane_SkipsUnreadableAttachment(t *testing.T) {
	lane, _ := testSessionLane(t)
	missing := omniagent.Attachment{ID: "gone1234", Kind: "doc", Name: "gone.txt", Path: "gone1234_gone.txt"}

	st := &omniagent.RunState{SessionID: "s1", Attachments: []omniagent.Attachment{missing}}
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskRAG, Query: "anything"}
	r := lane.Run(context.Background(), task, st, nil)
	if !r.OK {
		t.Fatalf("Run failed on missing file: %s", r.Err)
	}
	if matches, _ := r.Data["matches"].([]any); len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestSessionLane_DoesNotReindex(t *testing.T) {
	lane, assetRoot := testSessionLane(t)
	att := writeUpload(t, assetRoot, "s1", "doc.txt", "Carllm summary.")
	st := &omniagent.RunState{SessionID: "s1", Attachments: []omniagent.Attachment{att}}
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskRAG, Query: "carllm", TopK: 10}

	if r := lane.Run(context.Background(), task, st, nil); !r.OK {
		t.Fatalf("first Run failed: %s", r.Err)
	}
	first := countMatches(t, lane, task, st)
	if r := lane.Run(context.Background(), task, st, nil); !r.OK {
		t.Fatal("second Run failed")
	}
	second := countMatches(t, lane, task, st)
	if first != second {
		t.Errorf("match count changed after re-run: %d vs %d", first, second)
	}
}

func countMatches(t *testing.T, lane *SessionLane, task omniagent.Task, st *omniagent.RunState) int {
	t.Helper()
	r := lane.Run(context.Background(), task, st, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	matches, _ := r.Data["matches"].([]any)
	return len(matches)
}
