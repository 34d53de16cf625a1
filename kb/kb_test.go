package kb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rishisan99/OmniAgent/store/sqlite"
)

// fakeEmbedder produces deterministic vectors keyed on a few trigger words
// so similarity ordering is predictable in tests.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		low := strings.ToLower(t)
		v := []float32{0.1, 0.1, 0.1}
		if strings.Contains(low, "lancaster") {
			v = []float32{1, 0, 0}
		} else if strings.Contains(low, "rellm") {
			v = []float32{0, 1, 0}
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Name() string    { return "fake" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeKBFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func testEngine(t *testing.T) (*Engine, *fakeEmbedder, string) {
	t.Helper()
	root := t.TempDir()
	store := sqlite.New(filepath.Join(t.TempDir(), "kb.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	emb := &fakeEmbedder{}
	return New(root, store, emb), emb, root
}

func TestEnsure_BuildsAndSkipsWhenUnchanged(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "avery_lancaster.md", "# Avery Lancaster\n\nAvery Lancaster is the CEO of Insurellm.")

	sig1, err := e.Ensure(ctx)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if sig1 == "" {
		t.Fatal("empty signature")
	}
	n, err := e.store.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if n == 0 {
		t.Fatal("expected chunks after initial Ensure")
	}

	sig2, err := e.Ensure(ctx)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if sig2 != sig1 {
		t.Errorf("signature changed without file changes: %q vs %q", sig1, sig2)
	}
}

func TestEnsure_IgnoresUnsupportedFiles(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "notes.md", "Rellm is an insurance product.")
	writeKBFile(t, root, "binary.exe", "not indexable")

	if _, err := e.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	docs, err := e.store.ListDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Source != "notes.md" {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestSearch_ReturnsMatchesAndCitations(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "avery_lancaster.md", "Avery Lancaster is the CEO of Insurellm.")
	writeKBFile(t, root, "rellm.md", "Rellm is the reinsurance platform.")

	res, err := e.Search(ctx, "who is Avery Lancaster", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.EntityNotFound != "" {
		t.Fatalf("unexpected entity miss: %q", res.EntityNotFound)
	}
	if len(res.Matches) == 0 {
		t.Fatal("expected matches")
	}
	if res.Matches[0].Source != "avery_lancaster.md" {
		t.Errorf("best match source = %q, want avery_lancaster.md", res.Matches[0].Source)
	}
	if len(res.Citations) == 0 {
		t.Fatal("expected citations")
	}
	if want := "avery_lancaster.md (p.1)"; res.Citations[0].Title != want {
		t.Errorf("citation title = %q, want %q", res.Citations[0].Title, want)
	}
}

func TestSearch_EntityNotFound(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "rellm.md", "Rellm is the reinsurance platform.")

	res, err := e.Search(ctx, "who is Maxine Thompson", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.EntityNotFound != "Maxine Thompson" {
		t.Errorf("EntityNotFound = %q, want %q", res.EntityNotFound, "Maxine Thompson")
	}
	if len(res.Matches) != 0 {
		t.Errorf("expected no matches on entity miss, got %d", len(res.Matches))
	}
}

func TestSearch_RestrictsToEntitySource(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "avery_lancaster.md", "Avery Lancaster is the CEO of Insurellm.")
	writeKBFile(t, root, "samuel_trenton.md", "Samuel Trenton is a senior data scientist.")
	writeKBFile(t, root, "rellm.md", "Rellm is the reinsurance platform.")

	res, err := e.Search(ctx, "who is Avery Lancaster", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) == 0 {
		t.Fatal("expected matches")
	}
	for _, m := range res.Matches {
		if m.Source != "avery_lancaster.md" {
			t.Errorf("entity query leaked chunk from %q", m.Source)
		}
	}
}

func TestSearch_ShortNamePartsRestrict(t *testing.T) {
	e, _, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "mei_li.md", "Mei Li leads the actuarial team.")
	writeKBFile(t, root, "mei_wong.md", "Mei Wong manages the claims desk.")

	res, err := e.Search(ctx, "who is Mei Li", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) == 0 {
		t.Fatal("expected matches")
	}
	for _, m := range res.Matches {
		if m.Source != "mei_li.md" {
			t.Errorf("two-char name part did not restrict sources, got %q", m.Source)
		}
	}
}

func TestSearch_CachesByQueryAndK(t *testing.T) {
	e, emb, root := testEngine(t)
	ctx := context.Background()
	writeKBFile(t, root, "rellm.md", "Rellm is the reinsurance platform.")

	if _, err := e.Search(ctx, "tell me about Rellm", 3); err != nil {
		t.Fatalf("Search: %v", err)
	}
	calls := emb.callCount()
	if _, err := e.Search(ctx, "tell me about Rellm", 3); err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if emb.callCount() != calls {
		t.Error("cached query re-embedded the query text")
	}

	// Different k misses the cache.
	if _, err := e.Search(ctx, "tell me about Rellm", 5); err != nil {
		t.Fatalf("Search k=5: %v", err)
	}
	if emb.callCount() == calls {
		t.Error("expected a cache miss for a different top_k")
	}
}

func TestEntityHint(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"who is Avery Lancaster", "Avery Lancaster"},
		{"Who is Avery Lancaster?", "Avery Lancaster"},
		{"tell me about Rellm", "Rellm"},
		{"profile of Avery Lancaster", "Avery Lancaster"},
		{"summarize the quarterly report", ""},
		{"draft an onboarding checklist", ""},
	}
	for _, tt := range tests {
		if got := entityHint(tt.query); got != tt.want {
			t.Errorf("entityHint(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestEntityHint_QuotedSpanWins(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{`tell me about "Rellm"`, "Rellm"},
		{`what does the contract for 'Apex Re' cover`, "Apex Re"},
		{"pull up \"Avery   Lancaster\" for me", "Avery Lancaster"},
	}
	for _, tt := range tests {
		if got := entityHint(tt.query); got != tt.want {
			t.Errorf("entityHint(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestEntityHint_PoliteAndRoleForms(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"please tell me about employee Avery Lancaster", "Avery Lancaster"},
		{"can you tell me about Rellm", "Rellm"},
		{"could you profile of person Samuel Trenton", "Samuel Trenton"},
		{"show the record for employee Samuel Trenton", "Samuel Trenton"},
	}
	for _, tt := range tests {
		if got := entityHint(tt.query); got != tt.want {
			t.Errorf("entityHint(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Zoë Lefèvre", "zoe lefevre"},
		{"AVERY", "avery"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := fold(tt.in); got != tt.want {
			t.Errorf("fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
