package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	omniagent "github.com/rishisan99/OmniAgent"
)

const arxivAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Attention Is
      Still All You Need</title>
    <summary>  A study of attention.  </summary>
    <published>2024-01-02T00:00:00Z</published>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://example.com/not-arxiv</id>
    <title>Bogus Entry</title>
    <summary>no abs url</summary>
    <published>2024-01-01T00:00:00Z</published>
  </entry>
</feed>`

// testServer serves canned payloads per source path and 404s everything
// else so enrichment fetches fail fast.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tavily", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"results":[{"title":"Go 1.25 released","url":"http://127.0.0.1:1/page","content":"Go 1.25 adds things.","score":0.91}]}`))
	})
	mux.HandleFunc("/wiki", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"query":{"search":[{"title":"Go (programming language)","snippet":"<span class=\"searchmatch\">Go</span> is a language"}]}}`))
	})
	mux.HandleFunc("/arxiv", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/atom+xml")
		rw.Write([]byte(arxivAtom))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testLane(t *testing.T, key string) *Lane {
	t.Helper()
	srv := testServer(t)
	lane := New(key)
	lane.tavilyURL = srv.URL + "/tavily"
	lane.wikipediaURL = srv.URL + "/wiki"
	lane.arxivURL = srv.URL + "/arxiv"
	return lane
}

func partData(t *testing.T, r omniagent.ToolResult, source string) map[string]any {
	t.Helper()
	parts, ok := r.Data["parts"].([]any)
	if !ok {
		t.Fatalf("parts is %T", r.Data["parts"])
	}
	for _, p := range parts {
		pm, ok := p.(map[string]any)
		if !ok {
			t.Fatalf("part is %T", p)
		}
		if pm["source"] == source {
			data, _ := pm["data"].(map[string]any)
			return data
		}
	}
	t.Fatalf("no part for source %q", source)
	return nil
}

func TestLane_Kind(t *testing.T) {
	if got := New("").Kind(); got != omniagent.TaskWeb {
		t.Errorf("Kind() = %q, want %q", got, omniagent.TaskWeb)
	}
}

func TestRun_Tavily(t *testing.T) {
	lane := testLane(t, "key")
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskWeb, Query: "go release", Sources: []string{omniagent.SourceTavily}}
	r := lane.Run(context.Background(), task, nil, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	data := partData(t, r, omniagent.SourceTavily)
	results, _ := data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	m := results[0].(map[string]any)
	if m["title"] != "Go 1.25 released" {
		t.Errorf("title = %v", m["title"])
	}
	if len(r.Citations) != 1 || r.Citations[0].Title != "Go 1.25 released" {
		t.Errorf("citations = %+v", r.Citations)
	}
}

func TestRun_TavilyMissingKeyFails(t *testing.T) {
	lane := testLane(t, "")
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskWeb, Query: "q", Sources: []string{omniagent.SourceTavily}}
	r := lane.Run(context.Background(), task, nil, nil)
	if r.OK {
		t.Fatal("expected failure without api key")
	}
	if r.Err == "" {
		t.Error("empty error")
	}
}

func TestRun_Wikipedia(t *testing.T) {
	lane := testLane(t, "")
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskWeb, Query: "go", Sources: []string{omniagent.SourceWikipedia}}
	r := lane.Run(context.Background(), task, nil, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	data := partData(t, r, omniagent.SourceWikipedia)
	results, _ := data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	m := results[0].(map[string]any)
	content, _ := m["content"].(string)
	if content != "Go is a language" {
		t.Errorf("snippet not stripped: %q", content)
	}
	url, _ := m["url"].(string)
	if url != "https://en.wikipedia.org/wiki/Go_(programming_language)" {
		t.Errorf("url = %q", url)
	}
}

func TestRun_Arxiv(t *testing.T) {
	lane := testLane(t, "")
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskWeb, Query: "attention", Sources: []string{omniagent.SourceArxiv}}
	r := lane.Run(context.Background(), task, nil, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	data := partData(t, r, omniagent.SourceArxiv)
	items, _ := data["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (non-abs entries dropped)", len(items))
	}
	m := items[0].(map[string]any)
	if m["title"] != "Attention Is Still All You Need" {
		t.Errorf("title whitespace not collapsed: %v", m["title"])
	}
	if m["url"] != "http://arxiv.org/abs/2401.00001v1" {
		t.Errorf("url = %v", m["url"])
	}
	if m["published"] != "2024-01-02T00:00:00Z" {
		t.Errorf("published = %v", m["published"])
	}
}

func TestBuildArxivQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		search   string
		sortBy   string
		hasBoost bool
	}{
		{
			name:   "plain query",
			query:  "attention mechanisms",
			search: "all:attention mechanisms",
			sortBy: "submittedDate",
		},
		{
			name:   "quoted title hint",
			query:  `papers like "Attention Is All You Need"`,
			search: `ti:"Attention Is All You Need" OR all:"Attention Is All You Need"`,
			sortBy: "relevance",
		},
		{
			name:     "genai scoped to cs categories",
			query:    "recent llm alignment work",
			search:   "(all:recent llm alignment work) AND (cat:cs.CL OR cat:cs.LG OR cat:cs.AI OR cat:cs.CV)",
			sortBy:   "submittedDate",
			hasBoost: true,
		},
		{
			name:   "year becomes submittedDate filter",
			query:  "graph neural networks 2021",
			search: "(all:graph neural networks 2021) AND submittedDate:[202101010000 TO 202112312359]",
			sortBy: "submittedDate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildArxivQuery(tt.query)
			if got.search != tt.search {
				t.Errorf("search = %q, want %q", got.search, tt.search)
			}
			if got.sortBy != tt.sortBy {
				t.Errorf("sortBy = %q, want %q", got.sortBy, tt.sortBy)
			}
			if (len(got.boost) > 0) != tt.hasBoost {
				t.Errorf("boost terms = %v, want present=%v", got.boost, tt.hasBoost)
			}
		})
	}
}

func TestRankArxivEntries(t *testing.T) {
	entries := []arxivEntry{
		{Title: "Bird Migration Patterns", Summary: "seasonal movement of birds"},
		{Title: "A Survey of LLM Agents", Summary: "large language model planning"},
	}
	ranked := rankArxivEntries(entries, "llm agents", genAIBoostTerms)
	if ranked[0].Title != "A Survey of LLM Agents" {
		t.Errorf("top entry = %q, want the topical paper first", ranked[0].Title)
	}
}

func TestRun_ArxivTitleHintParams(t *testing.T) {
	var gotQuery, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		gotSort = r.URL.Query().Get("sortBy")
		rw.Header().Set("Content-Type", "application/atom+xml")
		rw.Write([]byte(arxivAtom))
	}))
	t.Cleanup(srv.Close)
	lane := New("")
	lane.arxivURL = srv.URL

	task := omniagent.Task{
		ID: "t1", Kind: omniagent.TaskWeb,
		Query:   `find "Attention Is All You Need"`,
		Sources: []string{omniagent.SourceArxiv},
	}
	if r := lane.Run(context.Background(), task, nil, nil); !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	want := `ti:"Attention Is All You Need" OR all:"Attention Is All You Need"`
	if gotQuery != want {
		t.Errorf("search_query = %q, want %q", gotQuery, want)
	}
	if gotSort != "relevance" {
		t.Errorf("sortBy = %q, want relevance", gotSort)
	}
}

func TestRun_PartialFailureStillOK(t *testing.T) {
	// No tavily key, but wikipedia answers: the lane succeeds with one part.
	lane := testLane(t, "")
	task := omniagent.Task{
		ID: "t1", Kind: omniagent.TaskWeb, Query: "go",
		Sources: []string{omniagent.SourceTavily, omniagent.SourceWikipedia},
	}
	r := lane.Run(context.Background(), task, nil, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	parts, _ := r.Data["parts"].([]any)
	if len(parts) != 1 {
		t.Errorf("got %d parts, want 1", len(parts))
	}
}

func TestRun_DefaultsToTavily(t *testing.T) {
	lane := testLane(t, "key")
	task := omniagent.Task{ID: "t1", Kind: omniagent.TaskWeb, Query: "go"}
	r := lane.Run(context.Background(), task, nil, nil)
	if !r.OK {
		t.Fatalf("Run failed: %s", r.Err)
	}
	if _, ok := r.Data["parts"].([]any); !ok {
		t.Fatal("missing parts")
	}
	partData(t, r, omniagent.SourceTavily)
}
