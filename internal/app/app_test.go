package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/internal/config"
	"github.com/rishisan99/OmniAgent/tools/media"
)

// scriptedProvider streams a fixed reply for every request.
type scriptedProvider struct {
	reply string
}

func (p *scriptedProvider) Name() string { return "fake" }

func (p *scriptedProvider) Chat(_ context.Context, _ omniagent.ChatRequest) (omniagent.ChatResponse, error) {
	return omniagent.ChatResponse{Content: p.reply}, nil
}

func (p *scriptedProvider) ChatStream(_ context.Context, _ omniagent.ChatRequest, ch chan<- omniagent.StreamEvent) (omniagent.ChatResponse, error) {
	for _, tok := range omniagent.SplitTokens(p.reply) {
		ch <- omniagent.StreamEvent{Type: omniagent.EventTextDelta, Content: tok}
	}
	close(ch)
	return omniagent.ChatResponse{Content: p.reply}, nil
}

func testApp(t *testing.T, reply string) (*App, *omniagent.SessionStore, *media.Assets) {
	t.Helper()
	provider := &scriptedProvider{reply: reply}
	resolver := func(_, _ string) (omniagent.Provider, error) { return provider, nil }
	engine := omniagent.NewEngine(resolver, omniagent.NewLaneRegistry())
	sessions := omniagent.NewSessionStore()
	assets := media.NewAssets(t.TempDir())
	a := New(config.Default(), Deps{Engine: engine, Sessions: sessions, Assets: assets})
	return a, sessions, assets
}

func TestChatStream(t *testing.T) {
	a, sessions, _ := testApp(t, "Hello! How can I help you today?")

	body := `{"session_id":"s1","text":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.HasPrefix(out, "retry: 1500") {
		t.Errorf("missing SSE retry hint: %q", out[:min(len(out), 40)])
	}
	if !strings.Contains(out, "run_start") {
		t.Error("missing run_start event")
	}
	if !strings.Contains(out, "run_end") {
		t.Error("missing run_end event")
	}
	if !strings.Contains(out, "Hello") {
		t.Error("reply tokens not streamed")
	}

	sess := sessions.Get("s1")
	if len(sess.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(sess.History))
	}
	if sess.History[0].Role != "user" || sess.History[0].Content != "hi" {
		t.Errorf("user turn = %+v", sess.History[0])
	}
	if sess.History[1].Role != "assistant" {
		t.Errorf("assistant turn = %+v", sess.History[1])
	}
}

func TestChatStreamBadBody(t *testing.T) {
	a, _, _ := testApp(t, "x")
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func multipartUpload(t *testing.T, sessionID, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("session_id", sessionID)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="files"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	a, sessions, assets := testApp(t, "x")

	buf, ct := multipartUpload(t, "s1", "cat photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if len(resp.Attachments) != 1 {
		t.Fatalf("got %d attachments", len(resp.Attachments))
	}
	att := resp.Attachments[0]
	if att.Kind != "image" {
		t.Errorf("kind = %q, want image", att.Kind)
	}
	if att.Name != "cat_photo.png" {
		t.Errorf("name = %q, want cat_photo.png", att.Name)
	}
	if !strings.HasSuffix(att.Path, "_cat_photo.png") {
		t.Errorf("path = %q", att.Path)
	}
	if !strings.HasPrefix(att.URL, "/api/assets/s1/") {
		t.Errorf("url = %q", att.URL)
	}

	// Stored and registered on the session.
	if _, err := assets.Open("s1", att.Path); err != nil {
		t.Errorf("stored file unreadable: %v", err)
	}
	if got := len(sessions.Get("s1").Attachments); got != 1 {
		t.Errorf("session attachments = %d, want 1", got)
	}
}

func TestUploadTooManyAttachments(t *testing.T) {
	a, sessions, _ := testApp(t, "x")
	sess := sessions.Get("s1")
	for i := 0; i < maxAttachments; i++ {
		sess.Attachments = append(sess.Attachments, omniagent.Attachment{ID: omniagent.ShortID(), Kind: "doc"})
	}

	buf, ct := multipartUpload(t, "s1", "more.txt", "text/plain", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAssetRoute(t *testing.T) {
	a, _, assets := testApp(t, "x")
	if _, err := assets.SaveNamed("s1", "abc12345_notes.txt", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/assets/s1/abc12345_notes.txt", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/assets/s1/missing.txt", nil)
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

func TestAssetRouteRejectsTraversal(t *testing.T) {
	a, _, _ := testApp(t, "x")
	req := httptest.NewRequest(http.MethodGet, "/api/assets/s1/..", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("traversal filename served")
	}
}

func TestModelsRoute(t *testing.T) {
	a, _, _ := testApp(t, "x")
	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp modelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DefaultProvider != "openai" {
		t.Errorf("default provider = %q", resp.DefaultProvider)
	}
	if len(resp.Providers["openai"]) == 0 {
		t.Error("openai models missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	a, _, _ := testApp(t, "x")
	req := httptest.NewRequest(http.MethodOptions, "/api/models", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"my file (1).png", "my_file_1_.png"},
		{"", "upload"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
