package app

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/provider/resolve"
)

// Request limits on the chat surface.
const (
	maxUserChars   = 15000
	maxAttachments = 8
	maxUploadBytes = 32 << 20
)

// Handler returns the API routes with permissive CORS.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", a.handleChatStream)
	mux.HandleFunc("POST /api/upload", a.handleUpload)
	mux.HandleFunc("GET /api/assets/{session_id}/{filename}", a.handleAsset)
	mux.HandleFunc("GET /api/models", a.handleModels)
	return withCORS(mux)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Text      string `json:"text"`
}

// handleChatStream runs one turn and streams its events as SSE. A client
// disconnect cancels the run; the session is updated from whatever the
// run produced before the stream ended.
func (a *App) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = omniagent.NewID()
	}
	text := strings.TrimSpace(req.Text)
	if len(text) > maxUserChars {
		text = text[:maxUserChars]
	}

	sess := a.sessions.Get(req.SessionID)
	runID := omniagent.NewID()
	traceID := omniagent.ShortID()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	em := omniagent.NewEmitter(runID, traceID,
		omniagent.WithEmitterLogger(a.logger),
		omniagent.WithTokenLogging(a.cfg.Stream.LogSSETokens))

	outCh := make(chan omniagent.RunOutput, 1)
	go func() {
		out := a.engine.Run(ctx, omniagent.RunRequest{
			SessionID:       req.SessionID,
			RunID:           runID,
			TraceID:         traceID,
			Provider:        req.Provider,
			Model:           req.Model,
			Text:            text,
			Attachments:     sess.Attachments,
			History:         sess.History,
			Artifacts:       sess.Artifacts,
			LastImagePrompt: sess.LastImagePrompt,
		}, em)
		em.Close()
		outCh <- out
	}()

	omniagent.WriteSSEHeader(w)
	for ev := range em.Events() {
		if err := omniagent.WriteSSEEvent(w, ev); err != nil {
			// Client gone: cancel the run and drain remaining events.
			cancel()
		}
	}
	out := <-outCh

	sess.AppendTurn(text, out.FinalText)
	sess.Artifacts = out.Artifacts
	sess.LastImagePrompt = out.LastImagePrompt
}

type uploadResponse struct {
	SessionID   string                 `json:"session_id"`
	Attachments []omniagent.Attachment `json:"attachments"`
}

// handleUpload accepts multipart files, stores them under the session's
// asset directory, and registers them as attachments for the next run.
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = omniagent.NewID()
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		httpError(w, http.StatusBadRequest, "no files in request")
		return
	}

	sess := a.sessions.Get(sessionID)
	if len(sess.Attachments)+len(files) > maxAttachments {
		httpError(w, http.StatusBadRequest, "too many attachments for session")
		return
	}

	var added []omniagent.Attachment
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			httpError(w, http.StatusBadRequest, "unreadable file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			httpError(w, http.StatusBadRequest, "unreadable file")
			return
		}

		name := sanitizeFilename(fh.Filename)
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(name))
		}

		fid := omniagent.ShortID()
		stored := fid + "_" + name
		url, err := a.assets.SaveNamed(sessionID, stored, data)
		if err != nil {
			a.logger.Error("upload store failed", "session_id", sessionID, "err", err)
			httpError(w, http.StatusInternalServerError, "could not store file")
			return
		}

		att := omniagent.Attachment{
			ID:   fid,
			Kind: kindForMime(mimeType),
			Name: name,
			Mime: mimeType,
			Path: stored,
			URL:  url,
		}
		sess.Attachments = append(sess.Attachments, att)
		added = append(added, att)
	}

	writeJSON(w, http.StatusOK, uploadResponse{SessionID: sessionID, Attachments: added})
}

// handleAsset serves a stored session file. Path traversal is rejected by
// refusing any filename with separators or parent references.
func (a *App) handleAsset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	filename := r.PathValue("filename")
	if !safePathComponent(sessionID) || !safePathComponent(filename) {
		http.NotFound(w, r)
		return
	}
	data, err := a.assets.Open(sessionID, filename)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Write(data)
}

type modelsResponse struct {
	Providers       map[string][]string `json:"providers"`
	DefaultProvider string              `json:"default_provider"`
	DefaultModel    string              `json:"default_model"`
}

func (a *App) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Providers:       resolve.ProviderModels,
		DefaultProvider: resolve.DefaultProvider,
		DefaultModel:    resolve.DefaultModel,
	})
}

// kindForMime maps a mime type to the attachment kind by prefix.
func kindForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "doc"
	}
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename strips directories and replaces anything outside a
// conservative character set.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeNameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return name
}

func safePathComponent(s string) bool {
	return s != "" && s != "." && s != ".." &&
		!strings.ContainsAny(s, "/\\")
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
