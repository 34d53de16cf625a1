package omniagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Event types multiplexed onto the run's SSE stream.
const (
	EventRunStart   = "run_start"
	EventToken      = "token"
	EventBlockStart = "block_start"
	EventBlockToken = "block_token"
	EventBlockEnd   = "block_end"
	EventTaskStart  = "task_start"
	EventTaskResult = "task_result"
	EventError      = "error"
	EventRunEnd     = "run_end"
)

// Event is one frame on the run's SSE stream.
type Event struct {
	Type    string         `json:"type"`
	RunID   string         `json:"run_id"`
	TraceID string         `json:"trace_id,omitempty"`
	TSMs    int64          `json:"ts_ms"`
	Data    map[string]any `json:"data"`
}

// Emitter multiplexes events from concurrent lane goroutines into one
// ordered stream. Emit serializes under a mutex, so events observe a single
// total order regardless of which goroutine produced them.
type Emitter struct {
	runID   string
	traceID string
	ch      chan Event
	logger  *slog.Logger

	logTokens bool
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithEmitterLogger sets the structured logger used for per-event logging.
func WithEmitterLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l }
}

// WithTokenLogging enables logging of token events, which are otherwise
// skipped to keep logs readable.
func WithTokenLogging(on bool) EmitterOption {
	return func(e *Emitter) { e.logTokens = on }
}

// NewEmitter creates an emitter with a bounded buffer. Events returns the
// consumer side; the caller drains it until Close.
func NewEmitter(runID, traceID string, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		runID:   runID,
		traceID: traceID,
		ch:      make(chan Event, 256),
		logger:  slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the ordered event stream. Closed by Close.
func (e *Emitter) Events() <-chan Event { return e.ch }

// Close ends the stream. Must be called exactly once, after all producers
// have finished emitting.
func (e *Emitter) Close() { close(e.ch) }

// Emit appends an event to the stream. Blocks when the buffer is full so
// fast producers cannot outrun the client indefinitely.
func (e *Emitter) Emit(eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if eventType != EventToken || e.logTokens {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.logger.Info("sse emit",
			"type", eventType,
			"run_id", e.runID,
			"trace_id", e.traceID,
			"keys", strings.Join(keys, ","))
	}
	e.ch <- Event{
		Type:    eventType,
		RunID:   e.runID,
		TraceID: e.traceID,
		TSMs:    NowMillis(),
		Data:    data,
	}
}

// EmitToken is shorthand for a token event.
func (e *Emitter) EmitToken(text string) {
	e.Emit(EventToken, map[string]any{"text": text})
}

var tokenSplitRe = regexp.MustCompile(`\S+|\s+`)

// SplitTokens splits text into word and whitespace runs, preserving the
// original text exactly when the tokens are concatenated.
func SplitTokens(text string) []string {
	return tokenSplitRe.FindAllString(text, -1)
}

// StreamFixed emits a fixed text deterministically as token events, pacing
// each token by delay. Returns early when ctx is canceled.
func (e *Emitter) StreamFixed(ctx context.Context, text string, delay time.Duration) {
	for _, tok := range SplitTokens(text) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.EmitToken(tok)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// SSERetryMillis is sent as the SSE retry hint at stream start.
const SSERetryMillis = 1500

// WriteSSEHeader prepares w for an SSE response and writes the retry hint.
func WriteSSEHeader(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	fmt.Fprintf(w, "retry: %d\n\n", SSERetryMillis)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// WriteSSEEvent writes one event in SSE wire format and flushes.
func WriteSSEEvent(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// discardHandler is a slog.Handler that drops everything.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// NopLogger returns a logger that discards all records.
func NopLogger() *slog.Logger { return slog.New(discardHandler{}) }
