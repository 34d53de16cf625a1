package omniagent

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSplitTokens(t *testing.T) {
	cases := []string{
		"Hello world",
		"  leading and trailing  ",
		"one\ntwo\n\nthree",
		"",
	}
	for _, text := range cases {
		toks := SplitTokens(text)
		if got := strings.Join(toks, ""); got != text {
			t.Errorf("SplitTokens(%q) does not round-trip: %q", text, got)
		}
	}

	toks := SplitTokens("Hello  world")
	want := []string{"Hello", "  ", "world"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestEmitterOrderAndClose(t *testing.T) {
	em := NewEmitter("r1", "t1")
	em.Emit(EventRunStart, map[string]any{"session_id": "s1"})
	em.EmitToken("hi")
	em.Emit(EventRunEnd, map[string]any{"ok": true})
	em.Close()

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].Type != EventRunStart || got[1].Type != EventToken || got[2].Type != EventRunEnd {
		t.Errorf("order = %s, %s, %s", got[0].Type, got[1].Type, got[2].Type)
	}
	for _, ev := range got {
		if ev.RunID != "r1" || ev.TraceID != "t1" {
			t.Errorf("event ids = %q/%q", ev.RunID, ev.TraceID)
		}
		if ev.TSMs == 0 {
			t.Error("missing timestamp")
		}
	}
}

func TestStreamFixed(t *testing.T) {
	em := NewEmitter("r1", "t1")
	em.StreamFixed(context.Background(), "one two three", 0)
	em.Close()

	var text string
	for ev := range em.Events() {
		if ev.Type != EventToken {
			t.Fatalf("unexpected event %s", ev.Type)
		}
		text += ev.Data["text"].(string)
	}
	if text != "one two three" {
		t.Errorf("streamed = %q", text)
	}
}

func TestStreamFixedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	em := NewEmitter("r1", "t1")
	em.StreamFixed(ctx, "one two three", 0)
	em.Close()

	n := 0
	for range em.Events() {
		n++
	}
	if n != 0 {
		t.Errorf("cancelled stream emitted %d tokens", n)
	}
}

func TestWriteSSEEvent(t *testing.T) {
	var buf bytes.Buffer
	ev := Event{Type: EventToken, RunID: "r1", TSMs: 123, Data: map[string]any{"text": "hi"}}
	if err := WriteSSEEvent(&buf, ev); err != nil {
		t.Fatalf("WriteSSEEvent: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "event: token\ndata: ") {
		t.Errorf("frame = %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Error("frame not terminated by blank line")
	}
	if !strings.Contains(out, `"text":"hi"`) {
		t.Errorf("payload missing data: %q", out)
	}
}

func TestWriteSSEHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSSEHeader(rec)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "retry: 1500\n\n") {
		t.Errorf("missing retry hint: %q", rec.Body.String())
	}
}
