package omniagent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type downProvider struct{}

func (downProvider) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, errors.New("provider unavailable")
}

func (downProvider) ChatStream(_ context.Context, _ ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	close(ch)
	return ChatResponse{}, errors.New("provider unavailable")
}

func (downProvider) Name() string { return "down" }

type stubLane struct {
	kind string
	mu   sync.Mutex
	seen []Task
	run  func(Task) ToolResult
}

func (l *stubLane) Kind() string { return l.kind }

func (l *stubLane) Run(_ context.Context, t Task, _ *RunState, _ *Emitter) ToolResult {
	l.mu.Lock()
	l.seen = append(l.seen, t)
	l.mu.Unlock()
	return l.run(t)
}

func downResolver(string, string) (Provider, error) { return downProvider{}, nil }

func TestSubjectLockOK(t *testing.T) {
	tests := []struct {
		prompt, lock string
		want         bool
	}{
		{"a red fox in snow", "red fox", true},
		{"a bird on a wire", "red fox", false},
		{"the fox is red today", "red fox", true},
		{"anything", "", true},
		{"anything", "a i", false},
	}
	for _, tt := range tests {
		if got := subjectLockOK(tt.prompt, tt.lock); got != tt.want {
			t.Errorf("subjectLockOK(%q, %q) = %v, want %v", tt.prompt, tt.lock, got, tt.want)
		}
	}
}

func TestTaskPhrase(t *testing.T) {
	tests := []struct {
		tasks []Task
		want  string
	}{
		{nil, "response"},
		{[]Task{{Kind: TaskImageGen}}, "image"},
		{[]Task{{Kind: TaskImageGen}, {Kind: TaskTTS}}, "image and audio"},
		{[]Task{{Kind: TaskDoc}, {Kind: TaskImageGen}, {Kind: TaskTTS}}, "document, image, and audio"},
	}
	for _, tt := range tests {
		if got := taskPhrase(tt.tasks); got != tt.want {
			t.Errorf("taskPhrase = %q, want %q", got, tt.want)
		}
	}
}

func TestLanesNodeMediaOnly(t *testing.T) {
	lane := &stubLane{kind: TaskTTS, run: func(t Task) ToolResult {
		return ToolResult{
			TaskID: t.ID,
			Kind:   t.Kind,
			OK:     true,
			Data:   map[string]any{"filename": "a.mp3", "url": "/api/assets/s1/a.mp3"},
		}
	}}
	reg := NewLaneRegistry()
	reg.Register(lane)
	e := NewEngine(downResolver, reg)

	st := &RunState{
		UserText:  "create audio saying hello",
		Tasks:     []Task{{ID: "1", Kind: TaskTTS, Text: "hello", Voice: "alloy"}},
		Outputs:   map[string]ToolResult{},
		Artifacts: NewArtifactMemory(),
	}
	st.Plan = RunPlan{Mode: ModeToolsOnly, Text: TextPlan{Enabled: false}}

	em := NewEmitter("r1", "t1")
	if err := e.lanesNode(context.Background(), st, em); err != nil {
		t.Fatal(err)
	}
	em.Close()

	var blockIDs []string
	metaText := ""
	for ev := range em.Events() {
		switch ev.Type {
		case EventBlockStart:
			blockIDs = append(blockIDs, ev.Data["block_id"].(string))
		case EventBlockToken:
			if ev.Data["block_id"] == "__meta_initial__" {
				metaText += ev.Data["text"].(string)
			}
		}
	}

	if len(blockIDs) != 3 || blockIDs[0] != "__meta_initial__" || blockIDs[len(blockIDs)-1] != "__meta_conclusion__" {
		t.Errorf("block order = %v", blockIDs)
	}
	// Provider is down: the fixed fallback sentence streams instead.
	if strings.TrimSpace(metaText) != "Sure, I will handle your audio request." {
		t.Errorf("initial meta = %q", metaText)
	}
	if out := st.Outputs["1"]; !out.OK {
		t.Errorf("output = %+v", out)
	}
	if st.Artifacts.Audio == nil || st.Artifacts.Audio.URL != "/api/assets/s1/a.mp3" {
		t.Errorf("audio artifact = %+v", st.Artifacts.Audio)
	}
	if st.FinalText != "" {
		t.Errorf("media-only turn produced text: %q", st.FinalText)
	}
}

func TestLanesNodeSubjectLockRetry(t *testing.T) {
	lane := &stubLane{kind: TaskImageGen, run: func(t Task) ToolResult {
		return ToolResult{
			TaskID: t.ID,
			Kind:   t.Kind,
			OK:     true,
			Data:   map[string]any{"filename": "img.png", "url": "/x/img.png", "prompt": t.Prompt},
		}
	}}
	reg := NewLaneRegistry()
	reg.Register(lane)
	e := NewEngine(downResolver, reg)

	st := &RunState{
		UserText:  "make it fly",
		Tasks:     []Task{{ID: "1", Kind: TaskImageGen, Prompt: "a bird on a wire", SubjectLock: "red fox"}},
		Outputs:   map[string]ToolResult{},
		Artifacts: NewArtifactMemory(),
	}
	st.Plan = RunPlan{Mode: ModeToolsOnly}
	st.Runtime.MaxReplans = 1

	em := NewEmitter("r1", "t1")
	if err := e.lanesNode(context.Background(), st, em); err != nil {
		t.Fatal(err)
	}
	em.Close()
	for range em.Events() {
	}

	if len(lane.seen) != 2 {
		t.Fatalf("lane calls = %d, want 2 (retry after lock miss)", len(lane.seen))
	}
	if !strings.Contains(lane.seen[1].Prompt, "CRITICAL CONSTRAINT") {
		t.Errorf("retry prompt missing constraint: %q", lane.seen[1].Prompt)
	}
	if !strings.Contains(lane.seen[1].Prompt, "red fox") {
		t.Errorf("retry prompt missing lock subject: %q", lane.seen[1].Prompt)
	}
}

func TestLanesNodeTaskEvents(t *testing.T) {
	lane := &stubLane{kind: TaskTTS, run: func(t Task) ToolResult {
		return ToolResult{
			TaskID: t.ID,
			Kind:   t.Kind,
			OK:     true,
			Data:   map[string]any{"filename": "a.mp3", "url": "/api/assets/s1/a.mp3"},
		}
	}}
	reg := NewLaneRegistry()
	reg.Register(lane)
	e := NewEngine(downResolver, reg)

	st := &RunState{
		UserText:  "create audio saying hello",
		Tasks:     []Task{{ID: "1", Kind: TaskTTS, Text: "hello", Voice: "alloy"}},
		Outputs:   map[string]ToolResult{},
		Artifacts: NewArtifactMemory(),
	}
	st.Plan = RunPlan{Mode: ModeToolsOnly}

	em := NewEmitter("r1", "t1")
	if err := e.lanesNode(context.Background(), st, em); err != nil {
		t.Fatal(err)
	}
	em.Close()

	startIdx, resultIdx, endIdx := -1, -1, -1
	var startData, resultData map[string]any
	i := 0
	for ev := range em.Events() {
		switch ev.Type {
		case EventTaskStart:
			if ev.Data["task_id"] == "1" {
				startIdx, startData = i, ev.Data
			}
		case EventTaskResult:
			if ev.Data["task_id"] == "1" {
				resultIdx, resultData = i, ev.Data
			}
		case EventBlockEnd:
			if ev.Data["block_id"] == "1" {
				endIdx = i
			}
		}
		i++
	}

	if startIdx < 0 {
		t.Fatal("no task_start event for the lane task")
	}
	if resultIdx < 0 {
		t.Fatal("no task_result event for the lane task")
	}
	if endIdx < 0 {
		t.Fatal("no block_end event for the lane task")
	}
	if !(startIdx < resultIdx && resultIdx < endIdx) {
		t.Errorf("event order start=%d result=%d end=%d", startIdx, resultIdx, endIdx)
	}
	if startData["kind"] != TaskTTS || startData["query"] != "hello" {
		t.Errorf("task_start data = %v", startData)
	}
	if ok, _ := resultData["ok"].(bool); !ok {
		t.Errorf("task_result data = %v", resultData)
	}
	if _, present := resultData["errors"]; present {
		t.Errorf("errors on a successful task: %v", resultData)
	}
}

func TestLanesNodeConclusionBlockPerIteration(t *testing.T) {
	lane := &stubLane{kind: TaskTTS, run: func(t Task) ToolResult {
		return ToolResult{TaskID: t.ID, Kind: t.Kind, OK: true,
			Data: map[string]any{"filename": "a.mp3", "url": "/x/a.mp3"}}
	}}
	reg := NewLaneRegistry()
	reg.Register(lane)
	e := NewEngine(downResolver, reg)

	st := &RunState{
		UserText:  "create audio saying hello",
		Tasks:     []Task{{ID: "1", Kind: TaskTTS, Text: "hello"}},
		Outputs:   map[string]ToolResult{},
		Artifacts: NewArtifactMemory(),
	}
	st.Plan = RunPlan{Mode: ModeToolsOnly}
	st.Runtime.Iteration = 1

	em := NewEmitter("r1", "t1")
	if err := e.lanesNode(context.Background(), st, em); err != nil {
		t.Fatal(err)
	}
	em.Close()

	var blockIDs []string
	for ev := range em.Events() {
		if ev.Type == EventBlockStart {
			blockIDs = append(blockIDs, ev.Data["block_id"].(string))
		}
	}
	if len(blockIDs) == 0 {
		t.Fatal("no blocks streamed")
	}
	if got := blockIDs[len(blockIDs)-1]; got != "__meta_conclusion_2__" {
		t.Errorf("conclusion block id on replan = %q, want __meta_conclusion_2__", got)
	}
}

func TestLanesNodeUnregisteredKind(t *testing.T) {
	e := NewEngine(downResolver, NewLaneRegistry())
	st := &RunState{
		UserText:  "create audio saying hi",
		Tasks:     []Task{{ID: "1", Kind: TaskTTS, Text: "hi"}},
		Outputs:   map[string]ToolResult{},
		Artifacts: NewArtifactMemory(),
	}
	st.Plan = RunPlan{Mode: ModeToolsOnly}

	em := NewEmitter("r1", "t1")
	if err := e.lanesNode(context.Background(), st, em); err != nil {
		t.Fatal(err)
	}
	em.Close()
	sawError := false
	var resultData map[string]any
	for ev := range em.Events() {
		switch ev.Type {
		case EventError:
			sawError = true
		case EventTaskResult:
			resultData = ev.Data
		}
	}
	if !sawError {
		t.Error("missing error event for unregistered lane")
	}
	if out := st.Outputs["1"]; out.OK || out.Err == "" {
		t.Errorf("output = %+v", out)
	}
	if resultData == nil {
		t.Fatal("no task_result event for the failed task")
	}
	if ok, _ := resultData["ok"].(bool); ok {
		t.Error("failed task reported ok")
	}
	if errs, _ := resultData["errors"].([]string); len(errs) == 0 {
		t.Errorf("failed task carries no errors: %v", resultData)
	}
}
