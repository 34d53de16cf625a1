package omniagent

import (
	"context"
	"strings"
	"testing"
)

func testEngine() *Engine {
	return NewEngine(nil, NewLaneRegistry())
}

func TestToolRouterWebAddsWikipedia(t *testing.T) {
	e := testEngine()
	st := &RunState{UserText: "who was Ada Lovelace"}
	st.Plan.SetFlag(FlagNeedsWeb, true)
	if err := e.toolRouterNode(context.Background(), st, nil); err != nil {
		t.Fatal(err)
	}
	if len(st.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(st.Tasks))
	}
	srcs := st.Tasks[0].Sources
	if len(srcs) != 2 || srcs[0] != SourceTavily || srcs[1] != SourceWikipedia {
		t.Errorf("sources = %v", srcs)
	}
}

func TestToolRouterNewsQuerySkipsWikipedia(t *testing.T) {
	e := testEngine()
	st := &RunState{UserText: "latest news about fusion energy"}
	st.Plan.SetFlag(FlagNeedsWeb, true)
	e.toolRouterNode(context.Background(), st, nil)
	srcs := st.Tasks[0].Sources
	if len(srcs) != 1 || srcs[0] != SourceTavily {
		t.Errorf("sources = %v", srcs)
	}
}

func TestToolRouterImagePromptExtraction(t *testing.T) {
	e := testEngine()
	st := &RunState{UserText: "generate an image of a red fox, and explain what foxes eat"}
	st.Plan.SetFlag(FlagNeedsImageGen, true)
	e.toolRouterNode(context.Background(), st, nil)

	var img *Task
	for i := range st.Tasks {
		if st.Tasks[i].Kind == TaskImageGen {
			img = &st.Tasks[i]
		}
	}
	if img == nil {
		t.Fatal("no image task")
	}
	if img.Prompt != "a red fox" {
		t.Errorf("prompt = %q", img.Prompt)
	}
	if img.Size != "1024x1024" {
		t.Errorf("size = %q", img.Size)
	}
	// Tool clause removed from the text-lane query.
	if strings.Contains(st.TextQuery, "image") {
		t.Errorf("text query still carries the clause: %q", st.TextQuery)
	}
	if !strings.Contains(st.TextQuery, "foxes eat") {
		t.Errorf("text query lost the remainder: %q", st.TextQuery)
	}
}

func TestToolRouterImageEditUsesLinkedPrompt(t *testing.T) {
	e := testEngine()
	st := &RunState{
		UserText: "make it blue",
		Intent:   Intent{Type: "edit", TargetModality: "image"},
		Linked:   &LinkedArtifact{Kind: "image", Prompt: "a red fox"},
	}
	st.Plan.SetFlag(FlagNeedsImageGen, true)
	e.toolRouterNode(context.Background(), st, nil)

	if len(st.Tasks) != 1 {
		t.Fatalf("tasks = %d", len(st.Tasks))
	}
	p := st.Tasks[0].Prompt
	if !strings.HasPrefix(p, "a red fox") {
		t.Errorf("edit prompt missing base: %q", p)
	}
	if !strings.Contains(p, "Apply this edit request: make it blue") {
		t.Errorf("edit prompt missing request: %q", p)
	}
}

func TestToolRouterTTSRequiresExplicitCue(t *testing.T) {
	e := testEngine()
	st := &RunState{UserText: "write a poem about rivers"}
	st.Plan.SetFlag(FlagNeedsTTS, true)
	e.toolRouterNode(context.Background(), st, nil)
	for _, task := range st.Tasks {
		if task.Kind == TaskTTS {
			t.Error("tts task created without an explicit audio cue")
		}
	}
}

func TestToolRouterDocSafetyNet(t *testing.T) {
	e := testEngine()
	// No doc flag set: the explicit request still yields a doc task.
	st := &RunState{UserText: `create a pdf about "solar power basics"`}
	e.toolRouterNode(context.Background(), st, nil)

	var doc *Task
	for i := range st.Tasks {
		if st.Tasks[i].Kind == TaskDoc {
			doc = &st.Tasks[i]
		}
	}
	if doc == nil {
		t.Fatal("safety net did not add a doc task")
	}
	if doc.Instruction != DocGenerate {
		t.Errorf("instruction = %q", doc.Instruction)
	}
	if doc.Format != "pdf" {
		t.Errorf("format = %q", doc.Format)
	}
	if doc.Prompt != "solar power basics" {
		t.Errorf("prompt = %q", doc.Prompt)
	}
}

func TestToolRouterDocExtractWithAttachment(t *testing.T) {
	e := testEngine()
	st := &RunState{
		UserText:    "summarize this document",
		Attachments: []Attachment{{ID: "d1", Kind: "doc", Name: "notes.pdf"}},
	}
	st.Plan.SetFlag(FlagNeedsDoc, true)
	e.toolRouterNode(context.Background(), st, nil)

	if len(st.Tasks) != 1 {
		t.Fatalf("tasks = %d", len(st.Tasks))
	}
	if st.Tasks[0].Instruction != DocExtract || st.Tasks[0].AttachmentID != "d1" {
		t.Errorf("task = %+v", st.Tasks[0])
	}
}

func TestDocFormatFromText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"make a pdf about cats", "pdf"},
		{"export as docx please", "doc"},
		{"write a text file", "txt"},
		{"markdown notes on go", "md"},
		{"a document about trains", "txt"},
	}
	for _, tt := range tests {
		if got := docFormatFromText(tt.in); got != tt.want {
			t.Errorf("docFormatFromText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskValidateDropsDuplicatesAndClamps(t *testing.T) {
	e := testEngine()
	st := &RunState{Tasks: []Task{
		{ID: "1", Kind: TaskWeb, Query: "Go generics", TopK: 99},
		{ID: "2", Kind: TaskWeb, Query: "go generics", TopK: 5},
		{ID: "3", Kind: TaskRAG, Query: "go generics", TopK: 0},
		{ID: "4", Kind: "", Query: "orphan"},
	}}
	if err := e.taskValidateNode(context.Background(), st, nil); err != nil {
		t.Fatal(err)
	}
	if len(st.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2: %+v", len(st.Tasks), st.Tasks)
	}
	if st.Tasks[0].TopK != 8 {
		t.Errorf("TopK not clamped down: %d", st.Tasks[0].TopK)
	}
	if st.Tasks[1].TopK != 5 {
		t.Errorf("TopK not defaulted: %d", st.Tasks[1].TopK)
	}
}
