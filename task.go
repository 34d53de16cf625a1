package omniagent

// Task kinds.
const (
	TaskWeb      = "web"
	TaskRAG      = "rag"
	TaskKBRAG    = "kb_rag"
	TaskVision   = "vision"
	TaskImageGen = "image_gen"
	TaskTTS      = "tts"
	TaskDoc      = "doc"
)

// Doc task instructions.
const (
	DocExtract  = "extract"
	DocGenerate = "generate"
)

// Task is one unit of lane work. Kind discriminates which fields apply:
//
//	web:       Query, TopK, Sources
//	rag:       Query, TopK
//	kb_rag:    Query, TopK
//	vision:    Prompt, ImageAttachmentID
//	image_gen: Prompt, Size, SubjectLock
//	tts:       Text, Voice
//	doc:       Instruction, AttachmentID or Prompt, Format
type Task struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	Query   string   `json:"query,omitempty"`
	TopK    int      `json:"top_k,omitempty"`
	Sources []string `json:"sources,omitempty"`

	Prompt            string `json:"prompt,omitempty"`
	Size              string `json:"size,omitempty"`
	SubjectLock       string `json:"subject_lock,omitempty"`
	ImageAttachmentID string `json:"image_attachment_id,omitempty"`

	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`

	Instruction  string `json:"instruction,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Format       string `json:"format,omitempty"` // "pdf", "doc", "txt", "md"
}

// Anchor returns the text that identifies a task for dedup purposes.
func (t Task) Anchor() string {
	for _, s := range []string{t.Query, t.Prompt, t.Text, t.Instruction} {
		if s != "" {
			return s
		}
	}
	return ""
}

// knowledgeKinds are lanes whose output feeds the synthesizer.
var knowledgeKinds = map[string]bool{
	TaskWeb:    true,
	TaskRAG:    true,
	TaskKBRAG:  true,
	TaskVision: true,
}

// mediaKinds are lanes that produce artifacts and never block the
// synthesizer.
var mediaKinds = map[string]bool{
	TaskImageGen: true,
	TaskTTS:      true,
	TaskDoc:      true,
}

// IsKnowledge reports whether the task belongs to the knowledge cohort.
func (t Task) IsKnowledge() bool { return knowledgeKinds[t.Kind] }

// IsMedia reports whether the task belongs to the media cohort.
func (t Task) IsMedia() bool { return mediaKinds[t.Kind] }

// BlockTitle is the fixed UI title for a lane's result block.
func BlockTitle(t Task) string {
	switch t.Kind {
	case TaskWeb:
		if len(t.Sources) == 1 && t.Sources[0] == SourceArxiv {
			return "Results from Arxiv"
		}
		return "Results from Web"
	case TaskRAG:
		return "Document Context"
	case TaskKBRAG:
		return "Knowledge Base"
	case TaskImageGen:
		return "Generated Image"
	case TaskTTS:
		return "Generated Audio"
	case TaskDoc:
		return "Generated Document"
	case TaskVision:
		return "Vision Analysis"
	}
	return ""
}
