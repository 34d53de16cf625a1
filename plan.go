package omniagent

// Run modes.
const (
	ModeTextOnly      = "text_only"
	ModeTextPlusTools = "text_plus_tools"
	ModeToolsOnly     = "tools_only"
)

// Web sources.
const (
	SourceTavily    = "tavily"
	SourceWikipedia = "wikipedia"
	SourceArxiv     = "arxiv"
)

// Plan flags.
const (
	FlagNeedsWeb      = "needs_web"
	FlagNeedsRAG      = "needs_rag"
	FlagNeedsKBRAG    = "needs_kb_rag"
	FlagNeedsDoc      = "needs_doc"
	FlagNeedsVision   = "needs_vision"
	FlagNeedsTTS      = "needs_tts"
	FlagNeedsImageGen = "needs_image_gen"
)

// TextPlan controls the main text lane.
type TextPlan struct {
	Enabled     bool   `json:"enabled"`
	Style       string `json:"style,omitempty"` // "direct", "bullet", "detailed"
	Instruction string `json:"instruction,omitempty"`
}

// RunPlan is the classifier's verdict on how the turn should execute.
type RunPlan struct {
	Mode      string          `json:"mode"`
	Text      TextPlan        `json:"text"`
	Flags     map[string]bool `json:"flags"`
	WebSource string          `json:"web_source,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// Flag reports whether a plan flag is set, tolerating a nil map.
func (p *RunPlan) Flag(name string) bool {
	return p.Flags != nil && p.Flags[name]
}

// SetFlag sets a plan flag, allocating the map on first use.
func (p *RunPlan) SetFlag(name string, v bool) {
	if p.Flags == nil {
		p.Flags = map[string]bool{}
	}
	p.Flags[name] = v
}

// WantsTools reports whether the plan schedules any tool lane, either via
// a non-text mode or an individual lane flag.
func (p *RunPlan) WantsTools() bool {
	if p.Mode == ModeToolsOnly || p.Mode == ModeTextPlusTools {
		return true
	}
	for _, v := range p.Flags {
		if v {
			return true
		}
	}
	return false
}

// Intent is the classifier's reading of the user's goal.
type Intent struct {
	Type           string  `json:"intent_type"` // "chat", "create", "edit", "mixed"
	TargetModality string  `json:"target_modality"`
	Confidence     float64 `json:"confidence"`
}

// PlanRuntime carries the planner's execution constraints for the turn.
type PlanRuntime struct {
	IntentType     string  `json:"intent_type"`
	TargetModality string  `json:"target_modality"`
	Confidence     float64 `json:"confidence"`
	MaxReplans     int     `json:"max_replans"`
	SubjectLock    string  `json:"subject_lock,omitempty"`

	Iteration       int    `json:"iteration"`
	MaxIterations   int    `json:"max_iterations"`
	ReplanRequested bool   `json:"replan_requested"`
	ReplanReason    string `json:"replan_reason,omitempty"`
}

// ResponseContract is the role-pack output steering the synthesizer.
type ResponseContract struct {
	ResearcherBrief string `json:"researcher_brief"`
	WriterPlan      string `json:"writer_plan"`
	CriticChecks    string `json:"critic_checks"`
}

// LinkedArtifact is a prior artifact the current turn operates on.
type LinkedArtifact struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Prompt string `json:"prompt,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ContextBundle summarizes session context relevant to planning.
type ContextBundle struct {
	HasLastImage bool `json:"has_last_image"`
	IsImageEdit  bool `json:"is_image_edit"`
}
