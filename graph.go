package omniagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Note is one bounded agent-memory entry recorded by a graph node.
type Note struct {
	TSMs    int64          `json:"ts_ms"`
	Node    string         `json:"node"`
	Summary string         `json:"summary"`
	Extra   map[string]any `json:"extra,omitempty"`
}

const maxNotes = 120

// RunState is the mutable state threaded through the planning graph for a
// single turn. Nodes run sequentially; lanes fan out internally, so only
// the lane executor touches Outputs concurrently (under its own lock).
type RunState struct {
	SessionID string
	RunID     string
	TraceID   string
	Provider  string
	Model     string

	UserText    string
	TextQuery   string
	Attachments []Attachment
	History     []ChatMessage

	Artifacts       *ArtifactMemory
	LastImagePrompt string

	Context ContextBundle
	Linked  *LinkedArtifact
	Intent  Intent
	Runtime PlanRuntime
	Plan    RunPlan
	Tasks   []Task

	Contract         ResponseContract
	TextInstructions string

	Outputs            map[string]ToolResult
	FinalText          string
	InitialMetaEmitted bool

	Notes []Note
}

// PushNote appends an agent-memory note, keeping the last 120.
func (st *RunState) PushNote(node, summary string, extra map[string]any) {
	st.Notes = append(st.Notes, Note{TSMs: NowMillis(), Node: node, Summary: summary, Extra: extra})
	if len(st.Notes) > maxNotes {
		st.Notes = st.Notes[len(st.Notes)-maxNotes:]
	}
}

// Lane executes one task kind. Implementations live next to their tools
// and are registered on the engine at wiring time.
type Lane interface {
	// Kind returns the task kind this lane serves.
	Kind() string
	// Run executes the task and returns its result envelope. Run must not
	// panic; errors are reported through the envelope.
	Run(ctx context.Context, task Task, st *RunState, em *Emitter) ToolResult
}

// LaneRegistry maps task kinds to lanes.
type LaneRegistry struct {
	mu    sync.RWMutex
	lanes map[string]Lane
}

// NewLaneRegistry creates an empty registry.
func NewLaneRegistry() *LaneRegistry {
	return &LaneRegistry{lanes: make(map[string]Lane)}
}

// Register adds a lane, replacing any previous lane of the same kind.
func (r *LaneRegistry) Register(l Lane) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lanes[l.Kind()] = l
}

// Get returns the lane for kind, or nil.
func (r *LaneRegistry) Get(kind string) Lane {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lanes[kind]
}

// ModelRef selects a provider/model pair; empty fields inherit the run's.
type ModelRef struct {
	Provider string
	Model    string
}

// ModelOverrides are per-node model selections layered over the run's
// provider/model (populated from env/config).
type ModelOverrides struct {
	Intent  ModelRef
	Text    ModelRef
	Role    ModelRef
	Support ModelRef

	// Per-lane supportive-summary model overrides.
	WebSupportModel    string
	RAGSupportModel    string
	VisionSupportModel string
}

// resolve returns the override when set, else the run's pair.
func (o ModelRef) resolve(provider, model string) (string, string) {
	p, m := provider, model
	if o.Provider != "" {
		p = o.Provider
	}
	if o.Model != "" {
		m = o.Model
	}
	return p, m
}

// EngineConfig carries tunables for a run.
type EngineConfig struct {
	// MetaStreamDelay paces deterministic meta-block token emission.
	MetaStreamDelay time.Duration
	// ArxivStreamDelay paces deterministic arXiv rendering emission.
	ArxivStreamDelay time.Duration
	// ImageTimeout bounds a single image generation task.
	ImageTimeout time.Duration
	// MaxRewrites bounds synchronous draft-review cycles on conflict.
	MaxRewrites int
	// MaxIterations bounds replan loops (lanes + reflect).
	MaxIterations int

	Models ModelOverrides
}

// DefaultEngineConfig mirrors the documented env defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ImageTimeout:  90 * time.Second,
		MaxRewrites:   1,
		MaxIterations: 1,
	}
}

// Engine runs the planning graph for one turn at a time.
type Engine struct {
	resolver   ProviderResolver
	candidates func(provider, model string) []string
	lanes      *LaneRegistry
	cfg        EngineConfig
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineConfig replaces the default tunables.
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithCandidates sets the model-fallback chain function. The default tries
// only the selected model.
func WithCandidates(fn func(provider, model string) []string) EngineOption {
	return func(e *Engine) { e.candidates = fn }
}

// NewEngine creates an engine. resolver creates chat providers on demand;
// lanes supplies the tool lanes.
func NewEngine(resolver ProviderResolver, lanes *LaneRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:   resolver,
		lanes:      lanes,
		cfg:        DefaultEngineConfig(),
		logger:     NopLogger(),
		candidates: func(provider, model string) []string { return []string{model} },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunRequest is the per-turn input snapshot.
type RunRequest struct {
	SessionID string
	RunID     string
	TraceID   string
	Provider  string
	Model     string
	Text      string

	Attachments     []Attachment
	History         []ChatMessage
	Artifacts       *ArtifactMemory
	LastImagePrompt string
}

// RunOutput is what the HTTP layer persists back into the session.
type RunOutput struct {
	FinalText       string
	Outputs         map[string]ToolResult
	Artifacts       *ArtifactMemory
	LastImagePrompt string
	Notes           []Note
}

// Run executes the full graph inside a run_start/run_end bracket. Node
// failures emit an error event, close the bracket with ok=false, and
// return an empty final text rather than an error; the stream contract is
// that run_end is always the last event.
func (e *Engine) Run(ctx context.Context, req RunRequest, em *Emitter) RunOutput {
	st := &RunState{
		SessionID:       req.SessionID,
		RunID:           req.RunID,
		TraceID:         req.TraceID,
		Provider:        req.Provider,
		Model:           req.Model,
		UserText:        req.Text,
		Attachments:     req.Attachments,
		History:         req.History,
		Artifacts:       req.Artifacts,
		LastImagePrompt: req.LastImagePrompt,
		Outputs:         make(map[string]ToolResult),
	}
	if st.Artifacts == nil {
		st.Artifacts = NewArtifactMemory()
	}
	st.Runtime.MaxIterations = e.cfg.MaxIterations

	em.Emit(EventRunStart, map[string]any{"session_id": req.SessionID})

	if err := e.runNodes(ctx, st, em); err != nil {
		e.logger.Error("run failed", "run_id", req.RunID, "err", err)
		em.Emit(EventError, map[string]any{"error": err.Error()})
		em.Emit(EventRunEnd, map[string]any{"ok": false})
		return RunOutput{
			Outputs:         st.Outputs,
			Artifacts:       st.Artifacts,
			LastImagePrompt: st.LastImagePrompt,
			Notes:           st.Notes,
		}
	}

	em.Emit(EventRunEnd, map[string]any{"ok": true})
	return RunOutput{
		FinalText:       st.FinalText,
		Outputs:         st.Outputs,
		Artifacts:       st.Artifacts,
		LastImagePrompt: st.LastImagePrompt,
		Notes:           st.Notes,
	}
}

// runNodes drives the node pipeline: the pre-lane nodes once, then the
// lane executor with a bounded reflect/replan loop.
func (e *Engine) runNodes(ctx context.Context, st *RunState, em *Emitter) error {
	type node struct {
		name string
		fn   func(context.Context, *RunState, *Emitter) error
	}
	pre := []node{
		{"ack", e.ackNode},
		{"context", e.contextNode},
		{"intent", e.intentNode},
		{"planner", e.plannerNode},
		{"text_router", e.textRouterNode},
		{"tool_router", e.toolRouterNode},
		{"task_validate", e.taskValidateNode},
		{"role_pack", e.rolePackNode},
	}
	for _, n := range pre {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.fn(ctx, st, em); err != nil {
			return fmt.Errorf("%s: %w", n.name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.lanesNode(ctx, st, em); err != nil {
			return fmt.Errorf("lanes: %w", err)
		}
		e.reflectNode(st)
		if !st.Runtime.ReplanRequested {
			return nil
		}
		// Rebuild tasks from the updated plan flags before retrying.
		if err := e.toolRouterNode(ctx, st, em); err != nil {
			return fmt.Errorf("tool_router: %w", err)
		}
		if err := e.taskValidateNode(ctx, st, em); err != nil {
			return fmt.Errorf("task_validate: %w", err)
		}
	}
}

func (e *Engine) ackNode(_ context.Context, st *RunState, _ *Emitter) error {
	st.PushNote("ack", "Run acknowledged", nil)
	return nil
}

// chatWithFallback calls Chat across the model candidate chain, advancing
// on missing-model errors only.
func (e *Engine) chatWithFallback(ctx context.Context, provider, model string, req ChatRequest) (ChatResponse, error) {
	var lastErr error
	cands := e.candidates(provider, model)
	for i, cand := range cands {
		p, err := e.resolver(provider, cand)
		if err != nil {
			return ChatResponse{}, err
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < len(cands)-1 && IsNotFound(err) {
			continue
		}
		return ChatResponse{}, err
	}
	return ChatResponse{}, lastErr
}

// streamWithFallback streams tokens to em, retrying the next model
// candidate on missing-model errors. Returns the accumulated text.
func (e *Engine) streamWithFallback(ctx context.Context, provider, model string, req ChatRequest, em *Emitter) (string, error) {
	var lastErr error
	cands := e.candidates(provider, model)
	for i, cand := range cands {
		p, err := e.resolver(provider, cand)
		if err != nil {
			return "", err
		}
		ch := make(chan StreamEvent, 64)
		done := make(chan struct{})
		var acc []byte
		go func() {
			defer close(done)
			for ev := range ch {
				if ev.Type == EventTextDelta && ev.Content != "" {
					acc = append(acc, ev.Content...)
					em.EmitToken(ev.Content)
				}
			}
		}()
		_, err = p.ChatStream(ctx, req, ch)
		<-done
		if err == nil {
			return string(acc), nil
		}
		lastErr = err
		if i < len(cands)-1 && IsNotFound(err) && len(acc) == 0 {
			continue
		}
		return string(acc), err
	}
	return "", lastErr
}

func floatPtr(v float64) *float64 { return &v }
