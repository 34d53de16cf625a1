// Package knowledge provides the retrieval lanes: the shared knowledge-base
// lane backed by kb.Engine and the per-session document lane backed by a
// SessionIndex over uploaded attachments.
package knowledge

import (
	"context"
	"log/slog"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/kb"
)

// KBLane answers queries against the shared knowledge-base index.
type KBLane struct {
	engine *kb.Engine
	logger *slog.Logger
}

// KBOption configures a KBLane.
type KBOption func(*KBLane)

// WithKBLogger sets a structured logger.
func WithKBLogger(l *slog.Logger) KBOption {
	return func(k *KBLane) { k.logger = l }
}

// NewKBLane creates the knowledge-base lane over engine.
func NewKBLane(engine *kb.Engine, opts ...KBOption) *KBLane {
	k := &KBLane{engine: engine, logger: omniagent.NopLogger()}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Kind implements omniagent.Lane.
func (k *KBLane) Kind() string { return omniagent.TaskKBRAG }

// Run implements omniagent.Lane. An entity miss is a successful result with
// an empty match set and the unmatched hint; the synthesizer renders it
// deterministically instead of letting a model guess.
func (k *KBLane) Run(ctx context.Context, t omniagent.Task, _ *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	res, err := k.engine.Search(ctx, t.Query, t.TopK)
	if err != nil {
		k.logger.Error("kb lane failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	matches := make([]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		matches = append(matches, map[string]any{
			"text":   m.Text,
			"source": m.Source,
			"page":   m.Page,
			"score":  m.Score,
		})
	}
	data := map[string]any{
		"matches": matches,
		"count":   len(matches),
	}
	if res.EntityNotFound != "" {
		data["entity_not_found"] = res.EntityNotFound
	}
	return omniagent.ToolResult{
		TaskID:    t.ID,
		Kind:      t.Kind,
		OK:        true,
		Data:      data,
		Citations: res.Citations,
	}
}
