package media

import (
	"context"
	"log/slog"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
)

const defaultVoice = "alloy"

// TTSLane synthesizes speech from text and stores it as a session asset.
type TTSLane struct {
	synth  omniagent.SpeechSynthesizer
	assets *Assets
	logger *slog.Logger
}

// TTSOption configures a TTSLane.
type TTSOption func(*TTSLane)

// WithTTSLogger sets a structured logger.
func WithTTSLogger(l *slog.Logger) TTSOption {
	return func(tl *TTSLane) { tl.logger = l }
}

// NewTTSLane creates the speech synthesis lane.
func NewTTSLane(synth omniagent.SpeechSynthesizer, assets *Assets, opts ...TTSOption) *TTSLane {
	tl := &TTSLane{synth: synth, assets: assets, logger: omniagent.NopLogger()}
	for _, o := range opts {
		o(tl)
	}
	return tl
}

// Kind implements omniagent.Lane.
func (tl *TTSLane) Kind() string { return omniagent.TaskTTS }

// Run implements omniagent.Lane.
func (tl *TTSLane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "empty tts text"}
	}
	voice := t.Voice
	if voice == "" {
		voice = defaultVoice
	}

	data, err := tl.synth.Synthesize(ctx, text, voice)
	if err != nil {
		tl.logger.Error("speech synthesis failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	filename, url, err := tl.assets.Save(st.SessionID, "mp3", data)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"text":     text,
			"voice":    voice,
			"filename": filename,
			"url":      url,
			"mime":     "audio/mpeg",
		},
	}
}
