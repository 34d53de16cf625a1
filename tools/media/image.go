package media

import (
	"context"
	"log/slog"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
)

const defaultImageSize = "1024x1024"

// ImageLane generates images from prompts and stores them as session assets.
type ImageLane struct {
	gen    omniagent.ImageGenerator
	assets *Assets
	logger *slog.Logger
}

// ImageOption configures an ImageLane.
type ImageOption func(*ImageLane)

// WithImageLogger sets a structured logger.
func WithImageLogger(l *slog.Logger) ImageOption {
	return func(il *ImageLane) { il.logger = l }
}

// NewImageLane creates the image generation lane.
func NewImageLane(gen omniagent.ImageGenerator, assets *Assets, opts ...ImageOption) *ImageLane {
	il := &ImageLane{gen: gen, assets: assets, logger: omniagent.NopLogger()}
	for _, o := range opts {
		o(il)
	}
	return il
}

// Kind implements omniagent.Lane.
func (il *ImageLane) Kind() string { return omniagent.TaskImageGen }

// Run implements omniagent.Lane.
func (il *ImageLane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "empty image prompt"}
	}
	size := t.Size
	if size == "" {
		size = defaultImageSize
	}

	data, err := il.gen.GenerateImage(ctx, prompt, size)
	if err != nil {
		il.logger.Error("image generation failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	filename, url, err := il.assets.Save(st.SessionID, "png", data)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"prompt":   prompt,
			"size":     size,
			"filename": filename,
			"url":      url,
			"mime":     "image/png",
		},
	}
}
