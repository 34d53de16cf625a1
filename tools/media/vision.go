package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
)

const defaultVisionPrompt = "Describe this image in detail."

// VisionLane analyzes an uploaded image with a multimodal chat model.
type VisionLane struct {
	resolver omniagent.ProviderResolver
	assets   *Assets
	logger   *slog.Logger
}

// VisionOption configures a VisionLane.
type VisionOption func(*VisionLane)

// WithVisionLogger sets a structured logger.
func WithVisionLogger(l *slog.Logger) VisionOption {
	return func(vl *VisionLane) { vl.logger = l }
}

// NewVisionLane creates the vision analysis lane. Image bytes are read back
// from the session's upload directory through assets.
func NewVisionLane(resolver omniagent.ProviderResolver, assets *Assets, opts ...VisionOption) *VisionLane {
	vl := &VisionLane{resolver: resolver, assets: assets, logger: omniagent.NopLogger()}
	for _, o := range opts {
		o(vl)
	}
	return vl
}

// Kind implements omniagent.Lane.
func (vl *VisionLane) Kind() string { return omniagent.TaskVision }

// Run implements omniagent.Lane.
func (vl *VisionLane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	att, ok := findImageAttachment(st.Attachments, t.ImageAttachmentID)
	if !ok {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "no image attachment to analyze"}
	}
	data, err := vl.assets.Open(st.SessionID, att.Path)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: fmt.Sprintf("read attachment: %v", err)}
	}

	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		prompt = defaultVisionPrompt
	}
	mime := att.Mime
	if mime == "" {
		mime = "image/png"
	}

	p, err := vl.resolver(st.Provider, st.Model)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	resp, err := p.Chat(ctx, omniagent.ChatRequest{
		Messages: []omniagent.ChatMessage{{
			Role:    "user",
			Content: prompt,
			Images: []omniagent.ImageData{{
				MimeType: mime,
				Base64:   base64.StdEncoding.EncodeToString(data),
			}},
		}},
	})
	if err != nil {
		vl.logger.Error("vision analysis failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "empty vision response"}
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"text":          text,
			"attachment_id": att.ID,
			"mime":          "text/markdown",
		},
	}
}

// findImageAttachment returns the attachment matching id, or the first image
// attachment when id is empty.
func findImageAttachment(atts []omniagent.Attachment, id string) (omniagent.Attachment, bool) {
	for _, a := range atts {
		if id != "" && a.ID == id {
			return a, true
		}
		if id == "" && a.Kind == "image" {
			return a, true
		}
	}
	return omniagent.Attachment{}, false
}
