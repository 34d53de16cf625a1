// Package docs implements the document lane: text extraction from uploaded
// files and model-written document generation rendered to md, txt, pdf, or
// doc (RTF).
package docs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/ingest"
	"github.com/rishisan99/OmniAgent/tools/media"
)

// extractCap bounds extracted text fed back into the run.
const extractCap = 12000

// Lane handles doc tasks, dispatching on the task instruction.
type Lane struct {
	resolver omniagent.ProviderResolver
	assets   *media.Assets
	logger   *slog.Logger
}

// Option configures a Lane.
type Option func(*Lane)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Lane) { d.logger = l }
}

// New creates the document lane. resolver supplies the chat model for
// generation; assets stores generated files and reads uploads back.
func New(resolver omniagent.ProviderResolver, assets *media.Assets, opts ...Option) *Lane {
	d := &Lane{resolver: resolver, assets: assets, logger: omniagent.NopLogger()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Kind implements omniagent.Lane.
func (d *Lane) Kind() string { return omniagent.TaskDoc }

// Run implements omniagent.Lane.
func (d *Lane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	switch t.Instruction {
	case omniagent.DocExtract:
		return d.extract(t, st)
	case omniagent.DocGenerate, "":
		return d.generate(ctx, t, st)
	default:
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: fmt.Sprintf("unknown doc instruction %q", t.Instruction)}
	}
}

// extract pulls plain text out of an uploaded document.
func (d *Lane) extract(t omniagent.Task, st *omniagent.RunState) omniagent.ToolResult {
	att, ok := findDocAttachment(st.Attachments, t.AttachmentID)
	if !ok {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "no document attachment to extract"}
	}
	content, err := d.assets.Open(st.SessionID, att.Path)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: fmt.Sprintf("read attachment: %v", err)}
	}

	text, err := extractText(att.Name, content)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	if len(text) > extractCap {
		text = text[:extractCap]
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"text":          text,
			"attachment_id": att.ID,
			"source":        att.Name,
			"mime":          "text/plain",
		},
	}
}

// generate has the text model write markdown and renders it to the
// requested format.
func (d *Lane) generate(ctx context.Context, t omniagent.Task, st *omniagent.RunState) omniagent.ToolResult {
	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(st.UserText)
	}
	if prompt == "" {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "empty document prompt"}
	}

	p, err := d.resolver(st.Provider, st.Model)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	resp, err := p.Chat(ctx, omniagent.ChatRequest{
		Messages: []omniagent.ChatMessage{
			omniagent.SystemMessage("You write complete, well-structured documents in plain markdown. " +
				"Use headings, paragraphs, and lists. No preamble, no closing remarks, only the document."),
			omniagent.UserMessage(prompt),
		},
	})
	if err != nil {
		d.logger.Error("doc generation failed", "task_id", t.ID, "err", err)
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	markdown := strings.TrimSpace(resp.Content)
	if markdown == "" {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "model returned an empty document"}
	}

	format := strings.ToLower(strings.TrimSpace(t.Format))
	if format == "" {
		format = "md"
	}
	rendered, ext, mime, err := render(markdown, format)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}

	filename, url, err := d.assets.Save(st.SessionID, ext, rendered)
	if err != nil {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: err.Error()}
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"text":     markdown,
			"format":   format,
			"filename": filename,
			"url":      url,
			"mime":     mime,
		},
	}
}

// render converts model markdown into the requested output format.
func render(markdown, format string) (data []byte, ext, mime string, err error) {
	switch format {
	case "md":
		return []byte(markdown), "md", "text/markdown", nil
	case "txt":
		plain, err := ingest.MarkdownExtractor{}.Extract([]byte(markdown))
		if err != nil {
			return nil, "", "", err
		}
		return []byte(plain), "txt", "text/plain", nil
	case "pdf":
		lines, err := parseMarkdown(markdown)
		if err != nil {
			return nil, "", "", err
		}
		return buildPDF(lines), "pdf", "application/pdf", nil
	case "doc":
		lines, err := parseMarkdown(markdown)
		if err != nil {
			return nil, "", "", err
		}
		return buildRTF(lines), "doc", "application/msword", nil
	default:
		return nil, "", "", fmt.Errorf("unsupported document format %q", format)
	}
}

// extractText dispatches extraction on the uploaded file's extension.
func extractText(name string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ingest.NewPDFExtractor().Extract(content)
	case ".docx":
		return ingest.NewDOCXExtractor().Extract(content)
	case ".md":
		return ingest.MarkdownExtractor{}.Extract(content)
	case ".html", ".htm":
		return ingest.HTMLExtractor{}.Extract(content)
	default:
		return string(content), nil
	}
}

// findDocAttachment returns the attachment matching id, or the first doc
// attachment when id is empty.
func findDocAttachment(atts []omniagent.Attachment, id string) (omniagent.Attachment, bool) {
	for _, a := range atts {
		if id != "" && a.ID == id {
			return a, true
		}
		if id == "" && a.Kind == "doc" {
			return a, true
		}
	}
	return omniagent.Attachment{}, false
}
