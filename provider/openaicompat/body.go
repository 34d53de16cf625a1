package openaicompat

import (
	"fmt"

	omniagent "github.com/rishisan99/OmniAgent"
)

// BuildBody converts omniagent ChatMessages and a model name into an
// OpenAI-format ChatRequest. System messages are kept in the messages array
// as role:"system". Options configure generation parameters.
func BuildBody(messages []omniagent.ChatMessage, model string, opts ...Option) ChatRequest {
	var msgs []Message

	for _, m := range messages {
		if len(m.Images) > 0 {
			// Multimodal: build content blocks with inline data URIs.
			var blocks []ContentBlock
			if m.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
			}
			for _, img := range m.Images {
				blocks = append(blocks, ContentBlock{
					Type:     "image_url",
					ImageURL: &ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64)},
				})
			}
			msgs = append(msgs, Message{Role: m.Role, Content: blocks})
			continue
		}
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}

	req := ChatRequest{
		Model:    model,
		Messages: msgs,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
