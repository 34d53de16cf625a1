package openaicompat

import (
	omniagent "github.com/rishisan99/OmniAgent"
)

// ParseResponse converts an OpenAI-format ChatResponse to an omniagent
// ChatResponse. It extracts content and usage from choices[0].
func ParseResponse(resp ChatResponse) (omniagent.ChatResponse, error) {
	var out omniagent.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	if msg := resp.Choices[0].Message; msg != nil {
		out.Content = msg.Content
	}
	if resp.Usage != nil {
		out.Usage = omniagent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}
