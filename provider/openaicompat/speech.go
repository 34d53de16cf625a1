package openaicompat

import (
	"context"
	"io"
	"net/http"

	omniagent "github.com/rishisan99/OmniAgent"
)

// SpeechClient implements omniagent.SpeechSynthesizer against the OpenAI
// audio speech endpoint.
type SpeechClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
}

// NewSpeechClient creates a text-to-speech client. model defaults to
// gpt-4o-mini-tts when empty.
func NewSpeechClient(apiKey, model, baseURL string) *SpeechClient {
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	return &SpeechClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
}

// Synthesize returns MP3 bytes for text spoken in the given voice.
func (c *SpeechClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = "alloy"
	}
	p := &Provider{apiKey: c.apiKey, baseURL: c.baseURL, client: c.client, name: c.name}
	resp, err := p.sendHTTP(ctx, "/audio/speech", SpeechRequest{
		Model:  c.model,
		Input:  text,
		Voice:  voice,
		Format: "mp3",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}
	return io.ReadAll(resp.Body)
}

var _ omniagent.SpeechSynthesizer = (*SpeechClient)(nil)
