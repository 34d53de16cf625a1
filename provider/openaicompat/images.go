package openaicompat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	omniagent "github.com/rishisan99/OmniAgent"
)

// ImageClient implements omniagent.ImageGenerator against the OpenAI image
// generations endpoint.
type ImageClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
}

// NewImageClient creates an image generation client. model defaults to
// gpt-image-1 when empty.
func NewImageClient(apiKey, model, baseURL string) *ImageClient {
	if model == "" {
		model = "gpt-image-1"
	}
	return &ImageClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
}

// GenerateImage returns the raw PNG bytes for prompt at the given size.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt, size string) ([]byte, error) {
	if size == "" {
		size = "1024x1024"
	}
	p := &Provider{apiKey: c.apiKey, baseURL: c.baseURL, client: c.client, name: c.name}
	resp, err := p.sendHTTP(ctx, "/images/generations", ImageRequest{
		Model:  c.model,
		Prompt: prompt,
		Size:   size,
		N:      1,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var out ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &omniagent.ErrLLM{Provider: c.name, Message: fmt.Sprintf("decode image response: %v", err)}
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, &omniagent.ErrLLM{Provider: c.name, Message: "image response contained no data"}
	}

	raw, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, &omniagent.ErrLLM{Provider: c.name, Message: fmt.Sprintf("decode image base64: %v", err)}
	}
	return raw, nil
}

var _ omniagent.ImageGenerator = (*ImageClient)(nil)
