package omniagent

// --- Session-facing domain types ---

// Attachment is a file uploaded into a session, stored server-side and
// addressed by a short id.
type Attachment struct {
	ID   string         `json:"id"`
	Kind string         `json:"kind"` // "image", "audio", "doc"
	Name string         `json:"name"`
	Mime string         `json:"mime"`
	Path string         `json:"path,omitempty"`
	URL  string         `json:"url,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Citation points at a source used to ground an answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ToolResult is the uniform envelope every lane returns.
type ToolResult struct {
	TaskID    string         `json:"task_id"`
	Kind      string         `json:"kind"`
	OK        bool           `json:"ok"`
	Data      map[string]any `json:"data,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// --- KB index records ---

// Document is one source file ingested into the knowledge-base index.
type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	CreatedAt int64  `json:"created_at"`
}

// Chunk is one embedded slice of a Document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk pairs a chunk with its retrieval score.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string      `json:"role"` // "system", "user", "assistant"
	Content string      `json:"content"`
	Images  []ImageData `json:"images,omitempty"`
}

type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// GenerationParams are per-request sampling overrides. Nil fields keep the
// provider default.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type ChatRequest struct {
	Messages         []ChatMessage `json:"messages"`
	GenerationParams *GenerationParams
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}
