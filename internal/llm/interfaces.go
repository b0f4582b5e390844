package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Analysis prompts use single-string completion style.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// ChatGenerator is implemented by generators that accept role-tagged messages.
// The answer writer prefers it over Complete when available.
type ChatGenerator interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
