package types

import "time"

// Capture is the raw input to ingestion: typed text or recorded audio.
type Capture struct {
	UserID    string
	Title     string
	Text      string
	Audio     []byte
	AudioMIME string
	Tags      []string

	// Optional overrides; zero values mean "derive".
	Source     Source
	MemoryType MemoryType
	Confidence *float64

	// CreatedAt backdates imported notes; zero means now.
	CreatedAt time.Time
}

// HasAudio reports whether the capture carries audio that needs transcription.
func (c *Capture) HasAudio() bool {
	return len(c.Audio) > 0
}

// Turn is one message in a conversation with the memory companion.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
