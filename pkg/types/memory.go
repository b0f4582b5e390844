package types

import (
	"strings"
	"time"
)

// Memory is a single normalized note captured from the user.
// A memory belongs to exactly one user and is never visible to anyone else.
type Memory struct {
	// Identity
	ID     string `json:"id"`      // Unique identifier (uuid)
	UserID string `json:"user_id"` // Owning user

	// Content
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`

	// Classification
	MemoryType MemoryType `json:"memory_type"`
	Source     Source     `json:"source"`

	// Trust ledger
	ConfidenceScore float64    `json:"confidence_score"`
	LastConfirmedAt *time.Time `json:"last_confirmed_at,omitempty"`
	Flagged         bool       `json:"is_flagged"`
	FlagReason      string     `json:"flagged_reason,omitempty"`

	// Analysis (populated by the analyzing step)
	Summary        string    `json:"summary,omitempty"`
	Themes         []string  `json:"themes,omitempty"`
	Emotions       []Emotion `json:"emotions,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	People         []string  `json:"people,omitempty"`
	Places         []string  `json:"places,omitempty"`
	MemoryChunks   []string  `json:"memory_chunks,omitempty"`
	WordCount      int       `json:"word_count"`
	SentimentLabel string    `json:"sentiment_label,omitempty"`
	SentimentScore float64   `json:"sentiment_score"`

	// Retrieval
	Embedding      []float32        `json:"-"`
	EmbeddingModel string           `json:"embedding_model,omitempty"`
	Status         ProcessingStatus `json:"processing_status"`
	FailureReason  string           `json:"failure_reason,omitempty"`

	// Generation is bumped whenever content changes; pipeline writes carry the
	// generation they were computed for and are rejected when it moved on.
	Generation int64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Emotion is a named emotion with an intensity score in [0,1].
type Emotion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Analysis is the structured result of analyzing a memory's text.
type Analysis struct {
	Summary        string    `json:"summary"`
	Themes         []string  `json:"themes"`
	Emotions       []Emotion `json:"emotions"`
	Topics         []string  `json:"topics"`
	People         []string  `json:"people"`
	Places         []string  `json:"places"`
	MemoryChunks   []string  `json:"memory_chunks"`
	WordCount      int       `json:"word_count"`
	SentimentLabel string    `json:"sentiment_label"`
	SentimentScore float64   `json:"sentiment_score"`
}

// EligibleForRetrieval reports whether the memory may appear as a retrieval candidate.
func (m *Memory) EligibleForRetrieval() bool {
	return len(m.Embedding) > 0 && m.Status == StatusCompleted
}

// Text returns the text used for embedding: the title followed by the body.
func (m *Memory) Text() string {
	if m.Title == "" {
		return m.Content
	}
	return m.Title + "\n" + m.Content
}

// NormalizeTags trims, lowercases-for-comparison and de-duplicates tags, keeping
// the first spelling seen. Empty tags are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
