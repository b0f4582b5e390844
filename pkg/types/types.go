// Package types defines the core data structures for the recall memory system.
// These types describe memories, their processing status, trust metadata and the
// analysis results produced by the async ingestion pipeline.
package types

import "strings"

// ProcessingStatus represents where a memory is in the ingestion pipeline.
type ProcessingStatus string

// Processing status constants, in pipeline order.
const (
	// StatusPending indicates the memory was captured and is waiting for a worker
	StatusPending ProcessingStatus = "pending"

	// StatusTranscribing indicates audio (if any) is being converted to text
	StatusTranscribing ProcessingStatus = "transcribing"

	// StatusAnalyzing indicates the body text is being analyzed and classified
	StatusAnalyzing ProcessingStatus = "analyzing"

	// StatusEmbedding indicates the embedding vector is being computed
	StatusEmbedding ProcessingStatus = "embedding"

	// StatusCompleted indicates the memory is fully ingested and retrievable
	StatusCompleted ProcessingStatus = "completed"

	// StatusFailed indicates a pipeline step failed; the reason is stored on the memory
	StatusFailed ProcessingStatus = "failed"
)

// MemoryType is the closed classification of a memory.
type MemoryType string

// Memory type constants
const (
	MemoryTypeEvent      MemoryType = "event"
	MemoryTypeReflection MemoryType = "reflection"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeIdentity   MemoryType = "identity"
	MemoryTypeProject    MemoryType = "project"
)

// ValidMemoryTypes lists every accepted memory type.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeEvent,
	MemoryTypeReflection,
	MemoryTypePreference,
	MemoryTypeIdentity,
	MemoryTypeProject,
}

// Source describes how a memory entered the system.
type Source string

// Source constants
const (
	SourceTyped    Source = "typed"
	SourceVoice    Source = "voice"
	SourceInferred Source = "inferred"
	SourceExternal Source = "external"
	SourceUnknown  Source = "unknown"
)

// ValidSources lists every accepted source.
var ValidSources = []Source{
	SourceTyped,
	SourceVoice,
	SourceInferred,
	SourceExternal,
	SourceUnknown,
}

// Sentiment label constants
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// ParseMemoryType normalizes s and reports whether it names a valid memory type.
func ParseMemoryType(s string) (MemoryType, bool) {
	mt := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidMemoryTypes {
		if mt == valid {
			return mt, true
		}
	}
	return "", false
}

// ParseSource normalizes s and reports whether it names a valid source.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidSources {
		if src == valid {
			return src, true
		}
	}
	return "", false
}

// ParseStatus normalizes s and reports whether it names a processing status.
func ParseStatus(s string) (ProcessingStatus, bool) {
	st := ProcessingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusTranscribing, StatusAnalyzing, StatusEmbedding, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further pipeline transitions are possible.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// defaultConfidence is the starting confidence for each source when the
// capture does not assert one.
var defaultConfidence = map[Source]float64{
	SourceTyped:    0.95,
	SourceVoice:    0.85,
	SourceExternal: 0.80,
	SourceInferred: 0.60,
	SourceUnknown:  0.75,
}

// DefaultConfidence returns the starting confidence score for source.
func DefaultConfidence(source Source) float64 {
	if c, ok := defaultConfidence[source]; ok {
		return c
	}
	return defaultConfidence[SourceUnknown]
}
