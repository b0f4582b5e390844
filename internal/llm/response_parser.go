package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// analysisResponse is the JSON object the analysis prompt asks for. Fields are
// decoded loosely because models return a string where a list was requested
// often enough to matter.
type analysisResponse struct {
	Summary      json.RawMessage `json:"summary"`
	Themes       json.RawMessage `json:"themes"`
	Topics       json.RawMessage `json:"topics"`
	Emotions     json.RawMessage `json:"emotions"`
	People       json.RawMessage `json:"people"`
	Places       json.RawMessage `json:"places"`
	Sentiment    json.RawMessage `json:"sentiment"`
	MemoryChunks json.RawMessage `json:"memory_chunks"`
}

type sentimentResponse struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// extractJSON extracts the first complete JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		char := text[i]
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch char {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseAnalysisResponse parses the analysis JSON returned by the model.
// Missing or mistyped fields become empty values; only a response with no
// decodable JSON object is an error. Word count is left to the caller.
func ParseAnalysisResponse(raw string) (*types.Analysis, error) {
	var resp analysisResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	a := &types.Analysis{
		Summary:      strings.TrimSpace(looseString(resp.Summary)),
		Themes:       looseList(resp.Themes),
		Topics:       looseList(resp.Topics),
		People:       looseList(resp.People),
		Places:       looseList(resp.Places),
		MemoryChunks: looseList(resp.MemoryChunks),
		Emotions:     parseEmotions(resp.Emotions),
	}

	var s sentimentResponse
	if len(resp.Sentiment) > 0 && json.Unmarshal(resp.Sentiment, &s) == nil {
		switch label := strings.ToLower(strings.TrimSpace(s.Label)); label {
		case types.SentimentPositive, types.SentimentNeutral, types.SentimentNegative:
			a.SentimentLabel = label
			if s.Score != nil {
				a.SentimentScore = clamp01(*s.Score)
			}
		}
	}
	return a, nil
}

func looseString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// looseList accepts a list of scalars or a single string.
func looseList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := strings.TrimSpace(looseString(raw)); s != "" {
			return []string{s}
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch v := item.(type) {
		case string:
			s = v
		case float64, bool:
			s = fmt.Sprint(v)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseEmotions(raw json.RawMessage) []types.Emotion {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]types.Emotion, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		out = append(out, types.Emotion{Name: name, Score: clamp01(item.Score)})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
