package handlers

import (
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CaptureRequest is the JSON body for POST /api/memories. Audio captures are
// sent as multipart/form-data instead, with the same fields as form values and
// the recording in the "audio" part.
type CaptureRequest struct {
	Text       string   `json:"text" validate:"required"`
	Title      string   `json:"title,omitempty" validate:"max=200"`
	Tags       []string `json:"tags,omitempty" validate:"max=50,dive,min=1,max=64"`
	Source     string   `json:"source,omitempty"`
	MemoryType string   `json:"memory_type,omitempty"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ConfirmRequest is the optional JSON body for POST /api/memories/{id}/confirm.
type ConfirmRequest struct {
	Boost *float64 `json:"boost,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// FlagRequest is the optional JSON body for POST /api/memories/{id}/flag.
type FlagRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// EditRequest is the JSON body for PATCH /api/memories/{id}. Absent fields
// are left unchanged.
type EditRequest struct {
	Title      *string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Content    *string   `json:"content,omitempty"`
	Summary    *string   `json:"summary,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	MemoryType *string   `json:"memory_type,omitempty"`
	People     *[]string `json:"people,omitempty"`
	Places     *[]string `json:"places,omitempty"`
}

func (r EditRequest) fields() engine.EditFields {
	return engine.EditFields{
		Title:      r.Title,
		Content:    r.Content,
		Summary:    r.Summary,
		Tags:       r.Tags,
		MemoryType: r.MemoryType,
		People:     r.People,
		Places:     r.Places,
	}
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Question string `json:"question" validate:"required"`
}

// ConverseRequest is the JSON body for POST /api/converse.
type ConverseRequest struct {
	Turns []TurnRequest `json:"turns" validate:"required,min=1,dive"`
}

// TurnRequest is one conversation turn.
type TurnRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

func (r ConverseRequest) turns() []types.Turn {
	out := make([]types.Turn, len(r.Turns))
	for i, t := range r.Turns {
		out[i] = types.Turn{Role: t.Role, Content: t.Content}
	}
	return out
}

// ListResponse is the response format for GET /api/memories.
type ListResponse struct {
	Items    []types.Memory `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasMore  bool           `json:"has_more"`
}

// DailyPromptResponse is the response format for GET /api/prompt/daily.
type DailyPromptResponse struct {
	Prompt string `json:"prompt"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
}
