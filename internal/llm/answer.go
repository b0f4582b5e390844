package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// AnswerSystemPrompt instructs the model to stay inside the supplied entries.
const AnswerSystemPrompt = "You are a personal memory companion. " +
	"Answer conversationally using ONLY the provided journal entries. " +
	"If the context is insufficient, be honest about not knowing."

// GenerateRequest is the input to answer generation: the grounding context
// text and the conversation so far. The last turn is the user's question.
type GenerateRequest struct {
	Context string
	Turns   []types.Turn
}

// AnswerWriter generates grounded answers. It uses chat messages when the
// generator supports them and a flattened prompt otherwise.
type AnswerWriter struct {
	gen TextGenerator
}

// NewAnswerWriter creates an answer writer over gen.
func NewAnswerWriter(gen TextGenerator) *AnswerWriter {
	return &AnswerWriter{gen: gen}
}

// Generate returns the model's answer, trimmed.
func (w *AnswerWriter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var (
		out string
		err error
	)
	if chat, ok := w.gen.(ChatGenerator); ok {
		out, err = chat.Chat(ctx, AnswerMessages(req))
	} else {
		out, err = w.gen.Complete(ctx, AnswerPrompt(req))
	}
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// AnswerMessages builds the chat messages: instructions, the entries, then
// the user and assistant turns in order.
func AnswerMessages(req GenerateRequest) []Message {
	msgs := make([]Message, 0, len(req.Turns)+2)
	msgs = append(msgs,
		Message{Role: RoleSystem, Content: AnswerSystemPrompt},
		Message{Role: RoleSystem, Content: "Relevant entries:\n" + req.Context},
	)
	for _, t := range req.Turns {
		if t.Role == types.RoleUser || t.Role == types.RoleAssistant {
			msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
		}
	}
	return msgs
}

// AnswerPrompt flattens the chat messages into one completion prompt.
func AnswerPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString(AnswerSystemPrompt)
	b.WriteString("\n\nRelevant entries:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\n")
	for _, t := range req.Turns {
		switch t.Role {
		case types.RoleUser:
			b.WriteString("User: ")
		case types.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}
