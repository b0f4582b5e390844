package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

var errInvalidArgs = errors.New("invalid arguments")

type toolHandler func(ctx context.Context, args json.RawMessage) (interface{}, error)

func (s *Server) toolHandlers() map[string]toolHandler {
	tools := map[string]toolHandler{
		"capture_memory":   s.captureMemory,
		"get_memory":       s.getMemory,
		"list_memories":    s.listMemories,
		"edit_memory":      s.editMemory,
		"confirm_memory":   s.confirmMemory,
		"flag_memory":      s.flagMemory,
		"unflag_memory":    s.unflagMemory,
		"query_memories":   s.queryMemories,
		"converse":         s.converse,
		"insights_preview": s.insightsPreview,
		"insights_summary": s.insightsSummary,
		"daily_prompt":     s.dailyPrompt,
	}
	if s.importer != nil {
		tools["import_notes"] = s.importNotes
		tools["import_status"] = s.importStatus
	}
	return tools
}

// decodeArgs unmarshals and validates tool arguments.
func (s *Server) decodeArgs(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArgs, err)
	}
	return s.validate.Struct(dst)
}

func (s *Server) captureMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args CaptureMemoryArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	m, err := s.engine.Ingest(ctx, types.Capture{
		UserID:     s.userID,
		Title:      args.Title,
		Text:       args.Content,
		Tags:       args.Tags,
		Source:     types.SourceTyped,
		MemoryType: types.MemoryType(args.MemoryType),
		Confidence: args.Confidence,
	})
	if err != nil {
		return nil, err
	}
	return CaptureMemoryResult{
		ID:      m.ID,
		Status:  m.Status,
		Message: "Memory captured; analysis and embedding run in the background.",
	}, nil
}

func (s *Server) getMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args MemoryIDArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Get(ctx, s.userID, args.ID)
}

func (s *Server) listMemories(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ListMemoriesArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	opts := storage.ListOptions{Page: args.Page, Limit: args.Limit, Flagged: args.Flagged}
	if args.Limit == 0 {
		opts.Limit = 20
	}
	if args.Status != "" {
		status, ok := types.ParseStatus(args.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", errInvalidArgs, args.Status)
		}
		opts.Status = status
	}
	if args.MemoryType != "" {
		mt, ok := types.ParseMemoryType(args.MemoryType)
		if !ok {
			return nil, fmt.Errorf("%w: unknown memory type %q", errInvalidArgs, args.MemoryType)
		}
		opts.MemoryType = mt
	}

	page, err := s.engine.List(ctx, s.userID, opts)
	if err != nil {
		return nil, err
	}
	items := page.Items
	if items == nil {
		items = []types.Memory{}
	}
	return ListMemoriesResult{Memories: items, Total: page.Total, Page: page.Page, HasMore: page.HasMore}, nil
}

func (s *Server) editMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args EditMemoryArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Edit(ctx, s.userID, args.ID, engine.EditFields{
		Title:      args.Title,
		Content:    args.Content,
		Summary:    args.Summary,
		Tags:       slicePtr(args.Tags),
		MemoryType: args.MemoryType,
		People:     slicePtr(args.People),
		Places:     slicePtr(args.Places),
	})
}

func slicePtr(l *StringList) *[]string {
	if l == nil {
		return nil
	}
	s := []string(*l)
	return &s
}

func (s *Server) confirmMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ConfirmMemoryArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Confirm(ctx, s.userID, args.ID, args.Boost)
}

func (s *Server) flagMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args FlagMemoryArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Flag(ctx, s.userID, args.ID, args.Reason)
}

func (s *Server) unflagMemory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args MemoryIDArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Unflag(ctx, s.userID, args.ID)
}

func (s *Server) queryMemories(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args QueryMemoriesArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.engine.Query(ctx, s.userID, args.Question)
}

func (s *Server) converse(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ConverseArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	turns := make([]types.Turn, len(args.Turns))
	for i, t := range args.Turns {
		turns[i] = types.Turn{Role: t.Role, Content: t.Content}
	}
	return s.engine.Converse(ctx, s.userID, turns)
}

func (s *Server) insightsPreview(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	previews, err := s.engine.Previews(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if previews == nil {
		previews = []engine.Preview{}
	}
	return previews, nil
}

func (s *Server) insightsSummary(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.engine.Summary(ctx, s.userID)
}

func (s *Server) dailyPrompt(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	prompt, err := s.engine.DailyPrompt(ctx)
	if err != nil {
		return nil, err
	}
	return DailyPromptResult{Prompt: prompt}, nil
}

func (s *Server) importNotes(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ImportNotesArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Wait {
		result, err := s.importer.Import(ctx, s.userID, args.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
		}
		return ImportNotesResult{JobID: result.JobID, Result: result}, nil
	}

	// The job outlives this call.
	id, err := s.importer.StartImport(context.WithoutCancel(ctx), s.userID, args.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
	}
	return ImportNotesResult{JobID: id}, nil
}

func (s *Server) importStatus(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var args ImportStatusArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	progress, ok := s.importer.Progress(args.JobID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown import job", engine.ErrNotFound)
	}
	return ImportStatusResult{Progress: progress, Result: s.importer.Result(args.JobID)}, nil
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var idProp = map[string]interface{}{"id": prop("string", "Memory ID")}

// buildToolsList returns the tool definitions in a stable order.
func (s *Server) buildToolsList() []MCPTool {
	tools := []MCPTool{
		{
			Name:        "capture_memory",
			Description: "Capture a typed memory. Returns immediately with status pending; analysis and embedding happen asynchronously.",
			InputSchema: objectSchema([]string{"content"}, map[string]interface{}{
				"content":     prop("string", "The memory text"),
				"title":       prop("string", "Optional short title"),
				"tags":        stringArray("Optional tags"),
				"memory_type": prop("string", "event, reflection, preference, identity or project; classified automatically when omitted"),
				"confidence":  prop("number", "Initial confidence in [0,1]"),
			}),
		},
		{
			Name:        "get_memory",
			Description: "Fetch a single memory with its processing status and trust state.",
			InputSchema: objectSchema([]string{"id"}, idProp),
		},
		{
			Name:        "list_memories",
			Description: "List memories, newest first, with optional filters.",
			InputSchema: objectSchema(nil, map[string]interface{}{
				"page":        prop("integer", "1-indexed page (default 1)"),
				"limit":       prop("integer", "Page size (default 20, max 100)"),
				"status":      prop("string", "pending, transcribing, analyzing, embedding, completed or failed"),
				"memory_type": prop("string", "Filter by memory type"),
				"flagged":     prop("boolean", "Filter by flag state"),
			}),
		},
		{
			Name:        "edit_memory",
			Description: "Correct a memory. Only the given fields change. Changing title or content re-runs embedding.",
			InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
				"id":          prop("string", "Memory ID"),
				"title":       prop("string", "New title"),
				"content":     prop("string", "New content"),
				"summary":     prop("string", "New summary"),
				"tags":        stringArray("Replacement tags"),
				"memory_type": prop("string", "New memory type"),
				"people":      stringArray("Replacement people"),
				"places":      stringArray("Replacement places"),
			}),
		},
		{
			Name:        "confirm_memory",
			Description: "Confirm a memory is accurate, raising its confidence.",
			InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
				"id":    prop("string", "Memory ID"),
				"boost": prop("number", "Confidence increase in [0,1]; the configured default when omitted"),
			}),
		},
		{
			Name:        "flag_memory",
			Description: "Flag a memory as wrong. Flagged memories are never used to answer questions.",
			InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
				"id":     prop("string", "Memory ID"),
				"reason": prop("string", "Why the memory is wrong"),
			}),
		},
		{
			Name:        "unflag_memory",
			Description: "Clear a memory's flag so it can ground answers again.",
			InputSchema: objectSchema([]string{"id"}, idProp),
		},
		{
			Name:        "query_memories",
			Description: "Answer a question using only the user's memories. Returns the answer, the memory IDs used and their scores.",
			InputSchema: objectSchema([]string{"question"}, map[string]interface{}{
				"question": prop("string", "Natural-language question"),
			}),
		},
		{
			Name:        "converse",
			Description: "Continue a conversation grounded in the user's memories. The last turn must be from the user.",
			InputSchema: objectSchema([]string{"turns"}, map[string]interface{}{
				"turns": map[string]interface{}{
					"type":        "array",
					"description": "Conversation so far, oldest first",
					"items": objectSchema([]string{"role", "content"}, map[string]interface{}{
						"role":    prop("string", "user or assistant"),
						"content": prop("string", "Turn text"),
					}),
				},
			}),
		},
		{
			Name:        "insights_preview",
			Description: "List a short preview of every memory, newest first.",
			InputSchema: objectSchema(nil, map[string]interface{}{}),
		},
		{
			Name:        "insights_summary",
			Description: "Count memories and words, with entries per day.",
			InputSchema: objectSchema(nil, map[string]interface{}{}),
		},
		{
			Name:        "daily_prompt",
			Description: "Suggest one short reflection question the user can answer to record a new memory.",
			InputSchema: objectSchema(nil, map[string]interface{}{}),
		},
	}
	if s.importer != nil {
		tools = append(tools,
			MCPTool{
				Name:        "import_notes",
				Description: "Import a directory of markdown notes (an Obsidian vault, for example) as memories. Runs in the background unless wait is true.",
				InputSchema: objectSchema([]string{"path"}, map[string]interface{}{
					"path": prop("string", "Directory on the local machine"),
					"wait": prop("boolean", "Block until the import finishes"),
				}),
			},
			MCPTool{
				Name:        "import_status",
				Description: "Report progress of a background import.",
				InputSchema: objectSchema([]string{"job_id"}, map[string]interface{}{
					"job_id": prop("string", "Job ID returned by import_notes"),
				}),
			},
		)
	}
	return tools
}
