// Package mcp exposes the memory engine as Model Context Protocol tools over
// line-delimited JSON-RPC 2.0, so desktop assistants can capture memories and
// ask grounded questions about them.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/recall/internal/importer"
	"github.com/scrypster/recall/pkg/types"
)

// StringList decodes a JSON array of strings. Some MCP clients send arrays
// as a JSON-encoded string ("[\"a\",\"b\"]") or a comma separated string;
// both are accepted.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	items = []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			items = append(items, t)
		}
	}
	*l = items
	return nil
}

// CaptureMemoryArgs contains arguments for the capture_memory tool.
type CaptureMemoryArgs struct {
	Content    string     `json:"content" validate:"required"`
	Title      string     `json:"title,omitempty" validate:"max=200"`
	Tags       StringList `json:"tags,omitempty" validate:"max=50,dive,min=1,max=64"`
	MemoryType string     `json:"memory_type,omitempty"`
	Confidence *float64   `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// CaptureMemoryResult is returned immediately; processing is asynchronous.
type CaptureMemoryResult struct {
	ID      string                 `json:"id"`
	Status  types.ProcessingStatus `json:"status"`
	Message string                 `json:"message"`
}

// MemoryIDArgs identifies a single memory.
type MemoryIDArgs struct {
	ID string `json:"id" validate:"required"`
}

// ListMemoriesArgs contains arguments for the list_memories tool.
type ListMemoriesArgs struct {
	Page       int    `json:"page,omitempty" validate:"gte=0"`
	Limit      int    `json:"limit,omitempty" validate:"gte=0,lte=100"`
	Status     string `json:"status,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
	Flagged    *bool  `json:"flagged,omitempty"`
}

// ListMemoriesResult is one page of memories.
type ListMemoriesResult struct {
	Memories []types.Memory `json:"memories"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	HasMore  bool           `json:"has_more"`
}

// EditMemoryArgs contains arguments for the edit_memory tool. Absent fields
// are left unchanged.
type EditMemoryArgs struct {
	ID         string      `json:"id" validate:"required"`
	Title      *string     `json:"title,omitempty" validate:"omitempty,max=200"`
	Content    *string     `json:"content,omitempty"`
	Summary    *string     `json:"summary,omitempty"`
	Tags       *StringList `json:"tags,omitempty"`
	MemoryType *string     `json:"memory_type,omitempty"`
	People     *StringList `json:"people,omitempty"`
	Places     *StringList `json:"places,omitempty"`
}

// ConfirmMemoryArgs contains arguments for the confirm_memory tool.
type ConfirmMemoryArgs struct {
	ID    string   `json:"id" validate:"required"`
	Boost *float64 `json:"boost,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// FlagMemoryArgs contains arguments for the flag_memory tool.
type FlagMemoryArgs struct {
	ID     string `json:"id" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// QueryMemoriesArgs contains arguments for the query_memories tool.
type QueryMemoriesArgs struct {
	Question string `json:"question" validate:"required"`
}

// ConverseArgs contains arguments for the converse tool.
type ConverseArgs struct {
	Turns []TurnArgs `json:"turns" validate:"required,min=1,dive"`
}

// TurnArgs is one conversation turn.
type TurnArgs struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// ImportNotesArgs contains arguments for the import_notes tool.
type ImportNotesArgs struct {
	Path string `json:"path" validate:"required"`
	Wait bool   `json:"wait,omitempty"`
}

// ImportNotesResult reports a started job, plus its result when Wait was set.
type ImportNotesResult struct {
	JobID  string           `json:"job_id"`
	Result *importer.Result `json:"result,omitempty"`
}

// ImportStatusArgs contains arguments for the import_status tool.
type ImportStatusArgs struct {
	JobID string `json:"job_id" validate:"required"`
}

// ImportStatusResult combines live progress with the final result.
type ImportStatusResult struct {
	Progress importer.Progress `json:"progress"`
	Result   *importer.Result  `json:"result,omitempty"`
}

// DailyPromptResult is the result of the daily_prompt tool.
type DailyPromptResult struct {
	Prompt string `json:"prompt"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request. A request without an id
// is a notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPInitializeParams holds the parameters of the initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPPeerInfo            `json:"clientInfo"`
}

// MCPPeerInfo identifies a client or server.
type MCPPeerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPPeerInfo           `json:"serverInfo"`
	Instructions    string                `json:"instructions,omitempty"`
}

// MCPTool describes a tool listed by tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to tools/list.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters of a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPToolCallContent is a single content block in a tool result.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to tools/call. Tool failures are
// reported here with IsError set rather than as JSON-RPC errors.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
