package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/importer"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Engine is the subset of the memory engine the tools call.
type Engine interface {
	Ingest(ctx context.Context, capture types.Capture) (*types.Memory, error)
	Get(ctx context.Context, userID, id string) (*types.Memory, error)
	List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error)
	Edit(ctx context.Context, userID, id string, fields engine.EditFields) (*types.Memory, error)
	Confirm(ctx context.Context, userID, id string, boost *float64) (*types.Memory, error)
	Flag(ctx context.Context, userID, id, reason string) (*types.Memory, error)
	Unflag(ctx context.Context, userID, id string) (*types.Memory, error)
	Query(ctx context.Context, userID, question string) (*engine.QueryResult, error)
	Converse(ctx context.Context, userID string, turns []types.Turn) (*engine.QueryResult, error)
	Previews(ctx context.Context, userID string) ([]engine.Preview, error)
	Summary(ctx context.Context, userID string) (*engine.Summary, error)
	DailyPrompt(ctx context.Context) (string, error)
}

// Server answers MCP requests for a single user. A stdio MCP server is
// launched per desktop session, so the user is fixed at construction.
type Server struct {
	engine   Engine
	importer *importer.Importer
	userID   string
	version  string
	validate *validator.Validate
	log      *logger.Logger
	tools    map[string]toolHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithImporter enables the import_notes and import_status tools.
func WithImporter(imp *importer.Importer) ServerOption {
	return func(s *Server) { s.importer = imp }
}

// WithLogger sets the logger. It must not write to stdout.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer returns a Server that acts for userID.
func NewServer(eng Engine, userID string, opts ...ServerOption) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	s := &Server{
		engine:   eng,
		userID:   userID,
		version:  "dev",
		validate: validator.New(),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = s.toolHandlers()
	return s, nil
}

// HandleRequest processes one JSON-RPC message. It returns nil for
// notifications, which get no response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}
	if req.ID == nil {
		s.log.Debug("mcp notification", "method", req.Method)
		return nil, nil
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: s.buildToolsList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleInitialize(params json.RawMessage) (interface{}, error) {
	if len(params) > 0 {
		var p MCPInitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid initialize params: %w", err)
		}
		s.log.Info("mcp client connected",
			"client", p.ClientInfo.Name, "client_version", p.ClientInfo.Version,
			"protocol", p.ProtocolVersion)
	}
	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
		ServerInfo:      MCPPeerInfo{Name: "recall", Version: s.version},
		Instructions: "Capture personal memories with capture_memory and answer questions " +
			"about them with query_memories. Answers only use confirmed, unflagged context.",
	}, nil
}

// handleToolsCall runs a tool and wraps its JSON result in a text block.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p MCPToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid tools/call params: %w", err)
	}

	handler, ok := s.tools[p.Name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", p.Name)), nil
	}

	args := p.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	result, err := handler(ctx, args)
	if err != nil {
		s.log.Debug("mcp tool failed", "tool", p.Name, "error", err)
		return toolError(s.describeError(err)), nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

func toolError(msg string) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// describeError turns an engine error into a message for the assistant.
// Unexpected errors are logged and hidden.
func (s *Server) describeError(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return "invalid arguments: " + err.Error()
	case errors.Is(err, errInvalidArgs), errors.Is(err, engine.ErrValidation):
		return err.Error()
	case errors.Is(err, engine.ErrNotFound):
		return "not found"
	case errors.Is(err, engine.ErrRetrievalUnavailable):
		return "retrieval unavailable, try again later"
	case errors.Is(err, engine.ErrIngestionFailure), errors.Is(err, engine.ErrNotStarted):
		return "ingestion unavailable, try again later"
	default:
		s.log.Error("mcp tool error", "error", err)
		return "internal error"
	}
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}
