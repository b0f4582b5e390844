package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/scrypster/recall/internal/logger"
)

// maxMessageSize bounds one JSON-RPC line.
const maxMessageSize = 4 * 1024 * 1024

// StdioTransport reads line-delimited JSON-RPC requests from in and writes
// one response line per request to out. Nothing else may be written to out,
// so logs go to the logger, which must target stderr.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	log    *logger.Logger
}

// NewStdioTransport connects srv to in and out.
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer, log *logger.Logger) *StdioTransport {
	if log == nil {
		log = logger.NewNop()
	}
	return &StdioTransport{server: srv, in: in, out: out, log: log}
}

// Serve handles requests in arrival order until in reaches EOF or ctx is
// cancelled. A clean EOF returns nil.
func (t *StdioTransport) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	// Scanning runs separately so cancellation is not stuck behind a blocking read.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("mcp transport stopping", "reason", ctx.Err())
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := <-scanErr; err != nil {
					return fmt.Errorf("stdin scanner: %w", err)
				}
				t.log.Info("stdin closed, mcp transport stopping")
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := t.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *StdioTransport) handle(ctx context.Context, line []byte) error {
	resp, err := t.server.HandleRequest(ctx, line)
	if err != nil {
		t.log.Error("mcp handler error", "error", err)
		resp = internalErrorResponse(line, err)
	}
	if resp == nil {
		return nil
	}
	if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// internalErrorResponse builds an error frame that keeps the request id when
// it can be recovered.
func internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: handlerErr.Error()},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
