package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

func TestRun_ServesStdioUntilEOF(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataPath = filepath.Join(t.TempDir(), "data")
	cfg.Speech.Provider = "none"
	cfg.Pipeline.Workers = 1
	cfg.MCP.UserID = "desk"

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"capture_memory","arguments":{"content":"Bought a bike"}}}`,
	}, "\n") + "\n")
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), cfg, logger.NewNop(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var initResp struct {
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &initResp))
	assert.Equal(t, "recall", initResp.Result.ServerInfo.Name)

	assert.Contains(t, lines[1], `"import_notes"`)

	var callResp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &callResp))
	require.False(t, callResp.Result.IsError)
	require.Len(t, callResp.Result.Content, 1)
	assert.Contains(t, callResp.Result.Content[0].Text, `"status":"pending"`)
}
