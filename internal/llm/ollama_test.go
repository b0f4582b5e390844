package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_, _ = io.WriteString(w, `{"response":"generated: `+req.Prompt+`","done":true}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		last := req.Messages[len(req.Messages)-1]
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"re: `+last.Content+`"},"done":true}`)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"embeddings":[[0.1,0.2,0.3]]}`)
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"version":"0.5.0"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaClient_Defaults(t *testing.T) {
	c := NewOllamaClient(OllamaConfig{})
	assert.Equal(t, "http://localhost:11434", c.baseURL)
	assert.Equal(t, "qwen2.5:7b", c.GetModel())
}

func TestOllamaClient_Complete(t *testing.T) {
	srv := newOllamaServer(t)
	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL})

	out, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "generated: hello", out)
}

func TestOllamaClient_Chat(t *testing.T) {
	srv := newOllamaServer(t)
	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL})

	out, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "re: ping", out)
}

func TestOllamaClient_Embed(t *testing.T) {
	srv := newOllamaServer(t)
	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaClient_EmbedEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"embeddings":[]}`)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestOllamaClient_HealthCheck(t *testing.T) {
	srv := newOllamaServer(t)
	assert.NoError(t, NewOllamaClient(OllamaConfig{BaseURL: srv.URL}).HealthCheck(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, NewOllamaClient(OllamaConfig{BaseURL: down.URL}).HealthCheck(context.Background()))
}
