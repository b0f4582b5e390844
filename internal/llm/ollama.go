package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/logger"
)

// OllamaClient handles communication with the Ollama API for local inference.
// It wraps all HTTP calls with circuit breaker protection to prevent cascading failures.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for completions or embeddings (default: qwen2.5:7b)
	Model string

	// Timeout is the request timeout duration (default: 60s)
	Timeout time.Duration

	Logger *logger.Logger
}

// generateRequest represents the request body for /api/generate endpoint
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse represents the response from /api/generate endpoint
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// chatRequest represents the request body for /api/chat endpoint
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse represents the response from /api/chat endpoint
type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// embedRequest represents the request body for /api/embed endpoint
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse represents the response from /api/embed endpoint.
// We always use the first (and only) embedding.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client. Missing configuration values
// default to http://localhost:11434, qwen2.5:7b and a 60 second timeout.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OllamaClient{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker("ollama."+config.Model, config.Logger),
		model:          config.Model,
		timeout:        config.Timeout,
	}
}

// Complete sends a completion request to Ollama and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return execute(ctx, c.circuitBreaker, "ollama", func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var respData generateResponse
		reqBody := generateRequest{Model: c.model, Prompt: prompt, Stream: false}
		if err := postJSON(ctx, c.client, c.baseURL+"/api/generate", "", "ollama", reqBody, &respData); err != nil {
			return "", err
		}
		return respData.Response, nil
	})
}

// Chat sends role-tagged messages to /api/chat and returns the reply text.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return execute(ctx, c.circuitBreaker, "ollama", func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var respData chatResponse
		reqBody := chatRequest{Model: c.model, Messages: messages, Stream: false}
		if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", "", "ollama", reqBody, &respData); err != nil {
			return "", err
		}
		return respData.Message.Content, nil
	})
}

// Embed generates an embedding for the given text using the configured model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return execute(ctx, c.circuitBreaker, "ollama", func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var respData embedResponse
		reqBody := embedRequest{Model: c.model, Input: text}
		if err := postJSON(ctx, c.client, c.baseURL+"/api/embed", "", "ollama", reqBody, &respData); err != nil {
			return nil, err
		}
		if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding vector")
		}
		return respData.Embeddings[0], nil
	})
}

// HealthCheck verifies that Ollama is reachable via /api/version.
// It bypasses the circuit breaker since it is a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// Compile-time assertions that OllamaClient satisfies the generator interfaces.
var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ ChatGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
)
