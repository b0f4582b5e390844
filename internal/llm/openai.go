package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/logger"
)

// OpenAIConfig holds configuration for the OpenAI clients. The same API key
// and base URL serve chat, embedding and transcription requests.
type OpenAIConfig struct {
	APIKey      string
	Model       string        // default: gpt-4o-mini
	BaseURL     string        // default: https://api.openai.com
	Timeout     time.Duration // default: 60s
	Temperature float64
	Logger      *logger.Logger
}

func (cfg *OpenAIConfig) applyDefaults(model string) {
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

// OpenAIClient implements TextGenerator and ChatGenerator using the OpenAI
// chat completions API.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIClient creates a new OpenAI chat client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	cfg.applyDefaults("gpt-4o-mini")
	return &OpenAIClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("openai.chat", cfg.Logger),
	}
}

// openAIChatRequest is the request body for POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// openAIChatResponse is the response body from POST /v1/chat/completions.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn completion to OpenAI and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// Chat sends role-tagged messages to OpenAI and returns the reply text.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return execute(ctx, c.circuitBreaker, "openai", func() (string, error) {
		return c.chat(ctx, messages)
	})
}

func (c *OpenAIClient) chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := openAIChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	}

	var respData openAIChatResponse
	if err := postJSON(ctx, c.client, c.cfg.BaseURL+"/v1/chat/completions", c.cfg.APIKey, "openai", reqBody, &respData); err != nil {
		return "", err
	}
	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return respData.Choices[0].Message.Content, nil
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var (
	_ TextGenerator = (*OpenAIClient)(nil)
	_ ChatGenerator = (*OpenAIClient)(nil)
)

// OpenAIEmbeddingClient implements EmbeddingGenerator using the OpenAI embeddings API.
type OpenAIEmbeddingClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIEmbeddingClient creates a new OpenAI embedding client.
// The default model is text-embedding-3-small.
func NewOpenAIEmbeddingClient(cfg OpenAIConfig) *OpenAIEmbeddingClient {
	cfg.applyDefaults("text-embedding-3-small")
	return &OpenAIEmbeddingClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("openai.embed", cfg.Logger),
	}
}

// openAIEmbeddingRequest is the request body for POST /v1/embeddings.
type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// openAIEmbeddingResponse is the response body from POST /v1/embeddings.
type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return execute(ctx, c.circuitBreaker, "openai embedding", func() ([]float32, error) {
		return c.embed(ctx, text)
	})
}

func (c *OpenAIEmbeddingClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var respData openAIEmbeddingResponse
	reqBody := openAIEmbeddingRequest{Model: c.cfg.Model, Input: text}
	if err := postJSON(ctx, c.client, c.cfg.BaseURL+"/v1/embeddings", c.cfg.APIKey, "openai", reqBody, &respData); err != nil {
		return nil, err
	}
	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}

	raw := respData.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.cfg.Model
}

var _ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)

// OpenAITranscriber implements Transcriber using POST /v1/audio/transcriptions.
type OpenAITranscriber struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAITranscriber creates a transcription client. The default model is whisper-1.
func NewOpenAITranscriber(cfg OpenAIConfig) *OpenAITranscriber {
	cfg.applyDefaults("whisper-1")
	return &OpenAITranscriber{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("openai.transcribe", cfg.Logger),
	}
}

type openAITranscriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio as multipart form data and returns the transcript.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	return execute(ctx, t.circuitBreaker, "openai transcription", func() (string, error) {
		return t.transcribe(ctx, audio, mimeType)
	})
}

func (t *OpenAITranscriber) transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model", t.cfg.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	part, err := w.CreateFormFile("file", "capture"+audioExtension(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(data))
	}

	var respData openAITranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return strings.TrimSpace(respData.Text), nil
}

var _ Transcriber = (*OpenAITranscriber)(nil)

// audioExtension maps a MIME type to the file extension the transcription
// endpoint uses to detect the container format.
func audioExtension(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	case strings.Contains(m, "mp4"), strings.Contains(m, "m4a"):
		return ".m4a"
	case strings.Contains(m, "ogg"):
		return ".ogg"
	case strings.Contains(m, "flac"):
		return ".flac"
	default:
		return ".webm"
	}
}

// postJSON sends body as JSON and decodes a 200 response into out.
// An empty apiKey sends no Authorization header.
func postJSON(ctx context.Context, client *http.Client, url, apiKey, provider string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
