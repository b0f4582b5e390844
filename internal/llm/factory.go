package llm

import (
	"context"
	"fmt"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
)

// NewTextGenerator creates the TextGenerator selected by cfg.Provider.
func NewTextGenerator(cfg config.LLMConfig, log *logger.Logger) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.OpenAIBaseURL,
			Timeout:     cfg.Timeout,
			Temperature: 0.4,
			Logger:      log,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
			Timeout: cfg.Timeout,
			Logger:  log,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout,
			Logger:  log,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator selected by
// cfg.EmbeddingProvider, falling back to cfg.Provider.
func NewEmbeddingGenerator(cfg config.LLMConfig, log *logger.Logger) (EmbeddingGenerator, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	switch provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIEmbeddingModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.Timeout,
			Logger:  log,
		}), nil
	case "ollama", "":
		model := cfg.OllamaEmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   model,
			Timeout: cfg.Timeout,
			Logger:  log,
		}), nil
	case "anthropic":
		return nil, fmt.Errorf("anthropic has no embeddings API; set llm.embedding.provider to ollama or openai")
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", provider)
	}
}

// NewTranscriber creates the Transcriber selected by speech.Provider.
// Provider "none" returns (nil, nil); audio captures then fail at transcription.
// The openai provider reuses the LLM section's API key and base URL.
func NewTranscriber(ctx context.Context, speech config.SpeechConfig, llmCfg config.LLMConfig, log *logger.Logger) (Transcriber, error) {
	switch speech.Provider {
	case "openai", "":
		return NewOpenAITranscriber(OpenAIConfig{
			APIKey:  llmCfg.OpenAIAPIKey,
			Model:   speech.Model,
			BaseURL: llmCfg.OpenAIBaseURL,
			Timeout: llmCfg.Timeout,
			Logger:  log,
		}), nil
	case "gcp":
		t, err := NewGCPSpeechTranscriber(ctx, GCPSpeechConfig{
			LanguageCode:    speech.LanguageCode,
			CredentialsFile: speech.CredentialsFile,
			Timeout:         llmCfg.Timeout,
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported speech provider: %q", speech.Provider)
	}
}
