package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("RECALL_SERVER_PORT must be 0-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, "RECALL_SERVER_RATE_LIMIT must be > 0")
	}

	switch c.Storage.Engine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, "RECALL_STORAGE_POSTGRES_DSN is required for the postgres engine")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown storage engine %q", c.Storage.Engine))
	}

	switch c.Storage.VectorIndex {
	case "store", "chromem":
	default:
		errs = append(errs, fmt.Sprintf("unknown vector index %q", c.Storage.VectorIndex))
	}

	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, "RECALL_LLM_OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			errs = append(errs, "RECALL_LLM_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		if c.LLM.EmbeddingProvider == "" {
			errs = append(errs, "RECALL_LLM_EMBEDDING_PROVIDER is required for the anthropic provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LLM provider %q", c.LLM.Provider))
	}

	switch c.LLM.EmbeddingProvider {
	case "", "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" && c.LLM.Provider != "openai" {
			errs = append(errs, "RECALL_LLM_OPENAI_API_KEY is required for openai embeddings")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown embedding provider %q", c.LLM.EmbeddingProvider))
	}

	switch c.Speech.Provider {
	case "openai", "gcp", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown speech provider %q", c.Speech.Provider))
	}

	if c.Security.Mode == "production" && len(c.Security.APITokens) == 0 {
		errs = append(errs, "RECALL_SECURITY_API_TOKENS is required in production mode")
	}

	if c.Pipeline.Workers < 1 {
		errs = append(errs, "RECALL_PIPELINE_WORKERS must be >= 1")
	}
	if c.Pipeline.QueueSize < 1 {
		errs = append(errs, "RECALL_PIPELINE_QUEUE_SIZE must be >= 1")
	}
	if c.Pipeline.StepTimeout <= 0 {
		errs = append(errs, "RECALL_PIPELINE_STEP_TIMEOUT must be > 0")
	}

	if c.Conversation.MaxTurns < 2 {
		errs = append(errs, "RECALL_CONVERSATION_MAX_TURNS must be >= 2")
	}

	if c.Backup.Enabled {
		if c.Backup.Interval <= 0 {
			errs = append(errs, "RECALL_BACKUP_INTERVAL must be > 0")
		}
		if c.Backup.KeepHourly < 1 || c.Backup.KeepDaily < 0 || c.Backup.KeepWeekly < 0 || c.Backup.KeepMonthly < 0 {
			errs = append(errs, "backup retention must keep at least one hourly backup and no negative counts")
		}
	}

	if strings.TrimSpace(c.MCP.UserID) == "" {
		errs = append(errs, "RECALL_MCP_USER_ID must not be empty")
	}

	if err := c.Ranking.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// Validate checks the ranking profile.
func (rc *RankingConfig) Validate() error {
	var errs []string

	w := rc.Weights
	for name, v := range map[string]float64{
		"similarity": w.Similarity,
		"recency":    w.Recency,
		"importance": w.Importance,
		"confidence": w.Confidence,
		"domain":     w.Domain,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("weight %s must be non-negative, got %g", name, v))
		}
	}

	if rc.DefaultHalfLifeDays <= 0 {
		errs = append(errs, "default_half_life_days must be > 0")
	}
	for name, hl := range rc.HalfLifeDays {
		if _, ok := types.ParseMemoryType(name); !ok {
			errs = append(errs, fmt.Sprintf("half_life_days: unknown memory type %q", name))
		}
		if hl <= 0 {
			errs = append(errs, fmt.Sprintf("half_life_days.%s must be > 0", name))
		}
	}
	for name, v := range rc.Importance {
		if _, ok := types.ParseMemoryType(name); !ok {
			errs = append(errs, fmt.Sprintf("importance: unknown memory type %q", name))
		}
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("importance.%s must be in [0,1], got %g", name, v))
		}
	}

	if rc.ImportantTagBonus < 0 || rc.ProjectDomainBonus < 0 || rc.DomainMatchBase < 0 {
		errs = append(errs, "bonuses must be non-negative")
	}
	if rc.CandidateLimit < 1 {
		errs = append(errs, "candidate_limit must be >= 1")
	}
	if rc.MaxContext < 1 || rc.MaxContext >= rc.CandidateLimit {
		errs = append(errs, fmt.Sprintf("max_context must be in [1, candidate_limit), got %d", rc.MaxContext))
	}
	if rc.ConfirmBoost < 0 || rc.ConfirmBoost > 1 {
		errs = append(errs, fmt.Sprintf("confirm_boost must be in [0,1], got %g", rc.ConfirmBoost))
	}
	if rc.ConfidenceCeiling <= 0 || rc.ConfidenceCeiling > 1 {
		errs = append(errs, fmt.Sprintf("confidence_ceiling must be in (0,1], got %g", rc.ConfidenceCeiling))
	}

	if len(errs) > 0 {
		return errors.New("ranking: " + strings.Join(errs, "; "))
	}
	return nil
}
