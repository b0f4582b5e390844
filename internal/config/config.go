// Package config provides configuration management for recall.
//
// Settings are resolved in three layers: built-in defaults, an optional .env
// file, then RECALL_* environment variables. Environment keys map to dotted
// paths by dropping the prefix, lowercasing and turning underscores into dots,
// so RECALL_SERVER_PORT becomes server.port.
//
// Ranking parameters can additionally be loaded from a YAML profile named by
// RECALL_RANKING_FILE; see ranking.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RECALL_"

// Config holds all configuration settings for the recall application.
type Config struct {
	Server       ServerConfig
	Storage      StorageConfig
	LLM          LLMConfig
	Speech       SpeechConfig
	Security     SecurityConfig
	Pipeline     PipelineConfig
	Ranking      RankingConfig
	Cache        CacheConfig
	Conversation ConversationConfig
	Events       EventsConfig
	Backup       BackupConfig
	MCP          MCPConfig
	Log          LogConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     // Server port (default: 6464)
	Host           string  // Server host (default: 127.0.0.1)
	RateLimit      float64 // Sustained requests per second (default: 10)
	RateBurst      int     // Burst size (default: 20)
	MetricsEnabled bool    // Expose /metrics (default: true)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // sqlite or postgres (default: sqlite)
	DataPath    string // Directory for the sqlite database (default: ./data)
	PostgresDSN string // Connection string when Engine is postgres
	VectorIndex string // Candidate source: store or chromem (default: store)
}

// LLMConfig contains analysis, embedding and answer generation provider settings.
type LLMConfig struct {
	Provider             string        // ollama, openai or anthropic (default: ollama)
	EmbeddingProvider    string        // ollama or openai; empty follows Provider
	OllamaURL            string        // default: http://localhost:11434
	OllamaModel          string        // default: qwen2.5:7b
	OllamaEmbeddingModel string        // default: nomic-embed-text
	OpenAIAPIKey         string        // OpenAI API key
	OpenAIBaseURL        string        // default: https://api.openai.com
	OpenAIModel          string        // default: gpt-4o-mini
	OpenAIEmbeddingModel string        // default: text-embedding-3-small
	AnthropicAPIKey      string        // Anthropic API key
	AnthropicBaseURL     string        // default: https://api.anthropic.com
	AnthropicModel       string        // default: claude-haiku-4-5-20251001
	Timeout              time.Duration // Per-call timeout (default: 60s)
}

// SpeechConfig contains transcription settings.
type SpeechConfig struct {
	Provider        string // openai, gcp or none (default: openai)
	Model           string // Transcription model for openai (default: whisper-1)
	LanguageCode    string // default: en-US
	CredentialsFile string // Service account file for gcp; empty uses ADC
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode string // development or production (default: development)

	// APITokens maps bearer tokens to user IDs. Parsed from
	// RECALL_SECURITY_API_TOKENS="token1:alice,token2:bob".
	APITokens map[string]string
}

// PipelineConfig controls the ingestion worker pool.
type PipelineConfig struct {
	Workers           int           // default: 4
	QueueSize         int           // default: 1000
	ShutdownTimeout   time.Duration // default: 30s
	StepTimeout       time.Duration // Bound for each external call (default: 60s)
	RecoveryBatchSize int           // default: 500
}

// CacheConfig contains the query embedding cache settings.
// An empty RedisAddr selects the in-process cache.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EmbeddingTTL  time.Duration // default: 24h
}

// ConversationConfig bounds conversation history.
type ConversationConfig struct {
	MaxTurns int           // default: 20
	TTL      time.Duration // default: 168h
}

// EventsConfig contains status event publishing settings.
type EventsConfig struct {
	NATSURL     string // Empty disables NATS publishing
	NATSSubject string // default: recall.events
	NATSStream  string // default: RECALL_EVENTS
}

// BackupConfig controls scheduled sqlite backups. Ignored for postgres.
type BackupConfig struct {
	Enabled  bool          // default: false
	Dir      string        // default: <data path>/backups
	Interval time.Duration // default: 1h
	Verify   bool          // Run an integrity check after each backup (default: true)

	// Backups kept per age tier
	KeepHourly  int // default: 24
	KeepDaily   int // default: 7
	KeepWeekly  int // default: 4
	KeepMonthly int // default: 12
}

// MCPConfig contains settings for the stdio MCP server.
type MCPConfig struct {
	UserID string // User every tool call acts as (default: local)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Mode  string // development or production (default: development)
	Level string // default: info
}

// LoadConfig loads configuration from defaults, the .env file in the working
// directory (if present) and the environment, then applies the ranking profile.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom is LoadConfig with an explicit dotenv path. A missing file is ignored.
func LoadConfigFrom(dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			fileK := koanf.New(".")
			if err := fileK.Load(file.Provider(dotenvPath), dotenv.Parser()); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", dotenvPath, err)
			}
			for key, value := range fileK.All() {
				if !strings.HasPrefix(key, envPrefix) {
					continue
				}
				if err := k.Set(envKey(key), value); err != nil {
					return nil, fmt.Errorf("config: applying %s: %w", key, err)
				}
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading env vars: %w", err)
	}

	cfg := buildConfig(k)

	if cfg.Ranking.File != "" {
		if err := cfg.Ranking.LoadFile(cfg.Ranking.File); err != nil {
			return nil, err
		}
	}
	applyRankingOverrides(k, &cfg.Ranking)

	return cfg, nil
}

// Default returns a Config populated only with defaults.
func Default() *Config {
	return buildConfig(koanf.New("."))
}

// envKey maps RECALL_SERVER_PORT to server.port.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}

func buildConfig(k *koanf.Koanf) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getInt(k, "server.port", 6464),
			Host:           getString(k, "server.host", "127.0.0.1"),
			RateLimit:      getFloat(k, "server.rate.limit", 10),
			RateBurst:      getInt(k, "server.rate.burst", 20),
			MetricsEnabled: getBool(k, "server.metrics.enabled", true),
		},
		Storage: StorageConfig{
			Engine:      getString(k, "storage.engine", "sqlite"),
			DataPath:    getString(k, "storage.data.path", "./data"),
			PostgresDSN: getString(k, "storage.postgres.dsn", ""),
			VectorIndex: getString(k, "storage.vector.index", "store"),
		},
		LLM: LLMConfig{
			Provider:             getString(k, "llm.provider", "ollama"),
			EmbeddingProvider:    getString(k, "llm.embedding.provider", ""),
			OllamaURL:            getString(k, "llm.ollama.url", "http://localhost:11434"),
			OllamaModel:          getString(k, "llm.ollama.model", "qwen2.5:7b"),
			OllamaEmbeddingModel: getString(k, "llm.ollama.embedding.model", "nomic-embed-text"),
			OpenAIAPIKey:         getString(k, "llm.openai.api.key", ""),
			OpenAIBaseURL:        getString(k, "llm.openai.base.url", "https://api.openai.com"),
			OpenAIModel:          getString(k, "llm.openai.model", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getString(k, "llm.openai.embedding.model", "text-embedding-3-small"),
			AnthropicAPIKey:      getString(k, "llm.anthropic.api.key", ""),
			AnthropicBaseURL:     getString(k, "llm.anthropic.base.url", "https://api.anthropic.com"),
			AnthropicModel:       getString(k, "llm.anthropic.model", "claude-haiku-4-5-20251001"),
			Timeout:              getDuration(k, "llm.timeout", 60*time.Second),
		},
		Speech: SpeechConfig{
			Provider:        getString(k, "speech.provider", "openai"),
			Model:           getString(k, "speech.model", "whisper-1"),
			LanguageCode:    getString(k, "speech.language.code", "en-US"),
			CredentialsFile: getString(k, "speech.credentials.file", ""),
		},
		Security: SecurityConfig{
			Mode:      getString(k, "security.mode", "development"),
			APITokens: parseTokens(getString(k, "security.api.tokens", "")),
		},
		Pipeline: PipelineConfig{
			Workers:           getInt(k, "pipeline.workers", 4),
			QueueSize:         getInt(k, "pipeline.queue.size", 1000),
			ShutdownTimeout:   getDuration(k, "pipeline.shutdown.timeout", 30*time.Second),
			StepTimeout:       getDuration(k, "pipeline.step.timeout", 60*time.Second),
			RecoveryBatchSize: getInt(k, "pipeline.recovery.batch.size", 500),
		},
		Ranking: RankingConfigWithFile(getString(k, "ranking.file", "")),
		Cache: CacheConfig{
			RedisAddr:     getString(k, "cache.redis.addr", ""),
			RedisPassword: getString(k, "cache.redis.password", ""),
			RedisDB:       getInt(k, "cache.redis.db", 0),
			EmbeddingTTL:  getDuration(k, "cache.embedding.ttl", 24*time.Hour),
		},
		Conversation: ConversationConfig{
			MaxTurns: getInt(k, "conversation.max.turns", 20),
			TTL:      getDuration(k, "conversation.ttl", 7*24*time.Hour),
		},
		Events: EventsConfig{
			NATSURL:     getString(k, "events.nats.url", ""),
			NATSSubject: getString(k, "events.nats.subject", "recall.events"),
			NATSStream:  getString(k, "events.nats.stream", "RECALL_EVENTS"),
		},
		Backup: BackupConfig{
			Enabled:     getBool(k, "backup.enabled", false),
			Dir:         getString(k, "backup.dir", filepath.Join(getString(k, "storage.data.path", "./data"), "backups")),
			Interval:    getDuration(k, "backup.interval", time.Hour),
			Verify:      getBool(k, "backup.verify", true),
			KeepHourly:  getInt(k, "backup.keep.hourly", 24),
			KeepDaily:   getInt(k, "backup.keep.daily", 7),
			KeepWeekly:  getInt(k, "backup.keep.weekly", 4),
			KeepMonthly: getInt(k, "backup.keep.monthly", 12),
		},
		MCP: MCPConfig{
			UserID: getString(k, "mcp.user.id", "local"),
		},
		Log: LogConfig{
			Mode:  getString(k, "log.mode", "development"),
			Level: getString(k, "log.level", "info"),
		},
	}
}

// parseTokens parses "token1:alice,token2:bob" into a token -> user map.
// Malformed pairs are skipped.
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return tokens
}

func getString(k *koanf.Koanf, key, defaultValue string) string {
	if v := strings.TrimSpace(k.String(key)); v != "" {
		return v
	}
	return defaultValue
}

// getInt returns defaultValue when the key is unset or not a valid integer.
func getInt(k *koanf.Koanf, key string, defaultValue int) int {
	if !k.Exists(key) {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(k.String(key)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(k *koanf.Koanf, key string, defaultValue float64) float64 {
	if !k.Exists(key) {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(k.String(key)), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// getBool recognizes true/1/yes and false/0/no (case-insensitive).
func getBool(k *koanf.Koanf, key string, defaultValue bool) bool {
	if !k.Exists(key) {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(k.String(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getDuration(k *koanf.Koanf, key string, defaultValue time.Duration) time.Duration {
	if !k.Exists(key) {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(k.String(key)))
	if err != nil {
		return defaultValue
	}
	return d
}
