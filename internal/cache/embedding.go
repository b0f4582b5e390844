package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/metrics"
)

// Embedder is the embedding collaborator being cached.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Backend stores encoded vectors by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CachingEmbedder memoizes embeddings by model and text. Query text repeats
// far more often than memory text, so the engine wraps only the query path.
type CachingEmbedder struct {
	next    Embedder
	backend Backend
	log     *logger.Logger
}

// NewCachingEmbedder wraps next with backend.
func NewCachingEmbedder(next Embedder, backend Backend, log *logger.Logger) *CachingEmbedder {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachingEmbedder{next: next, backend: backend, log: log}
}

// Embed returns the cached vector or computes and stores it. Backend errors
// are logged and bypass the cache.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(c.next.GetModel(), text)

	vec, ok, err := c.backend.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("embedding cache read failed", "error", err)
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
	case ok:
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	default:
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.backend.Set(ctx, key, vec); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// GetModel returns the wrapped embedder's model.
func (c *CachingEmbedder) GetModel() string {
	return c.next.GetModel()
}

// Key derives the cache key for model and text.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "recall:emb:" + model + ":" + hex.EncodeToString(sum[:])
}

// RedisBackend keeps vectors in Redis with a TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend creates a Redis-backed cache. A zero ttl keeps entries forever.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

// Get returns the vector stored at key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vec at key.
func (b *RedisBackend) Set(ctx context.Context, key string, vec []float32) error {
	if err := b.client.Set(ctx, key, encodeVector(vec), b.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// MemoryBackend is an in-process LRU with per-entry expiry.
type MemoryBackend struct {
	lru *expirable.LRU[string, []float32]
}

// NewMemoryBackend holds up to size vectors for ttl each.
func NewMemoryBackend(size int, ttl time.Duration) *MemoryBackend {
	if size <= 0 {
		size = 1024
	}
	return &MemoryBackend{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// Get returns the vector stored at key.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := b.lru.Get(key)
	return vec, ok, nil
}

// Set stores vec at key.
func (b *MemoryBackend) Set(_ context.Context, key string, vec []float32) error {
	b.lru.Add(key, vec)
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cached vector has invalid length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
