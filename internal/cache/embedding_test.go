package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func (e *countingEmbedder) GetModel() string { return "test-model" }

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestCachingEmbedder_Redis(t *testing.T) {
	client, mr := setupMiniredis(t)
	inner := &countingEmbedder{}
	c := NewCachingEmbedder(inner, NewRedisBackend(client, time.Hour), nil)
	ctx := context.Background()

	first, err := c.Embed(ctx, "where did I travel")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "where did I travel")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mr.Exists(Key("test-model", "where did I travel")))
	assert.Equal(t, "test-model", c.GetModel())

	mr.FastForward(2 * time.Hour)
	_, err = c.Embed(ctx, "where did I travel")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingEmbedder_RedisDownBypasses(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })

	inner := &countingEmbedder{}
	c := NewCachingEmbedder(inner, NewRedisBackend(client, time.Hour), nil)

	vec, err := c.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5}, vec)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("provider down")}
	c := NewCachingEmbedder(inner, NewMemoryBackend(10, time.Minute), nil)

	_, err := c.Embed(context.Background(), "abc")
	require.Error(t, err)

	inner.err = nil
	_, err = c.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestMemoryBackend_Evicts(t *testing.T) {
	b := NewMemoryBackend(2, time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "a", []float32{1}))
	require.NoError(t, b.Set(ctx, "b", []float32{2}))
	require.NoError(t, b.Set(ctx, "c", []float32{3}))

	_, ok, _ := b.Get(ctx, "a")
	assert.False(t, ok)
	v, ok, _ := b.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, []float32{3}, v)
}

func TestKey_DependsOnModel(t *testing.T) {
	assert.NotEqual(t, Key("a", "text"), Key("b", "text"))
	assert.Equal(t, Key("a", "text"), Key("a", "text"))
}

func TestVectorCodec_RejectsTruncated(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
