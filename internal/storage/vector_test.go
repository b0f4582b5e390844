package storage

import (
	"math"
	"testing"
	"time"

	"github.com/scrypster/recall/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}), "length mismatch")
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}), "zero norm")

	// Norms are accounted for, so scaling never changes the result.
	a := []float32{0.3, 0.9, 0.1}
	b := []float32{0.5, 0.2, 0.8}
	scaled := []float32{5, 2, 8}
	assert.InDelta(t, Cosine(a, b), Cosine(a, scaled), 1e-9)
	assert.False(t, math.IsNaN(Cosine(a, b)))
}

func TestSortCandidates_TotalOrder(t *testing.T) {
	now := time.Now()
	cs := []Candidate{
		{Memory: types.Memory{ID: "b", CreatedAt: now}, Similarity: 0.5},
		{Memory: types.Memory{ID: "a", CreatedAt: now}, Similarity: 0.5},
		{Memory: types.Memory{ID: "old", CreatedAt: now.Add(-time.Hour)}, Similarity: 0.5},
		{Memory: types.Memory{ID: "top", CreatedAt: now.Add(-time.Hour)}, Similarity: 0.9},
	}

	out := TopCandidates(cs, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "top", out[0].Memory.ID)
	assert.Equal(t, "a", out[1].Memory.ID)
	assert.Equal(t, "b", out[2].Memory.ID)
}
