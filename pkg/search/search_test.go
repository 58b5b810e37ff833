package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/urddb/pkg/storage"
)

func pointsFrom(vectors ...[]float64) []storage.Point {
	points := make([]storage.Point, len(vectors))
	for i, v := range vectors {
		points[i] = storage.Point{Index: i, Values: v}
	}
	return points
}

func TestFindSimilar(t *testing.T) {
	// The canonical D=2 fixture: unit axes, diagonal, and a negative.
	points := pointsFrom(
		[]float64{1, 0},
		[]float64{0, 1},
		[]float64{1, 1},
		[]float64{-1, 0},
	)

	t.Run("threshold zero returns top-limit", func(t *testing.T) {
		matches := FindSimilar(points, []float64{1, 0}, 2, 0)
		require.Len(t, matches, 2)

		assert.Equal(t, []float64{1, 0}, matches[0].Values)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)

		assert.Equal(t, []float64{1, 1}, matches[1].Values)
		assert.InDelta(t, 0.7071067811865475, matches[1].Similarity, 1e-9)
	})

	t.Run("threshold filters", func(t *testing.T) {
		matches := FindSimilar(points, []float64{1, 0}, 2, 0.8)
		require.Len(t, matches, 1)
		assert.Equal(t, []float64{1, 0}, matches[0].Values)
	})

	t.Run("all similarities within bounds and above threshold", func(t *testing.T) {
		threshold := 0.5
		matches := FindSimilar(points, []float64{1, 1}, 10, threshold)
		for _, m := range matches {
			assert.GreaterOrEqual(t, m.Similarity, threshold)
			assert.LessOrEqual(t, m.Similarity, 1.0)
			assert.GreaterOrEqual(t, m.Similarity, -1.0)
		}
	})

	t.Run("sorted descending", func(t *testing.T) {
		matches := FindSimilar(points, []float64{2, 1}, 10, 0)
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
		}
	})
}

func TestFindSimilarTieBreaking(t *testing.T) {
	// Parallel vectors all have similarity 1; earlier insertion wins.
	points := pointsFrom(
		[]float64{2, 0},
		[]float64{1, 0},
		[]float64{3, 0},
	)

	matches := FindSimilar(points, []float64{1, 0}, 3, 0)
	require.Len(t, matches, 3)
	assert.Equal(t, 0, matches[0].Index)
	assert.Equal(t, 1, matches[1].Index)
	assert.Equal(t, 2, matches[2].Index)
}

func TestFindSimilarEdgeCases(t *testing.T) {
	t.Run("empty series", func(t *testing.T) {
		matches := FindSimilar(nil, []float64{1, 0}, 5, 0)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})

	t.Run("limit larger than result set", func(t *testing.T) {
		points := pointsFrom([]float64{1, 0})
		matches := FindSimilar(points, []float64{1, 0}, 100, 0)
		assert.Len(t, matches, 1)
	})

	t.Run("limit below 1", func(t *testing.T) {
		points := pointsFrom([]float64{1, 0})
		assert.Empty(t, FindSimilar(points, []float64{1, 0}, 0, 0))
	})

	t.Run("zero query vector matches nothing above zero", func(t *testing.T) {
		points := pointsFrom([]float64{1, 0}, []float64{0, 1})
		// Similarity against the zero vector is defined as 0, so a zero
		// threshold still includes every point.
		matches := FindSimilar(points, []float64{0, 0}, 10, 0)
		assert.Len(t, matches, 2)
		for _, m := range matches {
			assert.Equal(t, 0.0, m.Similarity)
		}
	})
}
