package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", axis(0), axis(0), 0},
		{"orthogonal", axis(0), axis(1), 1},
		{"opposite", axis(0), neg(axis(0)), 2},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 0},
		{"diagonal", []float32{1, 1}, []float32{1, 0}, 1 - 1/math.Sqrt2},
		{"zero a", []float32{0, 0}, []float32{1, 0}, 1},
		{"zero b", []float32{1, 0}, []float32{0, 0}, 1},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 2.0)
		})
	}
}

func TestDistanceFromSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, distanceFromSimilarity(1))
	assert.Equal(t, 1.0, distanceFromSimilarity(0))
	assert.Equal(t, 2.0, distanceFromSimilarity(-1))
	assert.Equal(t, 0.0, distanceFromSimilarity(1.0000001), "rounding above 1 is clamped")
	assert.Equal(t, 2.0, distanceFromSimilarity(-1.0000001))
	assert.Equal(t, 1.0, distanceFromSimilarity(math.NaN()))
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector(nil))
	assert.True(t, IsZeroVector(make([]float32, 4)))
	assert.False(t, IsZeroVector([]float32{0, 0, 1e-30}))
}

func TestSortMatches_StableOnTies(t *testing.T) {
	matches := []Match{
		{Document: Document{ID: "c"}, Distance: 0.5},
		{Document: Document{ID: "a"}, Distance: 0.1},
		{Document: Document{ID: "b"}, Distance: 0.5},
	}
	sortMatches(matches)
	assert.Equal(t, "a", matches[0].Document.ID)
	assert.Equal(t, "c", matches[1].Document.ID)
	assert.Equal(t, "b", matches[2].Document.ID)

	assert.Len(t, truncate(matches, 2), 2)
	assert.Len(t, truncate(matches, 10), 3)
}

func TestUnitProbe(t *testing.T) {
	probe := unitProbe(4)
	assert.Equal(t, []float32{1, 0, 0, 0}, probe)
	assert.Empty(t, unitProbe(0))
}
