package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

// CosineDistance returns 1 - cos(a, b) in [0, 2]. When either vector has zero
// norm the cosine is taken as 0, giving distance 1.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	for i := n; i < len(a); i++ {
		na += float64(a[i]) * float64(a[i])
	}
	for i := n; i < len(b); i++ {
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return clampDistance(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// distanceFromSimilarity converts a backend cosine similarity into a distance.
func distanceFromSimilarity(similarity float64) float64 {
	if math.IsNaN(similarity) {
		return 1
	}
	return clampDistance(1 - similarity)
}

func clampDistance(d float64) float64 {
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// IsZeroVector reports whether every component is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// sortMatches orders matches by ascending distance, keeping the incoming order
// for ties.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
}

// truncate caps matches at k entries.
func truncate(matches []Match, k int) []Match {
	if len(matches) > k {
		return matches[:k]
	}
	return matches
}

// unitProbe returns a unit vector along the first axis. Backends that only
// expose similarity search use it to enumerate a filtered set.
func unitProbe(dimension int) []float32 {
	probe := make([]float32, dimension)
	if dimension > 0 {
		probe[0] = 1
	}
	return probe
}

// validateQuery checks the arguments shared by every Query implementation.
func validateQuery(vector []float32, filter Filter, k, dimension int) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if k <= 0 {
		return ErrInvalidK
	}
	if len(vector) != dimension {
		return fmt.Errorf("%w: query has %d, store expects %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
