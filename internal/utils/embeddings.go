package utils

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")
	ErrEmptyVector       = errors.New("vectors cannot be empty")
)

// CosineSimilarity returns 0 when either vector has zero magnitude.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, ErrEmptyVector
	}
	if len(vec1) != len(vec2) {
		return 0, ErrDimensionMismatch
	}

	var dot, sum1, sum2 float64
	for i := range vec1 {
		a, b := float64(vec1[i]), float64(vec2[i])
		dot += a * b
		sum1 += a * a
		sum2 += b * b
	}
	if sum1 == 0 || sum2 == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(sum1) * math.Sqrt(sum2))), nil
}

type Scored struct {
	Index int
	Score float32
}

// TopK ranks candidates against query by cosine similarity and returns at
// most k of them, best first. Ties keep candidate order.
func TopK(query []float32, candidates [][]float32, k int) ([]Scored, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil {
			return nil, err
		}
		scored = append(scored, Scored{Index: i, Score: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
