package store

import (
	"math"
	"sort"

	"lens/internal/domain"
)

const metricCosine = "cosine"

type candidate struct {
	id       string
	vector   []float32
	metadata map[string]string
}

// cosineSimilarity returns the normalized dot product of two vectors,
// in [-1, 1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// score maps cosine similarity onto [0, 1] where 1.0 means identical.
func score(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// rank scores all candidates against query and returns the top k, ordered by
// descending score with ties broken by ascending id. Results below minScore
// are dropped.
func rank(query []float32, cands []candidate, k int, minScore float64) []domain.Result {
	if k <= 0 || len(cands) == 0 {
		return []domain.Result{}
	}

	scored := make([]domain.Result, 0, len(cands))
	for _, c := range cands {
		s := score(cosineSimilarity(query, c.vector))
		if s < minScore {
			continue
		}
		scored = append(scored, domain.Result{ID: c.id, Score: s, Metadata: c.metadata})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
