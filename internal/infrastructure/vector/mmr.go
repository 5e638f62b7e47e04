// Package vector holds the index logic shared by the vector store adapters.
package vector

import (
	"math"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// Candidate is a chunk fetched together with its stored embedding.
type Candidate struct {
	Chunk      domain.Chunk
	Vector     []float32
	Similarity float64
}

// SelectMMR picks up to k candidates by maximal marginal relevance. lambda 1
// ranks purely by query similarity, lambda 0 purely by novelty.
func SelectMMR(query []float32, candidates []Candidate, k int, lambda float64) []Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = CosineSimilarity(query, c.Vector)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] is the highest similarity of candidate i to any selected one.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if used[i] {
				continue
			}
			if sim := CosineSimilarity(candidates[i].Vector, candidates[best].Vector); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	out := make([]Candidate, 0, len(selected))
	for _, idx := range selected {
		out = append(out, candidates[idx])
	}
	return out
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// DistanceFromSimilarity converts a cosine similarity into a non-negative
// distance where lower is closer.
func DistanceFromSimilarity(similarity float64) float64 {
	d := 1 - similarity
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return d
}
