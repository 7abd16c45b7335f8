// Package cluster groups fused card embeddings with two-stage spherical k-means.
package cluster

import (
	"fmt"
	"math/rand"

	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// KMeansResult holds the outcome of one spherical k-means run.
type KMeansResult struct {
	Assignments []int       // vector index -> cluster id, 0..K-1
	Centroids   [][]float32 // unit-length centroid per cluster
	Iterations  int
	Converged   bool
}

// KMeans runs spherical k-means over unit vectors: cosine-similarity
// assignment, mean-then-renormalize centroid update. Initialization is
// farthest-point seeding with the first pick drawn from a rand source built
// on seed, so the same seed and input always reproduce the same assignments.
// k is clamped to the number of vectors. Non-convergence within maxIter is
// not an error; the last iteration's assignments are returned.
func KMeans(vectors [][]float32, k int, seed int64, maxIter int) (*KMeansResult, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to cluster")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if k > len(vectors) {
		k = len(vectors)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	if maxIter < 1 {
		maxIter = 1
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initCentroids(vectors, k, rng)
	assignments := make([]int, len(vectors))
	for i := range assignments {
		assignments[i] = -1
	}

	result := &KMeansResult{}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		result.Iterations = iter + 1
		if !changed {
			result.Converged = true
			break
		}
		updateCentroids(vectors, assignments, centroids, rng)
	}

	result.Assignments = assignments
	result.Centroids = centroids
	return result, nil
}

// initCentroids seeds k centroids: the first is a random vector, each
// subsequent pick is the vector least similar to its closest already-chosen
// centroid. Farthest-point seeding spreads initial centroids across well
// separated groups, which keeps small-k runs from collapsing onto one group.
func initCentroids(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	chosen := make([]int, 0, k)
	chosen = append(chosen, rng.Intn(len(vectors)))
	for len(chosen) < k {
		bestIdx := -1
		bestSim := 2.0
		for i, v := range vectors {
			if containsInt(chosen, i) {
				continue
			}
			// Similarity to the nearest chosen centroid.
			nearest := -2.0
			for _, c := range chosen {
				if s := utils.Cosine(v, vectors[c]); s > nearest {
					nearest = s
				}
			}
			if nearest < bestSim {
				bestSim = nearest
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		chosen = append(chosen, bestIdx)
	}
	centroids := make([][]float32, len(chosen))
	for i, idx := range chosen {
		c := make([]float32, len(vectors[idx]))
		copy(c, vectors[idx])
		centroids[i] = c
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestSim := -2.0
	for j, c := range centroids {
		if s := utils.Cosine(v, c); s > bestSim {
			bestSim = s
			best = j
		}
	}
	return best
}

// updateCentroids recomputes each centroid as the renormalized mean of its
// members. An emptied cluster is reseeded to a random vector so k is
// preserved; the reseed draws from rng, keeping the run deterministic.
func updateCentroids(vectors [][]float32, assignments []int, centroids [][]float32, rng *rand.Rand) {
	dim := len(vectors[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, v := range vectors {
		j := assignments[i]
		counts[j]++
		for d, x := range v {
			sums[j][d] += float64(x)
		}
	}
	for j := range centroids {
		if counts[j] == 0 {
			copy(centroids[j], vectors[rng.Intn(len(vectors))])
			continue
		}
		for d := 0; d < dim; d++ {
			centroids[j][d] = float32(sums[j][d] / float64(counts[j]))
		}
		utils.NormalizeL2(centroids[j])
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
