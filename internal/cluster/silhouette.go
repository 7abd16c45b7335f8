package cluster

import "github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"

// Silhouette returns the mean silhouette score of a clustering under cosine
// distance, in [-1, 1]. Points in singleton clusters score 0, and a
// clustering with fewer than two clusters scores 0. Diagnostic only.
func Silhouette(vectors [][]float32, assignments []int) float64 {
	clusters := make(map[int][]int)
	for i, a := range assignments {
		clusters[a] = append(clusters[a], i)
	}
	if len(clusters) < 2 {
		return 0
	}

	var total float64
	for i, v := range vectors {
		own := assignments[i]
		if len(clusters[own]) < 2 {
			continue // silhouette of a singleton is 0
		}
		a := meanDistance(v, vectors, clusters[own], i)
		b := -1.0
		for id, members := range clusters {
			if id == own {
				continue
			}
			if d := meanDistance(v, vectors, members, -1); b < 0 || d < b {
				b = d
			}
		}
		if m := maxFloat(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(vectors))
}

// meanDistance returns the mean cosine distance from v to vectors[members],
// skipping index skip (pass -1 to include all).
func meanDistance(v []float32, vectors [][]float32, members []int, skip int) float64 {
	var sum float64
	var n int
	for _, m := range members {
		if m == skip {
			continue
		}
		sum += 1 - utils.Cosine(v, vectors[m])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
