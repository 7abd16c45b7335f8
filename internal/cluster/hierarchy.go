package cluster

import (
	"fmt"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
	"go.uber.org/zap"
)

// Clusterer runs the two-stage coarse/fine clustering over fused embeddings.
type Clusterer struct {
	cfg    *config.ClusterConfig
	logger *zap.Logger // optional; when set, logs stage progress and diagnostics
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithLogger sets a logger for stage progress and silhouette diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Clusterer) { c.logger = l }
}

// New creates a clusterer from config.
func New(cfg *config.ClusterConfig, opts ...Option) *Clusterer {
	c := &Clusterer{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Diagnostics holds optional quality scores. They never gate the pipeline.
type Diagnostics struct {
	CoarseSilhouette float64
	FineSilhouette   map[int]float64 // coarse id -> silhouette of its fine split
}

// Cluster assigns every embedding to exactly one (coarse, fine) pair.
// The same seed and input embeddings reproduce identical assignments.
// Fine groups below the configured minimum size are merged into the nearest
// surviving fine group; a coarse group too small to subdivide becomes a
// single flagged singleton fine cluster. No embedding is ever dropped.
func (c *Clusterer) Cluster(embeddings []models.FusedEmbedding) ([]models.ClusterAssignment, *Diagnostics, error) {
	if len(embeddings) == 0 {
		return nil, nil, fmt.Errorf("no embeddings to cluster")
	}
	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = e.Vector
	}

	coarse, err := KMeans(vectors, c.cfg.KCoarse, c.seed(), c.cfg.MaxIterations)
	if err != nil {
		return nil, nil, fmt.Errorf("coarse clustering: %w", err)
	}
	if c.logger != nil {
		c.logger.Info("coarse clustering done",
			zap.Int("clusters", len(coarse.Centroids)),
			zap.Int("iterations", coarse.Iterations),
			zap.Bool("converged", coarse.Converged),
		)
	}

	diag := &Diagnostics{FineSilhouette: make(map[int]float64)}
	if c.cfg.Silhouette {
		diag.CoarseSilhouette = Silhouette(vectors, coarse.Assignments)
		if c.logger != nil {
			c.logger.Info("coarse silhouette", zap.Float64("score", diag.CoarseSilhouette))
		}
	}

	assignments := make([]models.ClusterAssignment, len(embeddings))
	for coarseID := 0; coarseID < len(coarse.Centroids); coarseID++ {
		memberIdx := membersOf(coarse.Assignments, coarseID)
		if len(memberIdx) == 0 {
			continue
		}
		fineIDs, singleton, err := c.subdivide(vectors, memberIdx, coarseID)
		if err != nil {
			return nil, nil, fmt.Errorf("fine clustering of coarse %d: %w", coarseID, err)
		}
		for i, vecIdx := range memberIdx {
			assignments[vecIdx] = models.ClusterAssignment{
				ImageID:   embeddings[vecIdx].ImageID,
				Key:       models.ClusterKey{Coarse: coarseID, Fine: fineIDs[i]},
				Singleton: singleton,
			}
		}
		if c.cfg.Silhouette && !singleton {
			group := make([][]float32, len(memberIdx))
			for i, vecIdx := range memberIdx {
				group[i] = vectors[vecIdx]
			}
			diag.FineSilhouette[coarseID] = Silhouette(group, fineIDs)
		}
	}
	return assignments, diag, nil
}

// subdivide fine-clusters one coarse group. Returns, per member (in memberIdx
// order), its fine cluster id, plus whether the whole group was kept as one
// flagged singleton cluster.
func (c *Clusterer) subdivide(vectors [][]float32, memberIdx []int, coarseID int) ([]int, bool, error) {
	group := make([][]float32, len(memberIdx))
	for i, vecIdx := range memberIdx {
		group[i] = vectors[vecIdx]
	}

	// Too small to subdivide: one fine cluster, flagged when below minimum.
	if len(group) < 2*c.cfg.MinClusterSize {
		fineIDs := make([]int, len(group))
		return fineIDs, len(group) < c.cfg.MinClusterSize, nil
	}

	k := c.cfg.KFine
	if max := len(group) / c.cfg.MinClusterSize; k > max {
		k = max
	}
	// Per-group seed offset keeps fine stages independent yet reproducible.
	fine, err := KMeans(group, k, c.seed()+int64(coarseID)+1, c.cfg.MaxIterations)
	if err != nil {
		return nil, false, err
	}

	fineIDs := mergeSmall(group, fine, c.cfg.MinClusterSize)
	return fineIDs, false, nil
}

// mergeSmall reassigns members of undersized fine clusters to the nearest
// surviving fine centroid and renumbers fine ids compactly from 0.
func mergeSmall(group [][]float32, fine *KMeansResult, minSize int) []int {
	counts := make([]int, len(fine.Centroids))
	for _, a := range fine.Assignments {
		counts[a]++
	}

	surviving := make([]int, 0, len(fine.Centroids))
	for id, n := range counts {
		if n >= minSize {
			surviving = append(surviving, id)
		}
	}
	// Every fine split undersized: collapse the group into a single cluster.
	if len(surviving) == 0 {
		return make([]int, len(group))
	}

	renumber := make(map[int]int, len(surviving))
	for newID, oldID := range surviving {
		renumber[oldID] = newID
	}

	out := make([]int, len(group))
	for i, a := range fine.Assignments {
		if newID, ok := renumber[a]; ok {
			out[i] = newID
			continue
		}
		best := surviving[0]
		bestSim := -2.0
		for _, id := range surviving {
			if s := utils.Cosine(group[i], fine.Centroids[id]); s > bestSim {
				bestSim = s
				best = id
			}
		}
		out[i] = renumber[best]
	}
	return out
}

// seed returns the configured clustering seed, 0 when unset.
func (c *Clusterer) seed() int64 {
	if c.cfg.Seed == nil {
		return 0
	}
	return *c.cfg.Seed
}

func membersOf(assignments []int, cluster int) []int {
	var idx []int
	for i, a := range assignments {
		if a == cluster {
			idx = append(idx, i)
		}
	}
	return idx
}
