package tagger

import (
	"context"
	"os"
	"sort"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
	"go.uber.org/zap"
)

// FallbackTag is recorded for a cluster whose tagging attempts are exhausted.
const FallbackTag = "(untagged)"

// Tagger assigns one topic tag per non-empty fine cluster. External calls
// are issued sequentially through the pacer; a cluster whose call fails past
// the retry bound gets FallbackTag and the run continues.
type Tagger struct {
	client  VisionClient
	pacer   *Pacer
	maxReps int
	logger  *zap.Logger // optional; when set, logs per-cluster progress
}

// Option configures a Tagger.
type Option func(*Tagger)

// WithLogger sets a logger for per-cluster progress and failures.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tagger) { t.logger = l }
}

// New creates a tagger. maxReps bounds how many representative images are
// sent per cluster.
func New(client VisionClient, pacer *Pacer, maxReps int, opts ...Option) *Tagger {
	if maxReps <= 0 {
		maxReps = 5
	}
	t := &Tagger{client: client, pacer: pacer, maxReps: maxReps}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// member pairs a cluster member with its similarity to the cluster centroid.
type member struct {
	embedding models.FusedEmbedding
	sim       float64
}

// TagAll tags every non-empty cluster in assignments. embeddings supplies
// member vectors and labels; paths maps image IDs to their files. Clusters
// are processed in key order so run logs and tag files are stable. Returns
// one tag per cluster; the only error is context cancellation.
func (t *Tagger) TagAll(
	ctx context.Context,
	embeddings []models.FusedEmbedding,
	assignments []models.ClusterAssignment,
	paths map[string]string,
) ([]models.ClusterTag, error) {
	byID := make(map[string]models.FusedEmbedding, len(embeddings))
	for _, e := range embeddings {
		byID[e.ImageID] = e
	}

	clusters := make(map[models.ClusterKey][]models.FusedEmbedding)
	for _, a := range assignments {
		e, ok := byID[a.ImageID]
		if !ok {
			continue
		}
		clusters[a.Key] = append(clusters[a.Key], e)
	}

	keys := make([]models.ClusterKey, 0, len(clusters))
	for k := range clusters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Coarse != keys[j].Coarse {
			return keys[i].Coarse < keys[j].Coarse
		}
		return keys[i].Fine < keys[j].Fine
	})

	tags := make([]models.ClusterTag, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tag := t.tagCluster(ctx, key, clusters[key], paths)
		tags = append(tags, tag)
	}
	return tags, nil
}

// tagCluster selects representatives and asks the vision service for a tag.
// Any failure degrades to FallbackTag; it never aborts the run.
func (t *Tagger) tagCluster(
	ctx context.Context,
	key models.ClusterKey,
	members []models.FusedEmbedding,
	paths map[string]string,
) models.ClusterTag {
	reps := t.selectRepresentatives(members)
	images := make([][]byte, 0, len(reps))
	labels := make([]string, 0, len(reps))
	for _, r := range reps {
		data, err := os.ReadFile(paths[r.ImageID])
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("representative unreadable, skipped",
					zap.String("cluster", key.String()),
					zap.String("image_id", r.ImageID),
					zap.Error(err),
				)
			}
			continue
		}
		images = append(images, data)
		labels = append(labels, r.Label)
	}
	if len(images) == 0 {
		if t.logger != nil {
			t.logger.Warn("no readable representatives, fallback tag",
				zap.String("cluster", key.String()))
		}
		return models.ClusterTag{Key: key, Tag: FallbackTag, Fallback: true}
	}

	t.pacer.Wait()
	var tag string
	err := t.pacer.Do(ctx, func() error {
		var describeErr error
		tag, describeErr = t.client.Describe(ctx, images, labels)
		return describeErr
	})
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("tagging failed, fallback tag recorded",
				zap.String("cluster", key.String()),
				zap.Error(err),
			)
		}
		return models.ClusterTag{Key: key, Tag: FallbackTag, Fallback: true}
	}
	if t.logger != nil {
		t.logger.Info("cluster tagged",
			zap.String("cluster", key.String()),
			zap.String("tag", utils.Truncate(tag, 60)),
			zap.Int("representatives", len(images)),
		)
	}
	return models.ClusterTag{Key: key, Tag: tag}
}

// selectRepresentatives returns up to maxReps members nearest to the cluster
// centroid, ties broken by image ID for stable output.
func (t *Tagger) selectRepresentatives(members []models.FusedEmbedding) []models.FusedEmbedding {
	if len(members) == 0 {
		return nil
	}
	centroid := meanVector(members)
	ranked := make([]member, len(members))
	for i, m := range members {
		ranked[i] = member{embedding: m, sim: utils.Cosine(m.Vector, centroid)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].embedding.ImageID < ranked[j].embedding.ImageID
	})
	n := t.maxReps
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]models.FusedEmbedding, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].embedding
	}
	return out
}

func meanVector(members []models.FusedEmbedding) []float32 {
	dim := len(members[0].Vector)
	mean := make([]float32, dim)
	for _, m := range members {
		for d, x := range m.Vector {
			mean[d] += x
		}
	}
	for d := range mean {
		mean[d] /= float32(len(members))
	}
	utils.NormalizeL2(mean)
	return mean
}

// Stats summarizes a tagging pass for logs and the status command.
func Stats(tags []models.ClusterTag) (tagged, fallback int) {
	for _, t := range tags {
		if t.Fallback {
			fallback++
		} else {
			tagged++
		}
	}
	return tagged, fallback
}
