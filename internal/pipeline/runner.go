// Package pipeline sequences the dataset preparation stages: filter, embed,
// cluster, tag. Each stage reads the previous stage's persisted output, so
// any stage can be re-run in isolation.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/artifact"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/cluster"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/dataset"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/embedding"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/filter"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/store"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/tagger"
	"go.uber.org/zap"
)

// StageError reports which stage halted the pipeline and why.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stages in execution order.
var Stages = []string{models.StageFilter, models.StageEmbed, models.StageCluster, models.StageTag}

// StageIndex returns the position of a stage name, or -1 if unknown.
func StageIndex(name string) int {
	for i, s := range Stages {
		if s == name {
			return i
		}
	}
	return -1
}

// Runner drives the pipeline. Completed stages leave their artifacts on disk
// even when a later stage halts, so a re-run can resume where it stopped.
type Runner struct {
	cfg       *config.Config
	manifest  store.Store
	scanner   *dataset.Scanner
	filter    *filter.Filter
	embedder  *embedding.Embedder
	clusterer *cluster.Clusterer
	tagger    *tagger.Tagger
	logger    *zap.Logger // optional; when set, logs stage progress
	confirm   func(prompt string) bool
	overwrite bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a logger for stage progress.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithConfirm sets the prompt callback used before overwriting an existing
// artifact. The default refuses, so non-interactive runs must either set
// WithOverwrite or supply a callback.
func WithConfirm(fn func(prompt string) bool) Option {
	return func(r *Runner) { r.confirm = fn }
}

// WithOverwrite skips all overwrite confirmation prompts.
func WithOverwrite(overwrite bool) Option {
	return func(r *Runner) { r.overwrite = overwrite }
}

// NewRunner creates a pipeline runner with the given stage implementations.
func NewRunner(
	cfg *config.Config,
	manifest store.Store,
	scanner *dataset.Scanner,
	f *filter.Filter,
	embedder *embedding.Embedder,
	clusterer *cluster.Clusterer,
	tg *tagger.Tagger,
	opts ...Option,
) *Runner {
	r := &Runner{
		cfg:       cfg,
		manifest:  manifest,
		scanner:   scanner,
		filter:    f,
		embedder:  embedder,
		clusterer: clusterer,
		tagger:    tg,
		confirm:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline from the stage named by from (or the first stage
// when from is empty) through the stage named by until (or the last stage
// when until is empty). A stage failure halts the run; artifacts written by
// earlier stages remain on disk.
func (r *Runner) Run(ctx context.Context, from, until string) error {
	start, end := 0, len(Stages)-1
	if from != "" {
		if start = StageIndex(from); start < 0 {
			return fmt.Errorf("unknown stage: %s", from)
		}
	}
	if until != "" {
		if end = StageIndex(until); end < 0 {
			return fmt.Errorf("unknown stage: %s", until)
		}
	}
	if start > end {
		return fmt.Errorf("stage %s comes after %s", Stages[start], Stages[end])
	}

	for i := start; i <= end; i++ {
		if err := r.RunStage(ctx, Stages[i]); err != nil {
			return err
		}
	}
	return nil
}

// RunStage executes a single stage, recording it in the run log.
func (r *Runner) RunStage(ctx context.Context, stage string) error {
	if StageIndex(stage) < 0 {
		return fmt.Errorf("unknown stage: %s", stage)
	}
	if out := r.stageOutput(stage); out != "" && !r.overwrite {
		if _, err := os.Stat(out); err == nil {
			if !r.confirm(fmt.Sprintf("overwrite existing artifact %s?", out)) {
				return &StageError{Stage: stage, Err: fmt.Errorf("refusing to overwrite %s", out)}
			}
		}
	}

	run, err := r.manifest.BeginRun(ctx, stage)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if r.logger != nil {
		r.logger.Info("stage started", zap.String("stage", stage), zap.String("run_id", run.ID))
	}

	var stats map[string]interface{}
	switch stage {
	case models.StageFilter:
		stats, err = r.runFilter(ctx)
	case models.StageEmbed:
		stats, err = r.runEmbed(ctx)
	case models.StageCluster:
		stats, err = r.runCluster()
	case models.StageTag:
		stats, err = r.runTag(ctx)
	}
	if err != nil {
		_ = r.manifest.FinishRun(ctx, run.ID, false, map[string]interface{}{"error": err.Error()})
		if r.logger != nil {
			r.logger.Error("stage failed", zap.String("stage", stage), zap.Error(err))
		}
		return &StageError{Stage: stage, Err: err}
	}
	if finishErr := r.manifest.FinishRun(ctx, run.ID, true, stats); finishErr != nil {
		return &StageError{Stage: stage, Err: finishErr}
	}
	if r.logger != nil {
		r.logger.Info("stage completed", zap.String("stage", stage), zap.Any("stats", stats))
	}
	return nil
}

// stageOutput returns the artifact file a stage would overwrite, or "" for
// stages that only write the manifest database.
func (r *Runner) stageOutput(stage string) string {
	switch stage {
	case models.StageEmbed:
		return r.cfg.Artifacts.EmbeddingsPath
	case models.StageCluster:
		return r.cfg.Artifacts.ClustersPath
	case models.StageTag:
		return r.cfg.Artifacts.TagsPath
	}
	return ""
}

func (r *Runner) runFilter(ctx context.Context) (map[string]interface{}, error) {
	cards, err := r.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no images found in %s", r.cfg.Dataset.Directory)
	}
	if err := r.manifest.UpsertCards(ctx, cards); err != nil {
		return nil, fmt.Errorf("save cards: %w", err)
	}

	verdicts, accepted := r.filter.EvaluateAll(cards)
	if err := r.manifest.SaveVerdicts(ctx, verdicts); err != nil {
		return nil, fmt.Errorf("save verdicts: %w", err)
	}
	if len(accepted) == 0 {
		return nil, fmt.Errorf("all %d images rejected by filtering", len(cards))
	}
	return map[string]interface{}{
		"scanned":  len(cards),
		"accepted": len(accepted),
		"rejected": len(cards) - len(accepted),
	}, nil
}

func (r *Runner) runEmbed(ctx context.Context) (map[string]interface{}, error) {
	cards, err := r.manifest.AcceptedCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accepted cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no accepted cards; run the filter stage first")
	}

	embeddings, failed, err := r.embedder.EmbedAll(ctx, cards)
	if err != nil {
		return nil, err
	}
	if err := artifact.WriteEmbeddings(r.cfg.Artifacts.EmbeddingsPath, r.cfg.Embedding.Dimensions, embeddings); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"embedded": len(embeddings),
		"failed":   failed,
	}, nil
}

func (r *Runner) runCluster() (map[string]interface{}, error) {
	embeddings, _, err := artifact.ReadEmbeddings(r.cfg.Artifacts.EmbeddingsPath)
	if err != nil {
		return nil, err
	}
	assignments, diag, err := r.clusterer.Cluster(embeddings)
	if err != nil {
		return nil, err
	}

	file := artifact.ClustersFile{Assignments: assignments}
	if diag != nil {
		file.CoarseSilhouette = diag.CoarseSilhouette
		file.FineSilhouette = diag.FineSilhouette
	}
	if err := artifact.WriteClusters(r.cfg.Artifacts.ClustersPath, file); err != nil {
		return nil, err
	}

	keys := make(map[models.ClusterKey]struct{})
	for _, a := range assignments {
		keys[a.Key] = struct{}{}
	}
	return map[string]interface{}{
		"cards":    len(assignments),
		"clusters": len(keys),
	}, nil
}

func (r *Runner) runTag(ctx context.Context) (map[string]interface{}, error) {
	embeddings, _, err := artifact.ReadEmbeddings(r.cfg.Artifacts.EmbeddingsPath)
	if err != nil {
		return nil, err
	}
	clusters, err := artifact.ReadClusters(r.cfg.Artifacts.ClustersPath)
	if err != nil {
		return nil, err
	}
	cards, err := r.manifest.AcceptedCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accepted cards: %w", err)
	}
	paths := make(map[string]string, len(cards))
	for _, c := range cards {
		paths[c.ID] = c.Path
	}

	tags, err := r.tagger.TagAll(ctx, embeddings, clusters.Assignments, paths)
	if err != nil {
		return nil, err
	}
	if err := artifact.WriteTags(r.cfg.Artifacts.TagsPath, tags); err != nil {
		return nil, err
	}

	tagged, fallback := tagger.Stats(tags)
	return map[string]interface{}{
		"tagged":   tagged,
		"fallback": fallback,
	}, nil
}
