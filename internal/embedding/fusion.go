package embedding

import (
	"context"
	"fmt"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/dataset"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
	"go.uber.org/zap"
)

// Fuse combines an image embedding and a text embedding into one unit vector:
// both inputs are normalized, weighted by wImg and wText, summed, and the
// result re-normalized. The weights must sum to 1.
func Fuse(imageVec, textVec []float32, wImg, wText float64) ([]float32, error) {
	if len(imageVec) != len(textVec) {
		return nil, fmt.Errorf("dimension mismatch: image %d, text %d", len(imageVec), len(textVec))
	}
	if len(imageVec) == 0 {
		return nil, fmt.Errorf("empty vectors")
	}
	if sum := wImg + wText; sum < 0.999 || sum > 1.001 {
		return nil, fmt.Errorf("weights must sum to 1.0, got %.3f", sum)
	}

	iv := make([]float32, len(imageVec))
	tv := make([]float32, len(textVec))
	copy(iv, imageVec)
	copy(tv, textVec)
	utils.NormalizeL2(iv)
	utils.NormalizeL2(tv)

	fused := make([]float32, len(iv))
	for i := range fused {
		fused[i] = float32(wImg)*iv[i] + float32(wText)*tv[i]
	}
	if utils.L2Norm(fused) == 0 {
		return nil, fmt.Errorf("fused vector has zero norm")
	}
	utils.NormalizeL2(fused)
	return fused, nil
}

// Embedder turns accepted cards into fused embeddings. Cards are processed in
// fixed-size batches to bound peak decoded-image memory; each card's
// embedding is independent of batch composition. Identical labels share one
// cached text embedding.
type Embedder struct {
	encoder     Encoder
	imageWeight float64
	textWeight  float64
	batchSize   int
	cache       *LabelCache
	logger      *zap.Logger // optional; when set, logs per-card failures
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithLogger sets a logger for per-card failure and progress output.
func WithLogger(l *zap.Logger) EmbedderOption {
	return func(e *Embedder) { e.logger = l }
}

// NewEmbedder creates an embedder over encoder using cfg's fusion weights,
// batch size, and label cache size.
func NewEmbedder(encoder Encoder, cfg *config.EmbeddingConfig, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		encoder:     encoder,
		imageWeight: cfg.ImageWeight,
		textWeight:  cfg.TextWeight,
		batchSize:   cfg.BatchSize,
		cache:       NewLabelCache(cfg.CacheSize),
	}
	if e.batchSize <= 0 {
		e.batchSize = 32
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedAll produces one fused embedding per card. A card whose image cannot
// be decoded or encoded is logged, counted in failed, and skipped; the batch
// continues. Returns an error only on context cancellation or when every
// card fails.
func (e *Embedder) EmbedAll(ctx context.Context, cards []models.CardImage) (embeddings []models.FusedEmbedding, failed int, err error) {
	embeddings = make([]models.FusedEmbedding, 0, len(cards))
	for start := 0; start < len(cards); start += e.batchSize {
		end := start + e.batchSize
		if end > len(cards) {
			end = len(cards)
		}
		for _, card := range cards[start:end] {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, failed, ctxErr
			}
			emb, embedErr := e.embedOne(ctx, card)
			if embedErr != nil {
				failed++
				if e.logger != nil {
					e.logger.Warn("embedding failed, card skipped",
						zap.String("image_id", card.ID),
						zap.Error(embedErr),
					)
				}
				continue
			}
			embeddings = append(embeddings, emb)
		}
		if e.logger != nil {
			e.logger.Debug("embedding batch done",
				zap.Int("processed", end),
				zap.Int("total", len(cards)),
			)
		}
	}
	if len(cards) > 0 && len(embeddings) == 0 {
		return nil, failed, fmt.Errorf("all %d cards failed to embed", len(cards))
	}
	return embeddings, failed, nil
}

func (e *Embedder) embedOne(ctx context.Context, card models.CardImage) (models.FusedEmbedding, error) {
	img, err := dataset.DecodeImage(card.Path)
	if err != nil {
		return models.FusedEmbedding{}, err
	}
	imageVec, err := e.encoder.EncodeImage(ctx, img)
	if err != nil {
		return models.FusedEmbedding{}, fmt.Errorf("encode image: %w", err)
	}
	textVec, ok := e.cache.Get(card.Label)
	if !ok {
		textVec, err = e.encoder.EncodeText(ctx, card.Label)
		if err != nil {
			return models.FusedEmbedding{}, fmt.Errorf("encode text: %w", err)
		}
		e.cache.Set(card.Label, textVec)
	}
	fused, err := Fuse(imageVec, textVec, e.imageWeight, e.textWeight)
	if err != nil {
		return models.FusedEmbedding{}, err
	}
	return models.FusedEmbedding{ImageID: card.ID, Label: card.Label, Vector: fused}, nil
}
