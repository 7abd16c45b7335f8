// Package filter rejects card images unsuitable for AAC use against a fixed
// set of categorical criteria.
package filter

import (
	"unicode/utf8"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/dataset"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"go.uber.org/zap"
)

// Filter evaluates cards against the rejection categories. Evaluation is pure
// per-card except for duplicate detection, which compares each candidate
// against the hashes of previously accepted cards.
type Filter struct {
	minEdge       int
	maxAspect     float64
	dupDistance   int
	maxLabelRunes int
	accepted      []uint64
	logger        *zap.Logger // optional; when set, logs rejected cards
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets a logger for debug output (per-card rejections).
func WithLogger(l *zap.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

// New creates a filter from config thresholds. A nil duplicate distance
// means 0, exact hash matches only.
func New(cfg *config.FilterConfig, opts ...Option) *Filter {
	dup := 0
	if cfg.DuplicateDistance != nil {
		dup = *cfg.DuplicateDistance
	}
	f := &Filter{
		minEdge:       cfg.MinEdge,
		maxAspect:     cfg.MaxAspectRatio,
		dupDistance:   dup,
		maxLabelRunes: cfg.MaxLabelRuneLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Evaluate returns the verdict for one card. An accepted card's hash joins
// the duplicate-detection set, so call order determines which of two
// near-identical cards survives (the earlier one).
func (f *Filter) Evaluate(card models.CardImage) models.FilterVerdict {
	if reason, ok := f.checkLabel(card.Label); !ok {
		return f.reject(card, reason)
	}

	img, err := dataset.DecodeImage(card.Path)
	if err != nil {
		return f.reject(card, models.RejectUnreadable)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < f.minEdge || h < f.minEdge {
		return f.reject(card, models.RejectTooSmall)
	}
	if aspect(w, h) > f.maxAspect {
		return f.reject(card, models.RejectExtremeAspect)
	}

	hash := DHash(img)
	for _, prev := range f.accepted {
		if HammingDistance(hash, prev) <= f.dupDistance {
			return f.reject(card, models.RejectDuplicate)
		}
	}
	f.accepted = append(f.accepted, hash)
	return models.FilterVerdict{ImageID: card.ID, Accepted: true}
}

// EvaluateAll evaluates cards in order and returns one verdict per card plus
// the accepted subset. A rejected card is logged and skipped, never fatal.
// Each call starts with an empty duplicate-detection set, so re-running the
// same batch reproduces the same verdicts.
func (f *Filter) EvaluateAll(cards []models.CardImage) ([]models.FilterVerdict, []models.CardImage) {
	f.accepted = f.accepted[:0]
	verdicts := make([]models.FilterVerdict, 0, len(cards))
	var accepted []models.CardImage
	for _, card := range cards {
		v := f.Evaluate(card)
		verdicts = append(verdicts, v)
		if v.Accepted {
			accepted = append(accepted, card)
		}
	}
	return verdicts, accepted
}

func (f *Filter) checkLabel(label string) (models.RejectReason, bool) {
	if label == "" {
		return models.RejectIllegibleLabel, false
	}
	if f.maxLabelRunes > 0 && utf8.RuneCountInString(label) > f.maxLabelRunes {
		return models.RejectIllegibleLabel, false
	}
	return "", true
}

func (f *Filter) reject(card models.CardImage, reason models.RejectReason) models.FilterVerdict {
	if f.logger != nil {
		f.logger.Debug("card rejected",
			zap.String("image_id", card.ID),
			zap.String("reason", string(reason)),
		)
	}
	return models.FilterVerdict{ImageID: card.ID, Accepted: false, Reason: reason}
}

func aspect(w, h int) float64 {
	if w > h {
		return float64(w) / float64(h)
	}
	return float64(h) / float64(w)
}
