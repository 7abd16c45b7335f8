// Package store persists the dataset manifest: scanned cards, filter
// verdicts, and a log of pipeline runs.
package store

import (
	"context"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// Store is the manifest persistence interface.
type Store interface {
	// Cards.
	UpsertCards(ctx context.Context, cards []models.CardImage) error
	ListCards(ctx context.Context) ([]models.CardImage, error)

	// Filter verdicts.
	SaveVerdicts(ctx context.Context, verdicts []models.FilterVerdict) error
	AcceptedCards(ctx context.Context) ([]models.CardImage, error)
	RejectionCounts(ctx context.Context) (map[models.RejectReason]int, error)

	// Run log.
	BeginRun(ctx context.Context, stage string) (*models.PipelineRun, error)
	FinishRun(ctx context.Context, id string, succeeded bool, stats map[string]interface{}) error
	ListRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error)
	LastSuccessfulStage(ctx context.Context) (string, error)

	Close() error
}
