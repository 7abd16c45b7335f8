// Package embedding produces fused image+text embeddings for card images.
package embedding

import (
	"context"
	"image"
)

// Encoder produces vector embeddings for card pixels and label text.
// Returned vectors are unit-length and Dimensions() wide.
type Encoder interface {
	EncodeImage(ctx context.Context, img image.Image) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
