package embedding

import (
	"context"
	"image"
	"math"

	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// MockEncoder is a deterministic encoder for tests and for runs without the
// ONNX models. Text embeddings derive from the text hash; image embeddings
// derive from coarse luminance statistics, so visually similar images land
// near each other and the same input always gets the same vector.
type MockEncoder struct {
	dimensions int
}

// NewMockEncoder returns an encoder producing deterministic embeddings of the given dimensions.
func NewMockEncoder(dimensions int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEncoder{dimensions: dimensions}
}

// EncodeText returns a deterministic unit vector based on the text hash.
func (e *MockEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	h := hashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EncodeImage returns a deterministic unit vector from a 4x4 luminance grid,
// so near-identical images map to near-identical vectors.
func (e *MockEncoder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	const grid = 4
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var cells [grid * grid]float64
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := b.Min.X + gx*w/grid + w/(2*grid)
			y := b.Min.Y + gy*h/grid + h/(2*grid)
			r, g, bl, _ := img.At(x, y).RGBA()
			cells[gy*grid+gx] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535.0
		}
	}
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		c := cells[i%len(cells)]
		emb[i] = float32(math.Sin(c*math.Pi*float64(1+i/len(cells))) + c)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}

// hashString returns a deterministic non-negative hash of s.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
