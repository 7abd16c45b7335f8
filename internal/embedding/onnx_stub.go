//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"
)

var errNoONNX = errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder returns an error when built without CGO (ONNX not available).
func NewONNXEncoder(_, _ string, _ int) (*ONNXEncoder, error) {
	return nil, errNoONNX
}

// EncodeImage always fails on the stub.
func (e *ONNXEncoder) EncodeImage(context.Context, image.Image) ([]float32, error) {
	return nil, errNoONNX
}

// EncodeText always fails on the stub.
func (e *ONNXEncoder) EncodeText(context.Context, string) ([]float32, error) {
	return nil, errNoONNX
}

// Dimensions returns 0 on the stub.
func (e *ONNXEncoder) Dimensions() int { return 0 }

// Close is a no-op on the stub.
func (e *ONNXEncoder) Close() error { return nil }
