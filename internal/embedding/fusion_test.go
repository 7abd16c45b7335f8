package embedding

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

func TestFuse_unitNormForAnyWeightSplit(t *testing.T) {
	enc := NewMockEncoder(16)
	ctx := context.Background()
	iv, _ := enc.EncodeText(ctx, "image stand-in")
	tv, _ := enc.EncodeText(ctx, "label")

	for _, wImg := range []float64{0.0, 0.25, 0.5, 0.6, 0.9, 1.0} {
		fused, err := Fuse(iv, tv, wImg, 1.0-wImg)
		if err != nil {
			t.Fatalf("wImg=%v: %v", wImg, err)
		}
		if n := utils.L2Norm(fused); math.Abs(n-1.0) > 1e-5 {
			t.Errorf("wImg=%v: fused norm = %v, want 1", wImg, n)
		}
	}
}

func TestFuse_rejectsBadInputs(t *testing.T) {
	if _, err := Fuse([]float32{1, 0}, []float32{1}, 0.6, 0.4); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := Fuse([]float32{1, 0}, []float32{0, 1}, 0.7, 0.7); err == nil {
		t.Error("expected weight sum error")
	}
	if _, err := Fuse(nil, nil, 0.6, 0.4); err == nil {
		t.Error("expected empty vector error")
	}
}

func TestMockEncoder_deterministic(t *testing.T) {
	enc := NewMockEncoder(32)
	ctx := context.Background()
	a, _ := enc.EncodeText(ctx, "apple")
	b, _ := enc.EncodeText(ctx, "apple")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text must give identical embeddings")
	}
	c, _ := enc.EncodeText(ctx, "carrot")
	if reflect.DeepEqual(a, c) {
		t.Error("different text should give different embeddings")
	}
	if n := utils.L2Norm(a); math.Abs(n-1.0) > 1e-5 {
		t.Errorf("text embedding norm = %v, want 1", n)
	}
}

func TestLabelCache(t *testing.T) {
	c := NewLabelCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if _, ok := c.Get("a"); !ok {
		t.Error("a should be cached")
	}
	c.Set("c", []float32{3}) // evicts b (a was touched more recently)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestLabelCache_concurrentAccess(t *testing.T) {
	// Get reorders the LRU list, so concurrent lookups of the same hot
	// labels must be safe; the race detector flags any unlocked mutation.
	c := NewLabelCache(4)
	labels := []string{"want", "more", "stop", "go"}
	for i, l := range labels {
		c.Set(l, []float32{float32(i)})
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l := labels[(w+i)%len(labels)]
				if _, ok := c.Get(l); !ok {
					c.Set(l, []float32{float32(i)})
				}
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != len(labels) {
		t.Errorf("len = %d, want %d", c.Len(), len(labels))
	}
}

func writeTestPNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testCards(t *testing.T, n int) []models.CardImage {
	t.Helper()
	dir := t.TempDir()
	cards := make([]models.CardImage, n)
	for i := range cards {
		name := string(rune('a'+i)) + ".png"
		path := filepath.Join(dir, name)
		writeTestPNG(t, path, color.RGBA{R: uint8(i * 40), G: uint8(255 - i*30), B: 100, A: 255})
		cards[i] = models.CardImage{ID: name, Path: path, Label: "card " + name}
	}
	return cards
}

func embedderConfig(batchSize int) *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		Dimensions:  16,
		BatchSize:   batchSize,
		ImageWeight: 0.6,
		TextWeight:  0.4,
		CacheSize:   8,
	}
}

func TestEmbedAll_batchBoundariesDoNotAffectOutput(t *testing.T) {
	cards := testCards(t, 7)
	ctx := context.Background()

	run := func(batchSize int) []models.FusedEmbedding {
		e := NewEmbedder(NewMockEncoder(16), embedderConfig(batchSize))
		out, failed, err := e.EmbedAll(ctx, cards)
		if err != nil {
			t.Fatal(err)
		}
		if failed != 0 {
			t.Fatalf("failed = %d, want 0", failed)
		}
		return out
	}

	small := run(2)
	large := run(100)
	if !reflect.DeepEqual(small, large) {
		t.Error("embeddings must be independent of batch size")
	}
	if len(small) != len(cards) {
		t.Errorf("got %d embeddings, want %d", len(small), len(cards))
	}
}

func TestEmbedAll_perCardFailureIsSkipped(t *testing.T) {
	cards := testCards(t, 3)
	broken := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(broken, []byte("junk"), 0600); err != nil {
		t.Fatal(err)
	}
	cards = append(cards, models.CardImage{ID: "broken.png", Path: broken, Label: "broken"})

	e := NewEmbedder(NewMockEncoder(16), embedderConfig(2))
	out, failed, err := e.EmbedAll(context.Background(), cards)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(out) != 3 {
		t.Errorf("got %d embeddings, want 3", len(out))
	}
}

func TestEmbedAll_allFailedIsError(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(broken, []byte("junk"), 0600); err != nil {
		t.Fatal(err)
	}
	cards := []models.CardImage{{ID: "broken.png", Path: broken, Label: "broken"}}
	e := NewEmbedder(NewMockEncoder(16), embedderConfig(2))
	if _, _, err := e.EmbedAll(context.Background(), cards); err == nil {
		t.Fatal("expected error when every card fails")
	}
}

func TestEmbedAll_contextCancellation(t *testing.T) {
	cards := testCards(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEmbedder(NewMockEncoder(16), embedderConfig(2))
	if _, _, err := e.EmbedAll(ctx, cards); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
