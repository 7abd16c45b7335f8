package tagger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

// fakeVision is a scriptable VisionClient: errs are returned in order, then
// every later call succeeds with tag.
type fakeVision struct {
	errs   []error
	tag    string
	calls  int
	images [][]byte
	labels []string
}

func (f *fakeVision) Describe(ctx context.Context, images [][]byte, labels []string) (string, error) {
	f.calls++
	f.images = images
	f.labels = labels
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.tag, nil
}

// fakeClock records sleeps instead of blocking.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
}

func testEmbeddings(t *testing.T, n int, axis int) ([]models.FusedEmbedding, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	embs := make([]models.FusedEmbedding, n)
	paths := make(map[string]string, n)
	for i := range embs {
		id := fmt.Sprintf("card-%02d.png", i)
		path := filepath.Join(dir, id)
		if err := os.WriteFile(path, []byte("png-bytes-"+id), 0600); err != nil {
			t.Fatal(err)
		}
		v := make([]float32, 8)
		v[axis] = 1
		v[(axis+1)%8] = float32(i) * 0.01
		utils.NormalizeL2(v)
		embs[i] = models.FusedEmbedding{ImageID: id, Label: "label " + id, Vector: v}
		paths[id] = path
	}
	return embs, paths
}

func assignAll(embs []models.FusedEmbedding, key models.ClusterKey) []models.ClusterAssignment {
	out := make([]models.ClusterAssignment, len(embs))
	for i, e := range embs {
		out[i] = models.ClusterAssignment{ImageID: e.ImageID, Key: key}
	}
	return out
}

func TestTagAll_success(t *testing.T) {
	embs, paths := testEmbeddings(t, 3, 0)
	svc := &fakeVision{tag: "fruit and snacks"}
	clock := &fakeClock{}
	tg := New(svc, NewPacer(time.Second, 2, WithSleep(clock.sleep)), 5)

	tags, err := tg.TagAll(context.Background(), embs, assignAll(embs, models.ClusterKey{Coarse: 0, Fine: 0}), paths)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 {
		t.Fatalf("got %d tags, want 1", len(tags))
	}
	if tags[0].Tag != "fruit and snacks" || tags[0].Fallback {
		t.Errorf("unexpected tag: %+v", tags[0])
	}
	if svc.calls != 1 {
		t.Errorf("service called %d times, want 1", svc.calls)
	}
	if len(svc.images) != 3 || len(svc.labels) != 3 {
		t.Errorf("sent %d images / %d labels, want 3 / 3", len(svc.images), len(svc.labels))
	}
}

func TestTagAll_representativeCap(t *testing.T) {
	embs, paths := testEmbeddings(t, 9, 0)
	svc := &fakeVision{tag: "animals"}
	tg := New(svc, NewPacer(0, 0, WithSleep(func(time.Duration) {})), 5)

	if _, err := tg.TagAll(context.Background(), embs, assignAll(embs, models.ClusterKey{}), paths); err != nil {
		t.Fatal(err)
	}
	if len(svc.images) != 5 {
		t.Errorf("sent %d representatives, want cap of 5", len(svc.images))
	}
}

func TestTagAll_retriesTransientThenSucceeds(t *testing.T) {
	embs, paths := testEmbeddings(t, 2, 0)
	svc := &fakeVision{tag: "vehicles", errs: []error{ErrRateLimited, ErrTimeout}}
	clock := &fakeClock{}
	tg := New(svc, NewPacer(time.Second, 3, WithSleep(clock.sleep)), 5)

	tags, err := tg.TagAll(context.Background(), embs, assignAll(embs, models.ClusterKey{}), paths)
	if err != nil {
		t.Fatal(err)
	}
	if tags[0].Tag != "vehicles" || tags[0].Fallback {
		t.Errorf("unexpected tag: %+v", tags[0])
	}
	if svc.calls != 3 {
		t.Errorf("service called %d times, want 3", svc.calls)
	}
	// One pacing delay plus two backoffs (1s, 2s).
	want := []time.Duration{time.Second, time.Second, 2 * time.Second}
	if len(clock.slept) != len(want) {
		t.Fatalf("slept %v, want %v", clock.slept, want)
	}
	for i := range want {
		if clock.slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, clock.slept[i], want[i])
		}
	}
}

func TestTagAll_fallbackAfterExhaustion(t *testing.T) {
	embs, paths := testEmbeddings(t, 2, 0)
	svc := &fakeVision{errs: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited}}
	tg := New(svc, NewPacer(time.Millisecond, 2, WithSleep(func(time.Duration) {})), 5)

	tags, err := tg.TagAll(context.Background(), embs, assignAll(embs, models.ClusterKey{}), paths)
	if err != nil {
		t.Fatal(err)
	}
	if !tags[0].Fallback || tags[0].Tag != FallbackTag {
		t.Errorf("expected fallback tag, got %+v", tags[0])
	}
	if svc.calls != 3 {
		t.Errorf("service called %d times, want 3 (1 + 2 retries)", svc.calls)
	}
}

func TestTagAll_nonTransientNotRetried(t *testing.T) {
	embs, paths := testEmbeddings(t, 2, 0)
	svc := &fakeVision{errs: []error{errors.New("bad request")}}
	tg := New(svc, NewPacer(time.Millisecond, 5, WithSleep(func(time.Duration) {})), 5)

	tags, err := tg.TagAll(context.Background(), embs, assignAll(embs, models.ClusterKey{}), paths)
	if err != nil {
		t.Fatal(err)
	}
	if !tags[0].Fallback {
		t.Error("expected fallback tag for permanent failure")
	}
	if svc.calls != 1 {
		t.Errorf("service called %d times, want 1 (no retry)", svc.calls)
	}
}

func TestTagAll_multipleClustersInKeyOrder(t *testing.T) {
	embsA, pathsA := testEmbeddings(t, 2, 0)
	embsB, pathsB := testEmbeddings(t, 2, 4)
	// Distinct IDs across groups.
	for i := range embsB {
		embsB[i].ImageID = "b-" + embsB[i].ImageID
	}
	paths := make(map[string]string)
	for id, p := range pathsA {
		paths[id] = p
	}
	for id, p := range pathsB {
		paths["b-"+id] = p
	}
	embs := append(append([]models.FusedEmbedding{}, embsA...), embsB...)
	assignments := append(
		assignAll(embsA, models.ClusterKey{Coarse: 1, Fine: 0}),
		assignAll(embsB, models.ClusterKey{Coarse: 0, Fine: 1})...,
	)

	svc := &fakeVision{tag: "something"}
	tg := New(svc, NewPacer(0, 0, WithSleep(func(time.Duration) {})), 5)
	tags, err := tg.TagAll(context.Background(), embs, assignments, paths)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Fatalf("got %d tags, want 2", len(tags))
	}
	if tags[0].Key != (models.ClusterKey{Coarse: 0, Fine: 1}) || tags[1].Key != (models.ClusterKey{Coarse: 1, Fine: 0}) {
		t.Errorf("tags not in key order: %+v", tags)
	}
}

func TestTagAll_contextCancellation(t *testing.T) {
	embs, paths := testEmbeddings(t, 2, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tg := New(&fakeVision{tag: "x"}, NewPacer(0, 0, WithSleep(func(time.Duration) {})), 5)
	if _, err := tg.TagAll(ctx, embs, assignAll(embs, models.ClusterKey{}), paths); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStats(t *testing.T) {
	tags := []models.ClusterTag{
		{Tag: "a"},
		{Tag: FallbackTag, Fallback: true},
		{Tag: "b"},
	}
	tagged, fallback := Stats(tags)
	if tagged != 2 || fallback != 1 {
		t.Errorf("Stats = (%d, %d), want (2, 1)", tagged, fallback)
	}
}
