package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CardsAndVerdicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	cards := []models.CardImage{
		{ID: "apple.png", Path: "/data/apple.png", Label: "apple", ScannedAt: now},
		{ID: "blur.png", Path: "/data/blur.png", Label: "blur", ScannedAt: now},
		{ID: "cat.png", Path: "/data/cat.png", Label: "cat", ScannedAt: now},
	}
	if err := s.UpsertCards(ctx, cards); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d cards, want 3", len(got))
	}
	if got[0].ID != "apple.png" || got[2].ID != "cat.png" {
		t.Errorf("cards not ordered by ID: %v", got)
	}

	verdicts := []models.FilterVerdict{
		{ImageID: "apple.png", Accepted: true},
		{ImageID: "blur.png", Accepted: false, Reason: models.RejectTooSmall},
		{ImageID: "cat.png", Accepted: true},
	}
	if err := s.SaveVerdicts(ctx, verdicts); err != nil {
		t.Fatal(err)
	}

	accepted, err := s.AcceptedCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 2 {
		t.Fatalf("got %d accepted cards, want 2", len(accepted))
	}
	if accepted[0].ID != "apple.png" || accepted[1].ID != "cat.png" {
		t.Errorf("unexpected accepted set: %v", accepted)
	}

	counts, err := s.RejectionCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.RejectTooSmall] != 1 {
		t.Errorf("counts = %v, want too_small: 1", counts)
	}
}

func TestSQLiteStore_UpsertReplacesCard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	card := models.CardImage{ID: "a.png", Path: "/old/a.png", Label: "old", ScannedAt: time.Now()}
	if err := s.UpsertCards(ctx, []models.CardImage{card}); err != nil {
		t.Fatal(err)
	}
	card.Path = "/new/a.png"
	card.Label = "new"
	if err := s.UpsertCards(ctx, []models.CardImage{card}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d cards, want 1", len(got))
	}
	if got[0].Path != "/new/a.png" || got[0].Label != "new" {
		t.Errorf("card not replaced: %+v", got[0])
	}
}

func TestSQLiteStore_RunLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, models.StageFilter)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID == "" {
		t.Fatal("run ID should be set")
	}

	stage, err := s.LastSuccessfulStage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stage != "" {
		t.Errorf("expected no successful stage yet, got %q", stage)
	}

	stats := map[string]interface{}{"accepted": 42, "rejected": 3}
	if err := s.FinishRun(ctx, run.ID, true, stats); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if !runs[0].Succeeded || runs[0].FinishedAt.IsZero() {
		t.Errorf("run not marked finished: %+v", runs[0])
	}
	if runs[0].Stats["accepted"] != float64(42) {
		t.Errorf("stats = %v", runs[0].Stats)
	}

	stage, err = s.LastSuccessfulStage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stage != models.StageFilter {
		t.Errorf("last successful stage = %q, want %q", stage, models.StageFilter)
	}
}

func TestSQLiteStore_FinishUnknownRun(t *testing.T) {
	s := newTestStore(t)
	if err := s.FinishRun(context.Background(), "missing", false, nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
