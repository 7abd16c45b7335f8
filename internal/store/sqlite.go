package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite manifest at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		label TEXT,
		scanned_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS verdicts (
		image_id TEXT PRIMARY KEY,
		accepted INTEGER NOT NULL,
		reason TEXT,
		FOREIGN KEY (image_id) REFERENCES cards(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_verdicts_accepted ON verdicts(accepted);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		succeeded INTEGER NOT NULL DEFAULT 0,
		stats TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertCards inserts or replaces scanned cards in a single transaction.
func (s *SQLiteStore) UpsertCards(ctx context.Context, cards []models.CardImage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cards (id, path, label, scanned_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path, label = excluded.label,
		 scanned_at = excluded.scanned_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range cards {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Path, c.Label, c.ScannedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert card %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListCards returns all scanned cards ordered by ID.
func (s *SQLiteStore) ListCards(ctx context.Context) ([]models.CardImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, label, scanned_at FROM cards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

// SaveVerdicts stores filter verdicts, replacing any previous verdict for the
// same card.
func (s *SQLiteStore) SaveVerdicts(ctx context.Context, verdicts []models.FilterVerdict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO verdicts (image_id, accepted, reason) VALUES (?, ?, ?)
		 ON CONFLICT(image_id) DO UPDATE SET accepted = excluded.accepted,
		 reason = excluded.reason`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, v := range verdicts {
		if _, err := stmt.ExecContext(ctx, v.ImageID, v.Accepted, string(v.Reason)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save verdict for %s: %w", v.ImageID, err)
		}
	}
	return tx.Commit()
}

// AcceptedCards returns cards that passed filtering, ordered by ID.
func (s *SQLiteStore) AcceptedCards(ctx context.Context) ([]models.CardImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.path, c.label, c.scanned_at
		 FROM cards c JOIN verdicts v ON v.image_id = c.id
		 WHERE v.accepted = 1 ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

// RejectionCounts returns how many cards were rejected per reason.
func (s *SQLiteStore) RejectionCounts(ctx context.Context) (map[models.RejectReason]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, COUNT(*) FROM verdicts WHERE accepted = 0 GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.RejectReason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[models.RejectReason(reason)] = n
	}
	return counts, rows.Err()
}

// BeginRun records the start of a pipeline stage and returns the run with a
// fresh ID.
func (s *SQLiteStore) BeginRun(ctx context.Context, stage string) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		ID:        uuid.New().String(),
		Stage:     stage,
		StartedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Stage, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished with its outcome and stats.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, succeeded bool, stats map[string]interface{}) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, stats = ? WHERE id = ?`,
		time.Now(), succeeded, string(statsJSON), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, started_at, finished_at, succeeded, stats
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		var run models.PipelineRun
		var finishedAt sql.NullTime
		var statsJSON sql.NullString
		if err := rows.Scan(&run.ID, &run.Stage, &run.StartedAt, &finishedAt, &run.Succeeded, &statsJSON); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time
		}
		if statsJSON.Valid && statsJSON.String != "" {
			_ = json.Unmarshal([]byte(statsJSON.String), &run.Stats)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// LastSuccessfulStage returns the stage of the most recent successful run,
// or "" when no stage has succeeded yet.
func (s *SQLiteStore) LastSuccessfulStage(ctx context.Context) (string, error) {
	var stage string
	err := s.db.QueryRowContext(ctx,
		`SELECT stage FROM runs WHERE succeeded = 1
		 ORDER BY started_at DESC, id LIMIT 1`).Scan(&stage)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return stage, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanCards(rows *sql.Rows) ([]models.CardImage, error) {
	var cards []models.CardImage
	for rows.Next() {
		var c models.CardImage
		if err := rows.Scan(&c.ID, &c.Path, &c.Label, &c.ScannedAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
