// Package store mirrors the label set and training history into PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection.
type Store struct {
	conn *pgx.Conn
}

// LabelRow is a stored label with its derived luminance. Tone is empty when the
// luminance could not be bucketed.
type LabelRow struct {
	types.LabelRecord
	Luminance float64
	Tone      types.SkinTone
	LabeledAt time.Time
}

// TrainingRun is the stored summary of one training run.
type TrainingRun struct {
	ID          int
	Backbone    string
	Epochs      int
	TrainSize   int
	ValSize     int
	Loss        float64
	Accuracy    float64
	ValAccuracy *float64
	Artifact    string
	CreatedAt   time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS skin_labels (
			image TEXT PRIMARY KEY,
			face_x INT NOT NULL,
			face_y INT NOT NULL,
			face_w INT NOT NULL,
			face_h INT NOT NULL,
			avg_r INT NOT NULL,
			avg_g INT NOT NULL,
			avg_b INT NOT NULL,
			luminance DOUBLE PRECISION NOT NULL,
			tone TEXT,
			labeled_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS training_runs (
			id BIGSERIAL PRIMARY KEY,
			backbone TEXT NOT NULL,
			epochs INT NOT NULL,
			train_size INT NOT NULL,
			val_size INT NOT NULL,
			loss DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			val_accuracy DOUBLE PRECISION,
			artifact TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS skin_labels_tone_idx ON skin_labels (tone);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ReplaceLabels swaps the stored label set for records in one transaction,
// matching the truncate-and-rewrite behavior of labels.csv.
func (s *Store) ReplaceLabels(ctx context.Context, records []types.LabelRecord) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM skin_labels"); err != nil {
		return err
	}

	now := time.Now()
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"skin_labels"},
		[]string{"image", "face_x", "face_y", "face_w", "face_h", "avg_r", "avg_g", "avg_b", "luminance", "tone", "labeled_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			y := tone.Luminance(r.Avg)
			var t *string
			if bucket, err := tone.Bucket(y); err == nil {
				name := string(bucket)
				t = &name
			}
			return []any{r.Image, r.Box.X, r.Box.Y, r.Box.W, r.Box.H, r.Avg.R, r.Avg.G, r.Avg.B, y, t, now}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy labels: %w", err)
	}

	return tx.Commit(ctx)
}

// ListLabels returns every stored label ordered by image name.
func (s *Store) ListLabels(ctx context.Context) ([]LabelRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT image, face_x, face_y, face_w, face_h, avg_r, avg_g, avg_b, luminance, tone, labeled_at
		FROM skin_labels ORDER BY image
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelRow
	for rows.Next() {
		var r LabelRow
		var t *string
		if err := rows.Scan(&r.Image, &r.Box.X, &r.Box.Y, &r.Box.W, &r.Box.H,
			&r.Avg.R, &r.Avg.G, &r.Avg.B, &r.Luminance, &t, &r.LabeledAt); err != nil {
			return nil, err
		}
		if t != nil {
			r.Tone = types.SkinTone(*t)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToneCounts returns how many stored labels fall in each class.
func (s *Store) ToneCounts(ctx context.Context) (map[types.SkinTone]int, error) {
	rows, err := s.conn.Query(ctx, "SELECT tone, COUNT(*) FROM skin_labels WHERE tone IS NOT NULL GROUP BY tone")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.SkinTone]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[types.SkinTone(t)] = n
	}
	return out, rows.Err()
}

// RecordTrainingRun stores a run summary and returns its ID.
func (s *Store) RecordTrainingRun(ctx context.Context, run TrainingRun) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO training_runs (backbone, epochs, train_size, val_size, loss, accuracy, val_accuracy, artifact)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, run.Backbone, run.Epochs, run.TrainSize, run.ValSize, run.Loss, run.Accuracy, run.ValAccuracy, run.Artifact).Scan(&id)
	return id, err
}

// ListTrainingRuns returns stored runs, newest first.
func (s *Store) ListTrainingRuns(ctx context.Context) ([]TrainingRun, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, backbone, epochs, train_size, val_size, loss, accuracy, val_accuracy, artifact, created_at
		FROM training_runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrainingRun
	for rows.Next() {
		var r TrainingRun
		if err := rows.Scan(&r.ID, &r.Backbone, &r.Epochs, &r.TrainSize, &r.ValSize,
			&r.Loss, &r.Accuracy, &r.ValAccuracy, &r.Artifact, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestTrainingRun returns the newest run, or nil when none is stored.
func (s *Store) LatestTrainingRun(ctx context.Context) (*TrainingRun, error) {
	var r TrainingRun
	err := s.conn.QueryRow(ctx, `
		SELECT id, backbone, epochs, train_size, val_size, loss, accuracy, val_accuracy, artifact, created_at
		FROM training_runs ORDER BY id DESC LIMIT 1
	`).Scan(&r.ID, &r.Backbone, &r.Epochs, &r.TrainSize, &r.ValSize,
		&r.Loss, &r.Accuracy, &r.ValAccuracy, &r.Artifact, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Reset drops all application tables. The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS skin_labels CASCADE;
		DROP TABLE IF EXISTS training_runs CASCADE;
	`)
	return err
}
