package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/skintone/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs against a real Postgres container. It requires Docker.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers can panic when the docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		cli, err := testcontainers.NewDockerClientWithOpts(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()
		_, err = cli.Ping(ctx)
		return err
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("skintone_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Labels ---

	first := []types.LabelRecord{
		{Image: "b.png", Box: types.BoundingBox{X: 1, Y: 2, W: 30, H: 40}, Avg: types.RGB{R: 60, G: 40, B: 30}},
		{Image: "a.png", Box: types.BoundingBox{X: 0, Y: 0, W: 50, H: 50}, Avg: types.RGB{R: 240, G: 220, B: 200}},
		{Image: "glare.png", Avg: types.RGB{R: 300, G: 300, B: 300}},
	}
	if err := s.ReplaceLabels(ctx, first); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}

	rows, err := s.ListLabels(ctx)
	if err != nil {
		t.Fatalf("ListLabels failed: %v", err)
	}
	if len(rows) != 3 || rows[0].Image != "a.png" || rows[1].Image != "b.png" {
		t.Fatalf("Unexpected rows: %+v", rows)
	}
	if rows[1].Box != first[0].Box || rows[1].Avg != first[0].Avg {
		t.Errorf("Row b.png did not round-trip: %+v", rows[1])
	}
	if rows[0].Tone != types.ToneFair || rows[1].Tone != types.ToneDeep || rows[2].Tone != "" {
		t.Errorf("Unexpected tones: %q %q %q", rows[0].Tone, rows[1].Tone, rows[2].Tone)
	}

	counts, err := s.ToneCounts(ctx)
	if err != nil {
		t.Fatalf("ToneCounts failed: %v", err)
	}
	if counts[types.ToneFair] != 1 || counts[types.ToneDeep] != 1 || len(counts) != 2 {
		t.Errorf("Unexpected counts: %v", counts)
	}

	// A second run replaces, never appends
	if err := s.ReplaceLabels(ctx, first[:1]); err != nil {
		t.Fatalf("ReplaceLabels (second run) failed: %v", err)
	}
	rows, err = s.ListLabels(ctx)
	if err != nil {
		t.Fatalf("ListLabels failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 row after replace, got %d", len(rows))
	}

	// --- Training runs ---

	latest, err := s.LatestTrainingRun(ctx)
	if err != nil || latest != nil {
		t.Fatalf("Expected no runs yet, got %+v (%v)", latest, err)
	}

	va := 0.75
	id, err := s.RecordTrainingRun(ctx, TrainingRun{
		Backbone: "colorstats", Epochs: 6, TrainSize: 12, ValSize: 3,
		Loss: 0.9, Accuracy: 0.5, ValAccuracy: &va, Artifact: "models/makeup_advisor.lite",
	})
	if err != nil || id <= 0 {
		t.Fatalf("RecordTrainingRun failed: id=%d err=%v", id, err)
	}
	if _, err := s.RecordTrainingRun(ctx, TrainingRun{Backbone: "colorstats", Epochs: 6, Artifact: "x"}); err != nil {
		t.Fatalf("RecordTrainingRun without validation failed: %v", err)
	}

	runs, err := s.ListTrainingRuns(ctx)
	if err != nil {
		t.Fatalf("ListTrainingRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[1].ID != id {
		t.Fatalf("Unexpected runs: %+v", runs)
	}
	if runs[1].ValAccuracy == nil || *runs[1].ValAccuracy != 0.75 || runs[0].ValAccuracy != nil {
		t.Errorf("Validation accuracy did not round-trip")
	}

	// --- Reset ---

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListLabels(ctx); err == nil {
		t.Error("Expected ListLabels to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
