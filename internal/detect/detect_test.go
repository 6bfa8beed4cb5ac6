package detect

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/skintone/internal/types"
)

func TestLargest(t *testing.T) {
	tests := []struct {
		name  string
		boxes []types.BoundingBox
		want  types.BoundingBox
		ok    bool
	}{
		{
			name: "empty",
			ok:   false,
		},
		{
			name:  "single",
			boxes: []types.BoundingBox{{X: 1, Y: 1, W: 5, H: 5}},
			want:  types.BoundingBox{X: 1, Y: 1, W: 5, H: 5},
			ok:    true,
		},
		{
			name: "picks max area",
			boxes: []types.BoundingBox{
				{X: 0, Y: 0, W: 10, H: 10},
				{X: 5, Y: 5, W: 30, H: 20},
				{X: 9, Y: 9, W: 20, H: 20},
			},
			want: types.BoundingBox{X: 5, Y: 5, W: 30, H: 20},
			ok:   true,
		},
		{
			name: "first max wins ties",
			boxes: []types.BoundingBox{
				{X: 0, Y: 0, W: 2, H: 2},
				{X: 1, Y: 0, W: 10, H: 4},
				{X: 2, Y: 0, W: 4, H: 10},
				{X: 3, Y: 0, W: 8, H: 5},
			},
			want: types.BoundingBox{X: 1, Y: 0, W: 10, H: 4},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Largest(tt.boxes)
			if ok != tt.ok {
				t.Fatalf("Largest() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Largest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	got := types.BoundingBox{X: -7, Y: -3, W: 50, H: 60}.Clamp()
	want := types.BoundingBox{X: 0, Y: 0, W: 50, H: 60}
	if got != want {
		t.Errorf("Clamp() = %+v, want %+v", got, want)
	}

	inside := types.BoundingBox{X: 4, Y: 9, W: 1, H: 2}
	if inside.Clamp() != inside {
		t.Errorf("Clamp() changed an in-bounds box: %+v", inside.Clamp())
	}
}

func TestNewUnknownKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = "haar"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for unknown detector")
	}
}

func TestNewPigoMissingCascade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CascadePath = filepath.Join(t.TempDir(), "nope")
	if _, err := NewPigo(cfg); err == nil {
		t.Fatal("Expected error for missing cascade file")
	}
}

func TestDefaultThreshold(t *testing.T) {
	tests := map[string]float64{"pigo": 5.0, "": 5.0, "python": 0, "dlib": 0}
	for kind, want := range tests {
		if got := DefaultThreshold(kind); got != want {
			t.Errorf("DefaultThreshold(%q) = %v, want %v", kind, got, want)
		}
	}
}
