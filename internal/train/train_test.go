package train

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/skintone/internal/classifier"
	"github.com/andresmejia3/skintone/internal/dataset"
	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meanColor is a three-feature backbone: the average RGB scaled to [0,1].
type meanColor struct{ calls int }

func (*meanColor) Name() string { return "meancolor" }
func (*meanColor) Dim() int     { return 3 }
func (*meanColor) Close() error { return nil }

func (m *meanColor) Features(img image.Image) ([]float64, error) {
	m.calls++
	src := imgproc.ToRGB(img)
	var s [3]float64
	n := 0
	for i := 0; i < len(src.Pix); i += 4 {
		s[0] += float64(src.Pix[i])
		s[1] += float64(src.Pix[i+1])
		s[2] += float64(src.Pix[i+2])
		n++
	}
	return []float64{s[0] / float64(n) / 255, s[1] / float64(n) / 255, s[2] / float64(n) / 255}, nil
}

var palette = map[types.SkinTone]types.RGB{
	types.ToneDeep:   {R: 60, G: 40, B: 30},
	types.ToneMedium: {R: 170, G: 140, B: 110},
	types.ToneFair:   {R: 240, G: 220, B: 200},
}

// writeDataset creates perClass solid crops per tone plus their labels.csv.
func writeDataset(t *testing.T, perClass int) string {
	t.Helper()
	dir := t.TempDir()
	w, err := dataset.Create(filepath.Join(dir, dataset.LabelsFile))
	require.NoError(t, err)

	for _, tn := range []types.SkinTone{types.ToneDeep, types.ToneMedium, types.ToneFair} {
		c := palette[tn]
		for i := 0; i < perClass; i++ {
			name := string(tn) + string(rune('a'+i)) + ".png"
			img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
			for p := 0; p < len(img.Pix); p += 4 {
				img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = uint8(c.R), uint8(c.G), uint8(c.B), 255
			}
			require.NoError(t, imgproc.Save(img, filepath.Join(dir, name)))
			require.NoError(t, w.Write(types.LabelRecord{
				Image: name,
				Box:   types.BoundingBox{W: 32, H: 32},
				Avg:   c,
			}))
		}
	}
	require.NoError(t, w.Close())
	return dir
}

func testConfig(t *testing.T, data string) Config {
	cfg := DefaultConfig()
	cfg.DataDir = data
	cfg.OutputDir = filepath.Join(t.TempDir(), "models")
	return cfg
}

func TestRunMissingLabels(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	_, err := Run(context.Background(), cfg, &meanColor{})
	assert.ErrorIs(t, err, ErrLabelsMissing)

	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "no output may be written")
}

func TestRunWritesArtifacts(t *testing.T) {
	cfg := testConfig(t, writeDataset(t, 5))
	bb := &meanColor{}

	report, err := Run(context.Background(), cfg, bb)
	require.NoError(t, err)

	assert.Equal(t, 15, report.Records)
	assert.Equal(t, 12, report.TrainSize)
	assert.Equal(t, 3, report.ValSize)
	assert.Equal(t, map[string]int{"Deep": 5, "Medium": 5, "Fair": 5}, report.ClassCounts)
	require.Len(t, report.History, 6)
	for i, h := range report.History {
		assert.Equal(t, i+1, h.Epoch)
		require.NotNil(t, h.ValLoss)
		require.NotNil(t, h.ValAccuracy)
	}

	// 3 validation extractions plus 12 augmented extractions per epoch
	assert.Equal(t, 3+6*12, bb.calls)

	for _, name := range []string{classifier.NativeFile, classifier.MobileFile, ReportFile} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, name))
	}

	stored, err := ReadReport(filepath.Join(cfg.OutputDir, ReportFile))
	require.NoError(t, err)
	assert.Equal(t, report.History, stored.History)

	model, err := classifier.Load(filepath.Join(cfg.OutputDir, classifier.MobileFile))
	require.NoError(t, err)
	assert.Equal(t, "meancolor", model.Backbone())
	assert.Equal(t, 3, model.InputDim())
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	data := writeDataset(t, 4)

	a, err := Run(context.Background(), testConfig(t, data), &meanColor{})
	require.NoError(t, err)
	b, err := Run(context.Background(), testConfig(t, data), &meanColor{})
	require.NoError(t, err)
	assert.Equal(t, a.History, b.History)
}

func TestRunSkipsMissingAndRejected(t *testing.T) {
	data := writeDataset(t, 3)

	f, err := os.OpenFile(filepath.Join(data, dataset.LabelsFile), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("ghost.png,0,0,10,10,100,100,100\nglare.png,0,0,10,10,300,300,300\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := Run(context.Background(), testConfig(t, data), &meanColor{})
	require.NoError(t, err)
	assert.Equal(t, 11, report.Records)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 9, report.TrainSize+report.ValSize)
}

func TestRunLearnsWithAggressiveSchedule(t *testing.T) {
	cfg := testConfig(t, writeDataset(t, 5))
	cfg.Epochs = 150
	cfg.LearningRate = 0.01
	cfg.Dropout = 0
	cfg.Rotation = 0

	report, err := Run(context.Background(), cfg, &meanColor{})
	require.NoError(t, err)

	first, last := report.History[0], report.History[len(report.History)-1]
	assert.Less(t, last.Loss, first.Loss)
	assert.Equal(t, 1.0, *last.ValAccuracy)
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t, writeDataset(t, 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg, &meanColor{})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRejectsBadConfig(t *testing.T) {
	data := writeDataset(t, 2)
	for _, mut := range []func(*Config){
		func(c *Config) { c.Epochs = 0 },
		func(c *Config) { c.BatchSize = 0 },
		func(c *Config) { c.ValidationSplit = 1 },
	} {
		cfg := testConfig(t, data)
		mut(&cfg)
		_, err := Run(context.Background(), cfg, &meanColor{})
		assert.Error(t, err)
	}
}

func TestAugmentKeepsSize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	img.SetNRGBA(0, 10, color.NRGBA{R: 255, A: 255})
	rng := rand.New(rand.NewSource(1))

	flipped, kept := 0, 0
	for i := 0; i < 50; i++ {
		out := imgproc.ToRGB(Augment(img, rng, 0))
		assert.Equal(t, image.Rect(0, 0, 40, 20), out.Bounds())
		if out.NRGBAAt(39, 10).R == 255 {
			flipped++
		} else if out.NRGBAAt(0, 10).R == 255 {
			kept++
		}
	}
	assert.Positive(t, flipped)
	assert.Positive(t, kept)

	rotated := Augment(img, rng, 10)
	assert.Equal(t, 40, rotated.Bounds().Dx())
	assert.Equal(t, 20, rotated.Bounds().Dy())
}

func TestRunLeavesNoArtifactsWhenExportFails(t *testing.T) {
	data := writeDataset(t, 5)
	cfg := testConfig(t, data)
	cfg.Epochs = 1

	// A directory squatting on the mobile model path makes its rename fail.
	blocker := filepath.Join(cfg.OutputDir, classifier.MobileFile)
	require.NoError(t, os.MkdirAll(blocker, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(blocker, "keep"), []byte("x"), 0644))

	_, err := Run(context.Background(), cfg, &meanColor{})
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, classifier.NativeFile))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, classifier.MobileFile+".tmp"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, ReportFile))
}

func TestLabelsPath(t *testing.T) {
	dir := t.TempDir()
	_, err := LabelsPath(dir)
	assert.ErrorIs(t, err, ErrLabelsMissing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.LabelsFile), []byte(""), 0644))
	got, err := LabelsPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, dataset.LabelsFile), got)
}
