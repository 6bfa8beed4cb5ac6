package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name string, v int) types.LabelRecord {
	return types.LabelRecord{
		Image: name,
		Box:   types.BoundingBox{X: 1, Y: 2, W: 30, H: 40},
		Avg:   types.RGB{R: v, G: v, B: v},
	}
}

func TestWriterOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), LabelsFile)

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(types.LabelRecord{
		Image: "lena.png",
		Box:   types.BoundingBox{X: 217, Y: 201, W: 173, H: 173},
		Avg:   types.RGB{R: 225, G: 130, B: 118},
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"image,face_x,face_y,face_w,face_h,avg_r,avg_g,avg_b\n"+
			"lena.png,217,201,173,173,225,130,118\n",
		string(data))
}

func TestWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), LabelsFile)
	require.NoError(t, os.WriteFile(path, []byte("stale,content\n1,2\n3,4\n"), 0644))

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadByColumnName(t *testing.T) {
	in := "avg_b,avg_g,avg_r,face_h,face_w,face_y,face_x,image\n" +
		"3,2,1,40,30,20,10,a.jpg\n"

	records, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.LabelRecord{
		Image: "a.jpg",
		Box:   types.BoundingBox{X: 10, Y: 20, W: 30, H: 40},
		Avg:   types.RGB{R: 1, G: 2, B: 3},
	}, records[0])
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing column", "image,face_x\na.jpg,1\n"},
		{"not an integer", strings.Join(Header, ",") + "\na.jpg,1,2,3,4,red,6,7\n"},
		{"short row", strings.Join(Header, ",") + "\na.jpg,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestAssignAndSplit(t *testing.T) {
	var records []types.LabelRecord
	// 5 Deep, 5 Medium, 2 Fair
	for i := 0; i < 5; i++ {
		records = append(records, rec("d"+string(rune('0'+i)), 50))
		records = append(records, rec("m"+string(rune('0'+i)), 150))
	}
	records = append(records, rec("f0", 200), rec("f1", 210))

	samples, rejected := Assign(records)
	require.Empty(t, rejected)
	require.Len(t, samples, 12)

	counts := Counts(samples)
	assert.Equal(t, 5, counts[types.ToneDeep])
	assert.Equal(t, 5, counts[types.ToneMedium])
	assert.Equal(t, 2, counts[types.ToneFair])

	train, val := Split(samples, 0.2)
	assert.Len(t, val, 2) // one Deep, one Medium, no Fair (floor(2*0.2)=0)
	assert.Len(t, train, 10)

	assert.Equal(t, "d0", val[0].Record.Image)
	assert.Equal(t, "m0", val[1].Record.Image)
	for _, s := range train {
		assert.NotEqual(t, "d0", s.Record.Image)
		assert.NotEqual(t, "m0", s.Record.Image)
	}
	assert.Equal(t, 2, Counts(train)[types.ToneFair])
}

func TestAssignRejectsOutOfRange(t *testing.T) {
	samples, rejected := Assign([]types.LabelRecord{rec("ok", 10), rec("bad", 300)})
	assert.Len(t, samples, 1)
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], tone.ErrOutOfRange)
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ParquetFile)
	require.NoError(t, WriteParquet(path, []types.LabelRecord{rec("a.png", 100), rec("b.png", 180)}))

	rows, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a.png", rows[0].Image)
	assert.Equal(t, string(types.ToneDeep), rows[0].Tone)
	assert.Equal(t, string(types.ToneFair), rows[1].Tone)
	assert.Equal(t, int32(40), rows[1].FaceH)
}
