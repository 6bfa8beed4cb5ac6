package dataset

import (
	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/parquet-go/parquet-go"
)

// ParquetFile is the optional columnar copy of labels.csv.
const ParquetFile = "labels.parquet"

// ParquetRecord is the columnar layout. Tone is derived at export time and is
// empty when the luminance cannot be bucketed.
type ParquetRecord struct {
	Image     string  `parquet:"image"`
	FaceX     int32   `parquet:"face_x"`
	FaceY     int32   `parquet:"face_y"`
	FaceW     int32   `parquet:"face_w"`
	FaceH     int32   `parquet:"face_h"`
	AvgR      int32   `parquet:"avg_r"`
	AvgG      int32   `parquet:"avg_g"`
	AvgB      int32   `parquet:"avg_b"`
	Luminance float64 `parquet:"luminance"`
	Tone      string  `parquet:"tone"`
}

// WriteParquet writes records to path, replacing any existing file.
func WriteParquet(path string, records []types.LabelRecord) error {
	rows := make([]ParquetRecord, 0, len(records))
	for _, r := range records {
		y := tone.Luminance(r.Avg)
		t, _ := tone.Bucket(y)
		rows = append(rows, ParquetRecord{
			Image:     r.Image,
			FaceX:     int32(r.Box.X),
			FaceY:     int32(r.Box.Y),
			FaceW:     int32(r.Box.W),
			FaceH:     int32(r.Box.H),
			AvgR:      int32(r.Avg.R),
			AvgG:      int32(r.Avg.G),
			AvgB:      int32(r.Avg.B),
			Luminance: y,
			Tone:      string(t),
		})
	}
	return parquet.WriteFile(path, rows)
}

// ReadParquet loads a file written by WriteParquet.
func ReadParquet(path string) ([]ParquetRecord, error) {
	return parquet.ReadFile[ParquetRecord](path)
}
