// Package dataset reads and writes the label set produced by the labeler.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/skintone/internal/types"
)

// LabelsFile is the CSV file name inside the processed directory.
const LabelsFile = "labels.csv"

// Header is the column layout of labels.csv.
var Header = []string{"image", "face_x", "face_y", "face_w", "face_h", "avg_r", "avg_g", "avg_b"}

// Writer streams label rows to a CSV file, flushing after every row.
type Writer struct {
	f      *os.File
	w      *csv.Writer
	closed bool
}

// Create truncates path and writes the header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, w: csv.NewWriter(f)}
	if err := w.writeRow(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r types.LabelRecord) error {
	return w.writeRow([]string{
		r.Image,
		strconv.Itoa(r.Box.X),
		strconv.Itoa(r.Box.Y),
		strconv.Itoa(r.Box.W),
		strconv.Itoa(r.Box.H),
		strconv.Itoa(r.Avg.R),
		strconv.Itoa(r.Avg.G),
		strconv.Itoa(r.Avg.B),
	})
}

func (w *Writer) writeRow(row []string) error {
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the file. Extra calls are no-ops.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.w.Flush()
	werr := w.w.Error()
	if err := w.f.Close(); err != nil {
		return err
	}
	return werr
}

// ReadFile loads every record from a labels CSV.
func ReadFile(path string) ([]types.LabelRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses labels CSV content. Columns are located by header name; any
// malformed row is an error.
func Read(r io.Reader) ([]types.LabelRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("labels csv is empty")
	}
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(head))
	for i, name := range head {
		idx[name] = i
	}
	for _, name := range Header {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("labels csv is missing column %q", name)
		}
	}

	var records []types.LabelRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if len(row) != len(head) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(head), len(row))
		}

		ints := make([]int, 0, 7)
		for _, name := range Header[1:] {
			v, err := strconv.Atoi(row[idx[name]])
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, name, err)
			}
			ints = append(ints, v)
		}

		records = append(records, types.LabelRecord{
			Image: row[idx["image"]],
			Box:   types.BoundingBox{X: ints[0], Y: ints[1], W: ints[2], H: ints[3]},
			Avg:   types.RGB{R: ints[4], G: ints[5], B: ints[6]},
		})
	}
	return records, nil
}
