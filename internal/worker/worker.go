package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/andresmejia3/skintone/internal/utils"
)

var log = event.Log

// ErrWorker wraps errors reported by the Python side of the protocol.
var ErrWorker = errors.New("python worker error")

// ErrBroken is returned for every request after a failed or timed-out round trip.
var ErrBroken = errors.New("python worker is out of sync")

const (
	statusOK    byte = 0
	statusError byte = 1

	// maxResponse guards against reading garbage lengths off a broken pipe.
	maxResponse = 64 * 1024 * 1024
)

// Config controls how the detection worker is started.
type Config struct {
	Script      string
	Threshold   float64
	ReadTimeout time.Duration
}

// PythonWorker is a long-lived MTCNN process. Requests go over stdin, replies come
// back on a dedicated pipe (FD 3) so library noise on stdout cannot corrupt them.
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	broken error
}

// NewPythonWorker starts the worker script. The process is killed when ctx is cancelled.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, "python3", "-u", cfg.Script,
		"--threshold", strconv.FormatFloat(cfg.Threshold, 'f', -1, 64))

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// ProcessImage sends one encoded image and decodes the face boxes in the reply.
//
// Request:  [Len uint32][Data]
// Reply:    [Len uint32][Status byte] then either
//
//	OK:    [NumFaces uint32] NumFaces x ([Box 4 x int32 x,y,w,h][Score float32])
//	Error: [MsgLen uint32][Msg]
func (w *PythonWorker) ProcessImage(data []byte) ([]types.BoundingBox, error) {
	if w.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}

	body, err := w.roundTrip(data)
	if err != nil {
		w.markBroken(err)
		return nil, err
	}
	return decodeResponse(body)
}

func (w *PythonWorker) roundTrip(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed interpreter shows up here
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 || respLen > maxResponse {
		return nil, fmt.Errorf("invalid response length %d", respLen)
	}
	body := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, err
	}
	return body, nil
}

// markBroken poisons the worker and kills the interpreter so Close does not wait
// on an image that is still being processed.
func (w *PythonWorker) markBroken(err error) {
	w.broken = err
	log.Errorf("worker %d: %s; refusing further images", w.ID, err)
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

func decodeResponse(body []byte) ([]types.BoundingBox, error) {
	buf := bytes.NewReader(body)
	status, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}

	switch status {
	case statusError:
		var msgLen uint32
		if err := binary.Read(buf, binary.BigEndian, &msgLen); err != nil {
			return nil, err
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(buf, msg); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrWorker, msg)
	case statusOK:
	default:
		return nil, fmt.Errorf("unknown response status %d", status)
	}

	var n uint32
	if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
		return nil, err
	}

	boxes := make([]types.BoundingBox, 0, n)
	for i := uint32(0); i < n; i++ {
		var box [4]int32
		var score float32
		if err := binary.Read(buf, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		if err := binary.Read(buf, binary.BigEndian, &score); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		boxes = append(boxes, types.BoundingBox{
			X:     int(box[0]),
			Y:     int(box[1]),
			W:     int(box[2]),
			H:     int(box[3]),
			Score: float64(score),
		})
	}
	return boxes, nil
}

// Close shuts the pipes and waits for the interpreter to exit.
func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
