// Package video decodes stored video files into frames with OpenCV.
package video

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/menta2k/plate-logger/pkg/source"
	"github.com/menta2k/plate-logger/pkg/types"
)

// Info describes an opened video stream
type Info struct {
	Path       string
	FPS        float64
	FrameCount int
	Width      int
	Height     int
}

// Capture is a frame source backed by gocv.VideoCapture
type Capture struct {
	info Info

	mu   sync.Mutex
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	seq  uint64
	done bool
}

// Open opens a video file. It satisfies source.Opener.
func Open(path string) (source.FrameSource, error) {
	return OpenCapture(path)
}

// OpenCapture opens a video file and reads its stream properties
func OpenCapture(path string) (*Capture, error) {
	if err := source.Validate(path); err != nil {
		return nil, err
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video: %s", path)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps == 0 {
		fps = 25.0
	}

	return &Capture{
		info: Info{
			Path:       path,
			FPS:        fps,
			FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
		cap: vc,
		mat: gocv.NewMat(),
	}, nil
}

// Info returns the stream properties
func (c *Capture) Info() Info {
	return c.info
}

// Next reads and converts the next frame. A failed read marks the end of the stream.
func (c *Capture) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || c.cap == nil {
		return types.Frame{}, io.EOF
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		c.done = true
		return types.Frame{}, io.EOF
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return types.Frame{}, fmt.Errorf("failed to convert frame %d: %w", c.seq+1, err)
	}

	c.seq++
	return types.Frame{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Image:     img,
		TraceID:   uuid.NewString(),
	}, nil
}

// Close releases the capture and its frame buffer
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	var errs []error
	if err := c.mat.Close(); err != nil {
		errs = append(errs, fmt.Errorf("frame buffer: %w", err))
	}
	if err := c.cap.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}
	c.cap = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close video: %v", errs)
	}
	return nil
}
