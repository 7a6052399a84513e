// Package source provides the frame sources consumed by the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/plate-logger/internal/utils"
	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
)

// ErrUnsupportedFormat is returned when a path is neither an accepted video nor an image directory
var ErrUnsupportedFormat = errors.New("unsupported video format")

// FrameSource yields decoded frames in order. Next returns io.EOF once the
// stream is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (types.Frame, error)
	Close() error
}

// Opener opens a frame source for a path
type Opener func(path string) (FrameSource, error)

// Validate checks that a path can be handed to an Opener: an existing file with
// an accepted video extension, or a directory of still images
func Validate(path string) error {
	if path == "" {
		return errors.New("no video selected")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	if !utils.IsVideoFile(path) {
		return fmt.Errorf("%w: %s (accepted: %v)", ErrUnsupportedFormat, utils.GetFileExtension(path), utils.VideoExtensions())
	}
	return nil
}

// stamp fills sequence, timestamp and trace id for a decoded image
func stamp(seq uint64, img image.Image) types.Frame {
	return types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Image:     img,
		TraceID:   uuid.NewString(),
	}
}

// ImageSequence replays a directory of still images as a frame stream, in
// file name order
type ImageSequence struct {
	files     []string
	processor *processing.Processor

	mu   sync.Mutex
	next int
}

// OpenImageSequence lists the images of dir
func OpenImageSequence(dir string) (*ImageSequence, error) {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image frames in %s", dir)
	}
	return &ImageSequence{files: files, processor: processing.NewProcessor()}, nil
}

// Len returns the number of frames in the sequence
func (s *ImageSequence) Len() int {
	return len(s.files)
}

// Next decodes the next image
func (s *ImageSequence) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.files) {
		return types.Frame{}, io.EOF
	}
	path := s.files[s.next]
	img, err := s.processor.LoadImage(path)
	if err != nil {
		return types.Frame{}, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	s.next++
	return stamp(uint64(s.next), img), nil
}

// Close releases nothing; the sequence holds no open handles
func (s *ImageSequence) Close() error {
	return nil
}

// Frames is an in-memory source, used for replays and tests
type Frames struct {
	images []image.Image
	next   int
}

// NewFrames creates a source over a fixed list of images
func NewFrames(images ...image.Image) *Frames {
	return &Frames{images: images}
}

// Next returns the next image
func (f *Frames) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if f.next >= len(f.images) {
		return types.Frame{}, io.EOF
	}
	img := f.images[f.next]
	f.next++
	return stamp(uint64(f.next), img), nil
}

// Close is a no-op
func (f *Frames) Close() error {
	return nil
}

// Chain returns an Opener that serves directories as image sequences and
// everything else through video
func Chain(video Opener) Opener {
	return func(path string) (FrameSource, error) {
		if err := Validate(path); err != nil {
			return nil, err
		}
		if utils.DirExists(path) {
			return OpenImageSequence(path)
		}
		if video == nil {
			return nil, fmt.Errorf("%w: no video decoder available for %s", ErrUnsupportedFormat, path)
		}
		return video(path)
	}
}
