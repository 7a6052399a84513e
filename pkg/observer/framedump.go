package observer

import (
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/menta2k/plate-logger/internal/utils"
	"github.com/menta2k/plate-logger/pkg/processing"
)

// FrameDump writes every Nth rendered frame to a directory
type FrameDump struct {
	dir       string
	every     uint64
	format    string
	quality   int
	logger    zerolog.Logger
	processor *processing.Processor

	mu    sync.Mutex
	count uint64
	saved uint64
}

// NewFrameDump creates the output directory and a FrameDump writing frames as
// jpg, png or webp
func NewFrameDump(dir string, every int, format string, quality int, logger zerolog.Logger) (*FrameDump, error) {
	if every < 1 {
		return nil, fmt.Errorf("frame interval must be positive, got %d", every)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	if format == "" {
		format = "jpg"
	}
	return &FrameDump{
		dir:       dir,
		every:     uint64(every),
		format:    format,
		quality:   quality,
		logger:    logger,
		processor: processing.NewProcessor(),
	}, nil
}

// OnFrameRendered saves the frame when it falls on the interval. Write
// failures are logged and do not stop the pipeline.
func (f *FrameDump) OnFrameRendered(frame image.Image) {
	f.mu.Lock()
	f.count++
	if (f.count-1)%f.every != 0 {
		f.mu.Unlock()
		return
	}
	f.saved++
	seq := f.saved
	f.mu.Unlock()

	path := utils.FrameFilename(f.dir, "frame_", seq, f.format)
	if err := f.processor.SaveImage(frame, path, f.format, f.quality, false); err != nil {
		f.logger.Warn().Err(err).Str("path", path).Msg("failed to save frame")
	}
}

// OnLog is a no-op
func (f *FrameDump) OnLog(string) {}

// OnRowPersisted is a no-op
func (f *FrameDump) OnRowPersisted(string, string, string) {}

// Saved returns how many frames were written
func (f *FrameDump) Saved() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}
