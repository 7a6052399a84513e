package pipeline

import (
	"errors"
	"fmt"

	"github.com/menta2k/plate-logger/pkg/types"
)

var (
	// ErrNotIdle is returned when Upload or Run is called while a run is active
	ErrNotIdle = errors.New("pipeline is not idle")
	// ErrNoSource is returned by Run when no video was uploaded
	ErrNoSource = errors.New("no video selected")
)

// SourceError means the media could not be opened or read. It ends the run.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// InferenceError means a detector or recognizer call failed. The affected
// frame or region is skipped.
type InferenceError struct {
	Stage string
	Seq   uint64
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s failed on frame %d: %v", e.Stage, e.Seq, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// PersistError means a flushed window could not be written
type PersistError struct {
	Window types.Window
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("window %s - %s: %v",
		e.Window.Start.Format(types.TimeLayout), e.Window.End.Format(types.TimeLayout), e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
