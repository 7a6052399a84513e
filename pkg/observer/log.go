// Package observer holds presentation sinks for pipeline events.
package observer

import (
	"image"

	"github.com/rs/zerolog"
)

// Log writes pipeline messages and persisted rows to a zerolog logger
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a Log observer
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// OnFrameRendered is a no-op; frames are not logged
func (l *Log) OnFrameRendered(image.Image) {}

// OnLog writes a user-facing status line
func (l *Log) OnLog(message string) {
	l.logger.Info().Msg(message)
}

// OnRowPersisted writes one table row
func (l *Log) OnRowPersisted(startTime, endTime, plate string) {
	l.logger.Info().
		Str("start_time", startTime).
		Str("end_time", endTime).
		Str("plate", plate).
		Msg("row")
}
