package pipeline

import "sync/atomic"

// Stats counts what a driver has processed. Counters accumulate across runs.
type Stats struct {
	frames          atomic.Uint64
	detections      atomic.Uint64
	accepted        atomic.Uint64
	rejected        atomic.Uint64
	plates          atomic.Uint64
	flushes         atomic.Uint64
	rowsPersisted   atomic.Uint64
	persistFailures atomic.Uint64
	inferenceErrors atomic.Uint64
	retried         atomic.Uint64
	dropped         atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Frames          uint64 `json:"frames"`
	Detections      uint64 `json:"detections"`
	Accepted        uint64 `json:"accepted"`
	Rejected        uint64 `json:"rejected"`
	Plates          uint64 `json:"plates"`
	Flushes         uint64 `json:"flushes"`
	RowsPersisted   uint64 `json:"rows_persisted"`
	PersistFailures uint64 `json:"persist_failures"`
	InferenceErrors uint64 `json:"inference_errors"`
	Retried         uint64 `json:"retried"`
	Dropped         uint64 `json:"dropped"`
}

// Snapshot reads all counters
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:          s.frames.Load(),
		Detections:      s.detections.Load(),
		Accepted:        s.accepted.Load(),
		Rejected:        s.rejected.Load(),
		Plates:          s.plates.Load(),
		Flushes:         s.flushes.Load(),
		RowsPersisted:   s.rowsPersisted.Load(),
		PersistFailures: s.persistFailures.Load(),
		InferenceErrors: s.inferenceErrors.Load(),
		Retried:         s.retried.Load(),
		Dropped:         s.dropped.Load(),
	}
}
