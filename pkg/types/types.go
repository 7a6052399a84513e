package types

import (
	"image"
	"math"
	"time"
)

// TimeLayout is the ISO-8601 layout used for persisted window boundaries
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Frame represents a single decoded video frame
type Frame struct {
	// Seq is the monotonic sequence number, starting at 1
	Seq uint64
	// Timestamp is when the frame was decoded
	Timestamp time.Time
	// Image holds the frame pixels
	Image image.Image
	// TraceID is a unique identifier used in logs
	TraceID string
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Channels returns the channel depth of the frame pixels
func (f Frame) Channels() int {
	switch f.Image.(type) {
	case nil:
		return 0
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	default:
		return 3
	}
}

// Detection is a candidate plate region in frame pixel coordinates
type Detection struct {
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Score float64 `json:"score"`
}

// Rect returns the detection as an image.Rectangle
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X1, d.Y1, d.X2, d.Y2)
}

// Clamp intersects the detection with bounds. The second result is false
// when nothing of the region lies inside bounds.
func (d Detection) Clamp(bounds image.Rectangle) (Detection, bool) {
	r := d.Rect().Intersect(bounds)
	if r.Empty() {
		return Detection{}, false
	}
	return Detection{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y, Score: d.Score}, true
}

// Recognition is the raw output of a text recognizer for one region
type Recognition struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Percent returns the score on a 0-100 integer scale, NaN counting as 0
func (r Recognition) Percent() int {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return 0
	}
	return int(r.Score * 100)
}

// Window is a closed accumulation period of distinct plates
type Window struct {
	ID     string    `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Plates []string  `json:"plates"`
}

// Records expands the window into one persisted row per plate
func (w Window) Records() []FlushRecord {
	start, end := w.Start.Format(TimeLayout), w.End.Format(TimeLayout)
	out := make([]FlushRecord, 0, len(w.Plates))
	for _, p := range w.Plates {
		out = append(out, FlushRecord{StartTime: start, EndTime: end, Plate: p})
	}
	return out
}

// FlushRecord is the durable representation of one plate of a window
type FlushRecord struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Plate     string `json:"license_plate"`
}
