package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/plate-logger/pkg/client"
	"github.com/menta2k/plate-logger/pkg/types"
)

// DefaultThreshold is the minimum detector score for a plate region
const DefaultThreshold = 0.45

// Detector handles plate region detection on top of a detection model
type Detector struct {
	client    client.PlateDetector
	threshold float64
}

// NewDetector creates a new detector with a model client and the default threshold
func NewDetector(client client.PlateDetector) *Detector {
	return &Detector{client: client, threshold: DefaultThreshold}
}

// NewDetectorWithThreshold creates a detector with a custom score threshold in [0,1]
func NewDetectorWithThreshold(client client.PlateDetector, threshold float64) (*Detector, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("detection threshold must be between 0 and 1, got %v", threshold)
	}
	return &Detector{client: client, threshold: threshold}, nil
}

// Threshold returns the score threshold
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect returns the plate regions of a frame scoring at least the threshold,
// clamped to the frame bounds
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}

	raw, err := d.client.Predict(ctx, frame, d.threshold)
	if err != nil {
		return nil, fmt.Errorf("plate detection failed: %w", err)
	}

	bounds := frame.Bounds()
	out := make([]types.Detection, 0, len(raw))
	for _, det := range raw {
		if math.IsNaN(det.Score) || det.Score < d.threshold {
			continue
		}
		clamped, ok := det.Clamp(bounds)
		if !ok {
			continue
		}
		out = append(out, clamped)
	}
	return out, nil
}
