package detection

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/menta2k/plate-logger/pkg/types"
)

type stubModel struct {
	dets      []types.Detection
	err       error
	threshold float64
}

func (s *stubModel) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	s.threshold = threshold
	return s.dets, s.err
}

func TestDetectThreshold(t *testing.T) {
	model := &stubModel{dets: []types.Detection{
		{X1: 10, Y1: 10, X2: 100, Y2: 40, Score: 0.44},
		{X1: 10, Y1: 50, X2: 100, Y2: 80, Score: 0.45},
		{X1: 10, Y1: 90, X2: 100, Y2: 120, Score: 0.50},
		{X1: 10, Y1: 90, X2: 100, Y2: 120, Score: math.NaN()},
	}}
	d := NewDetector(model)
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))

	dets, err := d.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections at or above 0.45, got %d", len(dets))
	}
	for _, det := range dets {
		if det.Score < DefaultThreshold {
			t.Errorf("Detection below threshold passed: %v", det.Score)
		}
	}
	if model.threshold != DefaultThreshold {
		t.Errorf("Expected threshold %v passed to model, got %v", DefaultThreshold, model.threshold)
	}
}

func TestDetectClampsToFrame(t *testing.T) {
	model := &stubModel{dets: []types.Detection{
		{X1: -20, Y1: 200, X2: 80, Y2: 300, Score: 0.9},
		{X1: 400, Y1: 400, X2: 500, Y2: 500, Score: 0.9},
	}}
	d := NewDetector(model)
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))

	dets, err := d.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("Expected 1 detection inside the frame, got %d", len(dets))
	}
	want := types.Detection{X1: 0, Y1: 200, X2: 80, Y2: 240, Score: 0.9}
	if dets[0] != want {
		t.Errorf("Expected %+v, got %+v", want, dets[0])
	}
}

func TestDetectModelError(t *testing.T) {
	boom := errors.New("model crashed")
	d := NewDetector(&stubModel{err: boom})

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped model error, got %v", err)
	}

	if _, err := d.Detect(context.Background(), nil); err == nil {
		t.Error("Expected error for nil frame")
	}
}

func TestNewDetectorWithThreshold(t *testing.T) {
	if _, err := NewDetectorWithThreshold(&stubModel{}, 1.5); err == nil {
		t.Error("Expected error for threshold above 1")
	}
	d, err := NewDetectorWithThreshold(&stubModel{}, 0.6)
	if err != nil {
		t.Fatalf("NewDetectorWithThreshold failed: %v", err)
	}
	if d.Threshold() != 0.6 {
		t.Errorf("Expected threshold 0.6, got %v", d.Threshold())
	}
}
