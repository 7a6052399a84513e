package recognition

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/menta2k/plate-logger/pkg/types"
)

type stubRecognizer struct {
	rec    *types.Recognition
	err    error
	region image.Rectangle
}

func (s *stubRecognizer) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	s.region = region.Bounds()
	return s.rec, s.err
}

func TestExtractConfidence(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	det := types.Detection{X1: 10, Y1: 10, X2: 200, Y2: 80, Score: 0.5}

	tests := []struct {
		name   string
		rec    *types.Recognition
		accept bool
	}{
		{"confident", &types.Recognition{Text: "AB12CD3", Score: 0.75}, true},
		{"just above", &types.Recognition{Text: "AB12CD3", Score: 0.61}, true},
		{"exactly 60", &types.Recognition{Text: "AB12CD3", Score: 0.60}, false},
		{"truncates to 60", &types.Recognition{Text: "AB12CD3", Score: 0.609}, false},
		{"below", &types.Recognition{Text: "AB12CD3", Score: 0.55}, false},
		{"nan", &types.Recognition{Text: "AB12CD3", Score: math.NaN()}, false},
		{"nothing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&stubRecognizer{rec: tt.rec})
			got, err := e.Extract(context.Background(), frame, det)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if (got != nil) != tt.accept {
				t.Errorf("Expected accepted=%v, got %+v", tt.accept, got)
			}
		})
	}
}

func TestExtractCropsRegion(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	stub := &stubRecognizer{rec: &types.Recognition{Text: "X", Score: 0.9}}
	e := NewExtractor(stub)

	if _, err := e.Extract(context.Background(), frame, types.Detection{X1: 300, Y1: 100, X2: 400, Y2: 160}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if stub.region.Dx() != 20 || stub.region.Dy() != 60 {
		t.Errorf("Expected clamped 20x60 region, got %v", stub.region)
	}
}

func TestExtractRecognizerError(t *testing.T) {
	boom := errors.New("ocr unavailable")
	e := NewExtractor(&stubRecognizer{err: boom})
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))

	_, err := e.Extract(context.Background(), frame, types.Detection{X1: 0, Y1: 0, X2: 50, Y2: 50})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped recognizer error, got %v", err)
	}
}

func TestNewExtractorWithThreshold(t *testing.T) {
	if _, err := NewExtractorWithThreshold(&stubRecognizer{}, 120); err == nil {
		t.Error("Expected error for threshold above 100")
	}
	e, err := NewExtractorWithThreshold(&stubRecognizer{}, 80)
	if err != nil {
		t.Fatalf("NewExtractorWithThreshold failed: %v", err)
	}
	if e.Accept(&types.Recognition{Score: 0.75}) {
		t.Error("75 should be rejected with an 80 threshold")
	}
}
