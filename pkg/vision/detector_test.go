package vision

import (
	"context"
	"image"
	"image/color"
	"testing"
)

var plateRect = image.Rect(100, 150, 220, 180)

// createTestImage draws a striped plate-like box on a dark frame
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{40, 40, 40, 255}
			if image.Pt(x, y).In(plateRect) {
				c = color.RGBA{255, 255, 255, 255}
				if (x/3)%2 == 1 {
					c = color.RGBA{0, 0, 0, 255} // character stroke
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNew(t *testing.T) {
	detector := New()
	if detector == nil {
		t.Fatal("New() returned nil")
	}
	if detector.config.EdgeThreshold != 0.25 {
		t.Errorf("Expected edge threshold 0.25, got %f", detector.config.EdgeThreshold)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 1

	detector := NewWithConfig(cfg)
	if detector.config.MaxCandidates != 1 {
		t.Errorf("Expected max candidates 1, got %d", detector.config.MaxCandidates)
	}
}

func TestRegionCenter(t *testing.T) {
	region := Region{X: 10, Y: 20, Width: 100, Height: 50}
	x, y := region.Center()
	if x != 60 || y != 45 {
		t.Errorf("Expected center (60, 45), got (%d, %d)", x, y)
	}
}

func TestRegionArea(t *testing.T) {
	region := Region{Width: 100, Height: 50}
	if region.Area() != 5000 {
		t.Errorf("Expected area 5000, got %d", region.Area())
	}
}

func TestDetectCandidates(t *testing.T) {
	detector := New()
	regions := detector.DetectCandidates(createTestImage(320, 240))
	if len(regions) == 0 {
		t.Fatal("Expected at least one candidate")
	}

	best := regions[0]
	cx, cy := best.Center()
	if !image.Pt(cx, cy).In(plateRect) {
		t.Errorf("Expected best candidate centered on the plate, got %+v", best)
	}
	if best.Score <= 0 || best.Score > 1 {
		t.Errorf("Expected score in (0, 1], got %f", best.Score)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Score > regions[i-1].Score {
			t.Errorf("Candidates not ordered by score at %d", i)
		}
	}
}

func TestDetectCandidatesUniformFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	if regions := New().DetectCandidates(img); len(regions) != 0 {
		t.Errorf("Expected no candidates on a flat frame, got %d", len(regions))
	}
}

func TestDetectCandidatesMaxCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 1
	regions := NewWithConfig(cfg).DetectCandidates(createTestImage(320, 240))
	if len(regions) != 1 {
		t.Errorf("Expected 1 candidate, got %d", len(regions))
	}
}

func TestPredictThreshold(t *testing.T) {
	detector := New()
	frame := createTestImage(320, 240)

	dets, err := detector.Predict(context.Background(), frame, 0.45)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(dets) == 0 {
		t.Fatal("Expected detections above threshold")
	}
	for _, d := range dets {
		if d.Score < 0.45 {
			t.Errorf("Detection below threshold: %+v", d)
		}
	}

	dets, err = detector.Predict(context.Background(), frame, 1.01)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("Expected no detections above 1.01, got %d", len(dets))
	}
}

func TestPredictCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Predict(ctx, createTestImage(64, 64), 0.5); err == nil {
		t.Error("Expected error for canceled context")
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := iou(a, a); got != 1 {
		t.Errorf("Expected IoU 1, got %f", got)
	}
	if got := iou(a, image.Rect(20, 20, 30, 30)); got != 0 {
		t.Errorf("Expected IoU 0, got %f", got)
	}
	if got := iou(a, image.Rect(5, 0, 15, 10)); got < 0.33 || got > 0.34 {
		t.Errorf("Expected IoU 1/3, got %f", got)
	}
}

func BenchmarkDetectCandidates(b *testing.B) {
	detector := New()
	img := createTestImage(640, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.DetectCandidates(img)
	}
}
