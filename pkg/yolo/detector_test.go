package yolo

import (
	"image"
	"testing"
)

func TestDecode(t *testing.T) {
	data := []float32{
		64, 64, 320, 128, 0.90, 0,
		10, 10, 20, 20, 0.30, 0,
		100, 100, 50, 150, 0.99, 0, // degenerate
		0, 320, 640, 640, 0.45, 0,
	}

	boxes, scores := decode(data, 0.45, 2.0, 0.5)
	if len(boxes) != 2 {
		t.Fatalf("Expected 2 boxes, got %d", len(boxes))
	}
	if boxes[0] != image.Rect(128, 32, 640, 64) {
		t.Errorf("Unexpected scaled box %v", boxes[0])
	}
	if boxes[1] != image.Rect(0, 160, 1280, 320) {
		t.Errorf("Unexpected scaled box %v", boxes[1])
	}
	if scores[0] != 0.90 {
		t.Errorf("Expected score 0.90, got %v", scores[0])
	}
}

func TestDecodeTruncatedRow(t *testing.T) {
	boxes, _ := decode([]float32{1, 2, 3}, 0.1, 1, 1)
	if len(boxes) != 0 {
		t.Errorf("Expected no boxes from a partial row, got %d", len(boxes))
	}
}

func TestNewDetectorRequiresModel(t *testing.T) {
	if _, err := NewDetector(Config{}); err == nil {
		t.Error("Expected error without a model path")
	}
}
