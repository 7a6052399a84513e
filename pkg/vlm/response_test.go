package vlm

import (
	"errors"
	"image"
	"testing"

	"github.com/menta2k/plate-logger/pkg/types"
)

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"text": "AB12"}`, `{"text": "AB12"}`},
		{"fenced", "```json\n{\"text\": \"AB12\"}\n```", `{"text": "AB12"}`},
		{"trailing comma", `{"a": [1, 2,], "b": 3,}`, `{"a": [1, 2], "b": 3}`},
		{"prose around", `Sure! {"text": "X"} hope it helps`, `{"text": "X"}`},
		{"block comment", `{/* plate */"text": "X"}`, `{"text": "X"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.raw); got != tt.want {
				t.Errorf("SanitizeJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRecognition(t *testing.T) {
	rec, err := ParseRecognition("```json\n{\"text\": \" AB12CD3 \", \"confidence\": 0.87}\n```")
	if err != nil {
		t.Fatalf("ParseRecognition failed: %v", err)
	}
	if rec.Text != "AB12CD3" || rec.Score != 0.87 {
		t.Errorf("Unexpected recognition %+v", rec)
	}

	rec, err = ParseRecognition(`{"text": "XY789Z", "confidence": 75}`)
	if err != nil {
		t.Fatalf("ParseRecognition failed: %v", err)
	}
	if rec.Percent() != 75 {
		t.Errorf("Expected percentage confidence to be scaled, got %v", rec.Score)
	}

	rec, err = ParseRecognition(`{"text": "", "confidence": 0.9}`)
	if err != nil || rec != nil {
		t.Errorf("Expected nil recognition for empty text, got %+v, %v", rec, err)
	}

	if _, err := ParseRecognition("I cannot read this plate"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}

func TestParseDetections(t *testing.T) {
	raw := `{"plates": [
		{"box": {"x": 0.25, "y": 0.5, "w": 0.25, "h": 0.125}, "confidence": 0.9},
		{"box": {"x": 0.9, "y": 0.9, "w": 0.5, "h": 0.5}, "confidence": 0.6},
		{"box": {"x": 0.1, "y": 0.1, "w": 0, "h": 0.1}, "confidence": 0.9},
	]}`
	dets, err := ParseDetections(raw, image.Rect(0, 0, 400, 200))
	if err != nil {
		t.Fatalf("ParseDetections failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(dets))
	}
	want := types.Detection{X1: 100, Y1: 100, X2: 200, Y2: 125, Score: 0.9}
	if dets[0] != want {
		t.Errorf("Expected %+v, got %+v", want, dets[0])
	}
	if dets[1].X2 != 400 || dets[1].Y2 != 200 {
		t.Errorf("Expected second box clamped to frame, got %+v", dets[1])
	}
}
