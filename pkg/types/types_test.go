package types

import (
	"image"
	"math"
	"testing"
	"time"
)

func TestDetectionClamp(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	tests := []struct {
		name string
		in   Detection
		want Detection
		ok   bool
	}{
		{"inside", Detection{10, 20, 110, 60, 0.9}, Detection{10, 20, 110, 60, 0.9}, true},
		{"overflow right", Detection{600, 400, 700, 500, 0.5}, Detection{600, 400, 640, 480, 0.5}, true},
		{"negative origin", Detection{-15, -5, 40, 30, 0.7}, Detection{0, 0, 40, 30, 0.7}, true},
		{"outside", Detection{700, 500, 800, 600, 0.8}, Detection{}, false},
		{"degenerate", Detection{50, 50, 50, 80, 0.8}, Detection{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Clamp(bounds)
			if ok != tt.ok {
				t.Fatalf("Clamp ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Clamp = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecognitionPercent(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{0.75, 75},
		{0.605, 60},
		{1, 100},
		{0, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := (Recognition{Score: tt.score}).Percent(); got != tt.want {
			t.Errorf("Percent(%v) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestFrameChannels(t *testing.T) {
	if c := (Frame{Image: image.NewGray(image.Rect(0, 0, 2, 2))}).Channels(); c != 1 {
		t.Errorf("Expected 1 channel for gray, got %d", c)
	}
	if c := (Frame{Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}).Channels(); c != 4 {
		t.Errorf("Expected 4 channels for RGBA, got %d", c)
	}
	if c := (Frame{Image: image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)}).Channels(); c != 3 {
		t.Errorf("Expected 3 channels for YCbCr, got %d", c)
	}
	f := Frame{Image: image.NewRGBA(image.Rect(0, 0, 320, 240))}
	if f.Width() != 320 || f.Height() != 240 {
		t.Errorf("Expected 320x240, got %dx%d", f.Width(), f.Height())
	}
}

func TestWindowRecords(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(20 * time.Second), Plates: []string{"AB12CD3", "XY789Z"}}

	recs := w.Records()
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0].StartTime != "2024-05-01T10:00:00.000000Z" {
		t.Errorf("Unexpected start time %q", recs[0].StartTime)
	}
	if recs[1].EndTime != "2024-05-01T10:00:20.000000Z" {
		t.Errorf("Unexpected end time %q", recs[1].EndTime)
	}
	if recs[1].Plate != "XY789Z" {
		t.Errorf("Expected plate XY789Z, got %q", recs[1].Plate)
	}

	if len((Window{Start: start, End: start}).Records()) != 0 {
		t.Error("Empty window should produce no records")
	}
}
