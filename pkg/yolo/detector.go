// Package yolo runs a YOLOv10 plate detection model exported to ONNX through
// the OpenCV DNN module.
package yolo

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/plate-logger/pkg/types"
)

// Config holds configuration for the ONNX detector
type Config struct {
	ModelPath    string
	InputSize    int
	NMSThreshold float32
}

// DefaultConfig returns the settings of a stock YOLOv10 export
func DefaultConfig() Config {
	return Config{InputSize: 640, NMSThreshold: 0.45}
}

// Detector implements client.PlateDetector with a gocv.Net
type Detector struct {
	config Config

	mu  sync.Mutex
	net gocv.Net
}

// NewDetector loads the model from config.ModelPath
func NewDetector(config Config) (*Detector, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = DefaultConfig().NMSThreshold
	}

	net := gocv.ReadNet(config.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", config.ModelPath)
	}
	return &Detector{config: config, net: net}, nil
}

// Predict runs the network on a frame and returns boxes in frame coordinates
func (d *Detector) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	size := d.config.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	scaleX := float64(mat.Cols()) / float64(size)
	scaleY := float64(mat.Rows()) / float64(size)
	boxes, scores := decode(data, threshold, scaleX, scaleY)
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, float32(threshold), d.config.NMSThreshold)
	out := make([]types.Detection, 0, len(indices))
	for _, idx := range indices {
		b := boxes[idx]
		out = append(out, types.Detection{
			X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X, Y2: b.Max.Y,
			Score: float64(scores[idx]),
		})
	}
	return out, nil
}

// decode reads YOLOv10 rows of (x1, y1, x2, y2, score, class) in input
// coordinates and scales them to the frame
func decode(data []float32, threshold, scaleX, scaleY float64) ([]image.Rectangle, []float32) {
	const stride = 6

	min := float32(threshold)
	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i+stride <= len(data); i += stride {
		score := data[i+4]
		if score < min {
			continue
		}
		x1 := int(float64(data[i]) * scaleX)
		y1 := int(float64(data[i+1]) * scaleY)
		x2 := int(float64(data[i+2]) * scaleX)
		y2 := int(float64(data[i+3]) * scaleY)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, score)
	}
	return boxes, scores
}

// Close releases the network
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
