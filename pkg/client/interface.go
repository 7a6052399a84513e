package client

import (
	"context"
	"image"

	"github.com/menta2k/plate-logger/pkg/types"
)

// PlateDetector is the boundary to a plate detection model
type PlateDetector interface {
	Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error)
}

// TextRecognizer is the boundary to a text recognition model. A nil
// recognition with a nil error means nothing was read.
type TextRecognizer interface {
	Recognize(ctx context.Context, region image.Image) (*types.Recognition, error)
}
