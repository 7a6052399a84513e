// Package recognition reads plate text from detected regions.
package recognition

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/plate-logger/pkg/client"
	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
)

// DefaultMinPercent is the confidence a recognition must exceed, on a 0-100 scale
const DefaultMinPercent = 60

// Extractor crops plate regions and runs a text recognizer on them
type Extractor struct {
	client     client.TextRecognizer
	processor  *processing.Processor
	minPercent int
}

// NewExtractor creates an Extractor with the default confidence threshold
func NewExtractor(client client.TextRecognizer) *Extractor {
	return &Extractor{
		client:     client,
		processor:  processing.NewProcessor(),
		minPercent: DefaultMinPercent,
	}
}

// NewExtractorWithThreshold creates an Extractor with a custom threshold in percent
func NewExtractorWithThreshold(client client.TextRecognizer, minPercent int) (*Extractor, error) {
	if minPercent < 0 || minPercent > 100 {
		return nil, fmt.Errorf("recognition threshold must be between 0 and 100, got %d", minPercent)
	}
	e := NewExtractor(client)
	e.minPercent = minPercent
	return e, nil
}

// Accept reports whether a recognition is confident enough to use
func (e *Extractor) Accept(rec *types.Recognition) bool {
	return rec != nil && rec.Percent() > e.minPercent
}

// Extract reads the text of one detection. It returns nil without error when
// the recognizer saw nothing or was not confident enough.
func (e *Extractor) Extract(ctx context.Context, frame image.Image, det types.Detection) (*types.Recognition, error) {
	region, err := e.processor.CropRegion(frame, det)
	if err != nil {
		return nil, err
	}

	rec, err := e.client.Recognize(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("text recognition failed: %w", err)
	}
	if !e.Accept(rec) {
		return nil, nil
	}
	return rec, nil
}
