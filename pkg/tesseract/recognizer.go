// Package tesseract reads plate text with the Tesseract OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
)

// Config holds the OCR engine settings
type Config struct {
	Language  string
	Whitelist string
}

// DefaultConfig returns the settings for latin plates
func DefaultConfig() Config {
	return Config{
		Language:  "eng",
		Whitelist: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	}
}

// Recognizer implements client.TextRecognizer with gosseract
type Recognizer struct {
	processor *processing.Processor

	mu     sync.Mutex
	client *gosseract.Client
}

// NewRecognizer creates a single-line OCR client
func NewRecognizer(config Config) (*Recognizer, error) {
	if config.Language == "" {
		config.Language = DefaultConfig().Language
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(config.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if config.Whitelist != "" {
		if err := client.SetWhitelist(config.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &Recognizer{processor: processing.NewProcessor(), client: client}, nil
}

// Recognize reads the text of a plate crop. Confidence is the average word
// confidence scaled to [0,1].
func (r *Recognizer) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := r.processor.EncodeImage(region, "png", 0)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	return &types.Recognition{Text: text, Score: averageConfidence(boxes)}, nil
}

func averageConfidence(boxes []gosseract.BoundingBox) float64 {
	var total float64
	var n int
	for _, box := range boxes {
		if box.Confidence > 0 {
			total += box.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n) / 100.0
}

// Close releases the OCR engine
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
