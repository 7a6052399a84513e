// Package gemini reads plate text with the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
	"github.com/menta2k/plate-logger/pkg/vlm"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-1.5-flash"

// Recognizer implements client.TextRecognizer on a Gemini generative model
type Recognizer struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	processor *processing.Processor

	// Attempts is the number of tries for transient API failures
	Attempts int
}

// NewRecognizer creates a Gemini client for the given model
func NewRecognizer(ctx context.Context, apiKey, model string) (*Recognizer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	m := cl.GenerativeModel(model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(vlm.RecognizePrompt)},
	}

	return &Recognizer{
		client:    cl,
		model:     m,
		processor: processing.NewProcessor(),
		Attempts:  3,
	}, nil
}

// Recognize reads the plate text of a cropped region
func (r *Recognizer) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	imgBytes, err := r.processor.EncodeImage(region, "png", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	parts := []genai.Part{
		genai.Text("Read this plate."),
		genai.ImageData("png", imgBytes),
	}

	var lastErr error
	for attempt := 1; attempt <= max(1, r.Attempts); attempt++ {
		resp, err := r.model.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, errors.New("gemini recognize: empty response")
		}
		return vlm.ParseRecognition(txt)
	}
	return nil, fmt.Errorf("gemini recognize: %w", lastErr)
}

// Close releases the API client
func (r *Recognizer) Close() error {
	return r.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
