package ollama

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
	"github.com/menta2k/plate-logger/pkg/vlm"
)

// DefaultModel is a vision model that reads plates well on CPU
const DefaultModel = "qwen2.5vl:7b"

// Client wraps the Ollama API client and serves as both a plate detector and
// a plate text recognizer
type Client struct {
	client    *api.Client
	model     string
	processor *processing.Processor

	// MaxDim bounds the longest side of images sent to the model
	MaxDim int
	// Timeout applies when the caller's context has no deadline
	Timeout time.Duration
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", ollamaURL)
	}
	if model == "" {
		model = DefaultModel
	}

	// Base URL only, a path like /api/chat is dropped
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client:    api.NewClient(baseURL, http.DefaultClient),
		model:     model,
		processor: processing.NewProcessor(),
		MaxDim:    1024,
		Timeout:   300 * time.Second,
	}, nil
}

// Model returns the model name
func (c *Client) Model() string {
	return c.model
}

// Recognize reads the plate text of a cropped region
func (c *Client) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	reply, err := c.query(ctx, vlm.RecognizePrompt, region, 0.1)
	if err != nil {
		return nil, err
	}
	return vlm.ParseRecognition(reply)
}

// Predict locates plates in a full frame
func (c *Client) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	reply, err := c.query(ctx, vlm.DetectPrompt, frame, 0.1)
	if err != nil {
		return nil, err
	}
	dets, err := vlm.ParseDetections(reply, frame.Bounds())
	if err != nil {
		return nil, err
	}
	out := dets[:0]
	for _, d := range dets {
		if d.Score >= threshold {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, prompt string, img image.Image, temperature float64) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	imgBytes, err := c.encode(img)
	if err != nil {
		return "", err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": temperature},
	}

	var content strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}
	return content.String(), nil
}

func (c *Client) encode(img image.Image) ([]byte, error) {
	buf, err := c.processor.EncodeForModel(img, "jpg", c.MaxDim, 90)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf, nil
}
