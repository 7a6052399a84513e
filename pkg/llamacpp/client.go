package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/types"
	"github.com/menta2k/plate-logger/pkg/vlm"
)

// Client talks to a llama.cpp server through its OpenAI-compatible API and
// serves as both a plate detector and a plate text recognizer
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	processor  *processing.Processor

	// MaxDim bounds the longest side of images sent to the model
	MaxDim int
}

// Message is an OpenAI-compatible chat message
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// ChatCompletionResponse is an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(serverURL, model string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		processor: processing.NewProcessor(),
		MaxDim:    1024,
	}, nil
}

// Recognize reads the plate text of a cropped region
func (c *Client) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	reply, err := c.complete(ctx, vlm.RecognizePrompt, region, 256)
	if err != nil {
		return nil, err
	}
	return vlm.ParseRecognition(reply)
}

// Predict locates plates in a full frame
func (c *Client) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	reply, err := c.complete(ctx, vlm.DetectPrompt, frame, 1024)
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

func (c *Client) complete(ctx context.Context, prompt string, img image.Image, maxTokens int) (string, error) {
	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", c.MaxDim, 90)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64}},
				},
			},
		},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// Content is either a string or an array of parts
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		if content != "" {
			return content, nil
		}
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text, nil
				}
			}
		}
	}
	return "", fmt.Errorf("empty response from llama.cpp server")
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
