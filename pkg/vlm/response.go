// Package vlm holds the prompts and response parsing shared by the vision
// language model backends.
package vlm

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"regexp"
	"strings"

	"github.com/menta2k/plate-logger/pkg/types"
)

// RecognizePrompt asks a model to read a single cropped plate
const RecognizePrompt = `You are reading a vehicle license plate from a cropped photo.
Return ONLY JSON of the form {"text": "<plate characters>", "confidence": <0..1>}.
Use "" for text when no plate is legible. Do not add explanations.`

// DetectPrompt asks a model to locate plates in a full frame
const DetectPrompt = `Locate every vehicle license plate in this image.
Return ONLY JSON of the form {"plates": [{"box": {"x": <0..1>, "y": <0..1>, "w": <0..1>, "h": <0..1>}, "confidence": <0..1>}]}.
Coordinates are normalized to the image size, x and y are the top-left corner.
Return {"plates": []} when there is no plate.`

// ErrNoJSON is returned when a model reply holds no JSON object
var ErrNoJSON = errors.New("no JSON object in model response")

// Box is a normalized rectangle, top-left origin
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type plateReply struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

type detectReply struct {
	Plates []plateReply `json:"plates"`
}

type recognizeReply struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ParseRecognition decodes a recognition reply. An empty text yields nil.
func ParseRecognition(raw string) (*types.Recognition, error) {
	var reply recognizeReply
	if err := decode(raw, &reply); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return nil, nil
	}
	return &types.Recognition{Text: text, Score: unit(reply.Confidence)}, nil
}

// ParseDetections decodes a detection reply into pixel boxes within bounds
func ParseDetections(raw string, bounds image.Rectangle) ([]types.Detection, error) {
	var reply detectReply
	if err := decode(raw, &reply); err != nil {
		return nil, err
	}

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	out := make([]types.Detection, 0, len(reply.Plates))
	for _, p := range reply.Plates {
		if p.Box.W <= 0 || p.Box.H <= 0 {
			continue
		}
		det := types.Detection{
			X1:    bounds.Min.X + int(p.Box.X*w),
			Y1:    bounds.Min.Y + int(p.Box.Y*h),
			X2:    bounds.Min.X + int((p.Box.X+p.Box.W)*w),
			Y2:    bounds.Min.Y + int((p.Box.Y+p.Box.H)*h),
			Score: unit(p.Confidence),
		}
		if clamped, ok := det.Clamp(bounds); ok {
			out = append(out, clamped)
		}
	}
	return out, nil
}

func decode(raw string, v any) error {
	cleaned := SanitizeJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("failed to parse model response: %w", err)
	}
	return nil
}

// unit accepts confidences given either in [0,1] or as a percentage
func unit(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		c /= 100
	}
	return math.Min(c, 1)
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeJSON removes code fences, comments and trailing commas from a model
// reply and keeps the outermost object
func SanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
