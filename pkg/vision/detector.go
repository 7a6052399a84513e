package vision

import (
	"context"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-logger/pkg/types"
)

// PlateDetector finds plate candidates from vertical edge density. Plate
// characters produce dense vertical strokes inside a wide, short box.
type PlateDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for candidate detection
type DetectionConfig struct {
	// EdgeThreshold is the minimum horizontal luminance step, 0..1, for an edge pixel
	EdgeThreshold float64
	// MinDensity is the edge density a window needs to become a candidate
	MinDensity float64
	// FullDensity is the density that maps to a score of 1
	FullDensity float64
	// AspectRatios are the width/height ratios scanned
	AspectRatios []float64
	// HeightFractions are window heights as fractions of the frame height
	HeightFractions []float64
	// OverlapThreshold is the IoU above which weaker candidates are suppressed
	OverlapThreshold float64
	// MaxCandidates limits the result
	MaxCandidates int
}

// DefaultConfig returns settings tuned for road footage
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:    0.25,
		MinDensity:       0.15,
		FullDensity:      0.5,
		AspectRatios:     []float64{2, 3, 4, 5},
		HeightFractions:  []float64{1.0 / 24, 1.0 / 16, 1.0 / 12, 1.0 / 8},
		OverlapThreshold: 0.3,
		MaxCandidates:    10,
	}
}

// New creates a new PlateDetector with default configuration
func New() *PlateDetector {
	return &PlateDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new PlateDetector with custom configuration
func NewWithConfig(config DetectionConfig) *PlateDetector {
	return &PlateDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Predict returns candidates scoring at least threshold in frame coordinates.
// It satisfies client.PlateDetector.
func (d *PlateDetector) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	origin := frame.Bounds().Min

	var out []types.Detection
	for _, r := range d.DetectCandidates(frame) {
		if r.Score < threshold {
			continue
		}
		out = append(out, types.Detection{
			X1:    origin.X + r.X,
			Y1:    origin.Y + r.Y,
			X2:    origin.X + r.X + r.Width,
			Y2:    origin.Y + r.Y + r.Height,
			Score: r.Score,
		})
	}
	return out, nil
}

// DetectCandidates scans the frame and returns non-overlapping candidate
// regions, best first, relative to the frame origin
func (d *PlateDetector) DetectCandidates(img image.Image) []Region {
	gray := imaging.Grayscale(img)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	if width < 3 || height < 3 {
		return nil
	}

	integral := d.edgeIntegral(gray, width, height)
	regions := d.scanWindows(integral, width, height)
	return d.suppress(regions)
}

// edgeIntegral marks pixels whose left and right neighbours differ by at least
// EdgeThreshold and returns the summed-area table of that mask
func (d *PlateDetector) edgeIntegral(gray *image.NRGBA, width, height int) []int {
	threshold := int(d.config.EdgeThreshold * 255)
	stride := width + 1
	integral := make([]int, stride*(height+1))

	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		rowSum := 0
		for x := 0; x < width; x++ {
			if x > 0 && x < width-1 {
				diff := int(row[(x+1)*4]) - int(row[(x-1)*4])
				if diff < 0 {
					diff = -diff
				}
				if diff >= threshold {
					rowSum++
				}
			}
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}
	return integral
}

func (d *PlateDetector) scanWindows(integral []int, width, height int) []Region {
	stride := width + 1
	sum := func(x, y, w, h int) int {
		return integral[(y+h)*stride+x+w] - integral[y*stride+x+w] - integral[(y+h)*stride+x] + integral[y*stride+x]
	}

	var regions []Region
	for _, frac := range d.config.HeightFractions {
		wh := int(float64(height) * frac)
		if wh < 8 {
			continue // too small to hold characters
		}
		for _, ratio := range d.config.AspectRatios {
			ww := int(float64(wh) * ratio)
			if ww > width {
				continue
			}
			step := max(2, wh/4)
			for y := 0; y+wh <= height; y += step {
				for x := 0; x+ww <= width; x += step {
					density := float64(sum(x, y, ww, wh)) / float64(ww*wh)
					if density < d.config.MinDensity {
						continue
					}
					score := density
					if d.config.FullDensity > 0 {
						score = min(1, density/d.config.FullDensity)
					}
					regions = append(regions, Region{X: x, Y: y, Width: ww, Height: wh, Score: score})
				}
			}
		}
	}
	return regions
}

// suppress keeps the best region of every overlapping group
func (d *PlateDetector) suppress(regions []Region) []Region {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Score != regions[j].Score {
			return regions[i].Score > regions[j].Score
		}
		return regions[i].Area() > regions[j].Area()
	})

	var kept []Region
	for _, r := range regions {
		overlaps := false
		for _, k := range kept {
			if iou(r.Rect(), k.Rect()) > d.config.OverlapThreshold {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		kept = append(kept, r)
		if d.config.MaxCandidates > 0 && len(kept) >= d.config.MaxCandidates {
			break
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	return float64(ia) / float64(union)
}
