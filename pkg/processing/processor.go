package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/plate-logger/pkg/types"
)

// Label is a detection box with the text drawn above it
type Label struct {
	Box  types.Detection
	Text string
}

// Processor handles image operations on frames and plate regions
type Processor struct {
	// MinCropHeight upscales plate crops shorter than this before recognition, 0 disables
	MinCropHeight int
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{MinCropHeight: 48}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// CropRegion crops a detection out of a frame. The region is clamped to the
// frame bounds first; small crops are upscaled for the recognizer.
func (p *Processor) CropRegion(img image.Image, det types.Detection) (image.Image, error) {
	clamped, ok := det.Clamp(img.Bounds())
	if !ok {
		return nil, fmt.Errorf("empty crop rectangle %v", det.Rect())
	}

	cropped := imaging.Crop(img, clamped.Rect())

	if p.MinCropHeight > 0 && cropped.Bounds().Dy() < p.MinCropHeight {
		return imaging.Resize(cropped, 0, p.MinCropHeight, imaging.Lanczos), nil
	}
	return cropped, nil
}

// EncodeImage encodes an image for sending to a model
func (p *Processor) EncodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Fit downsizes an image so its longest side is at most maxDim
func (p *Processor) Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// EncodeForModel fits an image to maxDim and encodes it
func (p *Processor) EncodeForModel(img image.Image, format string, maxDim int, quality int) ([]byte, error) {
	return p.EncodeImage(p.Fit(img, maxDim), format, quality)
}

// PrepareImageForModel downsizes an image to maxDim and returns it base64 encoded
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	data, err := p.EncodeForModel(img, format, maxDim, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Annotate draws detection boxes and their labels on a copy of img
func (p *Processor) Annotate(img image.Image, labels []Label) image.Image {
	nrgba := imaging.Clone(img)
	if len(labels) == 0 {
		return nrgba
	}

	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	blue := color.NRGBA{0, 0, 255, 255}  // box
	green := color.NRGBA{0, 255, 0, 255} // text
	stroke := int(math.Max(2, 0.002*float64(minInt(w, h))))

	for _, l := range labels {
		box, ok := l.Box.Clamp(nrgba.Bounds())
		if !ok {
			continue
		}
		drawBox(nrgba, box.Rect(), blue, stroke)
		if l.Text != "" {
			drawText(nrgba, l.Text, box.X1, box.Y1-10, green)
		}
	}

	return nrgba
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

// drawText writes text with its baseline at (x, y), moved inside the image
// when the box touches the top edge
func drawText(img *image.NRGBA, text string, x, y int, c color.NRGBA) {
	face := basicfont.Face7x13
	if y < face.Ascent {
		y = face.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

// ToNRGBA converts any image to a zero-origin *image.NRGBA
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
