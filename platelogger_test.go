package platelogger

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-logger/pkg/pipeline"
	"github.com/menta2k/plate-logger/pkg/source"
	"github.com/menta2k/plate-logger/pkg/storage"
	"github.com/menta2k/plate-logger/pkg/types"
)

// createTestImage creates a flat gray frame
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{64, 64, 64, 255})
		}
	}
	return img
}

type fixedDetector struct{}

func (fixedDetector) Predict(ctx context.Context, frame image.Image, threshold float64) ([]types.Detection, error) {
	return []types.Detection{{X1: 10, Y1: 10, X2: 50, Y2: 20, Score: 0.9}}, nil
}

type fixedRecognizer struct {
	text   string
	closed bool
}

func (r *fixedRecognizer) Recognize(ctx context.Context, region image.Image) (*types.Recognition, error) {
	return &types.Recognition{Text: r.text, Score: 0.95}, nil
}

func (r *fixedRecognizer) Close() error {
	r.closed = true
	return nil
}

func openStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	return store
}

func writeFrames(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if err := imaging.Save(createTestImage(80, 40), path); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewRequiresStore(t *testing.T) {
	opts := DefaultOptions()
	opts.Recognizer = &fixedRecognizer{}
	if _, err := New(opts); err == nil {
		t.Error("Expected error without a store")
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	opts := DefaultOptions()
	opts.Recognizer = &fixedRecognizer{}
	opts.Store = openStore(t)
	opts.Rules.Substitutions = map[rune]rune{'O': '-'}
	if _, err := New(opts); err == nil {
		t.Error("Expected error for invalid substitution")
	}
}

func TestProcessImageSequence(t *testing.T) {
	recognizer := &fixedRecognizer{text: "AB-12O"}

	var mu sync.Mutex
	var logs []string
	var rows []string

	opts := DefaultOptions()
	opts.Detector = fixedDetector{}
	opts.Recognizer = recognizer
	opts.Store = openStore(t)
	opts.EnsureSchema = true
	opts.Observers = []pipeline.Observer{pipeline.ObserverFuncs{
		Log: func(m string) {
			mu.Lock()
			logs = append(logs, m)
			mu.Unlock()
		},
		RowPersisted: func(start, end, plate string) {
			mu.Lock()
			rows = append(rows, plate)
			mu.Unlock()
		},
	}}

	pl, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := pl.Process(context.Background(), writeFrames(t, 3)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	persisted, err := pl.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(persisted) != 1 || persisted[0].Plate != "AB120" {
		t.Fatalf("Expected one AB120 row, got %+v", persisted)
	}
	if len(rows) != 1 || rows[0] != "AB120" {
		t.Errorf("Expected one observed row, got %v", rows)
	}
	if stats := pl.Driver().Stats(); stats.Frames != 3 {
		t.Errorf("Expected 3 frames, got %d", stats.Frames)
	}
	if logs[len(logs)-1] != "Processing completed." {
		t.Errorf("Expected completion log last, got %v", logs)
	}

	if err := pl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !recognizer.closed {
		t.Error("Expected recognizer to be closed")
	}
}

func TestProcessUnsupportedVideoWithoutDecoder(t *testing.T) {
	opts := DefaultOptions()
	opts.Detector = fixedDetector{}
	opts.Recognizer = &fixedRecognizer{text: "AB123"}
	opts.Store = openStore(t)
	pl, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer pl.Close()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not decoded"), 0644); err != nil {
		t.Fatal(err)
	}

	err = pl.Process(context.Background(), path)
	var serr *pipeline.SourceError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected SourceError, got %v", err)
	}
	if !errors.Is(err, source.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestProcessNoVideo(t *testing.T) {
	opts := DefaultOptions()
	opts.Recognizer = &fixedRecognizer{}
	opts.Store = openStore(t)
	pl, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer pl.Close()

	if err := pl.Process(context.Background(), ""); !errors.Is(err, pipeline.ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
}

func TestDefaultOptionsOpenerHandlesDirectories(t *testing.T) {
	src, err := DefaultOptions().Open(writeFrames(t, 2))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()
	if seq, ok := src.(*source.ImageSequence); !ok || seq.Len() != 2 {
		t.Errorf("Expected 2-frame image sequence, got %T", src)
	}
}

func TestGetVersion(t *testing.T) {
	if !strings.HasPrefix(GetVersion(), "1.") {
		t.Errorf("Unexpected version %s", GetVersion())
	}
}
