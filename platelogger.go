// Package platelogger reads license plates from stored video and logs the
// distinct plates seen in each time window to a SQL table.
//
// Basic usage:
//
//	store, err := storage.Open("sqlite", "file:plates.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	recognizer, err := ollama.NewClient("http://localhost:11434", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	opts := platelogger.DefaultOptions()
//	opts.Recognizer = recognizer
//	opts.Open = source.Chain(video.Open)
//	opts.Store = store
//
//	pl, err := platelogger.New(opts)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pl.Close()
//
//	if err := pl.Process(ctx, "traffic.mp4"); err != nil {
//		log.Fatal(err)
//	}
//
// The package is a thin composition of the pipeline components:
//
//  1. Source (pkg/source, pkg/video): frame producers
//  2. Detection and recognition (pkg/detection, pkg/recognition) over
//     pluggable backends (pkg/vision, pkg/yolo, pkg/ollama, pkg/llamacpp,
//     pkg/tesseract, pkg/gemini)
//  3. Normalization and windowing (pkg/normalize, pkg/window)
//  4. Persistence (pkg/storage) and presentation (pkg/observer)
package platelogger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/menta2k/plate-logger/pkg/client"
	"github.com/menta2k/plate-logger/pkg/normalize"
	"github.com/menta2k/plate-logger/pkg/pipeline"
	"github.com/menta2k/plate-logger/pkg/source"
	"github.com/menta2k/plate-logger/pkg/storage"
	"github.com/menta2k/plate-logger/pkg/vision"
)

// Version of the plate logger
const Version = "1.0.0"

// Options configures a PlateLogger
type Options struct {
	Pipeline pipeline.Config
	Rules    normalize.Rules

	Detector   client.PlateDetector
	Recognizer client.TextRecognizer
	// Open produces frame sources. It defaults to image sequences only.
	Open  source.Opener
	Store *storage.SQLStore
	// EnsureSchema creates the plates table on New
	EnsureSchema bool

	Observers []pipeline.Observer
	Logger    *zerolog.Logger
}

// DefaultOptions returns options with the default policy and the built-in
// edge density detector. Recognizer and Store must still be set.
func DefaultOptions() Options {
	return Options{
		Pipeline: pipeline.DefaultConfig(),
		Rules:    normalize.DefaultRules(),
		Detector: vision.New(),
		Open:     source.Chain(nil),
	}
}

// PlateLogger owns a pipeline driver together with its store and backends
type PlateLogger struct {
	driver  *pipeline.Driver
	store   *storage.SQLStore
	closers []io.Closer
}

// New composes a PlateLogger. Backends and the store that implement
// io.Closer are closed by Close.
func New(opts Options) (*PlateLogger, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Open == nil {
		opts.Open = source.Chain(nil)
	}

	normalizer, err := normalize.NewWithRules(opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid normalizer rules: %w", err)
	}

	if opts.EnsureSchema {
		if err := opts.Store.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
	}

	driver, err := pipeline.New(opts.Pipeline, pipeline.Dependencies{
		Open:       opts.Open,
		Detector:   opts.Detector,
		Recognizer: opts.Recognizer,
		Sink:       opts.Store,
		Normalizer: normalizer,
		Observer:   pipeline.Multi(opts.Observers...),
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	pl := &PlateLogger{driver: driver, store: opts.Store}
	for _, v := range []any{opts.Detector, opts.Recognizer} {
		if c, ok := v.(io.Closer); ok {
			pl.closers = append(pl.closers, c)
		}
	}
	for _, o := range opts.Observers {
		if c, ok := o.(io.Closer); ok {
			pl.closers = append(pl.closers, c)
		}
	}
	return pl, nil
}

// Driver returns the underlying pipeline driver
func (p *PlateLogger) Driver() *pipeline.Driver {
	return p.driver
}

// Process uploads path and runs the pipeline until the source ends, Stop is
// called or ctx is done
func (p *PlateLogger) Process(ctx context.Context, path string) error {
	if err := p.driver.Upload(path); err != nil {
		return err
	}
	return p.driver.Run(ctx)
}

// Stop asks a running Process to finish its current window and return
func (p *PlateLogger) Stop() {
	p.driver.Stop()
}

// Recent returns the newest persisted rows
func (p *PlateLogger) Recent(ctx context.Context, limit int) ([]storage.Row, error) {
	return p.store.Recent(ctx, limit)
}

// Close releases backends, observers and the store
func (p *PlateLogger) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
