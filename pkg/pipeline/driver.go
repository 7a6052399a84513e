// Package pipeline drives frames through detection, recognition,
// normalization and windowed persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/plate-logger/pkg/client"
	"github.com/menta2k/plate-logger/pkg/detection"
	"github.com/menta2k/plate-logger/pkg/normalize"
	"github.com/menta2k/plate-logger/pkg/processing"
	"github.com/menta2k/plate-logger/pkg/recognition"
	"github.com/menta2k/plate-logger/pkg/source"
	"github.com/menta2k/plate-logger/pkg/storage"
	"github.com/menta2k/plate-logger/pkg/types"
	"github.com/menta2k/plate-logger/pkg/window"
)

// State is the lifecycle state of a Driver
type State int32

const (
	Idle State = iota
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the pipeline policy
type Config struct {
	// WindowLength is the dedup and flush period
	WindowLength time.Duration
	// DetectionThreshold is the minimum detector score, inclusive
	DetectionThreshold float64
	// RecognitionThreshold is the confidence percentage a reading must exceed
	RecognitionThreshold int
	// RetryBacklog is how many failed windows are kept for retry. 0 drops them.
	RetryBacklog int
	// Annotate draws boxes and labels on rendered frames
	Annotate bool
}

// DefaultConfig returns the standard pipeline policy
func DefaultConfig() Config {
	return Config{
		WindowLength:         window.DefaultLength,
		DetectionThreshold:   detection.DefaultThreshold,
		RecognitionThreshold: recognition.DefaultMinPercent,
		RetryBacklog:         0,
		Annotate:             true,
	}
}

// Validate checks the policy values
func (c Config) Validate() error {
	if c.WindowLength <= 0 {
		return fmt.Errorf("window length must be positive, got %s", c.WindowLength)
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("detection threshold must be between 0 and 1, got %v", c.DetectionThreshold)
	}
	if c.RecognitionThreshold < 0 || c.RecognitionThreshold > 100 {
		return fmt.Errorf("recognition threshold must be between 0 and 100, got %d", c.RecognitionThreshold)
	}
	if c.RetryBacklog < 0 {
		return fmt.Errorf("retry backlog must not be negative, got %d", c.RetryBacklog)
	}
	return nil
}

// Dependencies are the collaborators a Driver is built from. The caller owns
// their lifecycle.
type Dependencies struct {
	Open       source.Opener
	Detector   client.PlateDetector
	Recognizer client.TextRecognizer
	Sink       storage.Sink
	Normalizer *normalize.Normalizer
	Observer   Observer
	Logger     *zerolog.Logger
	Clock      func() time.Time
}

// Driver runs one video at a time through the pipeline
type Driver struct {
	config     Config
	open       source.Opener
	detector   *detection.Detector
	extractor  *recognition.Extractor
	normalizer *normalize.Normalizer
	sink       storage.Sink
	observer   Observer
	logger     zerolog.Logger
	now        func() time.Time
	processor  *processing.Processor

	mu    sync.Mutex
	state State
	path  string
	stop  chan struct{}

	// backlog is only touched by the running loop
	backlog []types.Window
	stats   Stats
}

// New creates a Driver
func New(config Config, deps Dependencies) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Open == nil:
		return nil, errors.New("frame source opener is required")
	case deps.Detector == nil:
		return nil, errors.New("plate detector is required")
	case deps.Recognizer == nil:
		return nil, errors.New("text recognizer is required")
	case deps.Sink == nil:
		return nil, errors.New("persistence sink is required")
	}

	detector, err := detection.NewDetectorWithThreshold(deps.Detector, config.DetectionThreshold)
	if err != nil {
		return nil, err
	}
	extractor, err := recognition.NewExtractorWithThreshold(deps.Recognizer, config.RecognitionThreshold)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		config:     config,
		open:       deps.Open,
		detector:   detector,
		extractor:  extractor,
		normalizer: deps.Normalizer,
		sink:       deps.Sink,
		observer:   deps.Observer,
		now:        deps.Clock,
		processor:  processing.NewProcessor(),
	}
	if d.normalizer == nil {
		d.normalizer = normalize.New()
	}
	if d.observer == nil {
		d.observer = ObserverFuncs{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	if deps.Logger != nil {
		d.logger = deps.Logger.With().Str("component", "pipeline").Logger()
	} else {
		d.logger = zerolog.Nop()
	}
	return d, nil
}

// State returns the current lifecycle state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns the processing counters
func (d *Driver) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// Source returns the bound video path
func (d *Driver) Source() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Upload binds a video path for the next run. An empty path unbinds it.
func (d *Driver) Upload(path string) error {
	d.mu.Lock()
	if d.state != Idle {
		d.mu.Unlock()
		return ErrNotIdle
	}
	d.path = path
	d.mu.Unlock()

	if path == "" {
		d.observer.OnLog("No video selected.")
		return ErrNoSource
	}
	d.logger.Info().Str("path", path).Msg("video uploaded")
	d.observer.OnLog("Video uploaded: " + path)
	return nil
}

// Stop asks a running pipeline to finish after the current frame. The partial
// window is flushed before Run returns.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Running && d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

// Run processes the uploaded video until it ends, Stop is called or ctx is
// cancelled. Only a *SourceError is returned once processing has started.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Idle {
		d.mu.Unlock()
		return ErrNotIdle
	}
	path := d.path
	if path == "" {
		d.mu.Unlock()
		d.observer.OnLog("No video selected.")
		return ErrNoSource
	}
	stop := make(chan struct{})
	d.state, d.stop = Running, stop
	d.mu.Unlock()

	defer d.setState(Idle)

	d.observer.OnLog("Starting processing...")
	d.logger.Info().Str("path", path).Msg("starting processing")

	src, err := d.open(path)
	if err != nil {
		serr := &SourceError{Path: path, Err: err}
		d.logger.Error().Err(err).Str("path", path).Msg("failed to open source")
		d.observer.OnLog("Error: " + serr.Error())
		return serr
	}

	agg := window.NewWithLength(d.config.WindowLength, d.now())
	runErr := d.loop(ctx, src, agg, stop)

	d.setState(Draining)
	// the final partial window is kept even when ctx was cancelled
	if agg.Len() > 0 || len(d.backlog) > 0 {
		d.flush(context.WithoutCancel(ctx), agg)
	}

	if err := src.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("failed to close source")
	}

	if runErr != nil {
		d.observer.OnLog("Error: " + runErr.Error())
	}
	stats := d.stats.Snapshot()
	d.logger.Info().
		Uint64("frames", stats.Frames).
		Uint64("flushes", stats.Flushes).
		Uint64("rows", stats.RowsPersisted).
		Msg("processing completed")
	d.observer.OnLog("Processing completed.")
	return runErr
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	if s == Idle {
		d.stop = nil
	}
	d.mu.Unlock()
}

func (d *Driver) loop(ctx context.Context, src source.FrameSource, agg *window.Aggregator, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			d.logger.Info().Msg("stop requested")
			return nil
		case <-ctx.Done():
			d.logger.Info().Err(ctx.Err()).Msg("context done")
			return nil
		default:
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error().Err(err).Msg("failed to read frame")
			return &SourceError{Path: d.Source(), Err: err}
		}

		d.processFrame(ctx, frame, agg)

		if now := d.now(); agg.ShouldFlush(now) {
			d.flushAt(ctx, agg, now)
		}
	}
}

// processFrame runs detection and recognition on one frame and feeds the
// accepted plates to the window
func (d *Driver) processFrame(ctx context.Context, frame types.Frame, agg *window.Aggregator) {
	d.stats.frames.Add(1)
	log := d.logger.With().Uint64("seq", frame.Seq).Str("trace_id", frame.TraceID).Logger()

	dets, err := d.detector.Detect(ctx, frame.Image)
	if err != nil {
		ierr := &InferenceError{Stage: "detection", Seq: frame.Seq, Err: err}
		d.stats.inferenceErrors.Add(1)
		log.Warn().Err(err).Msg("detection failed, frame skipped")
		d.observer.OnLog("Warning: " + ierr.Error())
		dets = nil
	}
	d.stats.detections.Add(uint64(len(dets)))

	labels := make([]processing.Label, 0, len(dets))
	for _, det := range dets {
		label := processing.Label{Box: det}

		rec, err := d.extractor.Extract(ctx, frame.Image, det)
		if err != nil {
			ierr := &InferenceError{Stage: "recognition", Seq: frame.Seq, Err: err}
			d.stats.inferenceErrors.Add(1)
			log.Warn().Err(err).Msg("recognition failed, region skipped")
			d.observer.OnLog("Warning: " + ierr.Error())
			labels = append(labels, label)
			continue
		}
		if rec == nil {
			d.stats.rejected.Add(1)
			labels = append(labels, label)
			continue
		}
		d.stats.accepted.Add(1)

		plate := d.normalizer.Normalize(rec.Text)
		if plate != "" {
			label.Text = plate
			if agg.Observe(plate) {
				d.stats.plates.Add(1)
				log.Debug().Str("plate", plate).Int("confidence", rec.Percent()).Msg("plate observed")
			}
		}
		labels = append(labels, label)
	}

	d.render(frame.Image, labels)
}

func (d *Driver) render(img image.Image, labels []processing.Label) {
	if img == nil {
		return
	}
	if d.config.Annotate {
		img = d.processor.Annotate(img, labels)
	}
	d.observer.OnFrameRendered(img)
}

func (d *Driver) flush(ctx context.Context, agg *window.Aggregator) {
	d.flushAt(ctx, agg, d.now())
}

// flushAt closes the current window and persists it together with any
// backlog. The window advances whether or not persistence succeeds.
func (d *Driver) flushAt(ctx context.Context, agg *window.Aggregator, now time.Time) {
	w := agg.Flush(now)
	d.stats.flushes.Add(1)
	d.logger.Debug().Str("window_id", w.ID).Int("plates", len(w.Plates)).Msg("window flushed")

	if !d.retryBacklog(ctx) {
		d.enqueue(w)
		return
	}
	if err := d.persist(ctx, w); err != nil {
		d.enqueue(w)
	}
}

// retryBacklog persists queued windows oldest first. It reports whether the
// backlog is empty afterwards.
func (d *Driver) retryBacklog(ctx context.Context) bool {
	for len(d.backlog) > 0 {
		w := d.backlog[0]
		d.stats.retried.Add(1)
		if err := d.persist(ctx, w); err != nil {
			return false
		}
		d.backlog = d.backlog[1:]
	}
	return true
}

func (d *Driver) enqueue(w types.Window) {
	if d.config.RetryBacklog <= 0 || len(w.Plates) == 0 {
		return
	}
	d.backlog = append(d.backlog, w)
	if over := len(d.backlog) - d.config.RetryBacklog; over > 0 {
		for _, old := range d.backlog[:over] {
			d.stats.dropped.Add(1)
			d.logger.Warn().Str("window_id", old.ID).Int("plates", len(old.Plates)).Msg("retry backlog full, window dropped")
			d.observer.OnLog(fmt.Sprintf("Dropped window %s - %s after failed retries",
				old.Start.Format(types.TimeLayout), old.End.Format(types.TimeLayout)))
		}
		d.backlog = append([]types.Window(nil), d.backlog[over:]...)
	}
}

func (d *Driver) persist(ctx context.Context, w types.Window) error {
	n, err := d.sink.Persist(ctx, w)
	if err != nil {
		perr := &PersistError{Window: w, Err: err}
		d.stats.persistFailures.Add(1)
		d.logger.Error().Err(err).Str("window_id", w.ID).Strs("plates", w.Plates).Msg("persist failed")
		d.observer.OnLog("Database Error: " + perr.Error())
		return perr
	}

	d.stats.rowsPersisted.Add(uint64(n))
	for _, r := range w.Records() {
		d.observer.OnRowPersisted(r.StartTime, r.EndTime, r.Plate)
	}
	d.logger.Info().Str("window_id", w.ID).Int("rows", n).Msg("window persisted")
	d.observer.OnLog(fmt.Sprintf("Data saved: %v", w.Plates))
	return nil
}
