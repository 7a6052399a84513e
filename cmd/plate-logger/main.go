package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	platelogger "github.com/menta2k/plate-logger"
	"github.com/menta2k/plate-logger/internal/config"
	"github.com/menta2k/plate-logger/internal/logging"
	"github.com/menta2k/plate-logger/internal/utils"
	"github.com/menta2k/plate-logger/pkg/observer"
	"github.com/menta2k/plate-logger/pkg/pipeline"
	"github.com/menta2k/plate-logger/pkg/source"
	"github.com/menta2k/plate-logger/pkg/storage"
	"github.com/menta2k/plate-logger/pkg/video"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plate-logger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, in, writeConfig string
	var detectorBackend, recognizerBackend, modelPath, url, model string
	var frameDir string
	var initDB, debug, version bool
	var recent int

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (JSON)")
	flag.StringVar(&in, "in", "", "input video (mp4/avi/mkv) or directory of frames")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective configuration to this path and exit")
	flag.BoolVar(&initDB, "init-db", false, "create the plates table before processing")
	flag.IntVar(&recent, "recent", 10, "show this many persisted rows before processing, 0 to skip")

	flag.StringVar(&detectorBackend, "backend-detector", "", "override detector backend: vision|yolo|ollama|llamacpp")
	flag.StringVar(&recognizerBackend, "backend-recognizer", "", "override recognizer backend: tesseract|ollama|llamacpp|gemini")
	flag.StringVar(&modelPath, "model-path", "", "override YOLO ONNX model path")
	flag.StringVar(&url, "url", "", "override model server URL for detector and recognizer")
	flag.StringVar(&model, "model", "", "override model name for detector and recognizer")

	flag.StringVar(&frameDir, "frames", "", "write annotated frames to this directory")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.BoolVar(&version, "version", false, "print version and exit")

	flag.Parse()

	if version {
		fmt.Println(platelogger.GetVersion())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if detectorBackend != "" {
		cfg.Detector.Backend = detectorBackend
	}
	if recognizerBackend != "" {
		cfg.Recognizer.Backend = recognizerBackend
	}
	if modelPath != "" {
		cfg.Detector.ModelPath = modelPath
	}
	if url != "" {
		cfg.Detector.URL, cfg.Recognizer.URL = url, url
	}
	if model != "" {
		cfg.Detector.Model, cfg.Recognizer.Model = model, model
	}
	if frameDir != "" {
		cfg.Output.FrameDir = frameDir
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", writeConfig)
		return nil
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}

	if in == "" && !initDB {
		return fmt.Errorf("usage: %s -in video.mp4|frames_dir [-config config.json] [-init-db] [-backend-detector vision|yolo|ollama|llamacpp] [-backend-recognizer tesseract|ollama|llamacpp|gemini]", filepath.Base(os.Args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return fmt.Errorf("database %s unreachable: %w", utils.RedactDSN(cfg.Storage.DSN), err)
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Str("dsn", utils.RedactDSN(cfg.Storage.DSN)).Msg("database connected")

	if in == "" {
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		logger.Info().Msg("schema ready")
		return nil
	}

	pl, err := build(ctx, cfg, store, initDB, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer func() {
		if err := pl.Close(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}()

	if recent > 0 {
		showRecent(ctx, pl, recent, logger)
	}

	err = pl.Process(ctx, in)
	stats := pl.Driver().Stats()
	logger.Info().
		Uint64("frames", stats.Frames).
		Uint64("plates", stats.Plates).
		Uint64("rows", stats.RowsPersisted).
		Uint64("persist_failures", stats.PersistFailures).
		Msg("summary")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if !utils.FileExists(path) {
		if isFlagSet("config") {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func build(ctx context.Context, cfg *config.Config, store *storage.SQLStore, initDB bool, logger zerolog.Logger) (*platelogger.PlateLogger, error) {
	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	detector, err := newDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	recognizer, err := newRecognizer(ctx, cfg.Recognizer)
	if err != nil {
		return nil, err
	}

	observers := []pipeline.Observer{observer.NewLog(logger)}
	if cfg.Output.FrameDir != "" {
		dump, err := observer.NewFrameDump(cfg.Output.FrameDir, cfg.Output.FrameEvery, cfg.Output.FrameFormat, cfg.Output.Quality, logger)
		if err != nil {
			return nil, err
		}
		observers = append(observers, dump)
	} else {
		pcfg.Annotate = false
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := observer.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			return nil, err
		}
		observers = append(observers, tg)
	}

	return platelogger.New(platelogger.Options{
		Pipeline:     pcfg,
		Rules:        rules,
		Detector:     detector,
		Recognizer:   recognizer,
		Open:         source.Chain(video.Open),
		Store:        store,
		EnsureSchema: initDB,
		Observers:    observers,
		Logger:       &logger,
	})
}

func showRecent(ctx context.Context, pl *platelogger.PlateLogger, limit int, logger zerolog.Logger) {
	rows, err := pl.Recent(ctx, limit)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read persisted rows")
		return
	}
	for _, r := range rows {
		logger.Info().
			Int64("id", r.ID).
			Str("start_time", r.StartTime).
			Str("end_time", r.EndTime).
			Str("plate", r.Plate).
			Msg("persisted")
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
