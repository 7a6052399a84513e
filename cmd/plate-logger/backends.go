package main

import (
	"context"
	"fmt"

	"github.com/menta2k/plate-logger/internal/config"
	"github.com/menta2k/plate-logger/pkg/client"
	"github.com/menta2k/plate-logger/pkg/gemini"
	"github.com/menta2k/plate-logger/pkg/llamacpp"
	"github.com/menta2k/plate-logger/pkg/ollama"
	"github.com/menta2k/plate-logger/pkg/tesseract"
	"github.com/menta2k/plate-logger/pkg/vision"
	"github.com/menta2k/plate-logger/pkg/yolo"
)

func newDetector(cfg config.DetectorConfig) (client.PlateDetector, error) {
	switch cfg.Backend {
	case "vision":
		return vision.New(), nil
	case "yolo":
		ycfg := yolo.DefaultConfig()
		ycfg.ModelPath = cfg.ModelPath
		if cfg.InputSize > 0 {
			ycfg.InputSize = cfg.InputSize
		}
		if cfg.NMSThreshold > 0 {
			ycfg.NMSThreshold = cfg.NMSThreshold
		}
		d, err := yolo.NewDetector(ycfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create YOLO detector: %w", err)
		}
		return d, nil
	case "ollama":
		c, err := ollama.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown detector backend: %s", cfg.Backend)
	}
}

func newRecognizer(ctx context.Context, cfg config.RecognizerConfig) (client.TextRecognizer, error) {
	switch cfg.Backend {
	case "tesseract":
		tcfg := tesseract.DefaultConfig()
		if cfg.Language != "" {
			tcfg.Language = cfg.Language
		}
		if cfg.Whitelist != "" {
			tcfg.Whitelist = cfg.Whitelist
		}
		r, err := tesseract.NewRecognizer(tcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tesseract recognizer: %w", err)
		}
		return r, nil
	case "ollama":
		c, err := ollama.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	case "gemini":
		r, err := gemini.NewRecognizer(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini recognizer: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown recognizer backend: %s", cfg.Backend)
	}
}
