package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/menta2k/plate-logger/pkg/normalize"
	"github.com/menta2k/plate-logger/pkg/pipeline"
)

// Config holds the application configuration
type Config struct {
	Pipeline   PipelineConfig   `json:"pipeline"`
	Normalizer NormalizerConfig `json:"normalizer"`
	Detector   DetectorConfig   `json:"detector"`
	Recognizer RecognizerConfig `json:"recognizer"`
	Storage    StorageConfig    `json:"storage"`
	Output     OutputConfig     `json:"output"`
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
}

// PipelineConfig holds the windowing and threshold policy
type PipelineConfig struct {
	WindowSeconds        float64 `json:"window_seconds"`
	DetectionThreshold   float64 `json:"detection_threshold"`
	RecognitionThreshold int     `json:"recognition_threshold"`
	RetryBacklog         int     `json:"retry_backlog"`
}

// NormalizerConfig holds plate cleanup rules
type NormalizerConfig struct {
	Denylist      []string          `json:"denylist"`
	Substitutions map[string]string `json:"substitutions"`
}

// DetectorConfig selects and configures the plate detector
type DetectorConfig struct {
	Backend      string  `json:"backend"` // yolo, vision, ollama, llamacpp
	ModelPath    string  `json:"model_path,omitempty"`
	URL          string  `json:"url,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputSize    int     `json:"input_size,omitempty"`
	NMSThreshold float64 `json:"nms_threshold,omitempty"`
}

// RecognizerConfig selects and configures the text recognizer
type RecognizerConfig struct {
	Backend   string `json:"backend"` // tesseract, ollama, llamacpp, gemini
	URL       string `json:"url,omitempty"`
	Model     string `json:"model,omitempty"`
	Language  string `json:"language,omitempty"`
	Whitelist string `json:"whitelist,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// APIKey is resolved from APIKeyEnv and never written to disk
	APIKey string `json:"-"`
}

// StorageConfig holds the database connection
type StorageConfig struct {
	Driver string `json:"driver"` // sqlite or postgres
	DSN    string `json:"dsn"`
}

// OutputConfig holds annotated frame dump settings
type OutputConfig struct {
	FrameDir    string `json:"frame_dir"`
	FrameEvery  int    `json:"frame_every"`
	FrameFormat string `json:"frame_format"`
	Quality     int    `json:"quality"`
}

// TelegramConfig holds the optional row notifier
type TelegramConfig struct {
	TokenEnv string `json:"token_env"`
	ChatID   int64  `json:"chat_id"`

	Token string `json:"-"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

var (
	detectorBackends   = []string{"yolo", "vision", "ollama", "llamacpp"}
	recognizerBackends = []string{"tesseract", "ollama", "llamacpp", "gemini"}
	frameFormats       = []string{"jpg", "jpeg", "png", "webp"}
)

// Default returns a configuration with default values
func Default() *Config {
	p := pipeline.DefaultConfig()
	rules := normalize.DefaultRules()

	subs := make(map[string]string, len(rules.Substitutions))
	for k, v := range rules.Substitutions {
		subs[string(k)] = string(v)
	}

	return &Config{
		Pipeline: PipelineConfig{
			WindowSeconds:        p.WindowLength.Seconds(),
			DetectionThreshold:   p.DetectionThreshold,
			RecognitionThreshold: p.RecognitionThreshold,
			RetryBacklog:         p.RetryBacklog,
		},
		Normalizer: NormalizerConfig{
			Denylist:      rules.Denylist,
			Substitutions: subs,
		},
		Detector: DetectorConfig{
			Backend:      "vision",
			InputSize:    640,
			NMSThreshold: 0.45,
		},
		Recognizer: RecognizerConfig{
			Backend:   "ollama",
			Language:  "eng",
			Whitelist: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "file:plates.db?_pragma=busy_timeout(5000)",
		},
		Output: OutputConfig{
			FrameEvery:  25,
			FrameFormat: "jpg",
			Quality:     85,
		},
		Telegram: TelegramConfig{
			TokenEnv: "TELEGRAM_BOT_TOKEN",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv resolves secrets and environment overrides. DATABASE_URL replaces
// the configured DSN and selects postgres for postgres URLs.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if dsn := strings.TrimSpace(getenv("DATABASE_URL")); dsn != "" {
		c.Storage.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			c.Storage.Driver = "postgres"
		}
	}
	if c.Recognizer.APIKeyEnv != "" {
		c.Recognizer.APIKey = strings.TrimSpace(getenv(c.Recognizer.APIKeyEnv))
	}
	if c.Telegram.TokenEnv != "" {
		c.Telegram.Token = strings.TrimSpace(getenv(c.Telegram.TokenEnv))
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.PipelineConfig(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if _, err := c.Rules(); err != nil {
		return fmt.Errorf("normalizer: %w", err)
	}

	if !oneOf(c.Detector.Backend, detectorBackends) {
		return fmt.Errorf("detector.backend must be one of %s", strings.Join(detectorBackends, ", "))
	}
	if c.Detector.Backend == "yolo" && c.Detector.ModelPath == "" {
		return fmt.Errorf("detector.model_path is required for the yolo backend")
	}

	if !oneOf(c.Recognizer.Backend, recognizerBackends) {
		return fmt.Errorf("recognizer.backend must be one of %s", strings.Join(recognizerBackends, ", "))
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver must be sqlite or postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn cannot be empty")
	}

	if c.Output.FrameDir != "" {
		if c.Output.FrameEvery < 1 {
			return fmt.Errorf("output.frame_every must be positive")
		}
		if !oneOf(strings.ToLower(c.Output.FrameFormat), frameFormats) {
			return fmt.Errorf("output.frame_format must be one of %s", strings.Join(frameFormats, ", "))
		}
		if c.Output.Quality < 1 || c.Output.Quality > 100 {
			return fmt.Errorf("output.quality must be between 1 and 100")
		}
	}

	return nil
}

// PipelineConfig converts the pipeline section
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	p := pipeline.DefaultConfig()
	p.WindowLength = time.Duration(c.Pipeline.WindowSeconds * float64(time.Second))
	p.DetectionThreshold = c.Pipeline.DetectionThreshold
	p.RecognitionThreshold = c.Pipeline.RecognitionThreshold
	p.RetryBacklog = c.Pipeline.RetryBacklog
	if err := p.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return p, nil
}

// Rules converts the normalizer section. Substitution keys and values must be
// single characters.
func (c *Config) Rules() (normalize.Rules, error) {
	rules := normalize.Rules{
		Denylist:      c.Normalizer.Denylist,
		Substitutions: make(map[rune]rune, len(c.Normalizer.Substitutions)),
	}
	for k, v := range c.Normalizer.Substitutions {
		if utf8.RuneCountInString(k) != 1 || utf8.RuneCountInString(v) != 1 {
			return normalize.Rules{}, fmt.Errorf("substitution %q -> %q must map one character to one character", k, v)
		}
		from, _ := utf8.DecodeRuneInString(k)
		to, _ := utf8.DecodeRuneInString(v)
		rules.Substitutions[from] = to
	}
	if err := rules.Validate(); err != nil {
		return normalize.Rules{}, err
	}
	return rules, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "plate-logger", "config.json")
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
