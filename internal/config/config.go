// Package config loads omniquery settings from defaults, an optional YAML
// file and OMNIQUERY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/perbu/omniquery/internal/logging"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "OMNIQUERY_"

const maxConfigFileSize = 1024 * 1024

// Config is the full application configuration.
type Config struct {
	OpenAI    OpenAIConfig    `koanf:"openai"`
	CLIP      CLIPConfig      `koanf:"clip"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	OCR       OCRConfig       `koanf:"ocr"`
	Logging   logging.Config  `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// OpenAIConfig configures text embeddings and answer generation.
type OpenAIConfig struct {
	APIKey         string  `koanf:"api_key"`
	BaseURL        string  `koanf:"base_url"`
	EmbeddingModel string  `koanf:"embedding_model"`
	ChatModel      string  `koanf:"chat_model"`
	Temperature    float64 `koanf:"temperature"`
	MaxTokens      int     `koanf:"max_tokens"`
}

// CLIPConfig points at a CLIP inference server. Image retrieval is off
// when URL is empty.
type CLIPConfig struct {
	URL   string `koanf:"url"`
	Model string `koanf:"model"`

	// Dimension is the width of the model's embedding space. It sizes the
	// image index before any image has been embedded.
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
}

// RetrievalConfig tunes the search step.
type RetrievalConfig struct {
	TopK        int     `koanf:"top_k"`
	RRFK        float64 `koanf:"rrf_k"`
	FuseQueries bool    `koanf:"fuse_queries"`
}

// OCRConfig controls text extraction from retrieved images.
type OCRConfig struct {
	Enabled bool   `koanf:"enabled"`
	Command string `koanf:"command"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o",
			Temperature:    0.7,
		},
		CLIP: CLIPConfig{
			Model:     "openai/clip-vit-base-patch32",
			Dimension: 512,
			Timeout:   60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
			RRFK: 60,
		},
		OCR: OCRConfig{
			Command: "tesseract",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration. A missing file at path is not an error; an
// empty path skips the file entirely. A .env file in the working
// directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps OMNIQUERY_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %v", c.Retrieval.RRFK)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai.temperature must be within [0, 2], got %v", c.OpenAI.Temperature)
	}
	if c.CLIP.URL != "" && c.CLIP.Timeout <= 0 {
		return fmt.Errorf("clip.timeout must be positive, got %s", c.CLIP.Timeout)
	}
	if c.CLIP.URL != "" && c.CLIP.Dimension <= 0 {
		return fmt.Errorf("clip.dimension must be positive, got %d", c.CLIP.Dimension)
	}
	if c.OCR.Enabled && c.OCR.Command == "" {
		return errors.New("ocr.command is required when ocr is enabled")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
