package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Editor  EditorConfig  `json:"editor"`
	Cropper CropperConfig `json:"cropper"`
	Cache   CacheConfig   `json:"cache"`
	Suggest SuggestConfig `json:"suggest"`
}

// EditorConfig holds configuration for split-line editing
type EditorConfig struct {
	FineStep      float64 `json:"fine_step"`
	CoarseStep    float64 `json:"coarse_step"`
	HitTolerance  float64 `json:"hit_tolerance"`
	KeepSelection bool    `json:"keep_selection"`
	DefaultRows   int     `json:"default_rows"`
	DefaultCols   int     `json:"default_cols"`
}

// CropperConfig holds configuration for batch splitting
type CropperConfig struct {
	Workers   int    `json:"workers"`
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	OutputDir string `json:"output_dir"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
}

// CacheConfig holds configuration for the decoded image cache
type CacheConfig struct {
	Size int `json:"size"`
}

// SuggestConfig holds configuration for automatic split-line suggestions
type SuggestConfig struct {
	Backend        string  `json:"backend"`
	URL            string  `json:"url"`
	LlamaCppURL    string  `json:"llamacpp_url"`
	Model          string  `json:"model"`
	SendSize       int     `json:"send_size"`
	SendQuality    int     `json:"send_quality"`
	GutterVariance float64 `json:"gutter_variance"`
	MinGutter      int     `json:"min_gutter"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			FineStep:     0.001,
			CoarseStep:   0.005,
			HitTolerance: 0.01,
			DefaultRows:  1,
			DefaultCols:  1,
		},
		Cropper: CropperConfig{
			Workers:   runtime.NumCPU(),
			Format:    "jpg",
			Quality:   95,
			OutputDir: "./output",
		},
		Cache: CacheConfig{
			Size: 8,
		},
		Suggest: SuggestConfig{
			Backend:        "none",
			URL:            "http://localhost:11434",
			LlamaCppURL:    "http://localhost:8080",
			Model:          "openbmb/minicpm-v4.5",
			SendSize:       1536,
			SendQuality:    85,
			GutterVariance: 12,
			MinGutter:      4,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep their defaults.
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

// ApplyEnv loads a .env file from the working directory, if present, and overrides
// fields from SPLITTER_* environment variables.
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	if v := env("SPLITTER_OUTPUT_DIR"); v != "" {
		c.Cropper.OutputDir = v
	}
	if v := env("SPLITTER_FORMAT"); v != "" {
		c.Cropper.Format = v
	}
	if err := envInt("SPLITTER_WORKERS", &c.Cropper.Workers); err != nil {
		return err
	}
	if err := envInt("SPLITTER_QUALITY", &c.Cropper.Quality); err != nil {
		return err
	}
	if err := envInt("SPLITTER_CACHE_SIZE", &c.Cache.Size); err != nil {
		return err
	}
	if v := env("SPLITTER_SUGGEST_BACKEND"); v != "" {
		c.Suggest.Backend = v
	}
	if v := firstNonEmpty(env("SPLITTER_OLLAMA_URL"), env("OLLAMA_HOST")); v != "" {
		c.Suggest.URL = withScheme(v)
	}
	if v := env("SPLITTER_LLAMACPP_URL"); v != "" {
		c.Suggest.LlamaCppURL = withScheme(v)
	}
	if v := env("SPLITTER_MODEL"); v != "" {
		c.Suggest.Model = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Editor.FineStep <= 0 || c.Editor.FineStep > 1 {
		return fmt.Errorf("editor.fine_step must be in (0,1]")
	}

	if c.Editor.CoarseStep <= 0 || c.Editor.CoarseStep > 1 {
		return fmt.Errorf("editor.coarse_step must be in (0,1]")
	}

	if c.Editor.HitTolerance <= 0 || c.Editor.HitTolerance > 0.5 {
		return fmt.Errorf("editor.hit_tolerance must be in (0,0.5]")
	}

	if c.Editor.DefaultRows < 1 || c.Editor.DefaultCols < 1 {
		return fmt.Errorf("editor.default_rows and editor.default_cols must be positive")
	}

	if c.Cropper.Workers < 1 {
		return fmt.Errorf("cropper.workers must be positive")
	}

	if c.Cropper.Quality < 1 || c.Cropper.Quality > 100 {
		return fmt.Errorf("cropper.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Cropper.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("cropper.format must be jpg, png or webp")
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be positive")
	}

	switch c.Suggest.Backend {
	case "none", "gutter", "ollama", "llamacpp":
	default:
		return fmt.Errorf("suggest.backend must be none, gutter, ollama or llamacpp")
	}

	if c.Suggest.MinGutter < 1 {
		return fmt.Errorf("suggest.min_gutter must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-splitter", "config.json")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, dst *int) error {
	raw := env(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// ServerURL returns the address of the configured model backend
func (s SuggestConfig) ServerURL() string {
	if s.Backend == "llamacpp" {
		return s.LlamaCppURL
	}
	return s.URL
}

// withScheme accepts host:port the way OLLAMA_HOST does and assumes http
func withScheme(v string) string {
	if strings.Contains(v, "://") {
		return v
	}
	return "http://" + v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
