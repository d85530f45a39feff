package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nijaru/interview-feedback/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server settings
	ServerPort   string        `yaml:"server_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Debug        bool          `yaml:"debug"`

	// Application paths
	TempDir string `yaml:"temp_dir"`

	Version         string        `yaml:"version"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Provider used when a request does not name one
	DefaultProvider string `yaml:"default_provider"`

	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Upload    UploadConfig    `yaml:"upload"`
	Frames    FramesConfig    `yaml:"frames"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Pricing   PricingConfig   `yaml:"pricing"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

type UploadConfig struct {
	MaxFileSize  int64    `yaml:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types"`
	// In-memory part of multipart parsing; the rest spills to disk.
	MaxMemory int64 `yaml:"max_memory"`
}

type FramesConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	MaxFrames   int    `yaml:"max_frames"`
	FPS         int    `yaml:"fps"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	ImageDetail string        `yaml:"image_detail"`
	Timeout     time.Duration `yaml:"timeout"`
	// Concurrent frame encoders per request
	EncodeWorkers int `yaml:"encode_workers"`
}

type GeminiConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxOutputTokens   int           `yaml:"max_output_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	DeleteTimeout     time.Duration `yaml:"delete_timeout"`
	// Estimated input tokens per second of uploaded video
	VideoTokensPerSecond float64 `yaml:"video_tokens_per_second"`
}

// Price holds per-1K-token prices in USD.
type Price struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type PricingConfig struct {
	OpenAI Price `yaml:"openai"`
	Gemini Price `yaml:"gemini"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:      "8080",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     60 * time.Second,
		TempDir:         "/tmp/interview-feedback",
		Version:         "1.0.0",
		ShutdownTimeout: 30 * time.Second,
		DefaultProvider: "openai",

		Log: LogConfig{
			Level:      "info",
			Dir:        "/var/log/interview-feedback",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},

		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         86400,
		},

		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			BurstSize:         5,
		},

		Upload: UploadConfig{
			MaxFileSize:  100 * 1024 * 1024,
			AllowedTypes: []string{"video/mp4", "video/avi", "video/mov", "video/quicktime"},
			MaxMemory:    32 * 1024 * 1024,
		},

		Frames: FramesConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			MaxFrames:   30,
			FPS:         1,
			Width:       512,
			Height:      512,
		},

		OpenAI: OpenAIConfig{
			BaseURL:       "https://api.openai.com",
			Model:         "gpt-4o",
			MaxTokens:     1500,
			Temperature:   0.3,
			ImageDetail:   "high",
			Timeout:       3 * time.Minute,
			EncodeWorkers: 4,
		},

		Gemini: GeminiConfig{
			BaseURL:              "https://generativelanguage.googleapis.com",
			Model:                "gemini-1.5-pro",
			Temperature:          0.3,
			MaxOutputTokens:      2048,
			Timeout:              3 * time.Minute,
			PollInterval:         2 * time.Second,
			ProcessingTimeout:    5 * time.Minute,
			DeleteTimeout:        30 * time.Second,
			VideoTokensPerSecond: 258,
		},

		Pricing: PricingConfig{
			OpenAI: Price{InputPer1K: 0.005, OutputPer1K: 0.015},
			Gemini: Price{InputPer1K: 0.00125, OutputPer1K: 0.00375},
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.ReadTimeout = getEnvAsDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)
	c.TempDir = getEnv("TEMP_DIR", c.TempDir)
	c.Version = getEnv("VERSION", c.Version)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.DefaultProvider = getEnv("DEFAULT_PROVIDER", c.DefaultProvider)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)

	c.CORS.Enabled = getEnvAsBool("CORS_ENABLED", c.CORS.Enabled)
	c.CORS.AllowedOrigins = getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getEnvAsStringSlice("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getEnvAsStringSlice("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
	c.CORS.ExposedHeaders = getEnvAsStringSlice("CORS_EXPOSED_HEADERS", c.CORS.ExposedHeaders)
	c.CORS.AllowCredentials = getEnvAsBool("CORS_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)
	c.CORS.MaxAge = getEnvAsInt("CORS_MAX_AGE", c.CORS.MaxAge)

	c.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMinute = getEnvAsInt("RATE_LIMIT_RPM", c.RateLimit.RequestsPerMinute)
	c.RateLimit.BurstSize = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.BurstSize)

	c.Upload.MaxFileSize = getEnvAsInt64("UPLOAD_MAX_FILE_SIZE", c.Upload.MaxFileSize)
	c.Upload.AllowedTypes = getEnvAsStringSlice("UPLOAD_ALLOWED_TYPES", c.Upload.AllowedTypes)

	c.Frames.FFmpegPath = getEnv("FFMPEG_PATH", c.Frames.FFmpegPath)
	c.Frames.FFprobePath = getEnv("FFPROBE_PATH", c.Frames.FFprobePath)
	c.Frames.MaxFrames = getEnvAsInt("FRAMES_MAX", c.Frames.MaxFrames)
	c.Frames.FPS = getEnvAsInt("FRAMES_FPS", c.Frames.FPS)
	c.Frames.Width = getEnvAsInt("FRAMES_WIDTH", c.Frames.Width)
	c.Frames.Height = getEnvAsInt("FRAMES_HEIGHT", c.Frames.Height)

	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = getEnv("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.OpenAI.Timeout)

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.Model = getEnv("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.Timeout = getEnvAsDuration("GEMINI_TIMEOUT", c.Gemini.Timeout)
	c.Gemini.PollInterval = getEnvAsDuration("GEMINI_POLL_INTERVAL", c.Gemini.PollInterval)
	c.Gemini.ProcessingTimeout = getEnvAsDuration("GEMINI_PROCESSING_TIMEOUT", c.Gemini.ProcessingTimeout)
	c.Gemini.DeleteTimeout = getEnvAsDuration("GEMINI_DELETE_TIMEOUT", c.Gemini.DeleteTimeout)
	c.Gemini.VideoTokensPerSecond = getEnvAsFloat("GEMINI_VIDEO_TOKENS_PER_SECOND", c.Gemini.VideoTokensPerSecond)
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}

	if err := validateTimeouts(c); err != nil {
		return err
	}

	if err := validateServices(c); err != nil {
		return err
	}

	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.Log.Dir, "log directory"},
		{c.TempDir, "temp directory"},
	}

	for _, p := range paths {
		if p.path == "" {
			return errors.Errorf("%s is required", p.name)
		}
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", p.name)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	checks := []struct {
		value time.Duration
		name  string
	}{
		{c.ReadTimeout, "read timeout"},
		{c.WriteTimeout, "write timeout"},
		{c.ShutdownTimeout, "shutdown timeout"},
		{c.Gemini.PollInterval, "gemini poll interval"},
		{c.Gemini.ProcessingTimeout, "gemini processing timeout"},
	}

	for _, check := range checks {
		if check.value <= 0 {
			return errors.Errorf("%s must be positive", check.name)
		}
	}

	return nil
}

func validateServices(c *Config) error {
	provider, ok := models.ParseProvider(c.DefaultProvider, "")
	if !ok {
		return errors.Errorf("unsupported default provider %q", c.DefaultProvider)
	}
	c.DefaultProvider = provider.String()
	if c.Upload.MaxFileSize <= 0 {
		return errors.New("max upload size must be positive")
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return errors.New("at least one allowed video type is required")
	}
	if c.Frames.MaxFrames <= 0 {
		return errors.New("max frames must be positive")
	}
	if c.Gemini.VideoTokensPerSecond < 0 {
		return errors.New("video tokens per second must not be negative")
	}
	for name, p := range map[string]Price{"openai": c.Pricing.OpenAI, "gemini": c.Pricing.Gemini} {
		if p.InputPer1K < 0 || p.OutputPer1K < 0 {
			return errors.Errorf("%s prices must not be negative", name)
		}
	}
	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		logrus.Warnf("Invalid integer value for %s, using default: %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		logrus.Warnf("Invalid integer value for %s, using default: %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		logrus.Warnf("Invalid float value for %s, using default: %g", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		logrus.Warnf("Invalid boolean value for %s, using default: %t", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration value for %s, using default: %s", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return defaultValue
}
