package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the interview gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Gemini API configuration
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`

	// Live interview session configuration
	LiveModel string `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-12-2025"`
	LiveVoice string `envconfig:"LIVE_VOICE" default:"Puck"`

	// One-shot models used for post-session analysis, chat and image generation
	TextModel     string `envconfig:"TEXT_MODEL" default:"gemini-3-pro-preview"`
	ChatModel     string `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`
	ImageModel    string `envconfig:"IMAGE_MODEL" default:"gemini-2.5-flash-image"`
	ImageProModel string `envconfig:"IMAGE_PRO_MODEL" default:"gemini-3-pro-image-preview"`

	// Audio processing configuration
	InputSampleRate  int `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`  // Hz, microphone capture
	OutputSampleRate int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"` // Hz, model speech playback
	ChunkSamples     int `envconfig:"CHUNK_SAMPLES" default:"4096"`       // samples per outbound audio chunk
	FrameIntervalMs  int `envconfig:"FRAME_INTERVAL_MS" default:"500"`    // video frame sampling interval

	// Chat retry configuration (quota/429 errors only; live sessions never retry)
	RetryMaxAttempts    int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff int `envconfig:"RETRY_INITIAL_BACKOFF" default:"1000"` // milliseconds

	// Persistence configuration
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"careerpal.sqlite"`
	ChatHistoryCap  int    `envconfig:"CHAT_HISTORY_CAP" default:"100"` // messages kept per conversation
	ImageHistoryCap int    `envconfig:"IMAGE_HISTORY_CAP" default:"20"` // generated images kept

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.InputSampleRate <= 0 || cfg.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive")
	}
	if cfg.ChunkSamples <= 0 {
		return nil, fmt.Errorf("CHUNK_SAMPLES must be positive")
	}
	if cfg.FrameIntervalMs <= 0 {
		return nil, fmt.Errorf("FRAME_INTERVAL_MS must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
