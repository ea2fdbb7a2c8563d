package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("GEMINI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.LiveModel != "gemini-2.5-flash-native-audio-preview-12-2025" {
		t.Errorf("Expected default LiveModel, got '%s'", cfg.LiveModel)
	}

	if cfg.LiveVoice != "Puck" {
		t.Errorf("Expected default LiveVoice 'Puck', got '%s'", cfg.LiveVoice)
	}

	if cfg.InputSampleRate != 16000 {
		t.Errorf("Expected default InputSampleRate 16000, got %d", cfg.InputSampleRate)
	}

	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected default OutputSampleRate 24000, got %d", cfg.OutputSampleRate)
	}

	if cfg.ChunkSamples != 4096 {
		t.Errorf("Expected default ChunkSamples 4096, got %d", cfg.ChunkSamples)
	}

	if cfg.FrameIntervalMs != 500 {
		t.Errorf("Expected default FrameIntervalMs 500, got %d", cfg.FrameIntervalMs)
	}

	if cfg.ImageHistoryCap != 20 {
		t.Errorf("Expected default ImageHistoryCap 20, got %d", cfg.ImageHistoryCap)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Setenv("PORT", "9090")
	os.Setenv("LIVE_VOICE", "Charon")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("LIVE_VOICE")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port '9090', got '%s'", cfg.Port)
	}

	if cfg.LiveVoice != "Charon" {
		t.Errorf("Expected LiveVoice 'Charon', got '%s'", cfg.LiveVoice)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_CONFIG_KEY", "value")
	defer os.Unsetenv("TEST_CONFIG_KEY")

	if got := GetEnv("TEST_CONFIG_KEY", "fallback"); got != "value" {
		t.Errorf("Expected 'value', got '%s'", got)
	}

	if got := GetEnv("TEST_CONFIG_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Expected 'fallback', got '%s'", got)
	}
}
