// Package config provides the configuration structure for the podcast-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/podcast-service/internal/core"
)

// MaxSpeakers is the largest avatar count a script can be generated for.
const MaxSpeakers = 8

var (
	// ErrMissingServiceURL indicates that a collaborator base URL is not configured.
	ErrMissingServiceURL = errors.New("service url is required")
	// ErrInvalidSpeakerCount indicates a speaker count outside [1, MaxSpeakers].
	ErrInvalidSpeakerCount = errors.New("speaker count out of range")
	// ErrInvalidTimeout indicates a non-positive collaborator timeout.
	ErrInvalidTimeout = errors.New("timeout_seconds must be positive")
	// ErrMissingNATSSetting indicates an empty NATS url, subject or bucket.
	ErrMissingNATSSetting = errors.New("nats setting is required")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	JobSubject        string `toml:"job_subject"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
	LibraryKey        string `toml:"library_key"`
}

// ServicesConfig holds the base URLs of the collaborator services.
type ServicesConfig struct {
	ScriptURL      string `toml:"script_url"`
	AnalysisURL    string `toml:"analysis_url"`
	VoiceURL       string `toml:"voice_url"`
	ImageURL       string `toml:"image_url"`
	VideoURL       string `toml:"video_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	APIKeyEnv      string `toml:"api_key_env"`
}

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	SpeakerCount         int                      `toml:"speaker_count"`
	DefaultModelID       string                   `toml:"default_model_id"`
	VideoDurationSeconds int                      `toml:"video_duration_seconds"`
	ExclusivePlayback    bool                     `toml:"exclusive_playback"`
	NormalizeText        bool                     `toml:"normalize_text"`
	Emotions             []string                 `toml:"emotions"`
	Movements            []string                 `toml:"movements"`
	Voices               []core.AvatarVoiceConfig `toml:"voices"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Services ServicesConfig `toml:"services"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads and validates the configuration for the podcast-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validationErr)
	}

	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"services.script_url", c.Services.ScriptURL},
		{"services.voice_url", c.Services.VoiceURL},
		{"services.image_url", c.Services.ImageURL},
		{"services.video_url", c.Services.VideoURL},
	}

	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingServiceURL, field.name)
		}
	}

	if c.Services.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.Services.TimeoutSeconds)
	}

	if c.Pipeline.SpeakerCount < 1 || c.Pipeline.SpeakerCount > MaxSpeakers {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrInvalidSpeakerCount, c.Pipeline.SpeakerCount, MaxSpeakers)
	}

	natsFields := []struct {
		name  string
		value string
	}{
		{"nats.url", c.NATS.URL},
		{"nats.job_subject", c.NATS.JobSubject},
		{"nats.object_store_bucket", c.NATS.ObjectStoreBucket},
	}

	for _, field := range natsFields {
		if field.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingNATSSetting, field.name)
		}
	}

	return nil
}

// Timeout returns the collaborator request timeout.
func (s ServicesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// AnalysisBaseURL returns the link analysis URL, defaulting to the script service.
func (s ServicesConfig) AnalysisBaseURL() string {
	if s.AnalysisURL != "" {
		return s.AnalysisURL
	}

	return s.ScriptURL
}

// APIKey reads the collaborator API key from the configured environment variable.
func (s ServicesConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}

	return os.Getenv(s.APIKeyEnv)
}

// Voice returns the configured default voice for a slot.
func (p PipelineConfig) Voice(slot int) core.AvatarVoiceConfig {
	if slot < 0 || slot >= len(p.Voices) {
		return core.AvatarVoiceConfig{VoiceID: "", ModelID: "", CustomVoiceID: ""}
	}

	return p.Voices[slot]
}
