package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Limits      LimitsConfig      `yaml:"limits"`
	Formats     FormatsConfig     `yaml:"formats"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Restorer    RestorerConfig    `yaml:"restorer"`
	Transcoder  TranscoderConfig  `yaml:"transcoder"`
	Response    ResponseConfig    `yaml:"response"`
	Workers     WorkersConfig     `yaml:"workers"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Archive     ArchiveConfig     `yaml:"archive"`
	GoogleDrive GoogleDriveConfig `yaml:"google_drive"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`
	AllowOrigins   string        `yaml:"allow_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

type StorageConfig struct {
	TempDir   string `yaml:"temp_dir" validate:"required"`
	OutputDir string `yaml:"output_dir"`
	Database  string `yaml:"database"`
}

type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb" validate:"min=1"`
}

// FormatsConfig lists accepted upload suffixes. Native formats go straight to
// the recognizer, transcode formats pass through ffmpeg first.
type FormatsConfig struct {
	Native    []string `yaml:"native" validate:"min=1,dive,startswith=."`
	Transcode []string `yaml:"transcode" validate:"dive,startswith=."`
}

type SegmenterConfig struct {
	MaxLength int    `yaml:"max_length" validate:"min=1,max=10000"`
	Boundary  string `yaml:"boundary" validate:"oneof=terminal clause"`
	ForceCut  *bool  `yaml:"force_cut"`
}

type RecognizerConfig struct {
	Backend string `yaml:"backend" validate:"oneof=paddlespeech openai"`
	Binary  string `yaml:"binary"`
	Lang    string `yaml:"lang"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type RestorerConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=paddlespeech openai"`
	Binary      string        `yaml:"binary"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=64"`
	Timeout     time.Duration `yaml:"timeout" validate:"min=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=10"`
	// RetryInterval is the initial backoff between restoration attempts.
	RetryInterval time.Duration `yaml:"retry_interval" validate:"min=0"`
}

type TranscoderConfig struct {
	Binary     string `yaml:"binary"`
	SampleRate int    `yaml:"sample_rate" validate:"min=8000"`
}

type ResponseConfig struct {
	SuccessCode int `yaml:"success_code"`
}

type WorkersConfig struct {
	Count     int `yaml:"count" validate:"min=1"`
	QueueSize int `yaml:"queue_size" validate:"min=1"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" validate:"min=1"`
	MaxAgeMinutes   int `yaml:"max_age_minutes" validate:"min=1"`
}

type ArchiveConfig struct {
	Local bool `yaml:"local"`
	Drive bool `yaml:"drive"`
}

type GoogleDriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	FolderName      string `yaml:"folder_name"`
}

// Load reads the .env file (if any), the YAML file at path, applies defaults
// and environment overrides, and validates the result. A missing YAML file is
// not an error; the defaults are used instead.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(file, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Minute
	}
	if c.Server.AllowOrigins == "" {
		c.Server.AllowOrigins = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "outputs"
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 100
	}
	if len(c.Formats.Native) == 0 {
		c.Formats.Native = []string{".wav"}
	}
	if c.Formats.Transcode == nil {
		c.Formats.Transcode = []string{".mp4"}
	}
	c.Formats.Native = normalizeSuffixes(c.Formats.Native)
	c.Formats.Transcode = normalizeSuffixes(c.Formats.Transcode)
	if c.Segmenter.MaxLength == 0 {
		c.Segmenter.MaxLength = 300
	}
	if c.Segmenter.Boundary == "" {
		c.Segmenter.Boundary = "clause"
	}
	if c.Segmenter.ForceCut == nil {
		forceCut := true
		c.Segmenter.ForceCut = &forceCut
	}
	if c.Recognizer.Backend == "" {
		c.Recognizer.Backend = "paddlespeech"
	}
	if c.Recognizer.Binary == "" {
		c.Recognizer.Binary = "paddlespeech"
	}
	if c.Restorer.Backend == "" {
		c.Restorer.Backend = "paddlespeech"
	}
	if c.Restorer.Binary == "" {
		c.Restorer.Binary = "paddlespeech"
	}
	if c.Restorer.Concurrency == 0 {
		c.Restorer.Concurrency = 4
	}
	if c.Restorer.Timeout == 0 {
		c.Restorer.Timeout = time.Minute
	}
	if c.Restorer.MaxAttempts == 0 {
		c.Restorer.MaxAttempts = 1
	}
	if c.Restorer.RetryInterval == 0 {
		c.Restorer.RetryInterval = 200 * time.Millisecond
	}
	if c.Transcoder.Binary == "" {
		c.Transcoder.Binary = "ffmpeg"
	}
	if c.Transcoder.SampleRate == 0 {
		c.Transcoder.SampleRate = 16000
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 2
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 100
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeMinutes == 0 {
		c.Cleanup.MaxAgeMinutes = 120
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Transcripts"
	}
}

// applyEnv lets deployment secrets and ports come from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("ASR_HOST"); v != "" {
		c.Server.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("ASR_PORT")); err == nil && v > 0 {
		c.Server.Port = v
	}
	if v := os.Getenv("ASR_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ASR_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("ASR_TEMP_DIR"); v != "" {
		c.Storage.TempDir = v
	}
	if v := os.Getenv("ASR_DATABASE"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Recognizer.APIKey == "" {
			c.Recognizer.APIKey = v
		}
		if c.Restorer.APIKey == "" {
			c.Restorer.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		if c.Recognizer.BaseURL == "" {
			c.Recognizer.BaseURL = v
		}
		if c.Restorer.BaseURL == "" {
			c.Restorer.BaseURL = v
		}
	}
}

// Validate checks the struct tags of the whole tree.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// The sweeper must never remove an upload a running request still owns.
	maxAge := time.Duration(c.Cleanup.MaxAgeMinutes) * time.Minute
	if c.Server.RequestTimeout > 0 && maxAge <= c.Server.RequestTimeout {
		return fmt.Errorf("invalid config: cleanup.max_age_minutes (%s) must exceed server.request_timeout (%s)",
			maxAge, c.Server.RequestTimeout)
	}
	return nil
}

// ForceCutEnabled reports whether the segmenter cuts oversized runs.
func (s SegmenterConfig) ForceCutEnabled() bool {
	return s.ForceCut == nil || *s.ForceCut
}

func normalizeSuffixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		out = append(out, s)
	}
	return out
}
