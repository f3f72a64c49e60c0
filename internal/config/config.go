package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for docvault.
type Config struct {
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Database  DatabaseConfig  `toml:"database"`
	Keys      KeysConfig      `toml:"keys"`
	Documents DocumentsConfig `toml:"documents"`
	Retention RetentionConfig `toml:"retention"`
	OCR       OCRConfig       `toml:"ocr"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StorageConfig represents configuration for the object store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// KeysConfig represents configuration for the data key provider.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type KeysConfig struct {
	Type   string `toml:"type"`              // "local" or "memory"
	KeyDir string `toml:"key_dir,omitempty"` // only used for type=local
}

// DocumentsConfig holds upload validation settings.
type DocumentsConfig struct {
	MaxSizeBytes        int64    `toml:"max_size_bytes"`
	AllowedContentTypes []string `toml:"allowed_content_types"`
	StoragePrefix       string   `toml:"storage_prefix"`
}

// RetentionConfig holds the retention and versioning policy settings.
type RetentionConfig struct {
	// RetentionDays is how long a soft-deleted version is kept before
	// the sweep may purge it.
	RetentionDays int `toml:"retention_days"`

	// MaxVersions caps retained versions per document lineage,
	// counting the active one. Zero means unlimited.
	MaxVersions int `toml:"max_versions"`

	// SweepInterval is how often the retention sweep runs, in
	// time.ParseDuration syntax.
	SweepInterval string `toml:"sweep_interval"`
}

// SweepIntervalDuration parses the configured sweep interval.
func (r RetentionConfig) SweepIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("parsing sweep_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sweep_interval must be positive, got %s", r.SweepInterval)
	}
	return d, nil
}

// RetentionWindow returns the retention period as a duration.
func (r RetentionConfig) RetentionWindow() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

// OCRConfig holds settings for the asynchronous text extraction workers.
type OCRConfig struct {
	Workers        int `toml:"workers"`
	QueueSize      int `toml:"queue_size"`
	MaxRetries     int `toml:"max_retries"`
	TimeoutSeconds int `toml:"timeout_seconds"`
	BackoffSeconds int `toml:"backoff_seconds"`
}

// NewConfig creates a Config with the provided base directory and defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Addr: ":8080",
		},
		Storage: StorageConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "blobs"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Keys: KeysConfig{
			Type:   "local",
			KeyDir: filepath.Join(baseDir, "keys"),
		},
		Documents: DocumentsConfig{
			MaxSizeBytes: 100 * 1024 * 1024,
			AllowedContentTypes: []string{
				"application/pdf",
				"image/jpeg",
				"image/png",
			},
			StoragePrefix: "documents",
		},
		Retention: RetentionConfig{
			RetentionDays: 1825,
			MaxVersions:   0,
			SweepInterval: "1h",
		},
		OCR: OCRConfig{
			Workers:        2,
			QueueSize:      64,
			MaxRetries:     3,
			TimeoutSeconds: 8,
			BackoffSeconds: 2,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
