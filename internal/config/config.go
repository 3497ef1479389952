package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvStorageAccessKey = "TRACKDROP_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey = "TRACKDROP_STORAGE_SECRET_KEY"
	EnvUploadCodeHash   = "TRACKDROP_UPLOAD_CODE_HASH"
	EnvEditorCodeHash   = "TRACKDROP_EDITOR_CODE_HASH"
	EnvNgrokAuthToken   = "NGROK_AUTHTOKEN"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Fetch    FetchConfig    `toml:"fetch"`
	Library  LibraryConfig  `toml:"library"`
	Access   AccessConfig   `toml:"access"`
	Logging  LoggingConfig  `toml:"logging"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `toml:"port"`
	Host         string `toml:"host"`
	EnableCORS   bool   `toml:"enable_cors"`
	ReadTimeout  int    `toml:"read_timeout_seconds"`
	WriteTimeout int    `toml:"write_timeout_seconds"`
	IdleTimeout  int    `toml:"idle_timeout_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// StorageConfig describes the S3-compatible object store holding audio and covers
type StorageConfig struct {
	Endpoint      string `toml:"endpoint"`
	Region        string `toml:"region"`
	UseSSL        bool   `toml:"use_ssl"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	CoversBucket  string `toml:"covers_bucket"`
	MusicBucket   string `toml:"music_bucket"`
	PublicBaseURL string `toml:"public_base_url"`
}

// FetchConfig controls outbound fetches of audio and cover art
type FetchConfig struct {
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxAudioMB        int64   `toml:"max_audio_mb"`
	MaxCoverMB        int64   `toml:"max_cover_mb"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	CoverCacheMinutes int     `toml:"cover_cache_minutes"`
}

// LibraryConfig contains album catalog settings
type LibraryConfig struct {
	DefaultArtist    string   `toml:"default_artist"`
	SupportedFormats []string `toml:"supported_formats"`
	MaxUploadMB      int64    `toml:"max_upload_mb"`
}

// AccessConfig holds bcrypt hashes of the upload and editor access codes
type AccessConfig struct {
	UploadCodeHash string `toml:"upload_code_hash"`
	EditorCodeHash string `toml:"editor_code_hash"`
	WatchConfig    bool   `toml:"watch_config"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	MaxSizeMB      int    `toml:"max_size_mb"`
	MaxBackups     int    `toml:"max_backups"`
	MaxAgeDays     int    `toml:"max_age_days"`
	Compress       bool   `toml:"compress"`
	RequestLogging bool   `toml:"request_logging"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			EnableCORS:   true,
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
		},
		Database: DatabaseConfig{
			Path:           "./trackdrop.db",
			MaxConnections: 5,
		},
		Storage: StorageConfig{
			Endpoint:      "127.0.0.1:9000",
			Region:        "us-east-1",
			UseSSL:        false,
			CoversBucket:  "album-covers",
			MusicBucket:   "music-files",
			PublicBaseURL: "http://127.0.0.1:9000",
		},
		Fetch: FetchConfig{
			TimeoutSeconds:    60,
			MaxAudioMB:        200,
			MaxCoverMB:        10,
			RequestsPerSecond: 10,
			Burst:             5,
			CoverCacheMinutes: 15,
		},
		Library: LibraryConfig{
			DefaultArtist:    "Gyros15 Musics",
			SupportedFormats: []string{".mp3", ".flac", ".wav", ".m4a"},
			MaxUploadMB:      500,
		},
		Access: AccessConfig{
			WatchConfig: true,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			MaxSizeMB:      50,
			MaxBackups:     5,
			MaxAgeDays:     30,
			RequestLogging: true,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with defaults
// when missing, then applies secrets from the environment (and a .env file in
// the working directory, if present).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secret fields with values from the environment.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{EnvStorageAccessKey, &c.Storage.AccessKey},
		{EnvStorageSecretKey, &c.Storage.SecretKey},
		{EnvUploadCodeHash, &c.Access.UploadCodeHash},
		{EnvEditorCodeHash, &c.Access.EditorCodeHash},
		{EnvNgrokAuthToken, &c.Ngrok.AuthToken},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.target = v
		}
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# trackdrop configuration
# Secrets (storage keys, access code hashes, ngrok token) are better kept in
# the environment or a .env file; see TRACKDROP_* variables.
# Generate access code hashes with: trackdrop hash-code <code>

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint cannot be empty")
	}
	if c.Storage.CoversBucket == "" || c.Storage.MusicBucket == "" {
		return fmt.Errorf("storage buckets cannot be empty")
	}
	if c.Storage.CoversBucket == c.Storage.MusicBucket {
		return fmt.Errorf("covers and music buckets must differ")
	}

	if c.Fetch.TimeoutSeconds < 1 {
		return fmt.Errorf("fetch timeout must be at least 1 second")
	}
	if c.Fetch.MaxAudioMB < 1 || c.Fetch.MaxCoverMB < 1 {
		return fmt.Errorf("fetch size limits must be at least 1 MB")
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetch requests per second must be positive")
	}
	if c.Fetch.Burst < 1 {
		return fmt.Errorf("fetch burst must be at least 1")
	}

	if strings.TrimSpace(c.Library.DefaultArtist) == "" {
		return fmt.Errorf("library default artist cannot be empty")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Library.MaxUploadMB < 1 {
		return fmt.Errorf("library max upload size must be at least 1 MB")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Timeout returns the per-request timeout for outbound fetches
func (f *FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// CoverCacheTTL returns how long fetched cover art stays cached
func (f *FetchConfig) CoverCacheTTL() time.Duration {
	return time.Duration(f.CoverCacheMinutes) * time.Minute
}
