package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when reading from the environment.
const EnvPrefix = "ROWSTREAM_"

// ConfigSource defines an interface for loading configuration from various sources.
type ConfigSource interface {
	Get(key string) (string, bool)
	GetWithDefault(key, defaultValue string) string
}

// EnvConfigSource loads configuration from environment variables.
type EnvConfigSource struct{}

// Get retrieves an environment variable, e.g. key "LOG_LEVEL" reads ROWSTREAM_LOG_LEVEL.
func (e *EnvConfigSource) Get(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + key)
	return val, val != ""
}

// GetWithDefault retrieves an environment variable or returns a default value.
func (e *EnvConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := e.Get(key); ok {
		return val
	}
	return defaultValue
}

// FileConfigSource loads configuration from a JSON or YAML file.
type FileConfigSource struct {
	data map[string]interface{}
}

// NewFileConfigSource creates a new file-based config source.
// Supports both JSON and YAML files based on file extension.
func NewFileConfigSource(filePath string) (*FileConfigSource, error) {
	data := make(map[string]interface{})

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		if err := yaml.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case strings.HasSuffix(filePath, ".json"):
		if err := json.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format, use .json, .yaml, or .yml")
	}

	return &FileConfigSource{data: data}, nil
}

// Get retrieves a value from the config file. Keys are matched case-insensitively
// against the file, and underscores in the key may be written as dots for nesting
// (e.g. "BLOB_CONTAINER" also finds blob.container).
func (f *FileConfigSource) Get(key string) (string, bool) {
	if val, ok := lookup(f.data, []string{strings.ToLower(key)}); ok {
		return val, true
	}
	return lookup(f.data, strings.Split(strings.ToLower(key), "_"))
}

func lookup(data map[string]interface{}, keys []string) (string, bool) {
	var current interface{} = data

	for _, k := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		val, exists := m[k]
		if !exists {
			return "", false
		}
		current = val
	}

	switch v := current.(type) {
	case string:
		return v, true
	case map[string]interface{}:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// GetWithDefault retrieves a value from the config file or returns a default.
func (f *FileConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := f.Get(key); ok {
		return val
	}
	return defaultValue
}

// Config holds application configuration.
type Config struct {
	// Streaming configuration
	HighWaterMarkBytes int    // sink backpressure threshold
	Delimiter          string // single byte field separator
	YieldEveryRows     int    // converter yields/checks cancellation every N rows
	MaxLineBytes       int    // longest accepted source line
	SyncOnClose        bool   // fsync the destination before reporting success

	// Progress reporting
	ProgressIntervalSeconds int

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Application configuration
	AppName    string
	AppVersion string

	// Blob publishing configuration (optional)
	BlobStorageAccountName string
	BlobStorageAccountKey  string
	BlobContainer          string
	BlobUseManagedIdentity bool
	BlobBlockSizeBytes     int
	BlobConcurrency        int
}

// LoadConfig loads configuration from the provided source.
func LoadConfig(source ConfigSource) (*Config, error) {
	cfg := &Config{}

	getInt := func(key string, defaultValue int) int {
		str := source.GetWithDefault(key, strconv.Itoa(defaultValue))
		val, err := strconv.Atoi(str)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getBool := func(key string, defaultValue bool) bool {
		str := source.GetWithDefault(key, strconv.FormatBool(defaultValue))
		val, err := strconv.ParseBool(str)
		if err != nil {
			return defaultValue
		}
		return val
	}

	cfg.HighWaterMarkBytes = getInt("HIGH_WATER_MARK", 16*1024)
	cfg.Delimiter = source.GetWithDefault("DELIMITER", ",")
	cfg.YieldEveryRows = getInt("YIELD_EVERY_ROWS", 100)
	cfg.MaxLineBytes = getInt("MAX_LINE_BYTES", 16*1024*1024)
	cfg.SyncOnClose = getBool("SYNC_ON_CLOSE", true)

	cfg.ProgressIntervalSeconds = getInt("PROGRESS_INTERVAL", 5)

	cfg.LogLevel = source.GetWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = source.GetWithDefault("LOG_FORMAT", "json")

	cfg.AppName = source.GetWithDefault("APP_NAME", "rowstream")
	cfg.AppVersion = source.GetWithDefault("APP_VERSION", "1.0.0")

	cfg.BlobStorageAccountName = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_NAME", "")
	cfg.BlobStorageAccountKey = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_KEY", "")
	cfg.BlobContainer = source.GetWithDefault("BLOB_CONTAINER", "spreadsheets")
	cfg.BlobUseManagedIdentity = getBool("BLOB_USE_MANAGED_IDENTITY", false)
	cfg.BlobBlockSizeBytes = getInt("BLOB_BLOCK_SIZE", 4*1024*1024)
	cfg.BlobConcurrency = getInt("BLOB_CONCURRENCY", 2)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if len(c.Delimiter) != 1 || c.Delimiter == "\n" || c.Delimiter == "\r" {
		return fmt.Errorf("delimiter must be a single byte other than a line terminator, got %q", c.Delimiter)
	}
	if c.HighWaterMarkBytes <= 0 {
		return fmt.Errorf("high water mark must be positive, got %d", c.HighWaterMarkBytes)
	}
	if c.YieldEveryRows <= 0 {
		return fmt.Errorf("yield interval must be positive, got %d", c.YieldEveryRows)
	}
	if c.MaxLineBytes <= 0 {
		return fmt.Errorf("max line bytes must be positive, got %d", c.MaxLineBytes)
	}
	return nil
}

// DelimiterByte returns the configured delimiter as a byte.
func (c *Config) DelimiterByte() byte {
	return c.Delimiter[0]
}

// LoadConfigFromEnv loads configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(&EnvConfigSource{})
}

// LoadConfigFromFile loads configuration from a JSON or YAML file.
// Environment variables will override file values if both are set.
func LoadConfigFromFile(filePath string) (*Config, error) {
	fileSource, err := NewFileConfigSource(filePath)
	if err != nil {
		return nil, err
	}

	composite := NewCompositeConfigSource(&EnvConfigSource{}, fileSource)
	return LoadConfig(composite)
}

// CompositeConfigSource checks multiple config sources in order.
type CompositeConfigSource struct {
	sources []ConfigSource
}

// NewCompositeConfigSource creates a source that consults sources in order.
func NewCompositeConfigSource(sources ...ConfigSource) *CompositeConfigSource {
	return &CompositeConfigSource{sources: sources}
}

// Get retrieves a value from the first source that has it.
func (c *CompositeConfigSource) Get(key string) (string, bool) {
	for _, source := range c.sources {
		if val, ok := source.Get(key); ok {
			return val, true
		}
	}
	return "", false
}

// GetWithDefault retrieves a value from sources or returns default.
func (c *CompositeConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := c.Get(key); ok {
		return val
	}
	return defaultValue
}
