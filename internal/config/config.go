package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-broadway/broadway/pkg/display"
)

const (
	// ConfigFileName is the name of the daemon configuration file.
	ConfigFileName = "broadwayd.yaml"

	// PasswordFileDisabled turns password authentication off outright when
	// set as the password_file value, even if the default file exists.
	PasswordFileDisabled = "none"

	// DefaultListen is the default daemon listen address.
	DefaultListen = ":8080"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log output format.
	DefaultLogFormat = "text"

	// DefaultCapturePrefix is the default S3 object key prefix for
	// snapshot captures.
	DefaultCapturePrefix = "captures/"

	// DefaultMetricsNamespace prefixes all exported metric names.
	DefaultMetricsNamespace = "broadway"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration, read from broadwayd.yaml. Every field
// has a working default; an absent or empty file yields a usable config.
type Config struct {
	// Listen is the address the daemon binds, host:port.
	Listen string `yaml:"listen"`

	// PasswordFile is the bcrypt password file consulted on WebSocket
	// upgrades. Empty resolves to the per-user default location; the
	// value "none" disables authentication even when that file exists.
	PasswordFile string `yaml:"password_file"`

	// Log configures daemon logging.
	Log LogConfig `yaml:"log"`

	// Display tunes the display server.
	Display DisplayConfig `yaml:"display"`

	// Capture configures snapshot storage for the /debug/capture
	// endpoint.
	Capture CaptureConfig `yaml:"capture"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// path records where the config was loaded from, "" for defaults.
	path string
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// DisplayConfig tunes the display server. Zero values fall back to the
// display package defaults.
type DisplayConfig struct {
	// MaxMessageSize caps one incoming WebSocket message in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// MaxEventsPerPass bounds how many queued input messages one loop
	// pass processes.
	MaxEventsPerPass int `yaml:"max_events_per_pass"`

	// WriteTimeout bounds each outbound WebSocket message write.
	WriteTimeout Duration `yaml:"write_timeout"`
}

// CaptureConfig configures snapshot capture storage. At most one backend
// may be set; with neither set the capture endpoint is disabled.
type CaptureConfig struct {
	// Dir stores captures on local disk.
	Dir string `yaml:"dir"`

	// S3 stores captures in a bucket instead of on disk.
	S3 S3Config `yaml:"s3"`

	// MaxBytes caps one encoded capture. 0 means no limit.
	MaxBytes int64 `yaml:"max_bytes"`

	// MaxAge prunes stored captures this long after they were taken.
	// 0 keeps them forever.
	MaxAge Duration `yaml:"max_age"`
}

// S3Config configures the S3 capture backend.
type S3Config struct {
	// Bucket enables the S3 backend when non-empty.
	Bucket string `yaml:"bucket"`

	// Prefix is the object key prefix. Default "captures/".
	Prefix string `yaml:"prefix"`

	// Region overrides the SDK's resolved region when non-empty.
	Region string `yaml:"region"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled mounts /metrics on the daemon mux. Default true.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes all metric names. Default "broadway".
	Namespace string `yaml:"namespace"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Listen: DefaultListen,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Capture: CaptureConfig{
			S3: S3Config{Prefix: DefaultCapturePrefix},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultMetricsNamespace,
		},
	}
}

// Load reads and parses the config file at path. Unknown keys are an
// error. Keys absent from the file keep their defaults; an empty file
// yields the defaults. A missing file is an error the caller can test
// with errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := New()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.path = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when the file exists and returns the defaults
// when it does not. Other errors, including parse and validation errors,
// are returned as from Load.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	return cfg, err
}

// DefaultConfigFile returns the per-user config file location,
// ~/.config/broadwayd.yaml on most systems.
func DefaultConfigFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Path returns the file the config was loaded from, or "" when the config
// is defaults.
func (c *Config) Path() string { return c.path }

// applyDefaults fills fields that must not stay empty when the file sets
// them to "".
func (c *Config) applyDefaults() {
	def := New()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Capture.S3.Prefix == "" {
		c.Capture.S3.Prefix = def.Capture.S3.Prefix
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = def.Metrics.Namespace
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Display.MaxMessageSize < 0 {
		return fmt.Errorf("display.max_message_size must not be negative, got %d", c.Display.MaxMessageSize)
	}
	if c.Display.MaxEventsPerPass < 0 {
		return fmt.Errorf("display.max_events_per_pass must not be negative, got %d", c.Display.MaxEventsPerPass)
	}
	if c.Display.WriteTimeout < 0 {
		return fmt.Errorf("display.write_timeout must not be negative, got %s", c.Display.WriteTimeout.Std())
	}
	if c.Capture.MaxBytes < 0 {
		return fmt.Errorf("capture.max_bytes must not be negative, got %d", c.Capture.MaxBytes)
	}
	if c.Capture.MaxAge < 0 {
		return fmt.Errorf("capture.max_age must not be negative, got %s", c.Capture.MaxAge.Std())
	}
	if c.Capture.Dir != "" && c.Capture.S3.Bucket != "" {
		return fmt.Errorf("capture.dir and capture.s3.bucket are mutually exclusive")
	}
	return nil
}

// SlogLevel maps the configured log level onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ResolvePasswordFile returns the password file the daemon should load, or
// "" when authentication is disabled outright.
func (c *Config) ResolvePasswordFile() (string, error) {
	switch c.PasswordFile {
	case PasswordFileDisabled:
		return "", nil
	case "":
		return display.DefaultPasswordFile()
	default:
		return c.PasswordFile, nil
	}
}

// ServerConfig maps the display section onto a display.Config. Zero
// values are left for the display package to fill with its own defaults.
func (c *Config) ServerConfig(logger *slog.Logger) *display.Config {
	dc := display.DefaultConfig().WithLogger(logger)
	if c.Display.MaxMessageSize > 0 {
		dc.MaxMessageSize = c.Display.MaxMessageSize
	}
	if c.Display.MaxEventsPerPass > 0 {
		dc.MaxEventsPerPass = c.Display.MaxEventsPerPass
	}
	if c.Display.WriteTimeout > 0 {
		dc.WriteTimeout = c.Display.WriteTimeout.Std()
	}
	return dc
}
