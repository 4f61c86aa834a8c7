package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-broadway/broadway/pkg/display"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, DefaultListen)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to true")
	}
	if cfg.Metrics.Namespace != DefaultMetricsNamespace {
		t.Errorf("Metrics.Namespace = %q, want %q", cfg.Metrics.Namespace, DefaultMetricsNamespace)
	}
	if cfg.Capture.S3.Prefix != DefaultCapturePrefix {
		t.Errorf("Capture.S3.Prefix = %q, want %q", cfg.Capture.S3.Prefix, DefaultCapturePrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on defaults: %v", err)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9090"
password_file: /etc/broadway.passwd
log:
  level: debug
  format: json
display:
  max_message_size: 131072
  max_events_per_pass: 32
  write_timeout: 250ms
capture:
  dir: /tmp/captures
  max_bytes: 1048576
  max_age: 24h
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9090" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:9090")
	}
	if cfg.PasswordFile != "/etc/broadway.passwd" {
		t.Errorf("PasswordFile = %q", cfg.PasswordFile)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Display.MaxMessageSize != 131072 {
		t.Errorf("Display.MaxMessageSize = %d, want 131072", cfg.Display.MaxMessageSize)
	}
	if cfg.Display.WriteTimeout.Std() != 250*time.Millisecond {
		t.Errorf("Display.WriteTimeout = %s, want 250ms", cfg.Display.WriteTimeout.Std())
	}
	if cfg.Capture.Dir != "/tmp/captures" {
		t.Errorf("Capture.Dir = %q", cfg.Capture.Dir)
	}
	if cfg.Capture.MaxAge.Std() != 24*time.Hour {
		t.Errorf("Capture.MaxAge = %s, want 24h", cfg.Capture.MaxAge.Std())
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "listen: \":9999\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9999")
	}
	if !cfg.Metrics.Enabled {
		t.Error("absent metrics section should keep Enabled default true")
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want default %q", cfg.Listen, DefaultListen)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "listne: \":9999\"\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "listne") {
		t.Errorf("error should name the unknown key, got: %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "capture:\n  max_age: banana\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	_, err := Load(path)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load on missing file: %v, want fs.ErrNotExist", err)
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want default %q", cfg.Listen, DefaultListen)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty for defaults", cfg.Path())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative message size", func(c *Config) { c.Display.MaxMessageSize = -1 }, "max_message_size"},
		{"negative capture bytes", func(c *Config) { c.Capture.MaxBytes = -1 }, "max_bytes"},
		{"negative capture age", func(c *Config) { c.Capture.MaxAge = Duration(-time.Hour) }, "max_age"},
		{"both capture backends", func(c *Config) {
			c.Capture.Dir = "/tmp/captures"
			c.Capture.S3.Bucket = "captures"
		}, "mutually exclusive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := New()
	cfg.Log.Level = "warn"
	if got := cfg.SlogLevel(); got != slog.LevelWarn {
		t.Errorf("SlogLevel() = %v, want %v", got, slog.LevelWarn)
	}
	cfg.Log.Level = "debug"
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want %v", got, slog.LevelDebug)
	}
}

func TestLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	cfg := New()
	cfg.Log.Format = "json"
	cfg.Logger(&buf).Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	cfg.Log.Format = "text"
	cfg.Logger(&buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestResolvePasswordFile(t *testing.T) {
	cfg := New()

	cfg.PasswordFile = PasswordFileDisabled
	path, err := cfg.ResolvePasswordFile()
	if err != nil || path != "" {
		t.Errorf("disabled: path = %q, err = %v", path, err)
	}

	cfg.PasswordFile = "/etc/broadway.passwd"
	path, err = cfg.ResolvePasswordFile()
	if err != nil || path != "/etc/broadway.passwd" {
		t.Errorf("explicit: path = %q, err = %v", path, err)
	}

	cfg.PasswordFile = ""
	path, err = cfg.ResolvePasswordFile()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(path) != display.PasswordFileName {
		t.Errorf("default: path = %q, want base %q", path, display.PasswordFileName)
	}
}

func TestServerConfig(t *testing.T) {
	cfg := New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dc := cfg.ServerConfig(logger)
	if dc.Logger != logger {
		t.Error("logger not carried over")
	}
	if dc.MaxMessageSize != 64*1024 {
		t.Errorf("MaxMessageSize = %d, want display default", dc.MaxMessageSize)
	}

	cfg.Display.MaxMessageSize = 1024
	cfg.Display.MaxEventsPerPass = 8
	cfg.Display.WriteTimeout = Duration(time.Second)
	dc = cfg.ServerConfig(logger)
	if dc.MaxMessageSize != 1024 || dc.MaxEventsPerPass != 8 || dc.WriteTimeout != time.Second {
		t.Errorf("overrides not applied: %+v", dc)
	}
}
