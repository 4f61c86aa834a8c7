package display

import (
	"log/slog"
	"time"

	"github.com/go-broadway/broadway/pkg/protocol"
)

// Config holds configuration for a display server.
type Config struct {
	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger

	// Auth verifies the ?password= query parameter on upgrades. nil or a
	// disabled authenticator accepts every connection.
	Auth *Authenticator

	// OnEvent is invoked on the server loop for every accepted input
	// message, after state tracking and grab routing have run. It must not
	// block; long work belongs on another goroutine that posts results back
	// with Post.
	OnEvent func(*protocol.InputMsg)

	// OnConnect is invoked on the server loop after a client connection has
	// been installed and fully resynced.
	OnConnect func()

	// OnDisconnect is invoked on the server loop after the client
	// connection has been torn down.
	OnDisconnect func()

	// Timeouts

	// WriteTimeout bounds each outbound WebSocket message write.
	// Default: 30 seconds.
	WriteTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int

	// InputQueueSize is the size of the parsed-input channel buffer between
	// connection readers and the loop. Default: 256 batches.
	InputQueueSize int

	// DispatchQueueSize is the size of the posted-closure channel buffer.
	// Default: 256.
	DispatchQueueSize int

	// MaxEventsPerPass bounds how many queued input messages one loop pass
	// processes before yielding to other work. Default: 64.
	MaxEventsPerPass int

	// DiffBlockSize is the tile size for dirty-rectangle extraction.
	// Default: 32 pixels.
	DiffBlockSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout:      30 * time.Second,
		MaxMessageSize:    64 * 1024,
		InputQueueSize:    256,
		DispatchQueueSize: 256,
		MaxEventsPerPass:  64,
		DiffBlockSize:     32,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}

// WithAuth sets the authenticator and returns the config for chaining.
func (c *Config) WithAuth(auth *Authenticator) *Config {
	c.Auth = auth
	return c
}

// WithOnEvent sets the input event callback and returns the config for
// chaining.
func (c *Config) WithOnEvent(fn func(*protocol.InputMsg)) *Config {
	c.OnEvent = fn
	return c
}

// fillDefaults replaces zero values with the defaults.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = def.InputQueueSize
	}
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = def.DispatchQueueSize
	}
	if c.MaxEventsPerPass <= 0 {
		c.MaxEventsPerPass = def.MaxEventsPerPass
	}
	if c.DiffBlockSize <= 0 {
		c.DiffBlockSize = def.DiffBlockSize
	}
}
