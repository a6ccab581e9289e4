package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

type (
	Headers struct {
		// MaxSize bounds the whole header section, request line included. Reading
		// past this boundary without meeting the terminator is a framing error.
		MaxSize int `yaml:"max_size"`
	}

	Body struct {
		// MaxSize bounds the declared body length. Larger declarations are
		// rejected before a single body byte is read.
		MaxSize int64 `yaml:"max_size"`
	}

	NET struct {
		// ReadBufferSize is the size of the buffer used to read from the socket.
		ReadBufferSize int `yaml:"read_buffer_size"`
		// ReadTimeout applies to both the header and the body read phases. Idle
		// connections exceeding it are closed.
		ReadTimeout time.Duration `yaml:"read_timeout"`
	}

	HTTP struct {
		// DefaultHeaders are rendered into every response unless the handler set
		// the same header explicitly.
		DefaultHeaders map[string]string `yaml:"default_headers"`
		// WriteBufferSize limits how much of a response body is accumulated
		// before the engine switches to streaming with close-delimited framing.
		WriteBufferSize int `yaml:"write_buffer_size"`
	}

	Channel struct {
		// MaxMessageSize bounds a single inbound frame payload.
		MaxMessageSize int64 `yaml:"max_message_size"`
		// DefaultCloseCode is sent when a handler returns without closing
		// explicitly.
		DefaultCloseCode uint16 `yaml:"default_close_code"`
	}

	Events struct {
		// QueueSize is the capacity of the per-connection inbound and outbound
		// event queues.
		QueueSize int `yaml:"queue_size"`
	}

	Lifecycle struct {
		// ShutdownGrace bounds how long the engine waits for the lifecycle
		// handler to acknowledge shutdown before tearing down forcibly.
		ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	}
)

// Config holds limits, timeouts and defaults used across the engine. Always start
// from Default() and override individual fields; a manually zero-initialized
// config is normalized through Fill anyway.
type Config struct {
	Headers   Headers   `yaml:"headers"`
	Body      Body      `yaml:"body"`
	NET       NET       `yaml:"net"`
	HTTP      HTTP      `yaml:"http"`
	Channel   Channel   `yaml:"channel"`
	Events    Events    `yaml:"events"`
	Lifecycle Lifecycle `yaml:"lifecycle"`
}

// Default returns a well-balanced default config.
func Default() Config {
	return Config{
		Headers: Headers{
			MaxSize: 16 * 1024,
		},
		Body: Body{
			MaxSize: 512 * 1024 * 1024,
		},
		NET: NET{
			ReadBufferSize: 4 * 1024,
			ReadTimeout:    90 * time.Second,
		},
		HTTP: HTTP{
			DefaultHeaders: map[string]string{
				"Server": "wiregate",
			},
			WriteBufferSize: 64 * 1024,
		},
		Channel: Channel{
			MaxMessageSize:   1024 * 1024,
			DefaultCloseCode: 1000,
		},
		Events: Events{
			QueueSize: 8,
		},
		Lifecycle: Lifecycle{
			ShutdownGrace: 10 * time.Second,
		},
	}
}

// Fill replaces zero values of the given config with defaults.
func Fill(cfg Config) Config {
	defaults := Default()

	cfg.Headers.MaxSize = orDefault(cfg.Headers.MaxSize, defaults.Headers.MaxSize)
	cfg.Body.MaxSize = orDefault(cfg.Body.MaxSize, defaults.Body.MaxSize)
	cfg.NET.ReadBufferSize = orDefault(cfg.NET.ReadBufferSize, defaults.NET.ReadBufferSize)
	cfg.NET.ReadTimeout = orDefault(cfg.NET.ReadTimeout, defaults.NET.ReadTimeout)
	if cfg.HTTP.DefaultHeaders == nil {
		cfg.HTTP.DefaultHeaders = defaults.HTTP.DefaultHeaders
	}
	cfg.HTTP.WriteBufferSize = orDefault(cfg.HTTP.WriteBufferSize, defaults.HTTP.WriteBufferSize)
	cfg.Channel.MaxMessageSize = orDefault(cfg.Channel.MaxMessageSize, defaults.Channel.MaxMessageSize)
	cfg.Channel.DefaultCloseCode = orDefault(cfg.Channel.DefaultCloseCode, defaults.Channel.DefaultCloseCode)
	cfg.Events.QueueSize = orDefault(cfg.Events.QueueSize, defaults.Events.QueueSize)
	cfg.Lifecycle.ShutdownGrace = orDefault(cfg.Lifecycle.ShutdownGrace, defaults.Lifecycle.ShutdownGrace)

	return cfg
}

// FromFile loads a YAML config, filling omitted fields with defaults.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), err
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: %s: %w", path, err)
	}

	return Fill(cfg), nil
}

// FromEnv overrides the given config with values from the environment. Unset
// or malformed variables leave the corresponding field untouched.
func FromEnv(cfg Config) Config {
	if v, ok := envInt("WIREGATE_HEADERS_MAX_SIZE"); ok {
		cfg.Headers.MaxSize = v
	}
	if v, ok := envInt("WIREGATE_BODY_MAX_SIZE"); ok {
		cfg.Body.MaxSize = int64(v)
	}
	if v, ok := envDuration("WIREGATE_READ_TIMEOUT"); ok {
		cfg.NET.ReadTimeout = v
	}
	if v, ok := envDuration("WIREGATE_SHUTDOWN_GRACE"); ok {
		cfg.Lifecycle.ShutdownGrace = v
	}
	if v, ok := envInt("WIREGATE_EVENTS_QUEUE_SIZE"); ok {
		cfg.Events.QueueSize = v
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v, err := strconv.Atoi(os.Getenv(key))
	return v, err == nil
}

func envDuration(key string) (time.Duration, bool) {
	v, err := time.ParseDuration(os.Getenv(key))
	return v, err == nil
}

func orDefault[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}

	return value
}
