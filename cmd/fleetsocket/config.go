package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Config of the server process. ENV names are listed per field.
type Config struct {
	// Addr to listen on. ENV: FLEETSOCKET_ADDR
	Addr string `env:"FLEETSOCKET_ADDR"`
	// Port is used when Addr is unset. ENV: PORT
	Port string `env:"PORT,default=3001"`
	// LogLevel is one of debug, info, warn, error. ENV: FLEETSOCKET_LOG_LEVEL
	LogLevel string `env:"FLEETSOCKET_LOG_LEVEL,default=info"`
	// Store selects the message store: redis or memory. ENV: FLEETSOCKET_STORE
	Store string `env:"FLEETSOCKET_STORE,default=redis"`
	// SendQueue is the per-connection outbound queue length. ENV: FLEETSOCKET_SEND_QUEUE
	SendQueue int `env:"FLEETSOCKET_SEND_QUEUE,default=256"`
	// MaxContent caps message content in characters. ENV: FLEETSOCKET_MAX_CONTENT
	MaxContent int `env:"FLEETSOCKET_MAX_CONTENT,default=4000"`
	// MaxFrame caps inbound frame size in bytes. ENV: FLEETSOCKET_MAX_FRAME
	MaxFrame int64 `env:"FLEETSOCKET_MAX_FRAME,default=65536"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	switch cfg.Store {
	case "redis", "memory":
	default:
		return Config{}, fmt.Errorf("unknown store %q (want redis or memory)", cfg.Store)
	}
	return cfg, nil
}

func (c Config) listenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + c.Port
}

func (c Config) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return l
}
