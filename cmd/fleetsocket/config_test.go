package main

import (
	"log/slog"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FLEETSOCKET_STORE", "memory")
	t.Setenv("FLEETSOCKET_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.listenAddr() != ":3001" {
		t.Fatalf("listenAddr = %q", cfg.listenAddr())
	}
	if cfg.SendQueue != 256 || cfg.MaxContent != 4000 || cfg.MaxFrame != 65536 {
		t.Fatalf("limits = %+v", cfg)
	}
	if cfg.level() != slog.LevelInfo {
		t.Fatalf("level = %v", cfg.level())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FLEETSOCKET_STORE", "memory")
	t.Setenv("FLEETSOCKET_ADDR", "")
	t.Setenv("PORT", "8080")
	t.Setenv("FLEETSOCKET_LOG_LEVEL", "debug")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.listenAddr() != ":8080" || cfg.level() != slog.LevelDebug {
		t.Fatalf("cfg = %+v", cfg)
	}

	t.Setenv("FLEETSOCKET_ADDR", "127.0.0.1:9000")
	cfg, _ = loadConfig()
	if cfg.listenAddr() != "127.0.0.1:9000" {
		t.Fatalf("listenAddr = %q", cfg.listenAddr())
	}
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	t.Setenv("FLEETSOCKET_STORE", "etcd")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error")
	}
}
