// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Port != 8787 {
		t.Fatalf("bridge.port = %d, want 8787", cfg.Bridge.Port)
	}
	if cfg.Bridge.MaxMessageSize != 1<<20 {
		t.Fatalf("bridge.max_message_size = %d, want 1MiB", cfg.Bridge.MaxMessageSize)
	}
	if cfg.Igor.ComponentID != "igor" {
		t.Fatalf("igor.component_id = %q, want igor", cfg.Igor.ComponentID)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_PORT", "9999")
	t.Setenv("BRIDGE_HEARTBEAT_INTERVAL_MS", "5000")
	t.Setenv("BRIDGE_AUTH_MODE", "token")
	t.Setenv("BRIDGE_AUTH_TOKEN", "secret")
	t.Setenv("IGOR_COMPONENT_ID", "igor-7")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Port != 9999 {
		t.Fatalf("bridge.port = %d, want 9999", cfg.Bridge.Port)
	}
	if got := cfg.Bridge.HeartbeatInterval(); got != 5*time.Second {
		t.Fatalf("heartbeat interval = %v, want 5s", got)
	}
	if cfg.Bridge.AuthToken != "secret" {
		t.Fatalf("auth token not loaded from env")
	}
	if cfg.Igor.ComponentID != "igor-7" {
		t.Fatalf("igor.component_id = %q, want igor-7", cfg.Igor.ComponentID)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("BRIDGE_NOT_A_SETTING", "boom")
	if _, err := Load(); err != nil {
		t.Fatalf("Load failed with unrelated env var present: %v", err)
	}
}

func TestConfigFileLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("bridge:\n  port: 4444\n  stale_multiplier: 5\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Port != 4444 {
		t.Fatalf("bridge.port = %d, want 4444 from file", cfg.Bridge.Port)
	}
	if cfg.Bridge.StaleMultiplier != 5 {
		t.Fatalf("stale_multiplier = %d, want 5 from file", cfg.Bridge.StaleMultiplier)
	}

	// Environment still wins over the file.
	t.Setenv("BRIDGE_PORT", "5555")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Port != 5555 {
		t.Fatalf("bridge.port = %d, want env override 5555", cfg.Bridge.Port)
	}
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"token mode without token", func(c *Config) { c.Bridge.AuthMode = "token" }},
		{"basic mode without creds", func(c *Config) { c.Bridge.AuthMode = "basic" }},
		{"jwt mode without secret", func(c *Config) { c.Bridge.AuthMode = "jwt" }},
		{"signing without secret", func(c *Config) { c.Bridge.RequireSigning = true }},
		{"warning above critical", func(c *Config) {
			c.Bridge.MemoryWarningMB = 2048
			c.Bridge.MemoryCriticalMB = 1024
		}},
		{"floor above initial", func(c *Config) {
			c.Bridge.HealthFloor = 100
			c.Bridge.HealthInitial = 50
		}},
		{"bad version gate", func(c *Config) { c.Bridge.MinCompatibleVersion = "not-a-date" }},
		{"bad component id", func(c *Config) { c.Igor.ComponentID = "Bad_ID!" }},
		{"port out of range", func(c *Config) { c.Bridge.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted an invalid configuration")
			}
		})
	}
}

func TestStaleThreshold(t *testing.T) {
	b := BridgeConfig{HeartbeatIntervalMs: 10_000, StaleMultiplier: 3}
	if got := b.StaleThreshold(); got != 30*time.Second {
		t.Fatalf("StaleThreshold = %v, want 30s", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := defaultConfig()
	cfg.Bridge.AuthToken = "hunter2"
	cfg.Bridge.SigningSecret = "sssh"

	red := cfg.Redacted()
	if red.Bridge.AuthToken == "hunter2" || red.Bridge.SigningSecret == "sssh" {
		t.Fatal("Redacted leaked secrets")
	}
	if cfg.Bridge.AuthToken != "hunter2" {
		t.Fatal("Redacted mutated the original")
	}
	if red.Bridge.JWTSecret != "" {
		t.Fatal("empty secret should stay empty")
	}
}
