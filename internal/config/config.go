// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package config loads and validates configuration for both Galvanic
// binaries.
//
// Loading order (koanf v2): struct defaults, then an optional YAML file,
// then environment variables. Environment wins. Durations are expressed in
// milliseconds on the wire (suffix _MS) and surfaced as time.Duration via
// accessor methods.
package config

import (
	"fmt"
	"time"

	"github.com/hclerval/galvanic/internal/validation"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are checked in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/galvanic/config.yaml",
}

// Config is the root configuration shared by cmd/bridge and cmd/igor. Each
// binary reads its own section; Logging applies to both.
type Config struct {
	Bridge  BridgeConfig  `koanf:"bridge"`
	Igor    IgorConfig    `koanf:"igor"`
	Logging LoggingConfig `koanf:"logging"`
}

// LoggingConfig controls the zerolog facade.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is "json" or "console".
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// BridgeConfig configures the hub.
type BridgeConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// AuthMode selects control-surface and WebSocket authentication:
	// none, token, basic, or jwt.
	AuthMode string `koanf:"auth_mode" validate:"oneof=none token basic jwt"`

	// AuthToken is the shared bearer token for mode "token" and for
	// WebSocket ingress whenever it is non-empty.
	AuthToken string `koanf:"auth_token"`

	// AuthUsername and AuthPasswordHash (bcrypt) serve mode "basic".
	AuthUsername     string `koanf:"auth_username"`
	AuthPasswordHash string `koanf:"auth_password_hash"`

	// JWTSecret signs and verifies HS256 tokens for mode "jwt".
	JWTSecret string `koanf:"jwt_secret"`

	// RequireSigning rejects unsigned or badly signed messages.
	RequireSigning bool   `koanf:"require_signing"`
	SigningSecret  string `koanf:"signing_secret"`

	HeartbeatIntervalMs int64 `koanf:"heartbeat_interval_ms" validate:"min=100"`

	// StaleMultiplier times the heartbeat interval gives the idle
	// threshold after which a connection is kicked as stale.
	StaleMultiplier int `koanf:"stale_multiplier" validate:"min=2"`

	MaxMessageSize int `koanf:"max_message_size" validate:"min=1024"`
	MaxConnections int `koanf:"max_connections" validate:"min=1"`
	SendQueueSize  int `koanf:"send_queue_size" validate:"min=1"`

	MessageLogSize int   `koanf:"message_log_size" validate:"min=1"`
	SeenCacheSize  int   `koanf:"seen_cache_size" validate:"min=1"`
	SeenCacheTTLMs int64 `koanf:"seen_cache_ttl_ms" validate:"min=100"`

	DLQMaxSize    int `koanf:"dlq_max_size" validate:"min=1"`
	DLQMaxRetries int `koanf:"dlq_max_retries" validate:"min=1"`

	DrainTimeoutMs int64 `koanf:"drain_timeout_ms" validate:"min=100"`

	MemoryWarningMB  int `koanf:"memory_warning_mb" validate:"min=0"`
	MemoryCriticalMB int `koanf:"memory_critical_mb" validate:"min=0"`

	RateLimitRefill float64 `koanf:"rate_limit_refill" validate:"gt=0"`
	RateLimitBurst  int     `koanf:"rate_limit_burst" validate:"min=1"`

	// MinCompatibleVersion gates component.register; version strings
	// lead with an ISO date.
	MinCompatibleVersion string `koanf:"min_compatible_version" validate:"versiondate"`

	// Health score bookkeeping per connection.
	HealthInitial int `koanf:"health_initial" validate:"min=1"`
	HealthFloor   int `koanf:"health_floor" validate:"min=0"`

	MaxDoctors     int    `koanf:"max_doctors" validate:"min=0"`
	DoctorBinary   string `koanf:"doctor_binary"`
	DoctorBasePort int    `koanf:"doctor_base_port" validate:"min=1,max=65535"`

	ScreenshotsDir string `koanf:"screenshots_dir"`
	ReportLogSize  int    `koanf:"report_log_size" validate:"min=1"`
}

// IgorConfig configures the worker face.
type IgorConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// ComponentID is this worker face's cluster identity.
	ComponentID string `koanf:"component_id" validate:"componentid"`

	// BridgeURL is the hub's WebSocket address.
	BridgeURL   string `koanf:"bridge_url" validate:"required"`
	BridgeToken string `koanf:"bridge_token"`

	FrankBinary   string `koanf:"frank_binary"`
	FrankBasePort int    `koanf:"frank_base_port" validate:"min=1,max=65535"`
	FrankPoolSize int    `koanf:"frank_pool_size" validate:"min=0"`

	WorkerBinary string `koanf:"worker_binary"`

	ToolCacheTTLMs int64 `koanf:"tool_cache_ttl_ms" validate:"min=100"`
	StepTimeoutMs  int64 `koanf:"step_timeout_ms" validate:"min=100"`

	ExperiencePath string `koanf:"experience_path"`

	LightningAutoThreshold int    `koanf:"lightning_auto_threshold" validate:"min=1"`
	LightningEndpoint      string `koanf:"lightning_endpoint"`

	// ExecutorTarget is the component id browser.* requests are sent to.
	ExecutorTarget string `koanf:"executor_target" validate:"componentid"`
}

// Version is the protocol version announced on component.register. The
// leading ISO date is what the hub's compatibility gate parses.
const Version = "2026-01-21-v11"

// Duration accessors for millisecond fields.

func (b *BridgeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(b.HeartbeatIntervalMs) * time.Millisecond
}

// StaleThreshold is the idle span after which the reaper kicks a connection.
func (b *BridgeConfig) StaleThreshold() time.Duration {
	return time.Duration(b.StaleMultiplier) * b.HeartbeatInterval()
}

func (b *BridgeConfig) SeenCacheTTL() time.Duration {
	return time.Duration(b.SeenCacheTTLMs) * time.Millisecond
}

func (b *BridgeConfig) DrainTimeout() time.Duration {
	return time.Duration(b.DrainTimeoutMs) * time.Millisecond
}

func (b *BridgeConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

func (i *IgorConfig) ToolCacheTTL() time.Duration {
	return time.Duration(i.ToolCacheTTLMs) * time.Millisecond
}

func (i *IgorConfig) StepTimeout() time.Duration {
	return time.Duration(i.StepTimeoutMs) * time.Millisecond
}

func (i *IgorConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if c.Bridge.AuthMode == "token" && c.Bridge.AuthToken == "" {
		return fmt.Errorf("bridge.auth_token is required when auth_mode is token")
	}
	if c.Bridge.AuthMode == "basic" && (c.Bridge.AuthUsername == "" || c.Bridge.AuthPasswordHash == "") {
		return fmt.Errorf("bridge.auth_username and bridge.auth_password_hash are required when auth_mode is basic")
	}
	if c.Bridge.AuthMode == "jwt" && c.Bridge.JWTSecret == "" {
		return fmt.Errorf("bridge.jwt_secret is required when auth_mode is jwt")
	}
	if c.Bridge.RequireSigning && c.Bridge.SigningSecret == "" {
		return fmt.Errorf("bridge.signing_secret is required when require_signing is enabled")
	}
	if c.Bridge.MemoryCriticalMB > 0 && c.Bridge.MemoryWarningMB > c.Bridge.MemoryCriticalMB {
		return fmt.Errorf("bridge.memory_warning_mb (%d) must not exceed memory_critical_mb (%d)",
			c.Bridge.MemoryWarningMB, c.Bridge.MemoryCriticalMB)
	}
	if c.Bridge.HealthFloor >= c.Bridge.HealthInitial {
		return fmt.Errorf("bridge.health_floor (%d) must be below health_initial (%d)",
			c.Bridge.HealthFloor, c.Bridge.HealthInitial)
	}
	return nil
}
