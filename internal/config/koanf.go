// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// defaultConfig returns built-in defaults for every setting.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Host:                 "0.0.0.0",
			Port:                 8787,
			AuthMode:             "none",
			HeartbeatIntervalMs:  30_000,
			StaleMultiplier:      3,
			MaxMessageSize:       1 << 20, // 1 MiB
			MaxConnections:       256,
			SendQueueSize:        256,
			MessageLogSize:       1000,
			SeenCacheSize:        10_000,
			SeenCacheTTLMs:       300_000,
			DLQMaxSize:           1000,
			DLQMaxRetries:        3,
			DrainTimeoutMs:       10_000,
			MemoryWarningMB:      512,
			MemoryCriticalMB:     1024,
			RateLimitRefill:      50,
			RateLimitBurst:       100,
			MinCompatibleVersion: "2026-01-01",
			HealthInitial:        100,
			HealthFloor:          20,
			MaxDoctors:           4,
			DoctorBinary:         "",
			DoctorBasePort:       9200,
			ScreenshotsDir:       "screenshots",
			ReportLogSize:        2000,
		},
		Igor: IgorConfig{
			Host:                   "0.0.0.0",
			Port:                   9100,
			ComponentID:            "igor",
			BridgeURL:              "ws://localhost:8787/ws",
			FrankBasePort:          9300,
			FrankPoolSize:          2,
			ToolCacheTTLMs:         30_000,
			StepTimeoutMs:          30_000,
			ExperiencePath:         "experience",
			LightningAutoThreshold: 3,
			ExecutorTarget:         "frank",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envMappings binds fixed environment variable names to config paths. The
// names are part of the deployment contract and do not follow a mechanical
// prefix transform.
var envMappings = map[string]string{
	"BRIDGE_HOST":                   "bridge.host",
	"BRIDGE_PORT":                   "bridge.port",
	"BRIDGE_AUTH_MODE":              "bridge.auth_mode",
	"BRIDGE_AUTH_TOKEN":             "bridge.auth_token",
	"BRIDGE_AUTH_USERNAME":          "bridge.auth_username",
	"BRIDGE_AUTH_PASSWORD_HASH":     "bridge.auth_password_hash",
	"BRIDGE_JWT_SECRET":             "bridge.jwt_secret",
	"BRIDGE_REQUIRE_SIGNING":        "bridge.require_signing",
	"BRIDGE_SIGNING_SECRET":         "bridge.signing_secret",
	"BRIDGE_HEARTBEAT_INTERVAL_MS":  "bridge.heartbeat_interval_ms",
	"BRIDGE_STALE_MULTIPLIER":       "bridge.stale_multiplier",
	"BRIDGE_MAX_MESSAGE_SIZE":       "bridge.max_message_size",
	"BRIDGE_MAX_CONNECTIONS":        "bridge.max_connections",
	"BRIDGE_SEND_QUEUE_SIZE":        "bridge.send_queue_size",
	"BRIDGE_MESSAGE_LOG_SIZE":       "bridge.message_log_size",
	"BRIDGE_SEEN_CACHE_SIZE":        "bridge.seen_cache_size",
	"BRIDGE_SEEN_CACHE_TTL_MS":      "bridge.seen_cache_ttl_ms",
	"BRIDGE_DLQ_MAX_SIZE":           "bridge.dlq_max_size",
	"BRIDGE_DLQ_MAX_RETRIES":        "bridge.dlq_max_retries",
	"BRIDGE_DRAIN_TIMEOUT_MS":       "bridge.drain_timeout_ms",
	"BRIDGE_MEMORY_WARNING_MB":      "bridge.memory_warning_mb",
	"BRIDGE_MEMORY_CRITICAL_MB":     "bridge.memory_critical_mb",
	"BRIDGE_RATE_LIMIT_REFILL":      "bridge.rate_limit_refill",
	"BRIDGE_RATE_LIMIT_BURST":       "bridge.rate_limit_burst",
	"BRIDGE_MIN_COMPATIBLE_VERSION": "bridge.min_compatible_version",
	"BRIDGE_HEALTH_INITIAL":         "bridge.health_initial",
	"BRIDGE_HEALTH_FLOOR":           "bridge.health_floor",
	"BRIDGE_MAX_DOCTORS":            "bridge.max_doctors",
	"BRIDGE_DOCTOR_BINARY":          "bridge.doctor_binary",
	"BRIDGE_DOCTOR_BASE_PORT":       "bridge.doctor_base_port",
	"BRIDGE_SCREENSHOTS_DIR":        "bridge.screenshots_dir",
	"BRIDGE_REPORT_LOG_SIZE":        "bridge.report_log_size",

	"IGOR_HOST":                     "igor.host",
	"IGOR_PORT":                     "igor.port",
	"IGOR_COMPONENT_ID":             "igor.component_id",
	"IGOR_BRIDGE_URL":               "igor.bridge_url",
	"IGOR_BRIDGE_TOKEN":             "igor.bridge_token",
	"IGOR_FRANK_BINARY":             "igor.frank_binary",
	"IGOR_FRANK_BASE_PORT":          "igor.frank_base_port",
	"IGOR_FRANK_POOL_SIZE":          "igor.frank_pool_size",
	"IGOR_WORKER_BINARY":            "igor.worker_binary",
	"IGOR_TOOL_CACHE_TTL_MS":        "igor.tool_cache_ttl_ms",
	"IGOR_STEP_TIMEOUT_MS":          "igor.step_timeout_ms",
	"IGOR_EXPERIENCE_PATH":          "igor.experience_path",
	"IGOR_LIGHTNING_AUTO_THRESHOLD": "igor.lightning_auto_threshold",
	"IGOR_LIGHTNING_ENDPOINT":       "igor.lightning_endpoint",
	"IGOR_EXECUTOR_TARGET":          "igor.executor_target",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
}

// envTransformFunc maps an environment variable name onto its config path.
// Unmapped variables are discarded so unrelated environment noise cannot
// perturb the configuration.
func envTransformFunc(key string) string {
	return envMappings[key]
}

// Load builds the configuration: defaults, optional YAML file, environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, preferring the
// CONFIG_PATH override, or empty when none is present.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Redacted returns a copy with secrets masked, for the debug endpoint.
func (c *Config) Redacted() Config {
	out := *c
	out.Bridge.AuthToken = mask(out.Bridge.AuthToken)
	out.Bridge.AuthPasswordHash = mask(out.Bridge.AuthPasswordHash)
	out.Bridge.JWTSecret = mask(out.Bridge.JWTSecret)
	out.Bridge.SigningSecret = mask(out.Bridge.SigningSecret)
	out.Igor.BridgeToken = mask(out.Igor.BridgeToken)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
