/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how active-player events reach other instances.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogFormat   string // "console" or "json"
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	CORSOrigins []string

	// Hub connection
	HubURL           string
	HubToken         string
	HubTimeout       time.Duration
	HubDiscover      bool // browse mDNS when HubURL is empty
	DiscoveryTimeout time.Duration

	// Predefined groups: a file path or s3://bucket/key
	GroupsSource   string
	GroupsWatch    bool
	GroupsDebounce time.Duration

	// S3 credentials for an s3:// groups source
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Reconciliation run log
	DBBackend DatabaseBackend
	DBDSN     string

	// API auth; empty disables it outside production
	JWTSigningKey string
	JWTTTL        time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSToken     string
	InstanceID    string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SPEAKERGROUPS_ENV"}, "development"),
		LogFormat:   getEnvAny([]string{"SPEAKERGROUPS_LOG_FORMAT"}, "console"),
		HTTPBind:    getEnvAny([]string{"SPEAKERGROUPS_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SPEAKERGROUPS_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"SPEAKERGROUPS_METRICS_BIND"}, "127.0.0.1:9000"),
		CORSOrigins: splitList(getEnvAny([]string{"SPEAKERGROUPS_CORS_ORIGINS"}, "")),

		HubURL:           strings.TrimRight(getEnvAny([]string{"SPEAKERGROUPS_HUB_URL", "HASS_SERVER"}, ""), "/"),
		HubToken:         getEnvAny([]string{"SPEAKERGROUPS_HUB_TOKEN", "HASS_TOKEN"}, ""),
		HubTimeout:       getEnvDurationAny([]string{"SPEAKERGROUPS_HUB_TIMEOUT"}, 10*time.Second),
		HubDiscover:      getEnvBoolAny([]string{"SPEAKERGROUPS_HUB_DISCOVER"}, false),
		DiscoveryTimeout: getEnvDurationAny([]string{"SPEAKERGROUPS_DISCOVERY_TIMEOUT"}, 5*time.Second),

		GroupsSource:   getEnvAny([]string{"SPEAKERGROUPS_GROUPS"}, "groups.yaml"),
		GroupsWatch:    getEnvBoolAny([]string{"SPEAKERGROUPS_GROUPS_WATCH"}, true),
		GroupsDebounce: getEnvDurationAny([]string{"SPEAKERGROUPS_GROUPS_DEBOUNCE"}, 250*time.Millisecond),

		S3AccessKeyID:     getEnvAny([]string{"SPEAKERGROUPS_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SPEAKERGROUPS_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SPEAKERGROUPS_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"SPEAKERGROUPS_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SPEAKERGROUPS_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		DBBackend: DatabaseBackend(getEnvAny([]string{"SPEAKERGROUPS_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"SPEAKERGROUPS_DB_DSN"}, "speakergroups.db"),

		JWTSigningKey: getEnvAny([]string{"SPEAKERGROUPS_JWT_SIGNING_KEY"}, ""),
		JWTTTL:        getEnvDurationAny([]string{"SPEAKERGROUPS_JWT_TTL"}, 30*24*time.Hour),

		TracingEnabled:    getEnvBoolAny([]string{"SPEAKERGROUPS_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SPEAKERGROUPS_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SPEAKERGROUPS_TRACING_SAMPLE_RATE"}, 1.0),

		EventBus:      EventBusBackend(getEnvAny([]string{"SPEAKERGROUPS_EVENT_BUS"}, string(EventBusMemory))),
		RedisAddr:     getEnvAny([]string{"SPEAKERGROUPS_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SPEAKERGROUPS_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SPEAKERGROUPS_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"SPEAKERGROUPS_NATS_URL"}, "nats://127.0.0.1:4222"),
		NATSToken:     getEnvAny([]string{"SPEAKERGROUPS_NATS_TOKEN"}, ""),
		InstanceID:    getEnvAny([]string{"SPEAKERGROUPS_INSTANCE_ID"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SPEAKERGROUPS_DB_DSN must not be empty")
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("SPEAKERGROUPS_HTTP_PORT %d out of range", cfg.HTTPPort)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("SPEAKERGROUPS_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SPEAKERGROUPS_JWT_SIGNING_KEY must be provided in production")
	}

	return cfg, nil
}

// ValidateHub checks the settings commands that talk to the hub need.
func (c *Config) ValidateHub() error {
	if c.HubURL == "" && !c.HubDiscover {
		return fmt.Errorf("SPEAKERGROUPS_HUB_URL (or HASS_SERVER) must be provided, or set SPEAKERGROUPS_HUB_DISCOVER=true")
	}
	if c.HubToken == "" {
		return fmt.Errorf("SPEAKERGROUPS_HUB_TOKEN (or HASS_TOKEN) must be provided")
	}
	return nil
}

// HTTPAddr returns the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// AuthEnabled reports whether API requests need a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSigningKey != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("5s") or plain seconds ("5").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
