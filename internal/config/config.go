// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the plain-struct, YAML-driven configuration for
// the EventBus and the agent: explicit Load/Validate functions per
// binary rather than a generic config registry.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amoskys/amoskys/internal/errors"
)

// BusConfig tunes the EventBus ingest path.
type BusConfig struct {
	ListenAddress       string        `yaml:"listen_address"`
	MaxEnvelopeBytes    int           `yaml:"max_envelope_bytes"`
	DedupeTTL           time.Duration `yaml:"dedupe_ttl"`
	DedupeMaxEntries    int           `yaml:"dedupe_max_entries"`
	Overload            string        `yaml:"overload"` // "auto", "on", "off"
	RequireClientAuth   bool          `yaml:"require_client_auth"`
	WALPath             string        `yaml:"wal_path"`
	StorePath           string        `yaml:"store_path"`
	TrustMapPath        string        `yaml:"trust_map_path"`
	ServerCertPath      string        `yaml:"server_cert_path"`
	ServerKeyPath       string        `yaml:"server_key_path"`
	ClientCAPath        string        `yaml:"client_ca_path"`
	RPCDeadline         time.Duration `yaml:"rpc_deadline"`
	WorkerPoolSize      int           `yaml:"worker_pool_size"`
	WALRetention        time.Duration `yaml:"wal_retention"`
	TelemetryRetention  time.Duration `yaml:"telemetry_retention"`
}

// DefaultBusConfig returns the EventBus's out-of-the-box configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		ListenAddress:      ":7443",
		MaxEnvelopeBytes:   131072,
		DedupeTTL:          300 * time.Second,
		DedupeMaxEntries:   50000,
		Overload:           "auto",
		RequireClientAuth:  false,
		WALPath:            "data/wal.db",
		StorePath:          "data/store.db",
		TrustMapPath:       "config/trust_map.yaml",
		RPCDeadline:        10 * time.Second,
		WorkerPoolSize:     50,
		WALRetention:       7 * 24 * time.Hour,
		TelemetryRetention: 30 * 24 * time.Hour,
	}
}

// LoadBusConfig reads a YAML file into DefaultBusConfig, then applies
// recognized environment variable overrides, and validates the
// result.
func LoadBusConfig(path string) (BusConfig, error) {
	cfg := DefaultBusConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return BusConfig{}, errors.Wrap(err, errors.KindPermanent, "read bus config")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return BusConfig{}, errors.Wrap(err, errors.KindPermanent, "parse bus config")
		}
	}
	applyBusEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return BusConfig{}, err
	}
	return cfg, nil
}

func applyBusEnvOverrides(cfg *BusConfig) {
	if v := os.Getenv("BUS_SERVER_PORT"); v != "" {
		cfg.ListenAddress = ":" + v
	}
	if v := os.Getenv("BUS_OVERLOAD"); v != "" {
		cfg.Overload = normalizeBool(v)
	}
	if v := os.Getenv("BUS_MAX_ENV_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxEnvelopeBytes = n
		}
	}
	if v := os.Getenv("BUS_DEDUPE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DedupeTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BUS_DEDUPE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DedupeMaxEntries = n
		}
	}
	if v := os.Getenv("EVENTBUS_REQUIRE_CLIENT_AUTH"); v != "" {
		cfg.RequireClientAuth = normalizeBool(v) == "on"
	}
}

// normalizeBool maps the true/false/on/off/1/0 vocabulary to
// "on"/"off".
func normalizeBool(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "1":
		return "on"
	case "false", "off", "0":
		return "off"
	default:
		return "auto"
	}
}

// Validate checks invariants that must hold before the bus starts.
func (c BusConfig) Validate() error {
	if c.MaxEnvelopeBytes <= 0 {
		return errors.New(errors.KindPermanent, "max_envelope_bytes must be positive")
	}
	if c.DedupeMaxEntries <= 0 {
		return errors.New(errors.KindPermanent, "dedupe_max_entries must be positive")
	}
	if c.WorkerPoolSize <= 0 {
		return errors.New(errors.KindPermanent, "worker_pool_size must be positive")
	}
	switch c.Overload {
	case "auto", "on", "off":
	default:
		return errors.Errorf(errors.KindPermanent, "invalid overload mode: %q", c.Overload)
	}
	return nil
}

// AgentConfig tunes the agent's collectors and shipper.
type AgentConfig struct {
	AgentID          string        `yaml:"agent_id"`
	BusAddress       string        `yaml:"bus_address"`
	ClientCertPath   string        `yaml:"client_cert_path"`
	ClientKeyPath    string        `yaml:"client_key_path"`
	ServerCAPath     string        `yaml:"server_ca_path"`
	Interval         time.Duration `yaml:"interval"`
	QueuePath        string        `yaml:"queue_path"`
	QueueMaxBytes    int64         `yaml:"queue_max_bytes"`
	QueueMaxRetries  int           `yaml:"queue_max_retries"`
	FIMRoots         []string      `yaml:"fim_roots"`
	FIMBaselinePath  string        `yaml:"fim_baseline_path"`
	NetworkIface     string        `yaml:"network_iface"`
	LocalIP          string        `yaml:"local_ip"`
	AuthLogPath      string        `yaml:"auth_log_path"`
	SUIDScanRoots    []string      `yaml:"suid_scan_roots"`
}

// DefaultAgentConfig returns the agent's defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		BusAddress:      "127.0.0.1:7443",
		Interval:        30 * time.Second,
		QueuePath:       "data/queue/agent.db",
		QueueMaxBytes:   64 * 1024 * 1024,
		QueueMaxRetries: 10,
		FIMRoots:        []string{"/etc", "/bin", "/sbin", "/usr/bin", "/usr/sbin"},
		FIMBaselinePath: "data/fim_baseline.json",
		NetworkIface:    "eth0",
		AuthLogPath:     "/var/log/auth.log",
		SUIDScanRoots:   []string{"/usr/bin", "/bin", "/usr/sbin", "/sbin"},
	}
}

// LoadAgentConfig reads path into DefaultAgentConfig and validates it.
func LoadAgentConfig(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AgentConfig{}, errors.Wrap(err, errors.KindPermanent, "read agent config")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AgentConfig{}, errors.Wrap(err, errors.KindPermanent, "parse agent config")
		}
	}
	if cfg.AgentID == "" {
		return AgentConfig{}, errors.New(errors.KindPermanent, "agent_id is required")
	}
	if cfg.Interval <= 0 {
		return AgentConfig{}, errors.New(errors.KindPermanent, "interval must be positive")
	}
	return cfg, nil
}
