// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads daemon configuration.
//
// Configuration comes from a single YAML file named by the
// ENGRAM_CONFIG environment variable or the --config flag. There is no
// search path and no layering: one file, loaded once, validated at
// startup.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/engram-foundation/engram/lib/anchor"
	"github.com/engram-foundation/engram/lib/escrow"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "ENGRAM_CONFIG"

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// StateBackend selects the stream state implementation.
type StateBackend string

const (
	StateBackendFile   StateBackend = "file"
	StateBackendSQLite StateBackend = "sqlite"
)

// Config is the daemon configuration.
type Config struct {
	// DataDir is the daemon's private directory: state store, job
	// queue, and capture buffers all live under it.
	DataDir string `yaml:"data_dir"`

	// StateBackend is "file" or "sqlite". Defaults to "file".
	StateBackend StateBackend `yaml:"state_backend"`

	// SigningSecretPath is where the signing secret is read from at
	// startup; "-" reads it from stdin.
	SigningSecretPath string `yaml:"signing_secret_path"`

	// Content configures the content store client.
	Content ContentConfig `yaml:"content"`

	// Anchor configures ledger anchoring.
	Anchor AnchorConfig `yaml:"anchor"`

	// Queue configures the durable job queue.
	Queue QueueConfig `yaml:"queue"`

	// Recall configures the recall path.
	Recall RecallConfig `yaml:"recall"`

	// KeyCacheTTL bounds how long derived keys stay cached.
	KeyCacheTTL Duration `yaml:"key_cache_ttl"`

	// EscrowRecipients are age public keys the signing secret is
	// sealed to on escrow export. Optional.
	EscrowRecipients []string `yaml:"escrow_recipients"`
}

// ContentConfig configures the content store client.
type ContentConfig struct {
	// Endpoints are base URLs tried in order.
	Endpoints []string `yaml:"endpoints"`

	// RequestRate caps store requests per second. Zero selects the
	// client default.
	RequestRate float64 `yaml:"request_rate"`
}

// AnchorConfig configures ledger anchoring.
type AnchorConfig struct {
	// Policy is "disabled", "every_record", or "daily". Empty means
	// disabled.
	Policy string `yaml:"policy"`

	// Endpoint is the ledger base URL. Required unless Policy is
	// disabled.
	Endpoint string `yaml:"endpoint"`

	// SubmitRate caps ledger requests per second. Zero selects the
	// client default.
	SubmitRate float64 `yaml:"submit_rate"`
}

// PolicyValue parses the configured policy name.
func (a AnchorConfig) PolicyValue() (anchor.Policy, error) {
	if a.Policy == "" {
		return anchor.PolicyDisabled, nil
	}
	var policy anchor.Policy
	if err := policy.UnmarshalText([]byte(a.Policy)); err != nil {
		return 0, err
	}
	return policy, nil
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	// MaxAttempts is the per-job attempt budget. Zero selects the
	// queue default.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the first retry delay. Zero selects the queue
	// default.
	BaseBackoff Duration `yaml:"base_backoff"`
}

// RecallConfig configures the recall path.
type RecallConfig struct {
	// FanOut bounds concurrent fetches. Zero selects the pipeline
	// default.
	FanOut int `yaml:"fan_out"`
}

// QueuePath returns the job log location under the data directory.
func (c *Config) QueuePath() string {
	return filepath.Join(c.DataDir, "jobs.log")
}

// StatePath returns the state store location under the data directory.
func (c *Config) StatePath() string {
	switch c.StateBackend {
	case StateBackendSQLite:
		return filepath.Join(c.DataDir, "state.db")
	default:
		return filepath.Join(c.DataDir, "state.json")
	}
}

// Load reads the config file named by ENGRAM_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it or pass --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads and validates a config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// Validate checks invariants that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.SigningSecretPath == "" {
		return fmt.Errorf("signing_secret_path is required")
	}
	switch c.StateBackend {
	case "":
		c.StateBackend = StateBackendFile
	case StateBackendFile, StateBackendSQLite:
	default:
		return fmt.Errorf("state_backend %q is not recognized (file or sqlite)", c.StateBackend)
	}
	if len(c.Content.Endpoints) == 0 {
		return fmt.Errorf("content.endpoints must list at least one endpoint")
	}
	policy, err := c.Anchor.PolicyValue()
	if err != nil {
		return fmt.Errorf("anchor.policy: %w", err)
	}
	if policy != anchor.PolicyDisabled && c.Anchor.Endpoint == "" {
		return fmt.Errorf("anchor.endpoint is required when anchor.policy is %s", policy)
	}
	if c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("queue.max_attempts must not be negative")
	}
	if c.Queue.BaseBackoff < 0 {
		return fmt.Errorf("queue.base_backoff must not be negative")
	}
	if c.Recall.FanOut < 0 {
		return fmt.Errorf("recall.fan_out must not be negative")
	}
	if c.KeyCacheTTL < 0 {
		return fmt.Errorf("key_cache_ttl must not be negative")
	}
	for _, recipient := range c.EscrowRecipients {
		if err := escrow.ValidateRecipient(recipient); err != nil {
			return fmt.Errorf("escrow_recipients: %w", err)
		}
	}
	return nil
}
