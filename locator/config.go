// CLAUDE:SUMMARY Locator configuration — YAML struct mirroring every component's knobs, defaults() and LoadConfigFile.
package locator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/fallback"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/recovery"
)

// Config holds all locator configuration.
type Config struct {
	// DBPath holds the audit log, metrics and score cache. Empty keeps
	// everything in memory for the life of the process.
	DBPath    string           `yaml:"db_path"`
	Screen    ScreenConfig     `yaml:"screen"`
	Matching  match.Config     `yaml:"matching"`
	Gate      GateConfig       `yaml:"gate"`
	Container container.Config `yaml:"container"`
	Fallback  fallback.Config  `yaml:"fallback"`
	Device    DeviceConfig     `yaml:"device"`
	Recovery  RecoveryConfig   `yaml:"recovery"`
	Audit     AuditConfig      `yaml:"audit"`
}

// ScreenConfig is the fallback viewport when a dump carries no usable root
// bounds. It is also the denominator of the container-area check.
type ScreenConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// GateConfig merges the selector gate with the candidate safety gate.
type GateConfig struct {
	MinConfidence          float64 `yaml:"min_confidence"`
	MaxAllowedMatches      int     `yaml:"max_allowed_matches"`
	Strict                 bool    `yaml:"strict"`
	CheckIDStability       *bool   `yaml:"check_id_stability"`
	CandidateMinConfidence float64 `yaml:"candidate_min_confidence"`
	GapThreshold           float64 `yaml:"gap_threshold"`
	ContainerAreaRatio     float64 `yaml:"container_area_ratio"`
}

// DeviceConfig wraps the injected driver with timeout, retry and breaker.
type DeviceConfig struct {
	Serial           string        `yaml:"serial"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// RecoveryConfig tunes the last-resort recovery step of Execute.
type RecoveryConfig struct {
	recovery.Config `yaml:",inline"`
	// MinConfidence is the evaluator score a recovered node needs before
	// Execute taps it.
	MinConfidence float64 `yaml:"min_confidence"`
}

// AuditConfig controls the execution audit.
type AuditConfig struct {
	// Async queues audit rows instead of writing them inside Execute.
	Async     bool          `yaml:"async"`
	Retention time.Duration `yaml:"retention"`
}

func (c *Config) defaults() {
	if c.Screen.Width <= 0 {
		c.Screen.Width = 1080
	}
	if c.Screen.Height <= 0 {
		c.Screen.Height = 2400
	}
	if c.Gate.MinConfidence <= 0 {
		c.Gate.MinConfidence = 0.5
	}
	if c.Gate.MaxAllowedMatches <= 0 {
		c.Gate.MaxAllowedMatches = 3
	}
	if c.Gate.CheckIDStability == nil {
		on := true
		c.Gate.CheckIDStability = &on
	}
	if c.Gate.CandidateMinConfidence <= 0 {
		c.Gate.CandidateMinConfidence = 0.70
	}
	if c.Gate.GapThreshold <= 0 {
		c.Gate.GapThreshold = 0.15
	}
	if c.Gate.ContainerAreaRatio <= 0 {
		c.Gate.ContainerAreaRatio = 0.95
	}
	if c.Device.Timeout <= 0 {
		c.Device.Timeout = 5 * time.Second
	}
	if c.Device.MaxRetries < 0 {
		c.Device.MaxRetries = 0
	}
	if c.Device.RetryBackoff <= 0 {
		c.Device.RetryBackoff = 100 * time.Millisecond
	}
	if c.Device.BreakerThreshold <= 0 {
		c.Device.BreakerThreshold = 5
	}
	if c.Device.BreakerReset <= 0 {
		c.Device.BreakerReset = 30 * time.Second
	}
	if c.Device.Serial == "" {
		c.Device.Serial = "default"
	}
	if c.Recovery.MinConfidence <= 0 {
		c.Recovery.MinConfidence = 0.6
	}
	if c.Audit.Retention <= 0 {
		c.Audit.Retention = 30 * 24 * time.Hour
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// LoadConfigFile reads a YAML config file. Missing fields take defaults in New.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("locator: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) screen() geom.Rect {
	return geom.Rect{Right: c.Screen.Width, Bottom: c.Screen.Height}
}

func (c *Config) selectorGate() gate.SelectorConfig {
	return gate.SelectorConfig{
		MinConfidence:     c.Gate.MinConfidence,
		MaxAllowedMatches: c.Gate.MaxAllowedMatches,
		Strict:            c.Gate.Strict,
		CheckIDStability:  c.Gate.CheckIDStability,
	}
}

// safetyGate builds the candidate gate for one live screen. A snapshot
// without usable root bounds falls back to the configured screen.
func (c *Config) safetyGate(screen geom.Rect) gate.Config {
	if screen.Empty() {
		screen = c.screen()
	}
	return gate.Config{
		MinConfidence:      c.Gate.CandidateMinConfidence,
		GapThreshold:       c.Gate.GapThreshold,
		ContainerAreaRatio: c.Gate.ContainerAreaRatio,
		Screen:             screen,
	}
}
