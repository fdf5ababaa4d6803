// Package config loads the supervisor's JSON configuration file and
// overlays a handful of deployment-specific fields from the environment
// (spec.md §6), following the teacher's env-first-with-typed-default
// idiom.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/obscore/supervisor/internal/environment"
)

// SiteConfig is the fixed observatory location used to resolve "auto"
// dome times (spec.md §6).
type SiteConfig struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
}

// DomeBackendConfig names the shutter-daemon RPC endpoint the Enclosure
// Controller dials.
type DomeBackendConfig struct {
	Module     string `json:"module"`
	SocketPath string `json:"socket_path"`
}

// ConditionGroupConfig is one entry of the "condition_groups" array,
// mirroring environment.GroupSpec's fields for JSON decoding.
type ConditionGroupConfig struct {
	ConditionKey string  `json:"condition_key"`
	Device       string  `json:"device"`
	Parameter    string  `json:"parameter"`
	Label        string  `json:"label"`
	SafeMin      float64 `json:"safe_min"`
	SafeMax      float64 `json:"safe_max"`
	WarnMargin   float64 `json:"warn_margin"`
}

// ToGroupSpec converts the config-file shape into the type the Environment
// Monitor consumes.
func (c ConditionGroupConfig) ToGroupSpec() environment.GroupSpec {
	return environment.GroupSpec{
		ConditionKey: c.ConditionKey,
		Device:       c.Device,
		Parameter:    c.Parameter,
		Label:        c.Label,
		SafeMin:      c.SafeMin,
		SafeMax:      c.SafeMax,
		WarnMargin:   c.WarnMargin,
	}
}

// Config is the supervisor's full configuration (spec.md §6): the JSON
// file supplies every domain field, a small set of deployment knobs come
// from the environment instead so the same config file can move between
// hosts without editing it.
type Config struct {
	DaemonAddress            string                 `json:"daemon_address"`
	LogTag                   string                 `json:"log_tag"`
	AllowedControlMachines   []string               `json:"allowed_control_machines"`
	PipelineNotifierMachines []string               `json:"pipeline_notifier_machines"`
	LoopPeriodSeconds        float64                `json:"loop_period_seconds"`
	StaleLimitSeconds        float64                `json:"stale_limit_seconds"`
	RequireTonight           bool                   `json:"require_tonight"`
	Site                     SiteConfig             `json:"site"`
	ActionCatalogModule      string                 `json:"action_catalog_module"`
	DomeBackend              DomeBackendConfig      `json:"dome_backend"`
	EnvironmentSourceDaemon  string                 `json:"environment_source_daemon"`
	ConditionGroups          []ConditionGroupConfig `json:"condition_groups"`

	ArchiveEnabled bool   `json:"archive_enabled"`
	ArchiveCron    string `json:"archive_cron"`
	ArchiveBucket  string `json:"archive_bucket"`

	// Port, DataDir, LogLevel and DevMode are overlaid from the
	// environment after the JSON file is parsed (see Load), matching the
	// teacher's config.Load precedence: env var if set and valid,
	// otherwise a hardcoded default.
	Port     int
	DataDir  string
	LogLevel string
	DevMode  bool

	// R2AccountID/R2AccessKeyID/R2SecretAccessKey are credentials, so they
	// come from the environment only, never the config file on disk.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
}

// LoopPeriod is LoopPeriodSeconds as a time.Duration.
func (c *Config) LoopPeriod() time.Duration {
	return time.Duration(c.LoopPeriodSeconds * float64(time.Second))
}

// StaleLimit is StaleLimitSeconds as a time.Duration, or 30 seconds when
// stale_limit_seconds is absent or not positive.
func (c *Config) StaleLimit() time.Duration {
	if c.StaleLimitSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StaleLimitSeconds * float64(time.Second))
}

// GroupSpecs converts every ConditionGroups entry for the Environment
// Monitor.
func (c *Config) GroupSpecs() []environment.GroupSpec {
	specs := make([]environment.GroupSpec, 0, len(c.ConditionGroups))
	for _, g := range c.ConditionGroups {
		specs = append(specs, g.ToGroupSpec())
	}
	return specs
}

const (
	defaultPort     = 8080
	defaultDataDir  = "/var/lib/obscore-supervisor"
	defaultLogLevel = "info"
)

// Load reads the JSON config file at path, then overlays Port, DataDir,
// LogLevel and DevMode from the environment. It first attempts to load a
// ".env" file from the current directory via godotenv, silently
// continuing if none is present, exactly as the teacher's entrypoint
// does before reading os.Getenv.
//
// dataDirFlag, if non-empty, takes precedence over every environment
// source for DataDir — the same "CLI flag beats env var" precedence the
// teacher's config package uses.
func Load(path string, dataDirFlag string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.Port = envInt("SUPERVISOR_PORT", defaultPort)
	cfg.LogLevel = envString("LOG_LEVEL", defaultLogLevel)
	cfg.DevMode = envBool("DEV_MODE", false)
	cfg.R2AccountID = os.Getenv("R2_ACCOUNT_ID")
	cfg.R2AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2SecretAccessKey = os.Getenv("R2_SECRET_ACCESS_KEY")

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = os.Getenv("SUPERVISOR_DATA_DIR")
	}
	if dataDir == "" {
		// The legacy DATA_DIR name is deliberately not consulted here:
		// it predates SUPERVISOR_DATA_DIR and is ignored rather than
		// used as a fallback, so a host with both set unambiguously
		// gets the new variable or the default, never the old one.
		dataDir = defaultDataDir
	}
	abs, err := resolveDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = abs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DaemonAddress == "" {
		return fmt.Errorf("config: daemon_address is required")
	}
	if c.ActionCatalogModule == "" {
		return fmt.Errorf("config: action_catalog_module is required")
	}
	if c.DomeBackend.SocketPath == "" {
		return fmt.Errorf("config: dome_backend.socket_path is required")
	}
	if c.EnvironmentSourceDaemon == "" {
		return fmt.Errorf("config: environment_source_daemon is required")
	}
	if c.LoopPeriodSeconds <= 0 {
		return fmt.Errorf("config: loop_period_seconds must be positive")
	}
	if c.ArchiveEnabled && c.ArchiveBucket == "" {
		return fmt.Errorf("config: archive_bucket is required when archive_enabled is true")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
