// Package configuration assembles the runtime configuration from defaults,
// an optional env file, the process environment and an optional YAML or
// JSON override file, in that order of precedence.
package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/listing"
	"gopkg.in/yaml.v3"
)

const (
	EnvWorkers       = "EVFS_WORKERS"
	EnvMaxPending    = "EVFS_MAX_PENDING"
	EnvMaxInflight   = "EVFS_MAX_INFLIGHT"
	EnvPriority      = "EVFS_PRIORITY"
	EnvMaxPoll       = "EVFS_MAX_POLL"
	EnvListingPolicy = "EVFS_LISTING_POLICY"
	EnvLogLevel      = "EVFS_LOG_LEVEL"
	EnvOTLPEndpoint  = "EVFS_OTLP_ENDPOINT"
)

const (
	DefaultMaxPending  = 4096
	DefaultMaxInflight = 64
)

// Config holds the runtime configuration.
type Config struct {
	Workers         int    // Backend worker goroutines (Default runtime.NumCPU())
	MaxPending      int    // Backend queue bound, negative is unbounded (Default 4096)
	MaxInflight     int    // In-flight ceiling of the invoker, <= 0 is unlimited (Default 64)
	Priority        int    // Submission priority, -4 to 4 (Default 0)
	MaxPollRequests int    // Completions per poll batch, 0 is all (Default 0)
	ListingPolicy   string // "fail-fast" or "collect-all" (Default "fail-fast")
	LogLevel        string // "debug", "info", "warn" or "error" (Default "info")
	OTLPEndpoint    string // OTLP/HTTP trace endpoint, empty disables export
}

// Override uses pointer fields to distinguish unset from zero values. See
// [Config] for field descriptions.
type Override struct {
	Workers         *int    `json:"workers,omitempty"           yaml:"workers,omitempty"`
	MaxPending      *int    `json:"max_pending,omitempty"       yaml:"max_pending,omitempty"`
	MaxInflight     *int    `json:"max_inflight,omitempty"      yaml:"max_inflight,omitempty"`
	Priority        *int    `json:"priority,omitempty"          yaml:"priority,omitempty"`
	MaxPollRequests *int    `json:"max_poll_requests,omitempty" yaml:"max_poll_requests,omitempty"`
	ListingPolicy   *string `json:"listing_policy,omitempty"    yaml:"listing_policy,omitempty"`
	LogLevel        *string `json:"log_level,omitempty"         yaml:"log_level,omitempty"`
	OTLPEndpoint    *string `json:"otlp_endpoint,omitempty"     yaml:"otlp_endpoint,omitempty"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Workers:       runtime.NumCPU(),
		MaxPending:    DefaultMaxPending,
		MaxInflight:   DefaultMaxInflight,
		Priority:      backend.DefaultPriority,
		ListingPolicy: listing.PolicyFailFast.String(),
		LogLevel:      "info",
	}
}

// Merge applies the non-nil values of override.
func (c *Config) Merge(override *Override) {
	if override == nil {
		return
	}
	if override.Workers != nil {
		c.Workers = *override.Workers
	}
	if override.MaxPending != nil {
		c.MaxPending = *override.MaxPending
	}
	if override.MaxInflight != nil {
		c.MaxInflight = *override.MaxInflight
	}
	if override.Priority != nil {
		c.Priority = *override.Priority
	}
	if override.MaxPollRequests != nil {
		c.MaxPollRequests = *override.MaxPollRequests
	}
	if override.ListingPolicy != nil {
		c.ListingPolicy = *override.ListingPolicy
	}
	if override.LogLevel != nil {
		c.LogLevel = *override.LogLevel
	}
	if override.OTLPEndpoint != nil {
		c.OTLPEndpoint = *override.OTLPEndpoint
	}
}

// Validate reports every out-of-range value.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers))
	}
	if c.Priority < backend.MinPriority || c.Priority > backend.MaxPriority {
		errs = append(errs, fmt.Errorf("%w: priority must be within %d and %d, got %d",
			ErrInvalidConfig, backend.MinPriority, backend.MaxPriority, c.Priority))
	}
	if c.MaxPollRequests < 0 {
		errs = append(errs, fmt.Errorf("%w: max poll requests must not be negative, got %d", ErrInvalidConfig, c.MaxPollRequests))
	}
	if _, err := listing.ParsePolicy(c.ListingPolicy); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// Policy returns the parsed listing policy. Call [Config.Validate] first.
func (c *Config) Policy() listing.Policy {
	p, _ := listing.ParsePolicy(c.ListingPolicy)

	return p
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}

	return level, nil
}

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

type Handler struct {
	GenericHandler genericConfigProvider
	LookupEnv      func(key string) (string, bool)
}

func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		GenericHandler: genericHandler,
		LookupEnv:      os.LookupEnv,
	}
}

func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	return c.GenericHandler.Read(filenames...)
}

// Load builds the configuration. envFiles and overridePath may be empty.
// The result is validated.
func (c *Handler) Load(envFiles []string, overridePath string) (*Config, error) {
	cfg := NewDefaultConfig()

	envMap := make(map[string]string)
	if len(envFiles) > 0 {
		fileMap, err := c.ReadGeneric(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("(config) failed to read env file: %w", err)
		}
		envMap = fileMap
	}

	if c.LookupEnv != nil {
		for _, key := range []string{
			EnvWorkers, EnvMaxPending, EnvMaxInflight, EnvPriority,
			EnvMaxPoll, EnvListingPolicy, EnvLogLevel, EnvOTLPEndpoint,
		} {
			if value, ok := c.LookupEnv(key); ok {
				envMap[key] = value
			}
		}
	}

	override, err := c.envOverride(envMap)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)

	if overridePath != "" {
		fileOverride, err := LoadOverrideFile(overridePath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileOverride)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("(config) %w", err)
	}

	return cfg, nil
}

func (c *Handler) envOverride(envMap map[string]string) (*Override, error) {
	override := &Override{}

	var errs []error
	for key, target := range map[string]**int{
		EnvWorkers:     &override.Workers,
		EnvMaxPending:  &override.MaxPending,
		EnvMaxInflight: &override.MaxInflight,
		EnvPriority:    &override.Priority,
		EnvMaxPoll:     &override.MaxPollRequests,
	} {
		value, ok, err := c.MapKeyToInt(envMap, key)
		if err != nil {
			errs = append(errs, err)

			continue
		}
		if ok {
			*target = &value
		}
	}

	for key, target := range map[string]**string{
		EnvListingPolicy: &override.ListingPolicy,
		EnvLogLevel:      &override.LogLevel,
		EnvOTLPEndpoint:  &override.OTLPEndpoint,
	} {
		if value, ok := envMap[key]; ok {
			*target = &value
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("(config) %w", errors.Join(errs...))
	}

	return override, nil
}

func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return value
	}

	return ""
}

// MapKeyToInt parses the value of key. It reports false if the key is unset
// or empty.
func (c *Handler) MapKeyToInt(envMap map[string]string, key string) (int, bool, error) {
	value := strings.TrimSpace(c.MapKeyToString(envMap, key))
	if value == "" {
		return 0, false, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, value)
	}

	return intValue, true, nil
}

// LoadOverrideFile reads a partial configuration from a .yaml, .yml or
// .json file.
func LoadOverrideFile(path string) (*Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("(config) failed to read override file: %w", err)
	}

	var override Override

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("(config) failed to unmarshal override file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("(config) failed to unmarshal override file: %w", err)
		}
	default:
		return nil, fmt.Errorf("(config) %w: %s", ErrUnsupportedFormat, path)
	}

	return &override, nil
}
