// Package config loads the tracker's JSON configuration. Every field is
// optional; the Get* accessors fall back to built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/vessel.report/internal/units"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/vessel.defaults.json"

const maxFileSize = 1 << 20

// Built-in defaults, matching DefaultConfigPath.
const (
	DefaultServerURL             = "http://localhost:3000"
	DefaultListen                = ":8080"
	DefaultExpiry                = 5 * time.Minute
	DefaultTrackThrottle         = 5 * time.Second
	DefaultEnrichmentMaxDelay    = 500 * time.Millisecond
	DefaultNameSweepInterval     = 30 * time.Second
	DefaultNameSweepInitialDelay = 500 * time.Millisecond
	DefaultProjectionHorizon     = 10 * time.Minute
	DefaultProjectionStep        = time.Minute
	DefaultRequestTimeout        = 10 * time.Second
	DefaultSpeedUnits            = units.Knots
	DefaultSelectionRadiusMeters = 500.0
)

// Config is the root configuration document. Durations are Go duration
// strings such as "500ms" or "5m".
type Config struct {
	ServerURL *string `json:"server_url,omitempty" validate:"omitempty,url"`
	Listen    *string `json:"listen,omitempty" validate:"omitempty,hostname_port"`

	Expiry                *string `json:"expiry,omitempty" validate:"omitempty,duration"`
	TrackThrottle         *string `json:"track_throttle,omitempty" validate:"omitempty,duration"`
	EnrichmentMaxDelay    *string `json:"enrichment_max_delay,omitempty" validate:"omitempty,duration"`
	NameSweepInterval     *string `json:"name_sweep_interval,omitempty" validate:"omitempty,duration"`
	NameSweepInitialDelay *string `json:"name_sweep_initial_delay,omitempty" validate:"omitempty,duration"`
	ProjectionHorizon     *string `json:"projection_horizon,omitempty" validate:"omitempty,duration"`
	ProjectionStep        *string `json:"projection_step,omitempty" validate:"omitempty,duration"`
	RequestTimeout        *string `json:"request_timeout,omitempty" validate:"omitempty,duration"`

	SpeedUnits       *string  `json:"speed_units,omitempty" validate:"omitempty,oneof=kn mps kmph mph"`
	SelectionRadiusM *float64 `json:"selection_radius_m,omitempty" validate:"omitempty,gt=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	// duration accepts strictly positive Go duration strings.
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a .json file of at most 1 MiB and validates it.
// Omitted fields keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field formats and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.GetProjectionStep() > c.GetProjectionHorizon() {
		return fmt.Errorf("projection_step %s exceeds projection_horizon %s", c.GetProjectionStep(), c.GetProjectionHorizon())
	}
	return nil
}

// SetServerURL overrides server_url, for example from the environment.
func (c *Config) SetServerURL(u string) {
	c.ServerURL = &u
}

// SetListen overrides listen.
func (c *Config) SetListen(addr string) {
	c.Listen = &addr
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetServerURL returns the Signal K server base URL.
func (c *Config) GetServerURL() string { return stringOr(c.ServerURL, DefaultServerURL) }

// GetListen returns the API listen address.
func (c *Config) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetExpiry returns the idle expiry window.
func (c *Config) GetExpiry() time.Duration { return durationOr(c.Expiry, DefaultExpiry) }

// GetTrackThrottle returns the live-track sampling window.
func (c *Config) GetTrackThrottle() time.Duration {
	return durationOr(c.TrackThrottle, DefaultTrackThrottle)
}

// GetEnrichmentMaxDelay returns the cap on the delay between enrichment jobs.
func (c *Config) GetEnrichmentMaxDelay() time.Duration {
	return durationOr(c.EnrichmentMaxDelay, DefaultEnrichmentMaxDelay)
}

// GetNameSweepInterval returns the period of the name sweep.
func (c *Config) GetNameSweepInterval() time.Duration {
	return durationOr(c.NameSweepInterval, DefaultNameSweepInterval)
}

// GetNameSweepInitialDelay returns the delay before the first name sweep.
func (c *Config) GetNameSweepInitialDelay() time.Duration {
	return durationOr(c.NameSweepInitialDelay, DefaultNameSweepInitialDelay)
}

// GetProjectionHorizon returns how far ahead positions are dead-reckoned.
func (c *Config) GetProjectionHorizon() time.Duration {
	return durationOr(c.ProjectionHorizon, DefaultProjectionHorizon)
}

// GetProjectionStep returns the spacing of projected points.
func (c *Config) GetProjectionStep() time.Duration {
	return durationOr(c.ProjectionStep, DefaultProjectionStep)
}

// GetRequestTimeout returns the per-request enrichment timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return durationOr(c.RequestTimeout, DefaultRequestTimeout)
}

// GetSpeedUnits returns the display unit for speeds.
func (c *Config) GetSpeedUnits() string { return stringOr(c.SpeedUnits, DefaultSpeedUnits) }

// GetSelectionRadiusMeters returns the pointer hit radius.
func (c *Config) GetSelectionRadiusMeters() float64 {
	if c.SelectionRadiusM == nil {
		return DefaultSelectionRadiusMeters
	}
	return *c.SelectionRadiusM
}
