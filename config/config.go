// Package config loads the YAML configuration of the scheduler server.
//
// A missing file is created with defaults (0600, the file holds vendor
// secrets). Environment variables prefixed SCHEDULER_ override the file;
// command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/scheduler"
	"github.com/warp/shift-scheduler/tadabase"
)

// ErrMissingCredentials: the vendor app id, key or secret is empty.
var ErrMissingCredentials = errors.New("vendor credentials are not configured")

// VendorConfig locates the vendor API and its tables.
type VendorConfig struct {
	BaseURL   string `yaml:"base_url"`
	AppID     string `yaml:"app_id"`
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`
	// Department restricts the roster, e.g. "Truck Operations".
	Department string          `yaml:"department"`
	PageSize   int             `yaml:"page_size"`
	Timeout    time.Duration   `yaml:"timeout"`
	Tables     tadabase.Tables `yaml:"tables"`
}

// RefreshConfig tunes the refresh coordinator.
type RefreshConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	// Cron triggers a periodic refresh of the current view. Empty disables it.
	Cron string `yaml:"cron"`
}

// CacheConfig tunes reference data caching.
type CacheConfig struct {
	EmployeesTTL time.Duration `yaml:"employees_ttl"`
	TagsTTL      time.Duration `yaml:"tags_ttl"`
	Retries      int           `yaml:"retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	// QuotaBytes bounds the local store; 0 means unbounded.
	QuotaBytes int64 `yaml:"quota_bytes"`
}

// ScheduleConfig tunes the calendar operations.
type ScheduleConfig struct {
	AvailabilityBufferDays int           `yaml:"availability_buffer_days"`
	CopyDelay              time.Duration `yaml:"copy_delay"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string   `yaml:"listen"`
	DBPath   string   `yaml:"db_path"`
	LogLevel string   `yaml:"log_level"`
	Origins  []string `yaml:"origins"`

	Vendor   VendorConfig   `yaml:"vendor"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Cache    CacheConfig    `yaml:"cache"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// DefaultConfig returns the production defaults without credentials.
func DefaultConfig() *Config {
	svc := scheduler.DefaultConfig()
	retry := cache.DefaultPolicy()
	return &Config{
		Listen:   "127.0.0.1:8080",
		DBPath:   "scheduler.db",
		LogLevel: "info",
		Origins:  []string{"http://localhost:5173", "http://localhost:8080"},
		Vendor: VendorConfig{
			BaseURL:    tadabase.DefaultBaseURL,
			Department: "Truck Operations",
			PageSize:   tadabase.DefaultPageSize,
			Timeout:    30 * time.Second,
			Tables:     tadabase.DefaultTables(),
		},
		Refresh: RefreshConfig{
			Cooldown: 800 * time.Millisecond,
			Cron:     "*/15 * * * *",
		},
		Cache: CacheConfig{
			EmployeesTTL: svc.EmployeesTTL,
			TagsTTL:      svc.TagsTTL,
			Retries:      retry.MaxRetries,
			RetryDelay:   retry.Delay,
			QuotaBytes:   5 << 20,
		},
		Schedule: ScheduleConfig{
			AvailabilityBufferDays: svc.AvailabilityBufferDays,
			CopyDelay:              svc.CopyDelay,
		},
	}
}

// Normalize fills missing or invalid values with defaults so partially
// filled files still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = d.LogLevel
	}
	if c.Origins == nil {
		c.Origins = d.Origins
	}

	if c.Vendor.BaseURL == "" {
		c.Vendor.BaseURL = d.Vendor.BaseURL
	}
	if c.Vendor.Department == "" {
		c.Vendor.Department = d.Vendor.Department
	}
	if c.Vendor.PageSize <= 0 || c.Vendor.PageSize > tadabase.DefaultPageSize {
		c.Vendor.PageSize = d.Vendor.PageSize
	}
	if c.Vendor.Timeout <= 0 {
		c.Vendor.Timeout = d.Vendor.Timeout
	}
	t, dt := &c.Vendor.Tables, d.Vendor.Tables
	if t.Shifts == "" {
		t.Shifts = dt.Shifts
	}
	if t.Availability == "" {
		t.Availability = dt.Availability
	}
	if t.Employees == "" {
		t.Employees = dt.Employees
	}
	if t.Tags == "" {
		t.Tags = dt.Tags
	}

	if c.Refresh.Cooldown <= 0 {
		c.Refresh.Cooldown = d.Refresh.Cooldown
	}
	if c.Cache.EmployeesTTL <= 0 {
		c.Cache.EmployeesTTL = d.Cache.EmployeesTTL
	}
	if c.Cache.TagsTTL <= 0 {
		c.Cache.TagsTTL = d.Cache.TagsTTL
	}
	if c.Cache.Retries < 0 {
		c.Cache.Retries = d.Cache.Retries
	}
	if c.Cache.RetryDelay <= 0 {
		c.Cache.RetryDelay = d.Cache.RetryDelay
	}
	if c.Cache.QuotaBytes < 0 {
		c.Cache.QuotaBytes = 0
	}
	if c.Schedule.AvailabilityBufferDays < 0 {
		c.Schedule.AvailabilityBufferDays = d.Schedule.AvailabilityBufferDays
	}
	if c.Schedule.CopyDelay < 0 {
		c.Schedule.CopyDelay = d.Schedule.CopyDelay
	}
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	if c.Vendor.AppID == "" || c.Vendor.AppKey == "" || c.Vendor.AppSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Credentials returns the vendor credentials.
func (c *Config) Credentials() tadabase.Credentials {
	return tadabase.Credentials{AppID: c.Vendor.AppID, AppKey: c.Vendor.AppKey, AppSecret: c.Vendor.AppSecret}
}

// RetryPolicy returns the cache retry policy.
func (c *Config) RetryPolicy() cache.Policy {
	return cache.Policy{MaxRetries: c.Cache.Retries, Delay: c.Cache.RetryDelay}
}

// ServiceConfig returns the scheduler tunables.
func (c *Config) ServiceConfig() scheduler.Config {
	return scheduler.Config{
		AvailabilityBufferDays: c.Schedule.AvailabilityBufferDays,
		EmployeesTTL:           c.Cache.EmployeesTTL,
		TagsTTL:                c.Cache.TagsTTL,
		CopyDelay:              c.Schedule.CopyDelay,
	}
}

// Load reads path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	// Decode over the defaults so omitted keys keep them.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".scheduler-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// applyEnvOverrides applies SCHEDULER_* environment variables.
func (c *Config) applyEnvOverrides() {
	str := map[string]*string{
		"SCHEDULER_LISTEN":       &c.Listen,
		"SCHEDULER_DB":           &c.DBPath,
		"SCHEDULER_LOG_LEVEL":    &c.LogLevel,
		"SCHEDULER_VENDOR_URL":   &c.Vendor.BaseURL,
		"SCHEDULER_APP_ID":       &c.Vendor.AppID,
		"SCHEDULER_APP_KEY":      &c.Vendor.AppKey,
		"SCHEDULER_APP_SECRET":   &c.Vendor.AppSecret,
		"SCHEDULER_DEPARTMENT":   &c.Vendor.Department,
		"SCHEDULER_REFRESH_CRON": &c.Refresh.Cron,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SCHEDULER_REFRESH_COOLDOWN": &c.Refresh.Cooldown,
		"SCHEDULER_COPY_DELAY":       &c.Schedule.CopyDelay,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv("SCHEDULER_CACHE_QUOTA"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.QuotaBytes = n
		}
	}
}
