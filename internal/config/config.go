package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"calplan/internal/model"
	"calplan/internal/schedule"
)

const (
	defaultListen    = "127.0.0.1:8080"
	defaultLogLevel  = "info"
	defaultStorePath = "calplan-events.json"
	defaultProdID    = "-//calplan//calendar export//EN"
	defaultFuzzy     = 0.85

	envPrefix = "CALPLAN_"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "json" (default) or "sqlite".
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// ExportConfig controls the scheduled ICS export run by `calplan serve`.
type ExportConfig struct {
	// Cron is a standard 5-field schedule (e.g. "0 * * * *"). Empty disables
	// the job.
	Cron   string `yaml:"cron" json:"cron"`
	Path   string `yaml:"path" json:"path"`
	ProdID string `yaml:"prod_id" json:"prod_id"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	Store StoreConfig `yaml:"store" json:"store"`

	// RecurrenceDefaults is the end date applied to recurring events created
	// without one.
	RecurrenceDefaults schedule.EndDatePolicy `yaml:"recurrence_defaults" json:"recurrence_defaults"`

	Export ExportConfig `yaml:"export" json:"export"`

	// ImportCacheDir holds ETag/Last-Modified caches for `import --url`.
	// Empty disables caching.
	ImportCacheDir string `yaml:"import_cache_dir" json:"import_cache_dir"`

	FuzzySearch    bool    `yaml:"fuzzy_search" json:"fuzzy_search"`
	FuzzyThreshold float32 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`

	// ColorFilters is the color set shown when a list request names none.
	ColorFilters []model.Color `yaml:"color_filters" json:"color_filters"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:             defaultListen,
		LogLevel:           defaultLogLevel,
		Store:              StoreConfig{Driver: "json", Path: defaultStorePath},
		RecurrenceDefaults: schedule.DefaultEndDatePolicy(),
		Export:             ExportConfig{ProdID: defaultProdID},
		FuzzySearch:        true,
		FuzzyThreshold:     defaultFuzzy,
		ColorFilters:       append([]model.Color(nil), model.Palette...),
	}
}

// Normalize fills in missing or invalid values so partially-filled configs
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	switch strings.ToLower(c.Store.Driver) {
	case "json", "sqlite":
		c.Store.Driver = strings.ToLower(c.Store.Driver)
	default:
		c.Store.Driver = "json"
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}

	d := schedule.DefaultEndDatePolicy()
	if c.RecurrenceDefaults.DailyMonths <= 0 {
		c.RecurrenceDefaults.DailyMonths = d.DailyMonths
	}
	if c.RecurrenceDefaults.WeeklyMonths <= 0 {
		c.RecurrenceDefaults.WeeklyMonths = d.WeeklyMonths
	}
	if c.RecurrenceDefaults.MonthlyMonths <= 0 {
		c.RecurrenceDefaults.MonthlyMonths = d.MonthlyMonths
	}
	if c.RecurrenceDefaults.CustomMonths <= 0 {
		c.RecurrenceDefaults.CustomMonths = d.CustomMonths
	}

	if c.Export.ProdID == "" {
		c.Export.ProdID = defaultProdID
	}
	if c.Export.Cron != "" && c.Export.Path == "" {
		c.Export.Path = strings.TrimSuffix(c.Store.Path, filepath.Ext(c.Store.Path)) + ".ics"
	}

	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		c.FuzzyThreshold = defaultFuzzy
	}

	colors := c.ColorFilters[:0]
	for _, col := range c.ColorFilters {
		if col != "" && col.Valid() {
			colors = append(colors, col)
		}
	}
	if len(colors) == 0 {
		colors = append([]model.Color(nil), model.Palette...)
	}
	c.ColorFilters = colors

	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overwritten.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from CALPLAN_* environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnvOrDefault(envPrefix+"LISTEN", c.Listen)
	c.LogLevel = getEnvOrDefault(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.Store.Driver = getEnvOrDefault(envPrefix+"STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnvOrDefault(envPrefix+"STORE_PATH", c.Store.Path)
	c.Export.Cron = getEnvOrDefault(envPrefix+"EXPORT_CRON", c.Export.Cron)
	c.Export.Path = getEnvOrDefault(envPrefix+"EXPORT_PATH", c.Export.Path)
	c.ImportCacheDir = getEnvOrDefault(envPrefix+"IMPORT_CACHE_DIR", c.ImportCacheDir)

	if v := getEnvOrDefault(envPrefix+"FUZZY_SEARCH", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FuzzySearch = b
		}
	}

	user := getEnvOrDefault(envPrefix+"BASIC_AUTH_USERNAME", "")
	pass := getEnvOrDefault(envPrefix+"BASIC_AUTH_PASSWORD", "")
	if user != "" || pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}

	c.Normalize()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// Load reads the YAML config at path and applies environment overrides.
//
// On first run the file does not exist: a default config is written with
// 0600 perms and returned. Environment overrides are never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg atomically (temp file in the same directory, then rename)
// with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
