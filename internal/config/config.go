package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// Environment variable names that override file values.
const (
	EnvConfigPath  = "HRFEED_CONFIG"
	EnvDBPath      = "HRFEED_DB_PATH"
	EnvHTTPBind    = "HRFEED_HTTP_BIND"
	EnvAPIEndpoint = "HRFEED_API_ENDPOINT"
	EnvMCPEndpoint = "HRFEED_MCP_ENDPOINT"
	EnvTimeZone    = "HRFEED_TIME_ZONE"
	EnvLogLevel    = "HRFEED_LOG_LEVEL"
	EnvAutoAbsence = "HRFEED_AUTO_ABSENCE"
)

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Activity  ActivityConfig  `toml:"activity"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// SchedulerConfig configures the absence-marking job. The default_* values seed
// attendance settings until an administrator saves their own.
type SchedulerConfig struct {
	TimeZone           string `toml:"time_zone"`
	RunTimeout         string `toml:"run_timeout"`
	DefaultEnabled     bool   `toml:"default_enabled"`
	DefaultMarkingTime string `toml:"default_marking_time"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ActivityConfig struct {
	DefaultPageSize int `toml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Scheduler: SchedulerConfig{
			TimeZone:           "Asia/Kolkata",
			RunTimeout:         "5m",
			DefaultEnabled:     false,
			DefaultMarkingTime: domain.DefaultAbsenceMarkingTime,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".hrfeed/log",
			},
		},
		Activity: ActivityConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, errors.Wrap(err, "read config")
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode toml")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load env file %q", path)
	}
	return nil
}

// ApplyEnv overlays HRFEED_* environment values read through lookup.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvDBPath, &c.Database.Path)
	str(EnvHTTPBind, &c.Server.HTTPBind)
	str(EnvAPIEndpoint, &c.Server.APIEndpoint)
	str(EnvMCPEndpoint, &c.Server.MCPEndpoint)
	str(EnvTimeZone, &c.Scheduler.TimeZone)
	str(EnvLogLevel, &c.Logging.Level)
	if v, ok := lookup(EnvAutoAbsence); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", EnvAutoAbsence)
		}
		c.Scheduler.DefaultEnabled = enabled
	}
	return c, nil
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.RunTimeout(); err != nil {
		return err
	}
	if _, err := domain.ParseClockTime(c.Scheduler.DefaultMarkingTime); err != nil {
		return errors.Wrap(err, "invalid scheduler.default_marking_time")
	}
	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Activity.DefaultPageSize <= 0 {
		return errors.New("activity.default_page_size must be > 0")
	}
	if c.Activity.MaxPageSize < c.Activity.DefaultPageSize {
		return errors.Newf("activity.max_page_size must be >= default_page_size (%d)", c.Activity.DefaultPageSize)
	}
	return nil
}

// Location resolves the scheduler time zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Scheduler.TimeZone)
	if name == "" {
		return nil, errors.New("scheduler.time_zone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid scheduler.time_zone %q", name)
	}
	return loc, nil
}

// RunTimeout parses the per-firing timeout.
func (c Config) RunTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Scheduler.RunTimeout))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid scheduler.run_timeout %q", c.Scheduler.RunTimeout)
	}
	if d <= 0 {
		return 0, errors.Newf("scheduler.run_timeout must be > 0, got %s", d)
	}
	return d, nil
}

// DefaultAttendanceSettings returns the settings used until a record is saved.
func (c Config) DefaultAttendanceSettings() domain.AttendanceSettings {
	return domain.AttendanceSettings{
		AutoAbsenceEnabled: c.Scheduler.DefaultEnabled,
		AbsenceMarkingTime: c.Scheduler.DefaultMarkingTime,
	}
}
