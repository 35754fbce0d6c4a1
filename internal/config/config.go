package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

const envPrefix = "REMINDD_"

// Config is the resolved daemon configuration. Offline keeps every change
// local and nothing connects to the remote store.
type Config struct {
	DataDir  string       `yaml:"data_dir"`
	Identity string       `yaml:"identity"`
	LogLevel string       `yaml:"log_level"`
	Timezone string       `yaml:"timezone"`
	Offline  bool         `yaml:"offline"`
	Remote   RemoteConfig `yaml:"remote"`
	Sync     SyncConfig   `yaml:"sync"`
	Notify   NotifyConfig `yaml:"notify"`
	Jobs     JobsConfig   `yaml:"jobs"`
	Auth     AuthConfig   `yaml:"auth"`
}

// RemoteConfig selects the shared store. Driver is memory, sqlite or
// postgres.
type RemoteConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SyncConfig struct {
	SuspendTimeout time.Duration `yaml:"suspend_timeout"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
	EchoTTL        time.Duration `yaml:"echo_ttl"`
}

// NotifyConfig selects where reminders go. Sink is log or telegram.
type NotifyConfig struct {
	Sink            string `yaml:"sink"`
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
	SchedulerBuffer int    `yaml:"scheduler_buffer"`
}

type JobsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ResyncAt        string        `yaml:"resync_at"` // HH:MM local time of the nightly full resolve
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Timezone: "Local",
		Remote: RemoteConfig{
			Driver:       "sqlite",
			PollInterval: time.Second,
		},
		Sync: SyncConfig{
			SuspendTimeout: 8 * time.Second,
			DebounceWindow: 3 * time.Second,
			EchoTTL:        30 * time.Second,
		},
		Notify: NotifyConfig{
			Sink:            "log",
			SchedulerBuffer: 64,
		},
		Jobs: JobsConfig{
			RefreshInterval: 15 * time.Minute,
			ResyncAt:        "03:00",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then REMINDD_* variables. envFile, when
// present on disk, is loaded into the environment first without overriding
// variables that are already set.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Wrap(apperr.KindParse, "parse config "+path, err)
		}
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns a copy of base with REMINDD_* overrides applied. Values
// that do not parse are ignored.
func FromEnv(base *Config) *Config {
	cfg := *base
	if v, ok := getEnvString("DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := getEnvString("IDENTITY"); ok {
		cfg.Identity = v
	}
	if v, ok := getEnvString("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnvString("TIMEZONE"); ok {
		cfg.Timezone = v
	}
	if v, ok := getEnvBool("OFFLINE"); ok {
		cfg.Offline = v
	}
	if v, ok := getEnvString("REMOTE_DRIVER"); ok {
		cfg.Remote.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvString("REMOTE_DSN"); ok {
		cfg.Remote.DSN = v
	}
	if v, ok := getEnvDuration("REMOTE_POLL_INTERVAL"); ok && v > 0 {
		cfg.Remote.PollInterval = v
	}
	if v, ok := getEnvDuration("SUSPEND_TIMEOUT"); ok && v > 0 {
		cfg.Sync.SuspendTimeout = v
	}
	if v, ok := getEnvDuration("DEBOUNCE_WINDOW"); ok && v > 0 {
		cfg.Sync.DebounceWindow = v
	}
	if v, ok := getEnvDuration("ECHO_TTL"); ok && v > 0 {
		cfg.Sync.EchoTTL = v
	}
	if v, ok := getEnvString("NOTIFY_SINK"); ok {
		cfg.Notify.Sink = strings.ToLower(v)
	}
	if v, ok := getEnvString("TELEGRAM_TOKEN"); ok {
		cfg.Notify.TelegramToken = v
	}
	if v, ok := getEnvInt64("TELEGRAM_CHAT_ID"); ok {
		cfg.Notify.TelegramChatID = v
	}
	if v, ok := getEnvInt("SCHEDULER_BUFFER"); ok && v > 0 {
		cfg.Notify.SchedulerBuffer = v
	}
	if v, ok := getEnvDuration("REFRESH_INTERVAL"); ok && v > 0 {
		cfg.Jobs.RefreshInterval = v
	}
	if v, ok := getEnvString("RESYNC_AT"); ok {
		cfg.Jobs.ResyncAt = v
	}
	if v, ok := getEnvString("JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	return &cfg
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperr.Newf(apperr.KindValidation, "config", format, args...)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return invalid("data_dir is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if _, err := c.Location(); err != nil {
		return invalid("timezone %q: %v", c.Timezone, err)
	}
	switch c.Remote.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Remote.DSN == "" {
			return invalid("remote.dsn is required for postgres")
		}
	default:
		return invalid("unknown remote driver %q", c.Remote.Driver)
	}
	switch c.Notify.Sink {
	case "log":
	case "telegram":
		if c.Notify.TelegramToken == "" || c.Notify.TelegramChatID == 0 {
			return invalid("telegram sink needs telegram_token and telegram_chat_id")
		}
	default:
		return invalid("unknown notify sink %q", c.Notify.Sink)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) LocalPath() string {
	return filepath.Join(c.DataDir, "local.db")
}

// RemoteDSN is the configured DSN, or a file next to the local store for the
// sqlite driver.
func (c *Config) RemoteDSN() string {
	if c.Remote.DSN != "" || c.Remote.Driver != "sqlite" {
		return c.Remote.DSN
	}
	return filepath.Join(c.DataDir, "remote.db")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "remindd")
	}
	return ".remindd"
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + name))
	if raw == "" {
		return "", false
	}
	return raw, true
}

func getEnvInt(name string) (int, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvInt64(name string) (int64, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
