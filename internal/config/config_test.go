package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Sync.SuspendTimeout != 8*time.Second || cfg.Sync.DebounceWindow != 3*time.Second {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Remote.Driver != "sqlite" || cfg.Notify.Sink != "log" || cfg.Notify.SchedulerBuffer != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remindd.yaml")
	yamlDoc := []byte(`
data_dir: /var/lib/remindd
identity: alice@example.com
log_level: debug
timezone: UTC
remote:
  driver: postgres
  dsn: postgres://remindd@localhost/remindd
  poll_interval: 500ms
sync:
  suspend_timeout: 10s
jobs:
  resync_at: "04:15"
`)
	if err := os.WriteFile(path, yamlDoc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REMINDD_IDENTITY", "bob@example.com")
	t.Setenv("REMINDD_SCHEDULER_BUFFER", "128")
	t.Setenv("REMINDD_DEBOUNCE_WINDOW", "5s")
	t.Setenv("REMINDD_OFFLINE", "yes")
	t.Setenv("REMINDD_ECHO_TTL", "not-a-duration")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/remindd" || cfg.Remote.Driver != "postgres" {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
	if cfg.Remote.PollInterval != 500*time.Millisecond || cfg.Sync.SuspendTimeout != 10*time.Second {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Remote, cfg.Sync)
	}
	if cfg.Identity != "bob@example.com" || cfg.Notify.SchedulerBuffer != 128 || cfg.Sync.DebounceWindow != 5*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Offline {
		t.Fatal("expected offline from env")
	}
	if cfg.Sync.EchoTTL != 30*time.Second {
		t.Fatalf("bad env value must be ignored, got %s", cfg.Sync.EchoTTL)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("level = %v", cfg.SlogLevel())
	}
	if loc, err := cfg.Location(); err != nil || loc.String() != "UTC" {
		t.Fatalf("location = %v, %v", loc, err)
	}
	if cfg.Jobs.ResyncAt != "04:15" || cfg.Jobs.RefreshInterval != 15*time.Minute {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
}

func TestLoadOfflineAndJobsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remindd.yaml")
	yamlDoc := []byte("offline: true\njobs:\n  refresh_interval: 2m\n  resync_at: \"23:30\"\n")
	if err := os.WriteFile(path, yamlDoc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Offline {
		t.Fatal("offline not read from yaml")
	}
	if cfg.Jobs.RefreshInterval != 2*time.Minute || cfg.Jobs.ResyncAt != "23:30" {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("REMINDD_LOG_LEVEL=warn\nREMINDD_DATA_DIR="+dir+"\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("REMINDD_LOG_LEVEL", "")
	t.Setenv("REMINDD_DATA_DIR", "")
	os.Unsetenv("REMINDD_LOG_LEVEL")
	os.Unsetenv("REMINDD_DATA_DIR")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SlogLevel() != slog.LevelWarn || cfg.DataDir != dir {
		t.Fatalf("env file not applied: %+v", cfg)
	}
	if cfg.LocalPath() != filepath.Join(dir, "local.db") || cfg.RemoteDSN() != filepath.Join(dir, "remote.db") {
		t.Fatalf("paths: %s %s", cfg.LocalPath(), cfg.RemoteDSN())
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":    func(c *Config) { c.Remote.Driver = "mongo" },
		"postgres no dsn":   func(c *Config) { c.Remote.Driver = "postgres" },
		"telegram no token": func(c *Config) { c.Notify.Sink = "telegram" },
		"unknown sink":      func(c *Config) { c.Notify.Sink = "pager" },
		"bad level":         func(c *Config) { c.LogLevel = "chatty" },
		"bad timezone":      func(c *Config) { c.Timezone = "Mars/Olympus" },
		"empty data dir":    func(c *Config) { c.DataDir = " " },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestLoadMalformedYAMLIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("remote: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, ""); !apperr.IsKind(err, apperr.KindParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
