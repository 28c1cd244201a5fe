package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// noEnvFile points Load at an env file that does not exist so a stray .env
// in the package directory cannot leak into tests.
func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- Defaults ---

func TestDefaults_Valid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.Mirror.Backend != MirrorSQLite {
		t.Errorf("Mirror.Backend = %q, want sqlite", d.Mirror.Backend)
	}
	if d.SideEffectTimeout != 5*time.Second {
		t.Errorf("SideEffectTimeout = %v, want 5s", d.SideEffectTimeout)
	}
	if d.Context.MaxHistory != 200 {
		t.Errorf("Context.MaxHistory = %d, want 200", d.Context.MaxHistory)
	}
}

// --- Load ---

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeFile(t, "config.yaml", `
data_dir: `+dataDir+`
log:
  level: debug
  format: json
mirror:
  backend: none
side_effect_timeout: 750ms
context:
  max_history: 0
  idle_ttl: 1h
`)

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dataDir {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Mirror.Backend != MirrorNone {
		t.Errorf("Mirror.Backend = %q", cfg.Mirror.Backend)
	}
	if cfg.Mirror.MaxSearchResults != 50 {
		t.Errorf("unset key lost its default: %d", cfg.Mirror.MaxSearchResults)
	}
	if cfg.SideEffectTimeout != 750*time.Millisecond {
		t.Errorf("SideEffectTimeout = %v", cfg.SideEffectTimeout)
	}
	if cfg.Context.MaxHistory != 0 || cfg.Context.IdleTTL != time.Hour {
		t.Errorf("Context = %+v", cfg.Context)
	}
}

func TestLoad_MissingDefaultFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("", noEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mirror.Backend != MirrorSQLite {
		t.Errorf("Mirror.Backend = %q", cfg.Mirror.Backend)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t)); err == nil {
		t.Error("missing explicit config accepted")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "log:\n  level: debug\n")
	t.Setenv("AGENTRELAY_LOG_LEVEL", "warn")
	t.Setenv("AGENTRELAY_MIRROR_MAX_SEARCH_RESULTS", "7")
	t.Setenv("AGENTRELAY_SIDE_EFFECT_TIMEOUT", "2s")

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Mirror.MaxSearchResults != 7 {
		t.Errorf("MaxSearchResults = %d, want 7", cfg.Mirror.MaxSearchResults)
	}
	if cfg.SideEffectTimeout != 2*time.Second {
		t.Errorf("SideEffectTimeout = %v", cfg.SideEffectTimeout)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	env := writeFile(t, "test.env", "AGENTRELAY_METRICS_ADDR=127.0.0.1:9464\n")
	t.Cleanup(func() { os.Unsetenv("AGENTRELAY_METRICS_ADDR") })

	cfg, err := Load(writeFile(t, "c.yaml", "{}\n"), env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeFile(t, "c.yaml", "data_dir: ~/relay-data\n")

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != filepath.Join(home, "relay-data") {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Mirror.Backend = "qdrant" }, "mirror.backend"},
		{"redis without url", func(c *Config) { c.Mirror.Backend = MirrorRedis }, "redis.url"},
		{"redis with url", func(c *Config) { c.Mirror.Backend = MirrorRedis; c.Redis.URL = "redis://localhost:6379" }, ""},
		{"groupchat without url", func(c *Config) { c.GroupChat.Enabled = true }, "groupchat.enabled"},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative history", func(c *Config) { c.Context.MaxHistory = -1 }, "context.max_history"},
		{"negative search", func(c *Config) { c.Mirror.MaxSearchResults = -5 }, "max_search_results"},
		{"negative ttl", func(c *Config) { c.Context.IdleTTL = -time.Second }, "idle_ttl"},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	c := Defaults()
	c.Mirror.Backend = "bogus"
	c.Context.RecentWindow = -1
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"mirror.backend", "recent_window"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

// --- Save ---

func TestSave_ThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := Defaults()
	c.DataDir = t.TempDir()
	c.SideEffectTimeout = 3 * time.Second
	c.Context.IdleTTL = 90 * time.Minute
	c.Metrics.Addr = ":9464"

	if err := Save(&c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "side_effect_timeout: 3s") {
		t.Errorf("durations not human readable:\n%s", raw)
	}

	got, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SideEffectTimeout != c.SideEffectTimeout || got.Context.IdleTTL != c.Context.IdleTTL || got.Metrics.Addr != ":9464" {
		t.Errorf("loaded = %+v", got)
	}
}
