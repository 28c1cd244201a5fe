// Package config loads agentrelay settings from, in increasing precedence:
// built-in defaults, a YAML file, a .env file, and AGENTRELAY_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, with dots in the
// key replaced by underscores: mirror.backend -> AGENTRELAY_MIRROR_BACKEND.
const EnvPrefix = "AGENTRELAY"

// Mirror backends.
const (
	MirrorSQLite = "sqlite"
	MirrorRedis  = "redis"
	MirrorNone   = "none"
)

// Config is the full agentrelay configuration.
type Config struct {
	DataDir           string          `yaml:"data_dir" mapstructure:"data_dir"`
	Log               LogConfig       `yaml:"log" mapstructure:"log"`
	Mirror            MirrorConfig    `yaml:"mirror" mapstructure:"mirror"`
	Redis             RedisConfig     `yaml:"redis" mapstructure:"redis"`
	GroupChat         GroupChatConfig `yaml:"groupchat" mapstructure:"groupchat"`
	SideEffectTimeout time.Duration   `yaml:"side_effect_timeout" mapstructure:"side_effect_timeout"`
	Context           ContextConfig   `yaml:"context" mapstructure:"context"`
	Metrics           MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "console" or "json"
}

// MirrorConfig selects where messages are mirrored for search.
type MirrorConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	MaxBodyLength    int    `yaml:"max_body_length" mapstructure:"max_body_length"`
	MaxSearchResults int    `yaml:"max_search_results" mapstructure:"max_search_results"`
}

// RedisConfig is shared by the Redis mirror and the group-chat backend.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// GroupChatConfig toggles the Redis pub/sub group-chat backend.
type GroupChatConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	ChannelPrefix string `yaml:"channel_prefix" mapstructure:"channel_prefix"`
}

// ContextConfig tunes the context bridge.
type ContextConfig struct {
	MaxHistory   int           `yaml:"max_history" mapstructure:"max_history"` // 0 = unbounded
	IdleTTL      time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl"`       // 0 = never expire
	RecentWindow int           `yaml:"recent_window" mapstructure:"recent_window"`
}

// MetricsConfig enables the HTTP side listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultDir returns ~/.agentrelay.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentrelay"
	}
	return filepath.Join(home, ".agentrelay")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir: DefaultDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Mirror: MirrorConfig{
			Backend:          MirrorSQLite,
			MaxBodyLength:    8000,
			MaxSearchResults: 50,
		},
		GroupChat: GroupChatConfig{
			ChannelPrefix: "agentrelay",
		},
		SideEffectTimeout: 5 * time.Second,
		Context: ContextConfig{
			MaxHistory:   200,
			IdleTTL:      24 * time.Hour,
			RecentWindow: 5,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("mirror.backend", d.Mirror.Backend)
	v.SetDefault("mirror.max_body_length", d.Mirror.MaxBodyLength)
	v.SetDefault("mirror.max_search_results", d.Mirror.MaxSearchResults)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("groupchat.enabled", d.GroupChat.Enabled)
	v.SetDefault("groupchat.channel_prefix", d.GroupChat.ChannelPrefix)
	v.SetDefault("side_effect_timeout", d.SideEffectTimeout)
	v.SetDefault("context.max_history", d.Context.MaxHistory)
	v.SetDefault("context.idle_ttl", d.Context.IdleTTL)
	v.SetDefault("context.recent_window", d.Context.RecentWindow)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads the configuration. An empty path falls back to DefaultPath and
// tolerates its absence; an explicit path must exist. envFiles defaults to
// ".env" in the working directory, and missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}

	switch c.Mirror.Backend {
	case MirrorSQLite, MirrorNone:
	case MirrorRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("mirror.backend redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("mirror.backend %q: want sqlite, redis or none", c.Mirror.Backend))
	}
	if c.GroupChat.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("groupchat.enabled requires redis.url"))
	}

	if c.Mirror.MaxBodyLength < 0 {
		errs = append(errs, errors.New("mirror.max_body_length must be >= 0"))
	}
	if c.Mirror.MaxSearchResults < 0 {
		errs = append(errs, errors.New("mirror.max_search_results must be >= 0"))
	}
	if c.SideEffectTimeout < 0 {
		errs = append(errs, errors.New("side_effect_timeout must be >= 0"))
	}
	if c.Context.MaxHistory < 0 {
		errs = append(errs, errors.New("context.max_history must be >= 0"))
	}
	if c.Context.IdleTTL < 0 {
		errs = append(errs, errors.New("context.idle_ttl must be >= 0"))
	}
	if c.Context.RecentWindow < 0 {
		errs = append(errs, errors.New("context.recent_window must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// fileConfig mirrors Config with durations written as strings ("5s").
type fileConfig struct {
	DataDir           string          `yaml:"data_dir"`
	Log               LogConfig       `yaml:"log"`
	Mirror            MirrorConfig    `yaml:"mirror"`
	Redis             RedisConfig     `yaml:"redis"`
	GroupChat         GroupChatConfig `yaml:"groupchat"`
	SideEffectTimeout string          `yaml:"side_effect_timeout"`
	Context           struct {
		MaxHistory   int    `yaml:"max_history"`
		IdleTTL      string `yaml:"idle_ttl"`
		RecentWindow int    `yaml:"recent_window"`
	} `yaml:"context"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Write renders cfg as YAML to w.
func Write(w io.Writer, cfg *Config) error {
	data, err := marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshal(cfg *Config) ([]byte, error) {
	fc := fileConfig{
		DataDir:           cfg.DataDir,
		Log:               cfg.Log,
		Mirror:            cfg.Mirror,
		Redis:             cfg.Redis,
		GroupChat:         cfg.GroupChat,
		SideEffectTimeout: cfg.SideEffectTimeout.String(),
		Metrics:           cfg.Metrics,
	}
	fc.Context.MaxHistory = cfg.Context.MaxHistory
	fc.Context.IdleTTL = cfg.Context.IdleTTL.String()
	fc.Context.RecentWindow = cfg.Context.RecentWindow

	data, err := yaml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
