// Package config loads tsync settings.
//
// Sources, lowest precedence first:
//
//	defaults          Defaults(dir)
//	config file       ~/.tsync/config.toml (TOML)
//	environment       TSYNC_<SECTION>_<KEY>, e.g. TSYNC_SYNC_INTERVAL=30s
//	command flags     bound by the CLI through Loader.Viper()
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TSYNC"

// Remote kinds.
const (
	RemoteSQL         = "sql"
	RemoteGoogleTasks = "googletasks"
)

// Config represents the full tsync configuration
type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Log          LogConfig          `mapstructure:"log"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	OpLog        OpLogConfig        `mapstructure:"oplog"`
}

// StoreConfig locates the local SQLite store
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig selects and configures the remote store
type RemoteConfig struct {
	Kind string `mapstructure:"kind"` // sql or googletasks

	// UserID is the parent id of every list
	UserID string `mapstructure:"user_id"`

	// sql
	Dialect string `mapstructure:"dialect"` // postgres or libsql
	DSN     string `mapstructure:"dsn"`

	// googletasks
	OAuthClient string `mapstructure:"oauth_client"`
	Token       string `mapstructure:"token"`
}

// SyncConfig tunes the engine and the background sweeper
type SyncConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Interval     time.Duration `mapstructure:"interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

// ConnectivityConfig configures the connectivity oracles
type ConnectivityConfig struct {
	// ProbeAddress is dialled to test reachability; empty disables probing
	ProbeAddress  string        `mapstructure:"probe_address"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// OfflineFlag forces offline mode while the file exists
	OfflineFlag string `mapstructure:"offline_flag"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty logs to stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DashboardConfig configures the WebSocket dashboard
type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// OpLogConfig locates the daemon's activity log
type OpLogConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultDir returns ~/.tsync, or .tsync when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tsync"
	}
	return filepath.Join(home, ".tsync")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

// DefaultConfig returns the defaults rooted at DefaultDir.
func DefaultConfig() *Config {
	return Defaults(DefaultDir())
}

// Defaults returns the default configuration with every file under dir.
func Defaults(dir string) *Config {
	return &Config{
		Store: StoreConfig{Path: filepath.Join(dir, "tsync.db")},
		Remote: RemoteConfig{
			Kind:        RemoteSQL,
			UserID:      "default",
			Dialect:     "libsql",
			DSN:         "file:" + filepath.Join(dir, "remote.db"),
			OAuthClient: filepath.Join(dir, "credentials.json"),
			Token:       filepath.Join(dir, "token.json"),
		},
		Sync: SyncConfig{
			FetchTimeout: 8 * time.Second,
			Interval:     time.Minute,
			Debounce:     500 * time.Millisecond,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 15 * time.Second,
			OfflineFlag:   filepath.Join(dir, "offline"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Host: "127.0.0.1", Port: 8080},
		OpLog:     OpLogConfig{Path: filepath.Join(dir, "oplog.jsonl")},
	}
}

// Settings flattens the configuration into sections of plain values, the
// shape written to config files and shown by `tsync config show`.
func (c *Config) Settings() map[string]map[string]any {
	return map[string]map[string]any{
		"store": {"path": c.Store.Path},
		"remote": {
			"kind":         c.Remote.Kind,
			"user_id":      c.Remote.UserID,
			"dialect":      c.Remote.Dialect,
			"dsn":          c.Remote.DSN,
			"oauth_client": c.Remote.OAuthClient,
			"token":        c.Remote.Token,
		},
		"sync": {
			"fetch_timeout": c.Sync.FetchTimeout.String(),
			"interval":      c.Sync.Interval.String(),
			"debounce":      c.Sync.Debounce.String(),
		},
		"connectivity": {
			"probe_address":  c.Connectivity.ProbeAddress,
			"probe_interval": c.Connectivity.ProbeInterval.String(),
			"offline_flag":   c.Connectivity.OfflineFlag,
		},
		"log": {
			"level":        c.Log.Level,
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
		},
		"dashboard": {"host": c.Dashboard.Host, "port": c.Dashboard.Port},
		"oplog":     {"path": c.OpLog.Path},
	}
}

// Validate checks values that cannot be fixed up with a default.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.Remote.Kind {
	case RemoteSQL:
		if c.Remote.Dialect == "" {
			return fmt.Errorf("remote.dialect is required for the sql remote")
		}
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the sql remote")
		}
	case RemoteGoogleTasks:
		if c.Remote.OAuthClient == "" || c.Remote.Token == "" {
			return fmt.Errorf("remote.oauth_client and remote.token are required for the googletasks remote")
		}
	default:
		return fmt.Errorf("unknown remote.kind %q (want %s or %s)", c.Remote.Kind, RemoteSQL, RemoteGoogleTasks)
	}
	if c.Remote.UserID == "" {
		return fmt.Errorf("remote.user_id is required")
	}
	for key, d := range map[string]time.Duration{
		"sync.fetch_timeout":          c.Sync.FetchTimeout,
		"sync.interval":               c.Sync.Interval,
		"sync.debounce":               c.Sync.Debounce,
		"connectivity.probe_interval": c.Connectivity.ProbeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", key, d)
		}
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// Loader merges defaults, a config file, the environment and bound flags.
type Loader struct {
	v   *viper.Viper
	dir string
}

// NewLoader creates a loader whose defaults live under dir (DefaultDir when
// empty).
func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = DefaultDir()
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees environment overrides.
	for section, values := range Defaults(dir).Settings() {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
	return &Loader{v: v, dir: dir}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path (DefaultPath under the loader's dir when empty) and returns
// the merged, validated configuration. A missing file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(l.dir, "config.toml")
	}
	if _, err := os.Stat(path); err == nil {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file Load read, or "" when none was found.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Store.Path,
		&c.Remote.OAuthClient,
		&c.Remote.Token,
		&c.Connectivity.OfflineFlag,
		&c.Log.File,
		&c.OpLog.Path,
	} {
		*p = ExpandHome(*p)
	}
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
