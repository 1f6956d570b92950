// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/boardwatch/internal/storage/local"
)

// DefaultBoardURL is the hot-list endpoint harvested when none is configured.
const DefaultBoardURL = "https://www.zhihu.com/api/v4/creators/rank/hot?domain=0&period=hour"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Session modes.
const (
	SessionHTTP    = "http"
	SessionBrowser = "browser"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Session  SessionConfig  `mapstructure:"session"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// HarvestConfig governs cycle cadence and politeness.
type HarvestConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PerItemDelaySeconds int `mapstructure:"per_item_delay_seconds"`
	ItemCap             int `mapstructure:"item_cap"`
}

// UpstreamConfig describes the board endpoint and request decoration.
type UpstreamConfig struct {
	BoardURL       string            `mapstructure:"board_url"`
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
}

// SessionConfig selects how the authenticated context is provided.
type SessionConfig struct {
	Mode          string `mapstructure:"mode"`
	UserDataDir   string `mapstructure:"user_data_dir"`
	Headless      bool   `mapstructure:"headless"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the ledger.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig sets where raw board snapshots are written.
type ArchiveConfig struct {
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// NotifyConfig holds metadata for crawl-closed notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be published.
func (n NotifyConfig) Enabled() bool {
	return n.ProjectID != "" && n.TopicName != ""
}

// ServerConfig controls the status HTTP surface.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls zap output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOARDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.poll_interval_seconds", 600)
	v.SetDefault("harvest.per_item_delay_seconds", 2)
	v.SetDefault("harvest.item_cap", 0)
	v.SetDefault("upstream.board_url", DefaultBoardURL)
	v.SetDefault("upstream.user_agent", "boardwatch/0.1")
	v.SetDefault("upstream.headers", map[string]string{})
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("session.mode", SessionHTTP)
	v.SetDefault("session.user_data_dir", "")
	v.SetDefault("session.headless", true)
	v.SetDefault("session.nav_timeout_seconds", 30)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", "boardwatch.db")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "boards")
	v.SetDefault("archive.local.base_dir", "data/boards")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic_name", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.PollIntervalSeconds <= 0 {
		return fmt.Errorf("harvest.poll_interval_seconds must be > 0")
	}
	if c.Harvest.PerItemDelaySeconds < 0 {
		return fmt.Errorf("harvest.per_item_delay_seconds must be >= 0")
	}
	if c.Harvest.ItemCap < 0 {
		return fmt.Errorf("harvest.item_cap must be >= 0")
	}
	if strings.TrimSpace(c.Upstream.BoardURL) == "" {
		return fmt.Errorf("upstream.board_url is required")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	switch c.Session.Mode {
	case SessionHTTP:
	case SessionBrowser:
		if c.Session.UserDataDir == "" {
			return fmt.Errorf("session.user_data_dir must be set in browser mode")
		}
		if c.Session.NavTimeoutSec <= 0 {
			return fmt.Errorf("session.nav_timeout_seconds must be > 0")
		}
	default:
		return fmt.Errorf("session.mode %q is not supported", c.Session.Mode)
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for driver %s", c.DB.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, "":
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if (c.Notify.ProjectID == "") != (c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name must be set together")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// PollInterval returns the cycle cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Harvest.PollIntervalSeconds) * time.Second
}

// ItemDelay returns the pause between detail fetches.
func (c Config) ItemDelay() time.Duration {
	return time.Duration(c.Harvest.PerItemDelaySeconds) * time.Second
}

// RequestTimeout returns the per-request upstream timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Session.NavTimeoutSec) * time.Second
}

// RequestHeaders converts the configured headers into canonical form.
// Viper lowercases map keys, so canonicalization restores the usual casing.
func (c Config) RequestHeaders() http.Header {
	headers := make(http.Header, len(c.Upstream.Headers))
	for key, value := range c.Upstream.Headers {
		headers.Set(key, value)
	}
	return headers
}
