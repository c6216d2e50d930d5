// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// Export backends.
const (
	ExportNone  = "none"
	ExportLocal = "local"
	ExportGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Export   ExportConfig   `mapstructure:"export"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig sets the default run arguments and fan-out width.
type PipelineConfig struct {
	TopCount int `mapstructure:"top_count"`
	PopLevel int `mapstructure:"pop_level"`
	Workers  int `mapstructure:"workers"`
}

// FetchConfig shapes outbound requests. The plain delays apply to listing and
// search pages, the detail delays to film pages.
type FetchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	DetailMinDelay time.Duration `mapstructure:"detail_min_delay"`
	DetailMaxDelay time.Duration `mapstructure:"detail_max_delay"`
	PerHostRPS     float64       `mapstructure:"per_host_rps"`
	Burst          int           `mapstructure:"burst"`
}

// SourcesConfig locates the remote pages and identity lists.
type SourcesConfig struct {
	ListingURL       string `mapstructure:"listing_url"`
	SearchURL        string `mapstructure:"search_url"`
	ProxyProviderURL string `mapstructure:"proxy_provider_url"`
	ProxyToken       string `mapstructure:"proxy_token"`
	UserAgentsFile   string `mapstructure:"user_agents_file"`
}

// CacheConfig selects the cache store.
type CacheConfig struct {
	Backend  string         `mapstructure:"backend"`
	TTL      time.Duration  `mapstructure:"ttl"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig addresses a Redis cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PostgresConfig addresses a Postgres cache table.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig controls where crawl snapshots are written and announced.
type ExportConfig struct {
	Backend string       `mapstructure:"backend"`
	Dir     string       `mapstructure:"dir"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for snapshot notifications. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AFFICHE")
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

// every key needs a default so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("pipeline.top_count", 10)
	v.SetDefault("pipeline.pop_level", 30)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.min_delay", time.Duration(0))
	v.SetDefault("fetch.max_delay", time.Duration(0))
	v.SetDefault("fetch.detail_min_delay", time.Duration(0))
	v.SetDefault("fetch.detail_max_delay", time.Second)
	v.SetDefault("fetch.per_host_rps", 0.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("sources.listing_url", "https://www.afisha.ru/msk/schedule_cinema/")
	v.SetDefault("sources.search_url", "https://www.kinopoisk.ru/index.php")
	v.SetDefault("sources.proxy_provider_url", "http://www.freeproxy-list.ru/api/proxy")
	v.SetDefault("sources.proxy_token", "demo")
	v.SetDefault("sources.user_agents_file", "")
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "cache_entries")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("export.backend", ExportNone)
	v.SetDefault("export.dir", "snapshots")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "affiche")
	v.SetDefault("export.pubsub.project_id", "")
	v.SetDefault("export.pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.TopCount <= 0 {
		return fmt.Errorf("pipeline.top_count must be > 0")
	}
	if c.Pipeline.PopLevel < 0 {
		return fmt.Errorf("pipeline.pop_level must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MinDelay < 0 || c.Fetch.MaxDelay < c.Fetch.MinDelay {
		return fmt.Errorf("fetch.max_delay must be >= fetch.min_delay >= 0")
	}
	if c.Fetch.DetailMinDelay < 0 || c.Fetch.DetailMaxDelay < c.Fetch.DetailMinDelay {
		return fmt.Errorf("fetch.detail_max_delay must be >= fetch.detail_min_delay >= 0")
	}
	if c.Sources.ListingURL == "" || c.Sources.SearchURL == "" {
		return fmt.Errorf("sources.listing_url and sources.search_url must be set")
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	return c.Export.validate()
}

func (c CacheConfig) validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	switch c.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must be set when cache.backend is redis")
		}
	case CachePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set when cache.backend is postgres")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, redis, postgres", c.Backend)
	}
	return nil
}

func (c ExportConfig) validate() error {
	switch c.Backend {
	case ExportNone:
	case ExportLocal:
		if c.Dir == "" {
			return fmt.Errorf("export.dir must be set when export.backend is local")
		}
	case ExportGCS:
		if c.Bucket == "" {
			return fmt.Errorf("export.bucket must be set when export.backend is gcs")
		}
	default:
		return fmt.Errorf("export.backend %q is not one of none, local, gcs", c.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("export.pubsub.project_id must be set when export.pubsub.topic is set")
	}
	return nil
}
