package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.TopCount != 10 || cfg.Pipeline.PopLevel != 30 || cfg.Pipeline.Workers != 4 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Cache.Backend != CacheMemory || cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Fetch.DetailMaxDelay != time.Second || cfg.Fetch.MaxDelay != 0 {
		t.Fatalf("unexpected delay defaults: %+v", cfg.Fetch)
	}
	if cfg.Export.Backend != ExportNone {
		t.Fatalf("expected export disabled, got %q", cfg.Export.Backend)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: warn
pipeline:
  top_count: 5
  pop_level: 12
  workers: 8
fetch:
  timeout: 45s
  min_delay: 100ms
  max_delay: 2s
  per_host_rps: 1.5
sources:
  user_agents_file: /etc/affiche/agents.txt
cache:
  backend: redis
  ttl: 1h
  redis:
    addr: localhost:6379
    db: 2
export:
  backend: gcs
  bucket: affiche-snapshots
  pubsub:
    project_id: my-project
    topic: snapshots
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Pipeline.TopCount != 5 || cfg.Pipeline.PopLevel != 12 || cfg.Pipeline.Workers != 8 {
		t.Fatalf("expected pipeline overrides, got %+v", cfg.Pipeline)
	}
	if cfg.Fetch.Timeout != 45*time.Second || cfg.Fetch.MinDelay != 100*time.Millisecond || cfg.Fetch.PerHostRPS != 1.5 {
		t.Fatalf("expected fetch overrides, got %+v", cfg.Fetch)
	}
	if cfg.Cache.Redis.Addr != "localhost:6379" || cfg.Cache.Redis.DB != 2 || cfg.Cache.TTL != time.Hour {
		t.Fatalf("expected redis cache, got %+v", cfg.Cache)
	}
	if cfg.Export.Bucket != "affiche-snapshots" || cfg.Export.PubSub.Topic != "snapshots" {
		t.Fatalf("expected export overrides, got %+v", cfg.Export)
	}
	if cfg.Sources.ListingURL == "" {
		t.Fatal("expected listing url default to survive file load")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AFFICHE_PIPELINE_POP_LEVEL", "55")
	t.Setenv("AFFICHE_CACHE_BACKEND", "postgres")
	t.Setenv("AFFICHE_CACHE_POSTGRES_DSN", "postgres://localhost/affiche")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.PopLevel != 55 {
		t.Fatalf("expected env pop level, got %d", cfg.Pipeline.PopLevel)
	}
	if cfg.Cache.Backend != CachePostgres || cfg.Cache.Postgres.DSN != "postgres://localhost/affiche" {
		t.Fatalf("expected env cache overrides, got %+v", cfg.Cache)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Pipeline: PipelineConfig{TopCount: 10, PopLevel: 30, Workers: 4},
		Fetch:    FetchConfig{Timeout: time.Second},
		Sources:  SourcesConfig{ListingURL: "https://l", SearchURL: "https://s"},
		Cache:    CacheConfig{Backend: CacheMemory, TTL: time.Hour},
		Export:   ExportConfig{Backend: ExportNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"invalid top count", func(c *Config) { c.Pipeline.TopCount = 0 }, "pipeline.top_count"},
		{"negative pop level", func(c *Config) { c.Pipeline.PopLevel = -1 }, "pipeline.pop_level"},
		{"invalid timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"inverted delays", func(c *Config) { c.Fetch.MinDelay = time.Second }, "fetch.max_delay"},
		{"inverted detail delays", func(c *Config) { c.Fetch.DetailMinDelay = time.Second }, "fetch.detail_max_delay"},
		{"missing listing", func(c *Config) { c.Sources.ListingURL = "" }, "sources.listing_url"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = CacheRedis }, "cache.redis.addr"},
		{"postgres without dsn", func(c *Config) { c.Cache.Backend = CachePostgres }, "cache.postgres.dsn"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"unknown export", func(c *Config) { c.Export.Backend = "s3" }, "export.backend"},
		{"local without dir", func(c *Config) { c.Export.Backend = ExportLocal }, "export.dir"},
		{"gcs without bucket", func(c *Config) { c.Export.Backend = ExportGCS }, "export.bucket"},
		{"topic without project", func(c *Config) { c.Export.PubSub.Topic = "t" }, "export.pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
