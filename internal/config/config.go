package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Sync struct {
		CronSpec            string `yaml:"cron_spec"`
		FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
		MinIntervalSeconds  int    `yaml:"min_interval_seconds"`
	} `yaml:"sync"`

	Search struct {
		MaxSegments int `yaml:"max_segments"`
		MaxResults  int `yaml:"max_results"`
	} `yaml:"search"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Dir           string `yaml:"dir"`
		IntervalHours int    `yaml:"interval_hours"`
		Keep          int    `yaml:"keep"`
	} `yaml:"backup"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/colivero.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) FetchTimeout() time.Duration {
	if c.Sync.FetchTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Sync.FetchTimeoutSeconds) * time.Second
}

func (c *Config) SyncMinInterval() time.Duration {
	if c.Sync.MinIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sync.MinIntervalSeconds) * time.Second
}

func (c *Config) SyncCronSpec() string {
	if c.Sync.CronSpec == "" {
		return "@every 1h"
	}
	return c.Sync.CronSpec
}

func (c *Config) SearchMaxSegments() int {
	if c.Search.MaxSegments <= 0 {
		return 3
	}
	return c.Search.MaxSegments
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupDir() string {
	if c.Backup.Dir == "" {
		return "data/backups"
	}
	return c.Backup.Dir
}

func (c *Config) SearchMaxResults() int {
	if c.Search.MaxResults <= 0 {
		return 10
	}
	return c.Search.MaxResults
}
