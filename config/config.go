package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metric is one daily metric that feeds the outcome score. A negative weight
// means lower values are better (pain).
type Metric struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

type Config struct {
	HTTPAddr    string   `yaml:"http_addr"`
	LogMode     string   `yaml:"log_mode"`
	CORSOrigins []string `yaml:"cors_origins"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	Engine EngineConfig `yaml:"engine"`
	Batch  BatchConfig  `yaml:"batch"`
}

type EngineConfig struct {
	RequiredCleanDays int           `yaml:"required_clean_days"`
	RetestCooldown    time.Duration `yaml:"retest_cooldown"`
	OutcomeRange      float64       `yaml:"outcome_range"`
	NoisyRule         string        `yaml:"noisy_rule"`
	Metrics           []Metric      `yaml:"metrics"`
}

type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	ActivityWindow   time.Duration `yaml:"activity_window"`
	UserTimeout      time.Duration `yaml:"user_timeout"`
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
}

const DefaultNoisyRule = `skipped || !has_outcome || "sick" in tags || "illness" in tags`

func Default() Config {
	return Config{
		HTTPAddr:    ":8090",
		LogMode:     "development",
		CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		DBDriver:    "sqlite",
		DBDSN:       "supplements.db",
		CacheTTL:    10 * time.Minute,
		Engine: EngineConfig{
			RequiredCleanDays: 12,
			RetestCooldown:    30 * 24 * time.Hour,
			OutcomeRange:      10,
			NoisyRule:         DefaultNoisyRule,
			Metrics: []Metric{
				{Name: "energy", Weight: 1},
				{Name: "sleep", Weight: 1},
				{Name: "pain", Weight: -1},
			},
		},
		Batch: BatchConfig{
			Concurrency:      4,
			ActivityWindow:   30 * 24 * time.Hour,
			UserTimeout:      30 * time.Second,
			ScheduleInterval: 24 * time.Hour,
		},
	}
}

// Load reads defaults, then the yaml file at path (if any), then env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogMode = envString("LOG_MODE", cfg.LogMode)
	if v := envString("CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.DBDriver = envString("SUPPLEMENTS_DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = envString("SUPPLEMENTS_DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.CacheTTL = envDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.Engine.RequiredCleanDays = envInt("REQUIRED_CLEAN_DAYS", cfg.Engine.RequiredCleanDays)
	cfg.Engine.NoisyRule = envString("NOISY_RULE", cfg.Engine.NoisyRule)
	cfg.Batch.Concurrency = envInt("BATCH_CONCURRENCY", cfg.Batch.Concurrency)
	cfg.Batch.UserTimeout = envDuration("BATCH_USER_TIMEOUT", cfg.Batch.UserTimeout)
	cfg.Batch.ScheduleInterval = envDuration("BATCH_SCHEDULE_INTERVAL", cfg.Batch.ScheduleInterval)
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported db_driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("config: db_dsn is required")
	}
	if c.Engine.OutcomeRange <= 0 {
		return fmt.Errorf("config: engine.outcome_range must be positive")
	}
	if len(c.Engine.Metrics) == 0 {
		return fmt.Errorf("config: engine.metrics must not be empty")
	}
	for _, m := range c.Engine.Metrics {
		if strings.TrimSpace(m.Name) == "" || m.Weight == 0 {
			return fmt.Errorf("config: metric %q needs a name and a non-zero weight", m.Name)
		}
	}
	if c.Engine.RetestCooldown < 0 {
		return fmt.Errorf("config: engine.retest_cooldown must not be negative")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("config: batch.concurrency must be at least 1")
	}
	if c.Batch.ActivityWindow <= 0 {
		return fmt.Errorf("config: batch.activity_window must be positive")
	}
	return nil
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
