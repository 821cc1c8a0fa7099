package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codescope.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODESCOPE_PORT")
	setString(&cfg.Server.CORSOrigin, "CODESCOPE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CODESCOPE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CODESCOPE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CODESCOPE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CODESCOPE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CODESCOPE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.Cache.MaxCostMB, "CODESCOPE_CACHE_MAX_COST_MB")
	setDuration(&cfg.Cache.TTL, "CODESCOPE_CACHE_TTL")
	setInt64(&cfg.Cache.NumCounter, "CODESCOPE_CACHE_NUM_COUNTERS")
	setString(&cfg.Logging.Level, "CODESCOPE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODESCOPE_LOG_SERVICE")
	setInt(&cfg.Retry.Attempts, "CODESCOPE_RETRY_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "CODESCOPE_RETRY_BASE_DELAY")
	setInt64(&cfg.Upload.MaxContentBytes, "CODESCOPE_UPLOAD_MAX_BYTES")
	setString(&cfg.OTel.Endpoint, "CODESCOPE_OTLP_ENDPOINT")
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		return fmt.Errorf("server.port %q is not numeric", cfg.Server.Port)
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn must not be empty")
	}
	if cfg.Postgres.MaxConns < cfg.Postgres.MinConns {
		return fmt.Errorf("postgres.max_conns (%d) below min_conns (%d)",
			cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	}
	if cfg.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be at least 1")
	}
	if cfg.Upload.MaxContentBytes <= 0 {
		return errors.New("upload.max_content_bytes must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
