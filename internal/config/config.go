package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rail-connection-check/internal/feed"
	"rail-connection-check/internal/publisher"
	"rail-connection-check/internal/rail"
)

type Config struct {
	DatabaseURL        string   `yaml:"database_url" validate:"required"`
	FeedURL            string   `yaml:"feed_url" validate:"omitempty,url"`
	FeedFile           string   `yaml:"feed_file"`
	IngestIntervalMin  int      `yaml:"ingest_interval_min" validate:"gt=0"`
	HTTPAddr           string   `yaml:"http_addr" validate:"required"`
	MetricsAddr        string   `yaml:"metrics_addr"`
	NATSURL            string   `yaml:"nats_url" validate:"omitempty,url"`
	NATSSubjectPrefix  string   `yaml:"nats_subject_prefix" validate:"required"`
	LogNATSSubjects    bool     `yaml:"log_nats_subjects"`
	DefaultTZ          string   `yaml:"default_tz" validate:"required,timezone"`
	CORSOrigins        []string `yaml:"cors_origins" validate:"min=1"`
	CompareCacheTTLSec int      `yaml:"compare_cache_ttl_sec" validate:"gte=0"`
}

func (c *Config) IngestInterval() time.Duration {
	return time.Duration(c.IngestIntervalMin) * time.Minute
}

func (c *Config) CompareCacheTTL() time.Duration {
	return time.Duration(c.CompareCacheTTLSec) * time.Second
}

func defaults() *Config {
	return &Config{
		FeedURL:            feed.DefaultURL,
		IngestIntervalMin:  60,
		HTTPAddr:           ":8000",
		NATSSubjectPrefix:  publisher.DefaultSubjectPrefix,
		DefaultTZ:          rail.DefaultTimezone,
		CORSOrigins:        []string{"*"},
		CompareCacheTTLSec: 300,
	}
}

var validate = validator.New()

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then .env and the environment.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn != "" {
		cfg.DatabaseURL = dsn
	} else if db := os.Getenv("PGDATABASE"); db != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL or PGDATABASE must be set")
	}

	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.FeedURL = v
	}
	if v := os.Getenv("FEED_FILE"); v != "" {
		cfg.FeedFile = v
	}

	if v := os.Getenv("INGEST_INTERVAL_MIN"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min <= 0 {
			return nil, fmt.Errorf("invalid INGEST_INTERVAL_MIN: %q", v)
		}
		cfg.IngestIntervalMin = min
	}

	if v := os.Getenv("COMPARE_CACHE_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid COMPARE_CACHE_TTL_SEC: %q", v)
		}
		cfg.CompareCacheTTLSec = sec
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	// Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	// Empty disables pass events.
	cfg.NATSURL = getenvDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	cfg.DefaultTZ = getenvDefault("DEFAULT_TZ", cfg.DefaultTZ)

	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
