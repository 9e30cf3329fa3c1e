package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/slab-engine/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	StoreDriver          string `env:"STORE_DRIVER,default=postgres"`
	DatabaseDSN          string `env:"DATABASE_DSN"`
	RabbitMQURL          string `env:"RABBITMQ_URL"`
	RedisURL             string `env:"REDIS_URL"`
	CompletionWebhookURL string `env:"COMPLETION_WEBHOOK_URL"`

	ExportS3Bucket    string `env:"EXPORT_S3_BUCKET"`
	ExportS3Region    string `env:"EXPORT_S3_REGION,default=us-east-1"`
	ExportS3Endpoint  string `env:"EXPORT_S3_ENDPOINT"`
	ExportS3PathStyle bool   `env:"EXPORT_S3_PATH_STYLE,default=false"`

	BatchItemDelayRaw string `env:"BATCH_ITEM_DELAY,default=100ms"`
	BatchItemsPerSec  int    `env:"BATCH_ITEMS_PER_SEC,default=0"`
	BatchKindLimitRaw string `env:"BATCH_KIND_ITEMS_PER_SEC"`
	BatchMaxSize      int    `env:"BATCH_MAX_SIZE,default=1000"`
	BatchWorkerCount  int    `env:"BATCH_WORKER_CONCURRENCY,default=2"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`

	// BatchItemDelay is parsed from BatchItemDelayRaw by Load.
	BatchItemDelay time.Duration
	// BatchKindLimits is parsed from BatchKindLimitRaw, e.g. "export=5,import=1".
	BatchKindLimits map[domain.OperationKind]int
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	delay, err := time.ParseDuration(strings.TrimSpace(c.BatchItemDelayRaw))
	if err != nil {
		return fmt.Errorf("invalid BATCH_ITEM_DELAY: %w", err)
	}
	if delay < 0 {
		return fmt.Errorf("BATCH_ITEM_DELAY must not be negative")
	}
	c.BatchItemDelay = delay

	if c.BatchItemsPerSec < 0 {
		return fmt.Errorf("BATCH_ITEMS_PER_SEC must not be negative")
	}
	limits, err := parseKindLimits(c.BatchKindLimitRaw)
	if err != nil {
		return fmt.Errorf("invalid BATCH_KIND_ITEMS_PER_SEC: %w", err)
	}
	c.BatchKindLimits = limits

	if c.BatchMaxSize <= 0 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive")
	}
	return nil
}

// BatchRateLimited reports whether any batch item throttling is configured.
func (c *Config) BatchRateLimited() bool {
	return c.BatchItemsPerSec > 0 || len(c.BatchKindLimits) > 0
}

func parseKindLimits(raw string) (map[domain.OperationKind]int, error) {
	limits := make(map[domain.OperationKind]int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not kind=limit", entry)
		}
		kind, err := domain.ParseOperationKindFromString(name)
		if err != nil {
			return nil, err
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("limit for %s must be a non-negative integer", kind)
		}
		limits[kind] = limit
	}
	return limits, nil
}

// ExportS3Enabled reports whether export artifacts go to S3 rather than memory.
func (c *Config) ExportS3Enabled() bool {
	return strings.TrimSpace(c.ExportS3Bucket) != ""
}
