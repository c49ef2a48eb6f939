package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env              string
	HTTPAddr         string
	Store            string
	MongoURI         string
	MongoDB          string
	PostgresDSN      string
	RedisAddr        string
	KafkaBrokers     []string
	KafkaTopicPrefix string
	BoltPath         string
	ListingsFixtures string

	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	RequestTTL         time.Duration
	ScheduleInterval   time.Duration
	LockTTL            time.Duration
	ScheduleEnabled    bool

	GuestServiceFeePercent decimal.Decimal
	HostServiceFeePercent  decimal.Decimal
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		Store:            strings.ToLower(getEnv("STORE", StoreMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "stayengine"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		BoltPath:         os.Getenv("BOLT_PATH"),
		ListingsFixtures: os.Getenv("LISTINGS_FIXTURES"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"REQUEST_TTL", 24 * time.Hour, &cfg.RequestTTL},
		{"SCHEDULE_INTERVAL", time.Minute, &cfg.ScheduleInterval},
		{"LOCK_TTL", 10 * time.Second, &cfg.LockTTL},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	enabled, err := parseBoolEnv("SCHEDULE_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	cfg.ScheduleEnabled = enabled

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	guestFee, err := parsePercentEnv("GUEST_SERVICE_FEE_PERCENT")
	if err != nil {
		return Config{}, err
	}
	cfg.GuestServiceFeePercent = guestFee
	hostFee, err := parsePercentEnv("HOST_SERVICE_FEE_PERCENT")
	if err != nil {
		return Config{}, err
	}
	cfg.HostServiceFeePercent = hostFee

	switch cfg.Store {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for STORE=mongo")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required for STORE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	return cfg, nil
}

// RetryAttempts is the number of settlement attempts a cancellation gets:
// the first call plus one per configured backoff step.
func (c Config) RetryAttempts() int {
	return len(c.RetryBackoff) + 1
}

// FirstBackoff returns the base delay of the linear cancellation retry.
func (c Config) FirstBackoff() time.Duration {
	if len(c.RetryBackoff) == 0 {
		return 0
	}
	return c.RetryBackoff[0]
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

// parsePercentEnv has no default: commission rates are platform policy and
// must be set explicitly.
func parsePercentEnv(key string) (decimal.Decimal, error) {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, fmt.Errorf("%s is required", key)
	}
	p, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s percent: %w", key, err)
	}
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("invalid %s percent: %s is outside 0..100", key, raw)
	}
	return p, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
