package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	StorageMode string // "mongo" or "memory"
	MongoURI    string
	MongoDB     string

	RedisURL         string
	PushQueue        string
	PushConcurrency  int
	PushMaxRetries   int
	PushBaseDelay    time.Duration
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubscriber  string
	KafkaBrokers     []string
	KafkaTopicPrefix string

	UnreadWindow time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", "mongo")),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:          getEnv("MONGO_DB", "marketplace_chat"),
		RedisURL:         getEnv("REDIS_URL", ""),
		PushQueue:        getEnv("PUSH_QUEUE", "push"),
		PushConcurrency:  parseIntWithDefault(os.Getenv("PUSH_CONCURRENCY"), 10),
		PushMaxRetries:   parseIntWithDefault(os.Getenv("PUSH_MAX_RETRIES"), 3),
		VAPIDPublicKey:   strings.TrimSpace(os.Getenv("VAPID_PUBLIC_KEY")),
		VAPIDPrivateKey:  strings.TrimSpace(os.Getenv("VAPID_PRIVATE_KEY")),
		VAPIDSubscriber:  getEnv("VAPID_SUBSCRIBER", "mailto:admin@localhost"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
	}
	if cfg.StorageMode != "mongo" && cfg.StorageMode != "memory" {
		return Config{}, fmt.Errorf("unsupported STORAGE_MODE: %s", cfg.StorageMode)
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	baseDelay, err := parseDurationEnv("PUSH_BASE_DELAY", time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PushBaseDelay = baseDelay

	window, err := parseDurationEnv("UNREAD_WINDOW", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.UnreadWindow = window
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return dur, nil
}

func parseIntWithDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
