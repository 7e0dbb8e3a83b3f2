package audit

import (
	"os"
	"strconv"
	"strings"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// Config controls the recorder and retention.
type Config struct {
	QueueSize     int
	Workers       int
	WriteTimeout  time.Duration
	RetentionDays int

	KafkaBrokers []string
	KafkaTopic   string
}

// DefaultConfig returns production defaults. Kafka is disabled without brokers.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1024,
		Workers:       4,
		WriteTimeout:  3 * time.Second,
		RetentionDays: 90,
		KafkaTopic:    "warden.audit",
	}
}

// LoadConfigFromEnv reads WARDEN_AUDIT_* variables.
func LoadConfigFromEnv() (Config, error) {
	const op = "audit.LoadConfigFromEnv"
	cfg := DefaultConfig()

	ints := []struct {
		key string
		dst *int
		max int
	}{
		{"WARDEN_AUDIT_QUEUE_SIZE", &cfg.QueueSize, 1 << 20},
		{"WARDEN_AUDIT_WORKERS", &cfg.Workers, 256},
		{"WARDEN_AUDIT_RETENTION_DAYS", &cfg.RetentionDays, 36500},
	}
	for _, it := range ints {
		v := strings.TrimSpace(os.Getenv(it.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > it.max {
			return Config{}, autherr.Config(op, it.key)
		}
		*it.dst = n
	}

	if v := strings.TrimSpace(os.Getenv("WARDEN_AUDIT_WRITE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, autherr.Config(op, "WARDEN_AUDIT_WRITE_TIMEOUT")
		}
		cfg.WriteTimeout = d
	}

	for _, b := range strings.Split(os.Getenv("WARDEN_AUDIT_KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_AUDIT_KAFKA_TOPIC")); v != "" {
		cfg.KafkaTopic = v
	}

	return cfg, nil
}
