package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config carries everything the stores and services need at construction
// time. There is no process-wide mutable settings object; main builds one of
// these and passes pieces down.
type Config struct {
	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// ActivationPeriod is how long an activation or reset code stays valid.
	ActivationPeriod time.Duration
	// BcryptCost controls password hashing cost; tests lower it for speed.
	BcryptCost int
}

// RedisConfig configures the optional document cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TTL bounds how long a cached document may be served without a re-read.
	TTL time.Duration
}

// KafkaConfig configures the optional audit mirror.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		PostgresDSN:      os.Getenv("CUSTODIAN_POSTGRES_DSN"),
		ActivationPeriod: 7 * 24 * time.Hour,
		BcryptCost:       bcrypt.DefaultCost,
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTODIAN_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			TTL:          time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "custodian.audit",
		},
	}

	if v := os.Getenv("CUSTODIAN_ACTIVATION_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ActivationPeriod = d
		}
	}
	if v := os.Getenv("CUSTODIAN_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= bcrypt.MinCost && n <= bcrypt.MaxCost {
			cfg.BcryptCost = n
		}
	}
	if v := os.Getenv("CUSTODIAN_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CUSTODIAN_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	return cfg
}
