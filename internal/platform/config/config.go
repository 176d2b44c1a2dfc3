package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	DatabaseURL   string
	DataDir       string
	Redis         RedisConfig
	Kafka         KafkaConfig

	// DependencyTimeout bounds calls to the ledger anchor and channel
	// adapters. Local state transitions never wait longer than this on an
	// external collaborator.
	DependencyTimeout time.Duration
}

// RedisConfig holds connection settings for the optional Redis backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit event publisher. TopicPrefix
// names the audit topic family; the sink derives the per-category topics
// from it.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("CADASTRA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	dataDir := os.Getenv("CADASTRA_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data/documents"
	}

	depTimeout := 5 * time.Second
	if v := os.Getenv("CADASTRA_DEPENDENCY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			depTimeout = d
		}
	}

	topicPrefix := os.Getenv("CADASTRA_AUDIT_TOPIC_PREFIX")

	var brokers []string
	if v := os.Getenv("CADASTRA_KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DataDir:       dataDir,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     brokers,
			TopicPrefix: topicPrefix,
		},
		DependencyTimeout: depTimeout,
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
