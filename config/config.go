package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	AppPort       string
	AppMode       string
	StoreDriver   string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	JWTSecret     string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Negotiation policy. Fractions are kept as strings and parsed into
	// decimals by the negotiation service so no float ever touches a price.
	NegotiationLimit     string
	NegotiationHardFloor string
	NegotiationTTL       time.Duration
	SweepInterval        time.Duration
	MembershipIdleTTL    time.Duration
	MaxMessageLength     int

	OutboxInterval   time.Duration
	OutboxBatchSize  int
	OutboxMaxRetries int

	MessageRateLimit int
	OfferRateLimit   int
	ConnectRateLimit int
	PartiesCacheTTL  time.Duration

	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		StoreDriver:   getEnv("STORE_DRIVER", StorePostgres),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "dealroom"),
		DBPort:        getEnv("DB_PORT", "5432"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		NegotiationLimit:     getEnv("NEGOTIATION_LIMIT", "0.3"),
		NegotiationHardFloor: getEnv("NEGOTIATION_HARD_FLOOR", "0.5"),
		NegotiationTTL:       getEnvAsDuration("NEGOTIATION_TTL", 48*time.Hour),
		SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		MembershipIdleTTL:    getEnvAsDuration("MEMBERSHIP_IDLE_TTL", 30*24*time.Hour),
		MaxMessageLength:     getEnvAsInt("MAX_MESSAGE_LENGTH", 2000),

		OutboxInterval:   getEnvAsDuration("OUTBOX_INTERVAL", 200*time.Millisecond),
		OutboxBatchSize:  getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries: getEnvAsInt("OUTBOX_MAX_RETRIES", 10),

		MessageRateLimit: getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		OfferRateLimit:   getEnvAsInt("OFFER_RATE_LIMIT", 20),
		ConnectRateLimit: getEnvAsInt("CONNECT_RATE_LIMIT", 30),
		PartiesCacheTTL:  getEnvAsDuration("PARTIES_CACHE_TTL", 5*time.Minute),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
	}
}

// RedisEnabled reports whether a Redis host was configured. Without Redis the
// service runs single-instance with in-process fan-out.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// ArchiveEnabled reports whether transcripts should be archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
