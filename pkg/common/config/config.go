package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers          []string
	KafkaGroupID          string
	NotificationTopic     string
	NotificationTemplates string

	// Auth
	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	JWTTTL           time.Duration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Emergency access
	PinValidity       time.Duration
	TokenValidity     time.Duration
	MaxPinAttempts    int
	PinAttemptWindow  time.Duration
	EmergencyContacts []string

	// Gateway limits
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "ehealthwave"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "ehealthwave"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:          getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "ehealthwave-platform"),
		NotificationTopic:     getEnv("NOTIFICATION_TOPIC", "emergency-notifications"),
		NotificationTemplates: getEnv("NOTIFICATION_TEMPLATES_PATH", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "ehealthwave"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "emergency-access"),
		JWTTTL:           getDuration("JWT_TTL", time.Hour),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		PinValidity:       getDuration("EMERGENCY_PIN_VALIDITY", 60*time.Minute),
		TokenValidity:     getDuration("SHARING_TOKEN_VALIDITY", 30*time.Minute),
		MaxPinAttempts:    getIntEnv("MAX_PIN_ATTEMPTS", 5),
		PinAttemptWindow:  getDuration("PIN_ATTEMPT_WINDOW", 15*time.Minute),
		EmergencyContacts: getStringSliceEnv("EMERGENCY_CONTACTS", nil),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
