package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Typesense  TypesenseConfig
	OpenAI     OpenAIConfig
	Mail       MailConfig
	Scan       ScanConfig
	Embeddings EmbeddingsConfig
	Streak     StreakConfig
	Scheduler  SchedulerConfig
	OTEL       OTELConfig
}

// ServerConfig holds the admin endpoint configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	RateLimitRPM   int
	RateLimitBurst int
}

// MailConfig holds the transactional mail provider configuration
type MailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string
}

// ScanConfig holds the product scan pipeline tunables
type ScanConfig struct {
	MatchThreshold     float64
	MinSimilarity      float64
	TopK               int
	ContextWeight      float64
	BetweenUsers       time.Duration
	BetweenSearchTerms time.Duration
	BetweenEmails      time.Duration
}

// EmbeddingsConfig holds the embedding refresh tunables
type EmbeddingsConfig struct {
	BatchSize  int
	MaxRetries int
}

// StreakConfig holds the visit streak tunables
type StreakConfig struct {
	DailyActivityBonus int
}

// SchedulerConfig holds the job scheduler configuration
type SchedulerConfig struct {
	TickInterval time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "ai_market"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
		},
		Mail: MailConfig{
			APIKey:      getEnv("MAIL_API_KEY", ""),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", "info@popust.ba"),
			FromName:    getEnv("MAIL_FROM_NAME", "Popust"),
			BaseURL:     getEnv("MAIL_BASE_URL", "https://api.resend.com"),
		},
		Scan: ScanConfig{
			MatchThreshold:     getEnvAsFloat("SCAN_MATCH_THRESHOLD", 0.45),
			MinSimilarity:      getEnvAsFloat("SCAN_MIN_SIMILARITY", 0.25),
			TopK:               getEnvAsInt("SCAN_TOP_K", 10),
			ContextWeight:      getEnvAsFloat("SCAN_CONTEXT_WEIGHT", 0.20),
			BetweenUsers:       getEnvAsDuration("SCAN_PACING_BETWEEN_USERS", 2*time.Second),
			BetweenSearchTerms: getEnvAsDuration("SCAN_PACING_BETWEEN_TERMS", 500*time.Millisecond),
			BetweenEmails:      getEnvAsDuration("SCAN_PACING_BETWEEN_EMAILS", 500*time.Millisecond),
		},
		Embeddings: EmbeddingsConfig{
			BatchSize:  getEnvAsInt("EMBEDDINGS_BATCH_SIZE", 100),
			MaxRetries: getEnvAsInt("EMBEDDINGS_MAX_RETRIES", 3),
		},
		Streak: StreakConfig{
			DailyActivityBonus: getEnvAsInt("DAILY_ACTIVITY_BONUS", 2),
		},
		Scheduler: SchedulerConfig{
			TickInterval: getEnvAsDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ai-market-core"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
