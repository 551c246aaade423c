package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the appraisal service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port    string
	BaseURL string

	// OpenAI configuration
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIAssistantID string
	OpenAITTSModel    string
	OpenAITTSVoice    string

	// InvocationMode selects the vision backend: "chat" or "assistant"
	InvocationMode string

	// Job-mode polling
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Auth
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RabbitMQ
	AMQPUser            string
	AMQPPassword        string
	AMQPHost            string
	AMQPPort            string
	AMQPExchange        string
	AppraisalRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "appraisals"),

		Port:    getEnv("PORT", "8080"),
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIAssistantID: getEnv("OPENAI_ASSISTANT_ID", ""),
		OpenAITTSModel:    getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:    getEnv("OPENAI_TTS_VOICE", "alloy"),

		InvocationMode: getEnv("INVOCATION_MODE", "chat"),

		PollInterval: getDurationEnv("POLL_INTERVAL", 5*time.Second),
		PollTimeout:  getDurationEnv("POLL_TIMEOUT", 5*time.Minute),

		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 10*1024*1024),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		AMQPUser:            getEnv("AMQP_USER", "guest"),
		AMQPPassword:        getEnv("AMQP_PASSWORD", "guest"),
		AMQPHost:            getEnv("AMQP_HOST", "localhost"),
		AMQPPort:            getEnv("AMQP_PORT", "5672"),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", "appraisals"),
		AppraisalRoutingKey: getEnv("APPRAISAL_ROUTING_KEY", "appraisal.completed"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// GetAMQPURL builds the AMQP connection URL from its parts
func (c *Config) GetAMQPURL() string {
	return "amqp://" + c.AMQPUser + ":" + c.AMQPPassword + "@" + c.AMQPHost + ":" + c.AMQPPort + "/"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets a 64-bit integer environment variable or returns a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
