package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Chat     ChatConfig
	Editor   EditorConfig
	Backup   BackupConfig
	App      AppConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// StoreConfig selects the persistence backend for projects.
type StoreConfig struct {
	Backend  string // memory, redis, postgres, file
	Dir      string // file backend only
	Explicit bool   // STORE_BACKEND was set
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Table    string
}

// ChatConfig covers both sides of the assistant: the upstream model the
// proxy talks to and the endpoint the transport client calls.
type ChatConfig struct {
	UpstreamURL      string
	APIKey           string
	Model            string
	MaxTokens        int
	RequestTimeout   time.Duration
	SystemPromptFile string
	RateLimit        float64
	RateBurst        int
	BaseURL          string
}

type EditorConfig struct {
	SessionIdleTTL time.Duration
	EvictSchedule  string
}

type BackupConfig struct {
	Schedule    string
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
}

type AppConfig struct {
	Environment string
	LogLevel    string
	LogFormat   string
	LogFile     string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "memory"),
			Dir:      getEnv("STORE_DIR", "./data"),
			Explicit: os.Getenv("STORE_BACKEND") != "",
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "schemati:"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "pgx"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "schemati"),
			Table:    getEnv("DB_TABLE", "kv_store"),
		},
		Chat: ChatConfig{
			UpstreamURL:      getEnv("MISTRAL_API_URL", "https://api.mistral.ai/v1/chat/completions"),
			APIKey:           getEnv("MISTRAL_API_KEY", ""),
			Model:            getEnv("MISTRAL_MODEL", "devstral-medium-latest"),
			MaxTokens:        getEnvAsInt("CHAT_MAX_TOKENS", 2048),
			RequestTimeout:   getEnvAsDuration("CHAT_REQUEST_TIMEOUT", 120*time.Second),
			SystemPromptFile: getEnv("CHAT_SYSTEM_PROMPT_FILE", ""),
			RateLimit:        getEnvAsFloat("CHAT_RATE_LIMIT", 1),
			RateBurst:        getEnvAsInt("CHAT_RATE_BURST", 5),
			BaseURL:          getEnv("CHAT_BASE_URL", "http://localhost:8080"),
		},
		Editor: EditorConfig{
			SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
			EvictSchedule:  getEnv("SESSION_EVICT_SCHEDULE", "@every 5m"),
		},
		Backup: BackupConfig{
			Schedule:    getEnv("BACKUP_SCHEDULE", "@hourly"),
			Dir:         getEnv("BACKUP_DIR", ""),
			S3Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			S3Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			S3Prefix:    getEnv("BACKUP_S3_PREFIX", "schemati"),
			S3AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			S3PathStyle: getEnvAsBool("BACKUP_S3_PATH_STYLE", false),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			LogFile:     getEnv("LOG_FILE", ""),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Store.Backend {
	case "memory":
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("STORE_DIR is required for the file backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.Chat.MaxTokens <= 0 {
		return fmt.Errorf("CHAT_MAX_TOKENS must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsDuration accepts Go duration strings ("90s", "2m"). "0" disables.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
