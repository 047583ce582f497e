package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	LLM        LLMConfig
	Batch      BatchConfig
	AWS        AWSConfig
	Log        LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	InMemory         bool
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCHealthAddr  string
	CORSOrigins     []string
	Debug           bool
	ShutdownTimeout time.Duration
}

// StorageConfig selects where uploaded files are kept.
type StorageConfig struct {
	Backend  string // "fs" | "s3"
	Dir      string
	S3Bucket string
	S3Prefix string
}

// ExtractionConfig holds extraction-related configuration
type ExtractionConfig struct {
	Pdftotext        string
	EnableTextract   bool
	EnableComprehend bool
	ResultCacheTTL   time.Duration
	TempDir          string
}

// LLMConfig holds provider credentials and call defaults.
type LLMConfig struct {
	ProvidersFile    string
	Timeout          time.Duration
	Temperature      float32
	MaxTokens        int
	GroqAPIKey       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OllamaHost       string
	BedrockModel     string
	GuardrailID      string
	GuardrailVersion string
	// LenientSchema repairs near-miss structured replies instead of rejecting them.
	LenientSchema    bool
}

// BatchConfig holds batch controller configuration
type BatchConfig struct {
	Concurrency    int
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	TrackerCap     int
}

// AWSConfig holds the shared AWS settings.
type AWSConfig struct {
	Enabled bool
	Region  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			InMemory:         getEnvAsBool("DB_INMEM", false),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
			GRPCHealthAddr:  getEnv("GRPC_HEALTH_ADDR", ":8081"),
			CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:8000"}),
			Debug:           getEnvAsBool("DEBUG", false),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "fs"),
			Dir:      getEnv("STORAGE_DIR", "./uploads"),
			S3Bucket: getEnv("S3_BUCKET_NAME", ""),
			S3Prefix: getEnv("S3_PREFIX", "uploads/"),
		},
		Extraction: ExtractionConfig{
			Pdftotext:        getEnv("PDFTOTEXT", "pdftotext"),
			EnableTextract:   getEnvAsBool("TEXTRACT_ENABLED", true),
			EnableComprehend: getEnvAsBool("COMPREHEND_ENABLED", true),
			ResultCacheTTL:   getEnvAsDuration("EXTRACT_CACHE_TTL", 10*time.Minute),
			TempDir:          getEnv("ARTIFACT_CACHE_DIR", os.TempDir()),
		},
		LLM: LLMConfig{
			ProvidersFile:    getEnv("APE_PROVIDERS_FILE", ""),
			Timeout:          getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			Temperature:      getEnvAsFloat32("LLM_TEMPERATURE", 0.7),
			MaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 4096),
			GroqAPIKey:       getEnv("GROQ_API_KEY", ""),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			OllamaHost:       getEnv("OLLAMA_HOST", ""),
			BedrockModel:     getEnv("BEDROCK_MODEL", ""),
			GuardrailID:      getEnv("BEDROCK_GUARDRAIL_ID", ""),
			GuardrailVersion: getEnv("BEDROCK_GUARDRAIL_VERSION", "DRAFT"),
			LenientSchema:    getEnvAsBool("LLM_LENIENT_SCHEMA", true),
		},
		Batch: BatchConfig{
			Concurrency:    getEnvAsInt("BATCH_CONCURRENCY", 3),
			Workers:        getEnvAsInt("BATCH_WORKERS", 2),
			QueueSize:      getEnvAsInt("BATCH_QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("BATCH_PROCESS_TIMEOUT", 10*time.Minute),
			TrackerCap:     getEnvAsInt("JOB_TRACKER_CAP", 100),
		},
		AWS: AWSConfig{
			Enabled: getEnvAsBool("APE_AWS_ENABLED", os.Getenv("AWS_ACCESS_KEY_ID") != ""),
			Region:  getEnv("AWS_DEFAULT_REGION", "us-east-1"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" && !c.Database.InMemory {
		return NewAppError("CONFIG_ERROR", "DB_URL is required unless DB_INMEM=true", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			return NewAppError("CONFIG_ERROR", "STORAGE_DIR is required for fs storage", ErrInvalidInput)
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return NewAppError("CONFIG_ERROR", "S3_BUCKET_NAME is required for s3 storage", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "STORAGE_BACKEND must be fs or s3", ErrInvalidInput)
	}
	if c.Batch.Concurrency <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_CONCURRENCY must be positive", ErrInvalidInput)
	}
	if c.Batch.TrackerCap <= 0 {
		return NewAppError("CONFIG_ERROR", "JOB_TRACKER_CAP must be positive", ErrInvalidInput)
	}
	return nil
}
