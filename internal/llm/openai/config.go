package openai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	GroqBaseURL    = "https://api.groq.com/openai/v1"
)

// Config for an OpenAI-compatible chat/completions backend.
type Config struct {
	Name        string // provider name reported in results; default "openai"
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string // e.g., "gpt-4o-mini"
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // one-shot http client timeout
}

// Client implements llm.Provider for OpenAI and compatible APIs (Groq).
type Client struct {
	cfg        Config
	httpClient *http.Client
	streamHTTP *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		// streams are bounded by the caller's context, not a client timeout
		streamHTTP: &http.Client{},
		log:        logger.With("provider", cfg.Name),
	}
}
