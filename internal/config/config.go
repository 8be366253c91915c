package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// Config holds all configuration for the insight gateway service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"2005"`
	GRPCHealthPort int    `envconfig:"GRPC_HEALTH_PORT" default:"0"` // 0 disables the gRPC health server

	// Deepgram transcription configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Insight (LLM) provider configuration
	InsightProvider  string `envconfig:"INSIGHT_PROVIDER" default:"openai"` // openai, anthropic, gemini, ollama, mistral, groq, deepseek, llamacpp
	InsightAPIKey    string `envconfig:"INSIGHT_API_KEY"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"` // fallback for INSIGHT_API_KEY
	InsightModel     string `envconfig:"INSIGHT_MODEL" default:"gpt-3.5-turbo"`
	InsightBaseURL   string `envconfig:"INSIGHT_BASE_URL" default:""`
	InsightMaxTokens int    `envconfig:"INSIGHT_MAX_TOKENS" default:"2000"`

	// Optional YAML file overriding the analysis reasoning/output format
	PromptTemplateFile string `envconfig:"PROMPT_TEMPLATE_FILE" default:""`

	// Upload configuration
	MaxUploadMB         int    `envconfig:"MAX_UPLOAD_MB" default:"25"`
	UploadDir           string `envconfig:"UPLOAD_DIR" default:""`              // defaults to <os temp>/insight-uploads
	UploadSweepInterval int    `envconfig:"UPLOAD_SWEEP_INTERVAL" default:"10"` // minutes
	UploadMaxAge        int    `envconfig:"UPLOAD_MAX_AGE" default:"60"`        // minutes

	// Timeouts (seconds)
	TranscriptionTimeout int `envconfig:"TRANSCRIPTION_TIMEOUT" default:"300"`
	AnalysisTimeout      int `envconfig:"ANALYSIS_TIMEOUT" default:"120"`
	RequestTimeout       int `envconfig:"REQUEST_TIMEOUT" default:"420"`

	// Resilience configuration
	AnalysisMaxAttempts        int `envconfig:"ANALYSIS_MAX_ATTEMPTS" default:"2"`          // Capped attempts for the insight provider
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"500"`        // Initial backoff in milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// keyless providers run locally and need no credential
var keylessProviders = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &conversation.Error{
			Kind:    conversation.KindConfigurationError,
			Message: "failed to load config",
			Err:     err,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate normalizes derived fields and checks required credentials
func (c *Config) Validate() error {
	c.InsightProvider = strings.ToLower(strings.TrimSpace(c.InsightProvider))
	if c.InsightAPIKey == "" {
		c.InsightAPIKey = c.OpenAIAPIKey
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(os.TempDir(), "insight-uploads")
	}

	if c.DeepgramAPIKey == "" {
		return conversation.ConfigurationError("DEEPGRAM_API_KEY is required")
	}
	if c.InsightAPIKey == "" && !keylessProviders[c.InsightProvider] {
		return conversation.ConfigurationError("INSIGHT_API_KEY (or OPENAI_API_KEY) is required")
	}
	if c.MaxUploadMB <= 0 {
		return conversation.ConfigurationError(fmt.Sprintf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.TranscriptionTimeout <= 0 || c.AnalysisTimeout <= 0 || c.RequestTimeout <= 0 {
		return conversation.ConfigurationError("timeouts must be positive")
	}
	if c.UploadSweepInterval <= 0 || c.UploadMaxAge <= 0 {
		return conversation.ConfigurationError("UPLOAD_SWEEP_INTERVAL and UPLOAD_MAX_AGE must be positive")
	}
	// in-flight uploads must never look stale to the janitor
	if time.Duration(c.UploadMaxAge)*time.Minute <= c.RequestTimeoutDuration() {
		return conversation.ConfigurationError("UPLOAD_MAX_AGE must exceed REQUEST_TIMEOUT")
	}
	if c.AnalysisMaxAttempts < 1 {
		c.AnalysisMaxAttempts = 1
	}

	return nil
}

// MaxUploadBytes returns the upload size limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func (c *Config) TranscriptionTimeoutDuration() time.Duration {
	return time.Duration(c.TranscriptionTimeout) * time.Second
}

func (c *Config) AnalysisTimeoutDuration() time.Duration {
	return time.Duration(c.AnalysisTimeout) * time.Second
}

func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
