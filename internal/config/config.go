package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// LLM backend
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`
	BedrockRegion   string `yaml:"bedrock_region"`

	// Local thread store
	StorePath string `yaml:"store_path"`

	// Object storage for attachments (S3-compatible, e.g. R2 or MinIO)
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3PublicURL string `yaml:"s3_public_url"`

	// HTTP gateway
	ServerAddr  string `yaml:"server_addr"`
	ServerToken string `yaml:"server_token"`

	// Logging
	LogFile     string     `yaml:"log_file"`
	RawLogLevel string     `yaml:"log_level"`
	LogLevel    slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables, then overlays the
// optional YAML file named by PARLEY_CONFIG.
func Load() (Config, error) {
	cfg := Config{
		LLMProvider:     getEnv("PARLEY_LLM_PROVIDER", ProviderOpenAI),
		LLMModel:        getEnv("PARLEY_LLM_MODEL", "gpt-4o"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		BedrockRegion:   getEnv("AWS_REGION", "us-east-1"),

		StorePath: getEnv("PARLEY_STORE_PATH", defaultStorePath()),

		S3Endpoint:  getEnv("PARLEY_S3_ENDPOINT", ""),
		S3Region:    getEnv("PARLEY_S3_REGION", "auto"),
		S3Bucket:    getEnv("PARLEY_S3_BUCKET", "parley-uploads"),
		S3AccessKey: getEnv("PARLEY_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("PARLEY_S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("PARLEY_S3_PUBLIC_URL", ""),

		ServerAddr:  getEnv("PARLEY_SERVER_ADDR", "localhost:8374"),
		ServerToken: getEnv("PARLEY_SERVER_TOKEN", ""),

		LogFile:     getEnv("PARLEY_LOG_FILE", "/tmp/parley.log"),
		RawLogLevel: getEnv("PARLEY_LOG_LEVEL", "INFO"),
	}

	if path := os.Getenv("PARLEY_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.LogLevel = parseLogLevel(cfg.RawLogLevel)
	return cfg, nil
}

// overlayFile merges non-zero values from a YAML config file over cfg.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	merge(&c.LLMProvider, overlay.LLMProvider)
	merge(&c.LLMModel, overlay.LLMModel)
	merge(&c.OpenAIAPIKey, overlay.OpenAIAPIKey)
	merge(&c.AnthropicAPIKey, overlay.AnthropicAPIKey)
	merge(&c.OllamaHost, overlay.OllamaHost)
	merge(&c.BedrockRegion, overlay.BedrockRegion)
	merge(&c.StorePath, overlay.StorePath)
	merge(&c.S3Endpoint, overlay.S3Endpoint)
	merge(&c.S3Region, overlay.S3Region)
	merge(&c.S3Bucket, overlay.S3Bucket)
	merge(&c.S3AccessKey, overlay.S3AccessKey)
	merge(&c.S3SecretKey, overlay.S3SecretKey)
	merge(&c.S3PublicURL, overlay.S3PublicURL)
	merge(&c.ServerAddr, overlay.ServerAddr)
	merge(&c.ServerToken, overlay.ServerToken)
	merge(&c.LogFile, overlay.LogFile)
	merge(&c.RawLogLevel, overlay.RawLogLevel)
	return nil
}

func merge(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley/store"
	}
	return home + "/.parley/store"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
