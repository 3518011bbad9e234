package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	HTTPPort    string `yaml:"http_port"`
	DatabaseURL string `yaml:"database_url"`
	IndexRoot   string `yaml:"index_root"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	JWTSecret   string `yaml:"jwt_secret"`

	TokenTTL time.Duration `yaml:"token_ttl"`

	LLMProvider    string        `yaml:"llm_provider"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`

	RetrievalTopK  int `yaml:"retrieval_top_k"`
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	EmbedBatchSize int `yaml:"embed_batch_size"`

	CredentialPrefix string `yaml:"credential_prefix"`
	CredentialLength int    `yaml:"credential_length"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:         "8080",
		DatabaseURL:      "users.db",
		IndexRoot:        "indices",
		LogLevel:         "INFO",
		LogFormat:        "text",
		TokenTTL:         24 * time.Hour,
		LLMProvider:      ProviderOpenAI,
		LLMTimeout:       60 * time.Second,
		RetrievalTopK:    4,
		ChunkSize:        1000,
		ChunkOverlap:     200,
		EmbedBatchSize:   64,
		CredentialPrefix: "sk-",
		CredentialLength: 163,
		MaxUploadBytes:   20 << 20,
	}
}

// Load reads .env (if present), the optional YAML file named by CONFIG_FILE,
// and finally environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.IndexRoot = getEnv("INDEX_ROOT", cfg.IndexRoot)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getEnvAsDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.LLMTimeout = getEnvAsDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.RetrievalTopK = getEnvAsInt("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	cfg.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.EmbedBatchSize = getEnvAsInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)
	cfg.CredentialPrefix = getEnv("CREDENTIAL_PREFIX", cfg.CredentialPrefix)
	cfg.CredentialLength = getEnvAsInt("CREDENTIAL_LENGTH", cfg.CredentialLength)
	cfg.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.LLMProvider != ProviderOpenAI && c.LLMProvider != ProviderGemini {
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.RetrievalTopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.RetrievalTopK))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.CredentialLength <= len(c.CredentialPrefix) {
		errs = append(errs, errors.New("CREDENTIAL_LENGTH must be longer than CREDENTIAL_PREFIX"))
	}
	return errors.Join(errs...)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
