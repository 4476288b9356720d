package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath    string
	UploadDir string

	// VectorBackend selects the vector index implementation ("flat" or "qdrant").
	VectorBackend  string
	VectorIndexDir string
	QdrantURL      string

	// LLMProviders is the ordered provider chain for completions ("openai", "local").
	LLMProviders   []string
	LLMBaseURL     string
	LLMModelName   string
	LLMAPIKey      string
	LLMMaxTokens   int
	LLMTemperature float32
	LLMTimeout     time.Duration

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string

	// EmbeddingProviders is the ordered provider chain for embeddings ("openai", "local").
	EmbeddingProviders []string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingBatchSize int
	EmbeddingCacheSize int

	ChunkSize    int
	ChunkOverlap int

	RAG RAGConfig
}

// RAGConfig holds the retrieval and validation tuning knobs.
// Zero values mean "use the engine default".
type RAGConfig struct {
	MaxContextChars       int
	ConfidenceFloor       float64
	MinSimilarity         float64
	OverviewMinSimilarity float64
	KeywordBoost          float64
	KeywordBoostCap       float64
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or one of its parents, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:              getEnv("API_PORT", "8000"),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DBPath:               getEnv("DB_PATH", "./data/studyqa.db"),
		UploadDir:            getEnv("UPLOAD_DIR", "./data/uploads"),
		VectorBackend:        strings.ToLower(getEnv("VECTOR_BACKEND", "flat")),
		VectorIndexDir:       getEnv("VECTOR_INDEX_DIR", "./data/vectors"),
		QdrantURL:            getEnv("QDRANT_URL", "http://localhost:6333"),
		LLMProviders:         splitList(getEnv("LLM_PROVIDERS", "openai,local")),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:         getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:            getEnv("LLM_API_KEY", "dummy-key"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingProviders:   splitList(getEnv("EMBEDDING_PROVIDERS", "openai,local")),
		EmbeddingBaseURL:     getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName:   getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}
	if cfg.VectorBackend != "flat" && cfg.VectorBackend != "qdrant" {
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"flat\" or \"qdrant\", got %q", cfg.VectorBackend)
	}
	for _, p := range append(append([]string{}, cfg.LLMProviders...), cfg.EmbeddingProviders...) {
		if p != "openai" && p != "local" {
			return nil, fmt.Errorf("unknown provider %q (expected \"openai\" or \"local\")", p)
		}
	}
	if len(cfg.LLMProviders) == 0 {
		return nil, fmt.Errorf("LLM_PROVIDERS must name at least one provider")
	}
	if len(cfg.EmbeddingProviders) == 0 {
		return nil, fmt.Errorf("EMBEDDING_PROVIDERS must name at least one provider")
	}

	ints := []struct {
		key  string
		def  int
		dst  *int
		zero bool
	}{
		{"LLM_MAX_TOKENS", 2048, &cfg.LLMMaxTokens, false},
		{"EMBEDDING_BATCH_SIZE", 32, &cfg.EmbeddingBatchSize, false},
		{"EMBEDDING_CACHE_SIZE", 512, &cfg.EmbeddingCacheSize, true},
		{"CHUNK_SIZE", 500, &cfg.ChunkSize, false},
		{"CHUNK_OVERLAP", 50, &cfg.ChunkOverlap, true},
		{"RAG_MAX_CONTEXT_CHARS", 12000, &cfg.RAG.MaxContextChars, false},
	}
	for _, spec := range ints {
		v, err := getEnvInt(spec.key, spec.def)
		if err != nil {
			return nil, err
		}
		if v < 0 || (v == 0 && !spec.zero) {
			return nil, fmt.Errorf("%s must be greater than 0", spec.key)
		}
		*spec.dst = v
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"RAG_CONFIDENCE_FLOOR", 0.3, &cfg.RAG.ConfidenceFloor},
		{"RAG_MIN_SIMILARITY", 0.4, &cfg.RAG.MinSimilarity},
		{"RAG_OVERVIEW_MIN_SIMILARITY", 0.25, &cfg.RAG.OverviewMinSimilarity},
		{"RAG_KEYWORD_BOOST", 0.08, &cfg.RAG.KeywordBoost},
		{"RAG_KEYWORD_BOOST_CAP", 0.3, &cfg.RAG.KeywordBoostCap},
	}
	for _, spec := range floats {
		v, err := getEnvFloat(spec.key, spec.def)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%s must be between 0 and 1", spec.key)
		}
		*spec.dst = v
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, err
	}
	cfg.LLMTemperature = float32(temperature)

	timeout, err := time.ParseDuration(getEnv("LLM_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT must be a valid duration: %w", err)
	}
	cfg.LLMTimeout = timeout

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.UploadDir, cfg.VectorIndexDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

// splitList splits a comma separated list, lower-casing and dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
