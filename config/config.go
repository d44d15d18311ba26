package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs at startup. Values come from the
// environment, optionally seeded by a .env file in the working directory.
type Config struct {
	Env         string
	Port        string
	FrontendURL string

	// One Gemini client is created per key; summarization rotates across them.
	GoogleAPIKeys  []string
	SummaryModel   string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int

	// EmbeddingBackend is "gemini" or "ollama".
	EmbeddingBackend string
	OllamaURL        string
	OllamaModel      string

	// VectorBackend is "qdrant" or "chroma".
	VectorBackend string
	QdrantHost    string
	QdrantPort    int
	QdrantAPIKey  string
	QdrantUseTLS  bool
	ChromaURL     string

	RedisURL   string
	SessionTTL time.Duration
	// SessionReapInterval is how often collections of expired sessions are
	// dropped. Zero disables the sweep.
	SessionReapInterval time.Duration

	IngestConcurrency  int
	IngestTimeout      time.Duration
	QueryTimeout       time.Duration
	SummaryMaxAttempts int
	SummaryPacing      time.Duration
	SummaryBaseBackoff time.Duration
	ContextPageChars   int

	TmpDir           string
	MaxUploadBytes   int64
	InboxDir         string
	UnidocLicenseKey string

	LogLevel string
	LogFile  string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "3000"),
		FrontendURL: getEnv("FRONTEND_URL", "*"),

		GoogleAPIKeys:  googleAPIKeys(),
		SummaryModel:   getEnv("SUMMARY_MODEL", "gemini-2.0-flash"),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-2.5-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDims:  getInt("EMBEDDING_DIMENSIONS", 768),

		EmbeddingBackend: strings.ToLower(getEnv("EMBEDDING_BACKEND", "gemini")),
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text:v1.5"),

		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", "qdrant")),
		QdrantHost:    getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:    getInt("QDRANT_PORT", 6334),
		QdrantAPIKey:  os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:  getBool("QDRANT_USE_TLS", false),
		ChromaURL:     getEnv("CHROMA_URL", "http://localhost:8000"),

		RedisURL:            os.Getenv("REDIS_URL"),
		SessionTTL:          getDuration("SESSION_TTL", 24*time.Hour),
		SessionReapInterval: getDuration("SESSION_REAP_INTERVAL", 10*time.Minute),

		IngestConcurrency:  clamp(getInt("INGEST_CONCURRENCY", 5), 1, 50),
		IngestTimeout:      getDuration("INGEST_TIMEOUT", 15*time.Minute),
		QueryTimeout:       getDuration("QUERY_TIMEOUT", 60*time.Second),
		SummaryMaxAttempts: getInt("SUMMARY_MAX_ATTEMPTS", 3),
		SummaryPacing:      getDuration("SUMMARY_PACING", 2*time.Second),
		SummaryBaseBackoff: getDuration("SUMMARY_BASE_BACKOFF", 2*time.Second),
		ContextPageChars:   getInt("CONTEXT_PAGE_CHARS", 4000),

		TmpDir:           getEnv("TMP_DIR", "./tmp"),
		MaxUploadBytes:   int64(getInt("MAX_UPLOAD_MB", 25)) << 20,
		InboxDir:         os.Getenv("INBOX_DIR"),
		UnidocLicenseKey: os.Getenv("UNIDOC_LICENSE_KEY"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.GoogleAPIKeys) == 0 {
		return fmt.Errorf("no Google API key configured: set GOOGLE_API_KEYS or GOOGLE_API_KEY1")
	}
	switch c.VectorBackend {
	case "qdrant", "chroma":
	default:
		return fmt.Errorf("unsupported VECTOR_BACKEND %q", c.VectorBackend)
	}
	switch c.EmbeddingBackend {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported EMBEDDING_BACKEND %q", c.EmbeddingBackend)
	}
	if c.EmbeddingDims <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.SummaryMaxAttempts < 1 {
		return fmt.Errorf("SUMMARY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// googleAPIKeys reads GOOGLE_API_KEYS (comma separated) and falls back to the
// numbered GOOGLE_API_KEY1..GOOGLE_API_KEY5 variables.
func googleAPIKeys() []string {
	var keys []string
	if list := os.Getenv("GOOGLE_API_KEYS"); list != "" {
		for _, k := range strings.Split(list, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}
	for i := 1; i <= 5; i++ {
		if k := strings.TrimSpace(os.Getenv(fmt.Sprintf("GOOGLE_API_KEY%d", i))); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
