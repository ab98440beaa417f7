package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	// OpenAI-compatible provider backing the per-space retrieval index.
	// Empty key switches ingestion and chat to the local chunk fallback.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	VisionModel   string
	UpstreamRPS   float64

	AIAPIKey   string
	EmbedModel string
	GenModel   string

	JWTSecret   string
	CORSOrigins []string

	IngestWorkers   int
	IngestQueueSize int
	ChunkSize       int
	ScrapeMinChars  int
	ExtractTimeout  time.Duration
	ChatTimeout     time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "spacechat-docs"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		VisionModel:   getEnv("VISION_MODEL", "gpt-4o-mini"),
		UpstreamRPS:   getEnvFloat("UPSTREAM_RPS", 5),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8888")),

		IngestWorkers:   getEnvInt("INGEST_WORKERS", 4),
		IngestQueueSize: getEnvInt("INGEST_QUEUE_SIZE", 64),
		ChunkSize:       getEnvInt("CHUNK_SIZE", 1000),
		ScrapeMinChars:  getEnvInt("SCRAPE_MIN_CHARS", 50),
		ExtractTimeout:  getEnvDuration("EXTRACT_TIMEOUT", 60*time.Second),
		ChatTimeout:     getEnvDuration("CHAT_TIMEOUT", 60*time.Second),
	}

	if cfg.DatabaseURL == "" {
		log.Println("WARN: DATABASE_URL not set, records are kept in memory only")
	}
	if cfg.JWTSecret == "" {
		log.Println("WARN: JWT_SECRET not set, owner endpoints will reject every token")
	}

	return cfg
}

// RemoteIndexEnabled reports whether documents are indexed in the remote retrieval provider.
func (c *Config) RemoteIndexEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
