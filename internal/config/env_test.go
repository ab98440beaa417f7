package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "CHUNK_SIZE", "CHAT_TIMEOUT", "OPENAI_API_KEY", "CORS_ORIGINS", "SCRAPE_MIN_CHARS"} {
		t.Setenv(key, "")
	}
	// empty values count as unset for the typed helpers
	cfg := LoadConfig()

	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ScrapeMinChars)
	assert.Equal(t, 60*time.Second, cfg.ChatTimeout)
	assert.False(t, cfg.RemoteIndexEnabled())
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHUNK_SIZE", "250")
	t.Setenv("CHAT_TIMEOUT", "15s")
	t.Setenv("UPSTREAM_RPS", "2.5")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250, cfg.ChunkSize)
	assert.Equal(t, 15*time.Second, cfg.ChatTimeout)
	assert.Equal(t, 2.5, cfg.UpstreamRPS)
	assert.True(t, cfg.RemoteIndexEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestGetEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "lots")
	assert.Equal(t, 4, getEnvInt("INGEST_WORKERS", 4))
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("EXTRACT_TIMEOUT", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("EXTRACT_TIMEOUT", time.Minute))
}
