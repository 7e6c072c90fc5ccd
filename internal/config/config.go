package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	LogFormat          string // "json" or "text"

	// Backends — "memory" runs everything in-process (dev/test), otherwise
	// Postgres holds job records and Redis holds the queue + asset cache.
	StoreBackend string // "postgres" or "memory"
	QueueBackend string // "redis" or "memory"
	DatabaseURL  string
	RedisURL     string

	// Asset providers
	PexelsAPIKey  string
	PixabayAPIKey string
	GeminiAPIKey  string // optional: enables generated-image fallback provider

	// Speech synthesis
	TTSProvider       string // "elevenlabs" or "openai"
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	OpenAIKey         string

	// Paths
	AssetCacheDir string
	OutputDir     string
	TempDir       string

	// Worker
	MaxConcurrentJobs int
	MaxRetries        int
	SoftJobTimeout    time.Duration
	HardJobTimeout    time.Duration
	ProviderTimeout   time.Duration // per external provider call

	// Retention
	JobRetentionTTL time.Duration // completed job records are reaped after this
	AssetCacheTTL   time.Duration

	// Scene decomposition
	WordsPerSecond  float64
	MinSceneSeconds float64
	MaxSceneSeconds float64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		StoreBackend:       getEnv("STORE_BACKEND", "postgres"),
		QueueBackend:       getEnv("QUEUE_BACKEND", "redis"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		PexelsAPIKey:       getEnv("PEXELS_API_KEY", ""),
		PixabayAPIKey:      getEnv("PIXABAY_API_KEY", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		TTSProvider:        getEnv("TTS_PROVIDER", "elevenlabs"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		AssetCacheDir:      getEnv("ASSET_CACHE_DIR", "/tmp/voxreel/assets"),
		OutputDir:          getEnv("OUTPUT_DIR", "/tmp/voxreel/out"),
		TempDir:            getEnv("TEMP_DIR", "/tmp/voxreel/work"),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 4),
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		SoftJobTimeout:     getEnvDuration("SOFT_JOB_TIMEOUT", 10*time.Minute),
		HardJobTimeout:     getEnvDuration("HARD_JOB_TIMEOUT", 15*time.Minute),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		JobRetentionTTL:    getEnvDuration("JOB_RETENTION_TTL", 24*time.Hour),
		AssetCacheTTL:      getEnvDuration("ASSET_CACHE_TTL", 7*24*time.Hour),
		WordsPerSecond:     getEnvFloat("WORDS_PER_SECOND", 140.0/60.0),
		MinSceneSeconds:    getEnvFloat("MIN_SCENE_SECONDS", 3),
		MaxSceneSeconds:    getEnvFloat("MAX_SCENE_SECONDS", 15),
	}

	// Validate required fields
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
	}

	if cfg.WorkerEnabled {
		if cfg.TTSProvider == "elevenlabs" && cfg.ElevenLabsKey == "" && cfg.OpenAIKey != "" {
			// Fall back silently to the provider that is actually configured
			cfg.TTSProvider = "openai"
		}
		if cfg.ElevenLabsKey == "" && cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("either ELEVENLABS_API_KEY or OPENAI_API_KEY is required for speech synthesis")
		}
	}

	if cfg.HardJobTimeout < cfg.SoftJobTimeout {
		return nil, fmt.Errorf("HARD_JOB_TIMEOUT (%s) must be >= SOFT_JOB_TIMEOUT (%s)", cfg.HardJobTimeout, cfg.SoftJobTimeout)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
