package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultHTTPPort       = "8080"
	defaultLLMBaseURL     = "https://api.perplexity.ai/chat/completions"
	defaultLLMModel       = "llama-3.1-sonar-small-128k-online"
	defaultLLMTimeout     = 30
	defaultLLMMaxTokens   = 512
	defaultMinioEndpoint  = "localhost:9000"
	defaultMinioBucket    = "deal-images"
	defaultRedisAddr      = "localhost:6379"
	defaultJWTExpiryHours = 24
	defaultBcryptCost     = 10
)

type Config struct {
	AppEnv             string
	HTTPPort           string
	MetricsAddr        string
	PostgresDSN        string
	JWTSecret          string
	JWTExpiryHours     int
	BcryptCost         int
	LLMAPIKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMTimeoutSec      int
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMTopP            float64
	LLMFrequencyPen    float64
	LLMPresencePen     float64
	ReviewRatePerSec   float64
	ReviewRateBurst    int
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AllowedUploadBytes int64
}

func Load() (Config, error) {
	cfg := Config{
		AppEnv:             getenv("APP_ENV", "production"),
		HTTPPort:           getenv("HTTP_PORT", defaultHTTPPort),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiryHours:     getenvInt("JWT_EXPIRY_HOURS", defaultJWTExpiryHours),
		BcryptCost:         getenvInt("BCRYPT_COST", defaultBcryptCost),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMBaseURL:         getenv("LLM_BASE_URL", defaultLLMBaseURL),
		LLMModel:           getenv("LLM_MODEL", defaultLLMModel),
		LLMTimeoutSec:      getenvInt("LLM_TIMEOUT_SEC", defaultLLMTimeout),
		LLMTemperature:     getenvFloat("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:       getenvInt("LLM_MAX_TOKENS", defaultLLMMaxTokens),
		LLMTopP:            getenvFloat("LLM_TOP_P", 0.9),
		LLMFrequencyPen:    getenvFloat("LLM_FREQUENCY_PENALTY", 1),
		LLMPresencePen:     getenvFloat("LLM_PRESENCE_PENALTY", 0),
		ReviewRatePerSec:   getenvFloat("REVIEW_RATE_PER_SEC", 1),
		ReviewRateBurst:    getenvInt("REVIEW_RATE_BURST", 3),
		MinioEndpoint:      getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),
		RedisAddr:          getenv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getenvInt("REDIS_DB", 0),
		AllowedUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
