package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	SessionCacheTTL    time.Duration
	OpenAIAPIKey       string
	OpenAIModel        string
	ExtractionTimeout  time.Duration
	OpenAlexBaseURL    string
	OpenAlexMailto     string
	SearchRatePerSec   float64
	SearchPerPage      int
	PreEvalConcurrency int
	DeepBatchSize      int
	DeepPacingDelay    time.Duration
	FetchTimeout       time.Duration
	MaxPDFBytes        int64
	StatementMaxLen    int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production error masking.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAPERPROOF")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "PaperProof API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("session.cache_ttl", "10m")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "90s")
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("search.rate_per_sec", 5.0)
	v.SetDefault("search.per_page", 20)
	v.SetDefault("preeval.concurrency", 5)
	v.SetDefault("deep.batch_size", 10)
	v.SetDefault("deep.pacing_delay", "1s")
	v.SetDefault("fetch.timeout", "45s")
	v.SetDefault("fetch.max_pdf_bytes", 25<<20)
	v.SetDefault("statement.max_len", 5000)

	cacheTTL, err := time.ParseDuration(v.GetString("session.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid session cache ttl: %w", err)
	}

	extractionTimeout, err := time.ParseDuration(v.GetString("ai.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ai timeout: %w", err)
	}

	pacingDelay, err := time.ParseDuration(v.GetString("deep.pacing_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid deep analysis pacing delay: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(v.GetString("fetch.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid fetch timeout: %w", err)
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		SessionCacheTTL:    cacheTTL,
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		OpenAIModel:        v.GetString("ai.model"),
		ExtractionTimeout:  extractionTimeout,
		OpenAlexBaseURL:    strings.TrimRight(v.GetString("openalex.base_url"), "/"),
		OpenAlexMailto:     v.GetString("openalex.mailto"),
		SearchRatePerSec:   v.GetFloat64("search.rate_per_sec"),
		SearchPerPage:      v.GetInt("search.per_page"),
		PreEvalConcurrency: v.GetInt("preeval.concurrency"),
		DeepBatchSize:      v.GetInt("deep.batch_size"),
		DeepPacingDelay:    pacingDelay,
		FetchTimeout:       fetchTimeout,
		MaxPDFBytes:        v.GetInt64("fetch.max_pdf_bytes"),
		StatementMaxLen:    v.GetInt("statement.max_len"),
	}

	if cfg.PreEvalConcurrency <= 0 {
		cfg.PreEvalConcurrency = 5
	}

	if cfg.DeepBatchSize <= 0 {
		cfg.DeepBatchSize = 10
	}

	if cfg.SearchPerPage <= 0 || cfg.SearchPerPage > 100 {
		cfg.SearchPerPage = 20
	}

	if cfg.StatementMaxLen <= 0 {
		cfg.StatementMaxLen = 5000
	}

	return cfg, nil
}
