package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// GetDefaultConfig returns the default configuration with environment overrides
func GetDefaultConfig() *entities.Config {
	config := &entities.Config{
		Server: entities.ServerConfig{
			Host:            getEnvOrDefault("DECKFORGE_HOST", "localhost"),
			Port:            getEnvIntOrDefault("DECKFORGE_PORT", 8080),
			ReadTimeout:     getEnvIntOrDefault("DECKFORGE_READ_TIMEOUT", 30),
			WriteTimeout:    getEnvIntOrDefault("DECKFORGE_WRITE_TIMEOUT", 300),
			ShutdownTimeout: getEnvIntOrDefault("DECKFORGE_SHUTDOWN_TIMEOUT", 5),
			Environment:     getEnvOrDefault("DECKFORGE_ENV", "development"),
			CORSOrigins: getEnvSliceOrDefault("DECKFORGE_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:8080",
				"http://127.0.0.1:8080",
			}),
			MaxBodyBytes: 2 << 20,
		},
		LLM: entities.LLMConfig{
			APIKey:      getEnvOrDefault("DECKFORGE_LLM_API_KEY", ""),
			BaseURL:     getEnvOrDefault("DECKFORGE_LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("DECKFORGE_LLM_MODEL", "gpt-4o-mini"),
			Temperature: 0.7,
			MaxTokens:   8192,
			TimeoutSec:  60,
		},
		Images: entities.ImagesConfig{
			PixabayKey:      getEnvOrDefault("DECKFORGE_PIXABAY_KEY", ""),
			PixabayBaseURL:  "https://pixabay.com",
			WikimediaURL:    "https://commons.wikimedia.org",
			DefaultProvider: getEnvOrDefault("DECKFORGE_IMAGE_PROVIDER", entities.ProviderPixabay),
			PerPage:         20,
			TimeoutSec:      15,
			RequestsPerSec:  5,
			Burst:           5,
			Parallelism:     5,
		},
		RateLimit: entities.RateLimitConfig{
			Enabled:   entities.BoolPtr(getEnvBoolOrDefault("DECKFORGE_RATELIMIT_ENABLED", true)),
			Limit:     getEnvIntOrDefault("DECKFORGE_RATELIMIT_LIMIT", 100),
			WindowSec: 60,
			Store:     getEnvOrDefault("DECKFORGE_RATELIMIT_STORE", entities.RateLimitStoreMemory),
			RedisURL:  getEnvOrDefault("DECKFORGE_REDIS_URL", ""),
			KeyPrefix: "deckforge:ratelimit:",
		},
		Sanitizer: entities.SanitizerConfig{
			Policy:         string(entities.SanitizerPolicyReplace),
			StreamMode:     string(entities.StreamModeReassemble),
			SuspectDomains: []string{},
		},
		Matcher: entities.MatcherConfig{
			MaxImagesPerSlide: entities.DefaultMaxImagesPerSlide,
		},
		Prompts: entities.PromptsConfig{
			TemplatesFile:   getEnvOrDefault("DECKFORGE_TEMPLATES_FILE", ""),
			DefaultTemplate: "default",
		},
		Watcher: entities.WatcherConfig{
			Enabled:    entities.BoolPtr(true),
			DebounceMs: 500,
		},
		Logging: entities.LoggingConfig{
			Level:      getEnvOrDefault("DECKFORGE_LOG_LEVEL", "info"),
			JSONFormat: getEnvBoolOrDefault("DECKFORGE_LOG_JSON", false),
			File:       getEnvOrDefault("DECKFORGE_LOG_FILE", ""),
		},
	}

	return config
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns environment variable as int or default
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns environment variable as bool or default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvSliceOrDefault returns environment variable as slice or default
func getEnvSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if result := splitList(value); len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// splitList splits a comma separated value and drops empty entries
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
