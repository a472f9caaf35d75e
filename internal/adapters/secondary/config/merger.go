package config

import (
	"os"
	"strconv"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// ConfigMerger implements the ConfigMerger interface
type ConfigMerger struct{}

// NewConfigMerger creates a new configuration merger
func NewConfigMerger() *ConfigMerger {
	return &ConfigMerger{}
}

// Merge merges multiple configurations with later configs taking precedence
func (m *ConfigMerger) Merge(configs ...*entities.Config) *entities.Config {
	if len(configs) == 0 {
		return GetDefaultConfig()
	}

	result := deepCopy(configs[0])

	for i := 1; i < len(configs); i++ {
		if configs[i] != nil {
			m.mergeInto(result, configs[i])
		}
	}

	return result
}

// ApplyFlags applies CLI flag overrides to a configuration
func (m *ConfigMerger) ApplyFlags(config *entities.Config, flags map[string]interface{}) *entities.Config {
	result := deepCopy(config)

	if port, ok := flags["port"].(int); ok && port > 0 {
		result.Server.Port = port
	}

	if host, ok := flags["host"].(string); ok && host != "" {
		result.Server.Host = host
	}

	if level, ok := flags["log-level"].(string); ok && level != "" {
		result.Logging.Level = level
	}

	if provider, ok := flags["provider"].(string); ok && provider != "" {
		result.Images.DefaultProvider = provider
	}

	if templates, ok := flags["templates"].(string); ok && templates != "" {
		result.Prompts.TemplatesFile = templates
	}

	if noRateLimit, ok := flags["no-rate-limit"].(bool); ok && noRateLimit {
		result.RateLimit.Enabled = entities.BoolPtr(false)
	}

	return result
}

// ApplyEnvVars applies environment variable overrides to a configuration
func (m *ConfigMerger) ApplyEnvVars(config *entities.Config) *entities.Config {
	result := deepCopy(config)

	if host := os.Getenv("DECKFORGE_HOST"); host != "" {
		result.Server.Host = host
	}

	if portStr := os.Getenv("DECKFORGE_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			result.Server.Port = port
		}
	}

	if origins := os.Getenv("DECKFORGE_CORS_ORIGINS"); origins != "" {
		result.Server.CORSOrigins = splitList(origins)
	}

	if proxies := os.Getenv("DECKFORGE_TRUSTED_PROXIES"); proxies != "" {
		result.Server.TrustedProxies = splitList(proxies)
	}

	// Secrets usually arrive through the environment only
	if key := os.Getenv("DECKFORGE_LLM_API_KEY"); key != "" {
		result.LLM.APIKey = key
	}

	if baseURL := os.Getenv("DECKFORGE_LLM_BASE_URL"); baseURL != "" {
		result.LLM.BaseURL = baseURL
	}

	if model := os.Getenv("DECKFORGE_LLM_MODEL"); model != "" {
		result.LLM.Model = model
	}

	if key := os.Getenv("DECKFORGE_PIXABAY_KEY"); key != "" {
		result.Images.PixabayKey = key
	}

	if provider := os.Getenv("DECKFORGE_IMAGE_PROVIDER"); provider != "" {
		result.Images.DefaultProvider = provider
	}

	if enabledStr := os.Getenv("DECKFORGE_RATELIMIT_ENABLED"); enabledStr != "" {
		if enabled, err := strconv.ParseBool(enabledStr); err == nil {
			result.RateLimit.Enabled = entities.BoolPtr(enabled)
		}
	}

	if limitStr := os.Getenv("DECKFORGE_RATELIMIT_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			result.RateLimit.Limit = limit
		}
	}

	if store := os.Getenv("DECKFORGE_RATELIMIT_STORE"); store != "" {
		result.RateLimit.Store = store
	}

	if redisURL := os.Getenv("DECKFORGE_REDIS_URL"); redisURL != "" {
		result.RateLimit.RedisURL = redisURL
	}

	if policy := os.Getenv("DECKFORGE_SANITIZER_POLICY"); policy != "" {
		result.Sanitizer.Policy = policy
	}

	if mode := os.Getenv("DECKFORGE_STREAM_MODE"); mode != "" {
		result.Sanitizer.StreamMode = mode
	}

	if templates := os.Getenv("DECKFORGE_TEMPLATES_FILE"); templates != "" {
		result.Prompts.TemplatesFile = templates
	}

	if debounceStr := os.Getenv("DECKFORGE_WATCH_DEBOUNCE"); debounceStr != "" {
		if debounce, err := strconv.Atoi(debounceStr); err == nil && debounce >= 0 {
			result.Watcher.DebounceMs = debounce
		}
	}

	if level := os.Getenv("DECKFORGE_LOG_LEVEL"); level != "" {
		result.Logging.Level = level
	}

	return result
}

// mergeInto merges source configuration into target configuration
func (m *ConfigMerger) mergeInto(target, source *entities.Config) {
	// Server config
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.Host != "" {
		target.Server.Host = source.Server.Host
	}
	if source.Server.ReadTimeout != 0 {
		target.Server.ReadTimeout = source.Server.ReadTimeout
	}
	if source.Server.WriteTimeout != 0 {
		target.Server.WriteTimeout = source.Server.WriteTimeout
	}
	if source.Server.ShutdownTimeout != 0 {
		target.Server.ShutdownTimeout = source.Server.ShutdownTimeout
	}
	if source.Server.Environment != "" {
		target.Server.Environment = source.Server.Environment
	}
	if len(source.Server.CORSOrigins) > 0 {
		target.Server.CORSOrigins = cloneStrings(source.Server.CORSOrigins)
	}
	if source.Server.MaxBodyBytes != 0 {
		target.Server.MaxBodyBytes = source.Server.MaxBodyBytes
	}
	if len(source.Server.TrustedProxies) > 0 {
		target.Server.TrustedProxies = cloneStrings(source.Server.TrustedProxies)
	}

	// LLM config
	if source.LLM.APIKey != "" {
		target.LLM.APIKey = source.LLM.APIKey
	}
	if source.LLM.BaseURL != "" {
		target.LLM.BaseURL = source.LLM.BaseURL
	}
	if source.LLM.Model != "" {
		target.LLM.Model = source.LLM.Model
	}
	if source.LLM.Temperature != 0 {
		target.LLM.Temperature = source.LLM.Temperature
	}
	if source.LLM.MaxTokens != 0 {
		target.LLM.MaxTokens = source.LLM.MaxTokens
	}
	if source.LLM.TimeoutSec != 0 {
		target.LLM.TimeoutSec = source.LLM.TimeoutSec
	}

	// Images config
	if source.Images.PixabayKey != "" {
		target.Images.PixabayKey = source.Images.PixabayKey
	}
	if source.Images.PixabayBaseURL != "" {
		target.Images.PixabayBaseURL = source.Images.PixabayBaseURL
	}
	if source.Images.WikimediaURL != "" {
		target.Images.WikimediaURL = source.Images.WikimediaURL
	}
	if source.Images.UserAgent != "" {
		target.Images.UserAgent = source.Images.UserAgent
	}
	if source.Images.DefaultProvider != "" {
		target.Images.DefaultProvider = source.Images.DefaultProvider
	}
	if source.Images.PerPage != 0 {
		target.Images.PerPage = source.Images.PerPage
	}
	if source.Images.TimeoutSec != 0 {
		target.Images.TimeoutSec = source.Images.TimeoutSec
	}
	if source.Images.RequestsPerSec != 0 {
		target.Images.RequestsPerSec = source.Images.RequestsPerSec
	}
	if source.Images.Burst != 0 {
		target.Images.Burst = source.Images.Burst
	}
	if source.Images.Parallelism != 0 {
		target.Images.Parallelism = source.Images.Parallelism
	}

	// Rate limit config
	if source.RateLimit.Enabled != nil {
		target.RateLimit.Enabled = entities.BoolPtr(*source.RateLimit.Enabled)
	}
	if source.RateLimit.Limit != 0 {
		target.RateLimit.Limit = source.RateLimit.Limit
	}
	if source.RateLimit.WindowSec != 0 {
		target.RateLimit.WindowSec = source.RateLimit.WindowSec
	}
	if source.RateLimit.Store != "" {
		target.RateLimit.Store = source.RateLimit.Store
	}
	if source.RateLimit.RedisURL != "" {
		target.RateLimit.RedisURL = source.RateLimit.RedisURL
	}
	if source.RateLimit.KeyPrefix != "" {
		target.RateLimit.KeyPrefix = source.RateLimit.KeyPrefix
	}

	// Sanitizer config
	if source.Sanitizer.Policy != "" {
		target.Sanitizer.Policy = source.Sanitizer.Policy
	}
	if source.Sanitizer.StreamMode != "" {
		target.Sanitizer.StreamMode = source.Sanitizer.StreamMode
	}
	if len(source.Sanitizer.SuspectDomains) > 0 {
		target.Sanitizer.SuspectDomains = cloneStrings(source.Sanitizer.SuspectDomains)
	}

	// Matcher config
	if source.Matcher.MaxImagesPerSlide != 0 {
		target.Matcher.MaxImagesPerSlide = source.Matcher.MaxImagesPerSlide
	}

	// Prompts config
	if source.Prompts.TemplatesFile != "" {
		target.Prompts.TemplatesFile = source.Prompts.TemplatesFile
	}
	if source.Prompts.DefaultTemplate != "" {
		target.Prompts.DefaultTemplate = source.Prompts.DefaultTemplate
	}

	// Watcher config
	if source.Watcher.Enabled != nil {
		target.Watcher.Enabled = entities.BoolPtr(*source.Watcher.Enabled)
	}
	if source.Watcher.DebounceMs != 0 {
		target.Watcher.DebounceMs = source.Watcher.DebounceMs
	}

	// Logging config
	if source.Logging.Level != "" {
		target.Logging.Level = source.Logging.Level
	}
	if source.Logging.File != "" {
		target.Logging.File = source.Logging.File
	}
	// TOML can't distinguish false from unset here, so JSON output is sticky once enabled
	if source.Logging.JSONFormat {
		target.Logging.JSONFormat = true
	}
}

// deepCopy creates a deep copy of a configuration
func deepCopy(src *entities.Config) *entities.Config {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Server.CORSOrigins = cloneStrings(src.Server.CORSOrigins)
	dst.Server.TrustedProxies = cloneStrings(src.Server.TrustedProxies)
	dst.Sanitizer.SuspectDomains = cloneStrings(src.Sanitizer.SuspectDomains)

	if src.RateLimit.Enabled != nil {
		dst.RateLimit.Enabled = entities.BoolPtr(*src.RateLimit.Enabled)
	}
	if src.Watcher.Enabled != nil {
		dst.Watcher.Enabled = entities.BoolPtr(*src.Watcher.Enabled)
	}

	return &dst
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// Ensure ConfigMerger implements ports.ConfigMerger
var _ ports.ConfigMerger = (*ConfigMerger)(nil)
