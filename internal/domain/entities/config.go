package entities

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Images    ImagesConfig    `toml:"images"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Sanitizer SanitizerConfig `toml:"sanitizer"`
	Matcher   MatcherConfig   `toml:"matcher"`
	Prompts   PromptsConfig   `toml:"prompts"`
	Watcher   WatcherConfig   `toml:"watcher"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("ratelimit config: %w", err)
	}

	if err := c.Sanitizer.Validate(); err != nil {
		return fmt.Errorf("sanitizer config: %w", err)
	}

	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("matcher config: %w", err)
	}

	if err := c.Prompts.Validate(); err != nil {
		return fmt.Errorf("prompts config: %w", err)
	}

	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("watcher config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	ReadTimeout     int      `toml:"read_timeout"`
	WriteTimeout    int      `toml:"write_timeout"`
	ShutdownTimeout int      `toml:"shutdown_timeout"`
	Environment     string   `toml:"environment"`
	CORSOrigins     []string `toml:"cors_origins"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	// TrustedProxies lists the peers (CIDR or single IP) whose forwarding headers are honored
	TrustedProxies []string `toml:"trusted_proxies"`
}

// Validate validates server configuration
func (s ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return errors.New("port must be between 0 and 65535")
	}

	if s.Host != "" {
		if ip := net.ParseIP(s.Host); ip == nil {
			if _, err := net.LookupHost(s.Host); err != nil {
				return fmt.Errorf("invalid host: %w", err)
			}
		}
	}

	if s.ReadTimeout < 0 {
		return errors.New("read timeout must be non-negative")
	}

	if s.WriteTimeout < 0 {
		return errors.New("write timeout must be non-negative")
	}

	if s.ShutdownTimeout < 0 {
		return errors.New("shutdown timeout must be non-negative")
	}

	if s.MaxBodyBytes < 0 {
		return errors.New("max body bytes must be non-negative")
	}

	for _, origin := range s.CORSOrigins {
		if origin == "" {
			return errors.New("CORS origin cannot be empty")
		}
		if origin == "*" {
			continue
		}
		if len(origin) < 7 || (!strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://")) {
			return fmt.Errorf("invalid CORS origin format: %s (must start with http:// or https://)", origin)
		}
	}

	if _, err := s.GetTrustedProxies(); err != nil {
		return err
	}

	return nil
}

// GetReadTimeout returns the read timeout as a duration
func (s ServerConfig) GetReadTimeout() time.Duration {
	if s.ReadTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a duration.
// Streaming chat responses can take minutes, so the default is generous.
func (s ServerConfig) GetWriteTimeout() time.Duration {
	if s.WriteTimeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetShutdownTimeout returns the shutdown timeout as a duration
func (s ServerConfig) GetShutdownTimeout() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetMaxBodyBytes returns the request body limit (default 2MB)
func (s ServerConfig) GetMaxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return 2 << 20
	}
	return s.MaxBodyBytes
}

// GetCORSOrigins returns CORS origins with defaults if empty
func (s ServerConfig) GetCORSOrigins() []string {
	if len(s.CORSOrigins) == 0 {
		return []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		}
	}
	return s.CORSOrigins
}

// GetTrustedProxies parses the trusted proxy list. A bare IP is treated as a single-host network.
func (s ServerConfig) GetTrustedProxies() ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if _, network, err := net.ParseCIDR(entry); err == nil {
			networks = append(networks, network)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy: %q", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return networks, nil
}

// IsDevelopment returns true if the server is running in development mode
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development" || s.Environment == ""
}

// LLMConfig contains the chat completion provider settings
type LLMConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	TimeoutSec  int     `toml:"timeout_sec"`
}

// Validate validates LLM configuration
func (l LLMConfig) Validate() error {
	if l.BaseURL != "" {
		if err := validateHTTPURL(l.BaseURL); err != nil {
			return fmt.Errorf("base url: %w", err)
		}
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}

	if l.MaxTokens < 0 {
		return errors.New("max tokens must be non-negative")
	}

	if l.TimeoutSec < 0 {
		return errors.New("timeout must be non-negative")
	}

	return nil
}

// GetModel returns the model name with default
func (l LLMConfig) GetModel() string {
	if l.Model == "" {
		return "gpt-4o-mini"
	}
	return l.Model
}

// GetTimeout returns the non-streaming request timeout
func (l LLMConfig) GetTimeout() time.Duration {
	if l.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(l.TimeoutSec) * time.Second
}

// GetMaxTokens returns the completion token limit with default
func (l LLMConfig) GetMaxTokens() int {
	if l.MaxTokens <= 0 {
		return 8192
	}
	return l.MaxTokens
}

// ImagesConfig contains image provider settings
type ImagesConfig struct {
	PixabayKey      string  `toml:"pixabay_key"`
	PixabayBaseURL  string  `toml:"pixabay_base_url"`
	WikimediaURL    string  `toml:"wikimedia_base_url"`
	UserAgent       string  `toml:"user_agent"`
	DefaultProvider string  `toml:"default_provider"`
	PerPage         int     `toml:"per_page"`
	TimeoutSec      int     `toml:"timeout_sec"`
	RequestsPerSec  float64 `toml:"requests_per_sec"`
	Burst           int     `toml:"burst"`
	Parallelism     int     `toml:"parallelism"`
}

// Image provider names
const (
	ProviderPixabay   = "pixabay"
	ProviderWikimedia = "wikimedia"
)

// Validate validates image provider configuration
func (i ImagesConfig) Validate() error {
	for _, u := range []string{i.PixabayBaseURL, i.WikimediaURL} {
		if u == "" {
			continue
		}
		if err := validateHTTPURL(u); err != nil {
			return err
		}
	}

	switch i.DefaultProvider {
	case "", ProviderPixabay, ProviderWikimedia:
	default:
		return fmt.Errorf("unknown default provider: %s (must be pixabay or wikimedia)", i.DefaultProvider)
	}

	if i.PerPage < 0 || i.PerPage > 200 {
		return errors.New("per page must be between 0 and 200")
	}

	if i.TimeoutSec < 0 {
		return errors.New("timeout must be non-negative")
	}

	if i.RequestsPerSec < 0 {
		return errors.New("requests per second must be non-negative")
	}

	if i.Burst < 0 || i.Parallelism < 0 {
		return errors.New("burst and parallelism must be non-negative")
	}

	return nil
}

// GetPixabayBaseURL returns the Pixabay endpoint with default
func (i ImagesConfig) GetPixabayBaseURL() string {
	if i.PixabayBaseURL == "" {
		return "https://pixabay.com"
	}
	return strings.TrimRight(i.PixabayBaseURL, "/")
}

// GetWikimediaURL returns the Wikimedia Commons endpoint with default
func (i ImagesConfig) GetWikimediaURL() string {
	if i.WikimediaURL == "" {
		return "https://commons.wikimedia.org"
	}
	return strings.TrimRight(i.WikimediaURL, "/")
}

// GetUserAgent returns the User-Agent sent to providers
func (i ImagesConfig) GetUserAgent() string {
	if i.UserAgent == "" {
		return "deckforge/1.0 (https://github.com/fredcamaral/deckforge)"
	}
	return i.UserAgent
}

// GetDefaultProvider returns the provider used by match-images
func (i ImagesConfig) GetDefaultProvider() string {
	if i.DefaultProvider == "" {
		return ProviderPixabay
	}
	return i.DefaultProvider
}

// GetPerPage returns the number of hits requested per query
func (i ImagesConfig) GetPerPage() int {
	if i.PerPage <= 0 {
		return 20
	}
	return i.PerPage
}

// GetTimeout returns the outbound request timeout
func (i ImagesConfig) GetTimeout() time.Duration {
	if i.TimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(i.TimeoutSec) * time.Second
}

// GetRequestsPerSec returns the outbound throttle rate
func (i ImagesConfig) GetRequestsPerSec() float64 {
	if i.RequestsPerSec <= 0 {
		return 5
	}
	return i.RequestsPerSec
}

// GetBurst returns the outbound throttle burst
func (i ImagesConfig) GetBurst() int {
	if i.Burst <= 0 {
		return 5
	}
	return i.Burst
}

// GetParallelism returns the batch fan-out width
func (i ImagesConfig) GetParallelism() int {
	if i.Parallelism <= 0 {
		return 5
	}
	return i.Parallelism
}

// RateLimitConfig contains the inbound request limiter settings
type RateLimitConfig struct {
	Enabled   *bool  `toml:"enabled"`
	Limit     int    `toml:"limit"`
	WindowSec int    `toml:"window_sec"`
	Store     string `toml:"store"`
	RedisURL  string `toml:"redis_url"`
	KeyPrefix string `toml:"key_prefix"`
}

// Rate limit store kinds
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Validate validates rate limit configuration
func (r RateLimitConfig) Validate() error {
	if r.Limit < 0 {
		return errors.New("limit must be non-negative")
	}

	if r.WindowSec < 0 {
		return errors.New("window must be non-negative")
	}

	switch r.Store {
	case "", RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if r.RedisURL == "" {
			return errors.New("redis store requires redis_url")
		}
	default:
		return fmt.Errorf("unknown rate limit store: %s (must be memory or redis)", r.Store)
	}

	return nil
}

// IsEnabled reports whether inbound rate limiting is on (default true)
func (r RateLimitConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// GetLimit returns the request limit per window (default 100)
func (r RateLimitConfig) GetLimit() int {
	if r.Limit <= 0 {
		return 100
	}
	return r.Limit
}

// GetWindow returns the sliding window length (default one minute)
func (r RateLimitConfig) GetWindow() time.Duration {
	if r.WindowSec <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSec) * time.Second
}

// GetStore returns the store kind with default
func (r RateLimitConfig) GetStore() string {
	if r.Store == "" {
		return RateLimitStoreMemory
	}
	return r.Store
}

// GetKeyPrefix returns the redis key prefix with default
func (r RateLimitConfig) GetKeyPrefix() string {
	if r.KeyPrefix == "" {
		return "deckforge:ratelimit:"
	}
	return r.KeyPrefix
}

// SanitizerPolicy controls how unverified image URLs are handled
type SanitizerPolicy string

const (
	SanitizerPolicyReplace SanitizerPolicy = "replace"
	SanitizerPolicyFlag    SanitizerPolicy = "flag"
)

// StreamMode controls how streamed model output is sanitized
type StreamMode string

const (
	StreamModeReassemble StreamMode = "reassemble"
	StreamModeChunk      StreamMode = "chunk"
)

// SanitizerConfig contains HTML sanitizer settings
type SanitizerConfig struct {
	Policy         string   `toml:"policy"`
	StreamMode     string   `toml:"stream_mode"`
	SuspectDomains []string `toml:"suspect_domains"`
}

// Validate validates sanitizer configuration
func (s SanitizerConfig) Validate() error {
	switch SanitizerPolicy(s.Policy) {
	case "", SanitizerPolicyReplace, SanitizerPolicyFlag:
	default:
		return fmt.Errorf("invalid sanitizer policy: %s (must be replace or flag)", s.Policy)
	}

	switch StreamMode(s.StreamMode) {
	case "", StreamModeReassemble, StreamModeChunk:
	default:
		return fmt.Errorf("invalid stream mode: %s (must be reassemble or chunk)", s.StreamMode)
	}

	for _, d := range s.SuspectDomains {
		if strings.TrimSpace(d) == "" {
			return errors.New("suspect domain cannot be empty")
		}
	}

	return nil
}

// GetPolicy returns the URL policy with default
func (s SanitizerConfig) GetPolicy() SanitizerPolicy {
	if s.Policy == "" {
		return SanitizerPolicyReplace
	}
	return SanitizerPolicy(s.Policy)
}

// GetStreamMode returns the stream mode with default
func (s SanitizerConfig) GetStreamMode() StreamMode {
	if s.StreamMode == "" {
		return StreamModeReassemble
	}
	return StreamMode(s.StreamMode)
}

// MatcherConfig contains image matching settings
type MatcherConfig struct {
	MaxImagesPerSlide int `toml:"max_images_per_slide"`
}

// Validate validates matcher configuration
func (m MatcherConfig) Validate() error {
	if m.MaxImagesPerSlide < 0 || m.MaxImagesPerSlide > 50 {
		return errors.New("max images per slide must be between 0 and 50")
	}
	return nil
}

// GetMaxImagesPerSlide returns the per-slide cap with default
func (m MatcherConfig) GetMaxImagesPerSlide() int {
	if m.MaxImagesPerSlide <= 0 {
		return DefaultMaxImagesPerSlide
	}
	return m.MaxImagesPerSlide
}

// PromptsConfig contains the prompt template catalog settings
type PromptsConfig struct {
	TemplatesFile   string `toml:"templates_file"`
	DefaultTemplate string `toml:"default_template"`
}

// Validate validates prompts configuration
func (p PromptsConfig) Validate() error {
	if p.TemplatesFile != "" && !filepath.IsAbs(p.TemplatesFile) {
		return errors.New("templates file path must be absolute")
	}
	return nil
}

// GetDefaultTemplate returns the template used when a request names none
func (p PromptsConfig) GetDefaultTemplate() string {
	if p.DefaultTemplate == "" {
		return "default"
	}
	return p.DefaultTemplate
}

// WatcherConfig contains file watcher configuration
type WatcherConfig struct {
	Enabled    *bool `toml:"enabled"`
	DebounceMs int   `toml:"debounce_ms"`
}

// Validate validates watcher configuration
func (w WatcherConfig) Validate() error {
	if w.DebounceMs < 0 {
		return errors.New("debounce time must be non-negative")
	}
	return nil
}

// IsEnabled reports whether the template file is watched (default true)
func (w WatcherConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// GetDebounce returns the debounce time as a duration
func (w WatcherConfig) GetDebounce() time.Duration {
	if w.DebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// BoolPtr returns a pointer to b for optional config flags
func BoolPtr(b bool) *bool {
	return &b
}

// LogLevel represents logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`       // debug, info, warn, error
	JSONFormat bool   `toml:"json_format"` // Output logs in JSON format
	File       string `toml:"file"`        // Log to file (optional)
}

// Validate validates logging configuration
func (l LoggingConfig) Validate() error {
	switch LogLevel(l.Level) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	case "":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", l.Level)
	}

	if l.File != "" {
		if !filepath.IsAbs(l.File) {
			return errors.New("log file path must be absolute")
		}

		dir := filepath.Dir(l.File)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("log file directory does not exist: %s", dir)
		}
	}

	return nil
}

// GetLevel returns the log level with default
func (l LoggingConfig) GetLevel() LogLevel {
	if l.Level == "" {
		return LogLevelInfo
	}
	return LogLevel(l.Level)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must start with http:// or https://: %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host: %s", raw)
	}
	return nil
}
