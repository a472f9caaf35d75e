package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "github.com/fredcamaral/deckforge/internal/adapters/primary/http"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/config"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/extractor"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/imagesearch"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/llm"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/logging"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/monitoring"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/ratelimit"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/renderer"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/sanitizer"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/templates"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/watcher"
	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
	"github.com/fredcamaral/deckforge/internal/domain/services"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the presentation API server",
	Long: `Start the HTTP API server.

Configuration is read from defaults, the global config
(~/.config/deckforge/config.toml), a local deckforge.toml or --config,
DECKFORGE_* environment variables and finally these flags.

Example:
  deckforge serve
  deckforge serve --port 9000 --templates /etc/deckforge/templates.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Defaults come from config loading; zero values mean "not set"
	serveCmd.Flags().IntP("port", "p", 0, "Port to serve on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().String("provider", "", "Default image provider: pixabay or wikimedia (overrides config)")
	serveCmd.Flags().String("templates", "", "Prompt template catalog file (overrides config)")
	serveCmd.Flags().Bool("no-rate-limit", false, "Disable inbound rate limiting")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.server.Start(ctx, cfg.Server.Port, cfg.Server.Host); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	logger.Info("deckforge listening",
		zap.String("addr", app.server.Addr()),
		zap.String("version", Version),
		zap.String("default_provider", cfg.Images.GetDefaultProvider()),
		zap.Bool("rate_limit", cfg.RateLimit.IsEnabled()),
	)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout()+time.Second)
	defer cancel()
	if err := app.server.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadConfig resolves the configuration hierarchy for the current directory
func loadConfig(cmd *cobra.Command) (*entities.Config, error) {
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	service := services.NewConfigService(config.NewTOMLLoader(), config.NewConfigMerger())
	cfg, err := service.LoadConfig(cmd.Context(), workingDir, collectFlags(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// collectFlags gathers the flags that were explicitly set, keyed by flag name
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})

	if cmd.Flags().Changed("config") {
		flags["config"], _ = cmd.Flags().GetString("config")
	}
	if cmd.Flags().Changed("log-level") {
		flags["log-level"], _ = cmd.Flags().GetString("log-level")
	}

	if cmd.Flags().Lookup("port") != nil && cmd.Flags().Changed("port") {
		flags["port"], _ = cmd.Flags().GetInt("port")
	}
	for _, name := range []string{"host", "provider", "templates"} {
		if cmd.Flags().Lookup(name) != nil && cmd.Flags().Changed(name) {
			flags[name], _ = cmd.Flags().GetString(name)
		}
	}
	if cmd.Flags().Lookup("no-rate-limit") != nil && cmd.Flags().Changed("no-rate-limit") {
		flags["no-rate-limit"], _ = cmd.Flags().GetBool("no-rate-limit")
	}

	return flags
}

// application holds the wired server and the resources it owns
type application struct {
	server  *httpadapter.Server
	catalog *templates.Catalog
	reload  *services.CatalogReloadService
	limiter *services.RateLimiter
	logger  *zap.Logger
}

// newApplication builds every adapter and service from cfg
func newApplication(ctx context.Context, cfg *entities.Config, logger *zap.Logger) (*application, error) {
	metrics := monitoring.NewMetrics()

	llmClient := monitoring.InstrumentLLM(llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.GetModel(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.GetMaxTokens(),
		Timeout:     cfg.LLM.GetTimeout(),
	}, logger), metrics)

	// Provider calls are not retried
	httpClient := ports.NewRealHTTPClient(ports.HTTPClientConfig{
		Timeout:   cfg.Images.GetTimeout(),
		UserAgent: cfg.Images.GetUserAgent(),
	})
	throttle := imagesearch.Throttle{
		RequestsPerSec: cfg.Images.GetRequestsPerSec(),
		Burst:          cfg.Images.GetBurst(),
	}
	searchers := []ports.ImageSearcher{
		monitoring.InstrumentSearcher(imagesearch.NewPixabaySearcher(httpClient, imagesearch.PixabayConfig{
			BaseURL:   cfg.Images.GetPixabayBaseURL(),
			APIKey:    cfg.Images.PixabayKey,
			PerPage:   cfg.Images.GetPerPage(),
			UserAgent: cfg.Images.GetUserAgent(),
			Throttle:  throttle,
		}), metrics),
		monitoring.InstrumentSearcher(imagesearch.NewWikimediaSearcher(httpClient, imagesearch.WikimediaConfig{
			BaseURL:   cfg.Images.GetWikimediaURL(),
			PerPage:   cfg.Images.GetPerPage(),
			UserAgent: cfg.Images.GetUserAgent(),
			Throttle:  throttle,
		}), metrics),
	}

	htmlSanitizer := sanitizer.New(sanitizer.Options{
		Policy:         cfg.Sanitizer.GetPolicy(),
		SuspectDomains: cfg.Sanitizer.SuspectDomains,
	})
	slideExtractor := extractor.NewSlideExtractor()

	deckRenderer, err := renderer.NewDeckRenderer()
	if err != nil {
		return nil, fmt.Errorf("creating deck renderer: %w", err)
	}

	catalog, err := templates.Load(ctx, cfg.Prompts.TemplatesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("loading template catalog: %w", err)
	}

	app := &application{catalog: catalog, logger: logger}

	if cfg.Prompts.TemplatesFile != "" && cfg.Watcher.IsEnabled() {
		app.reload = services.NewCatalogReloadService(
			watcher.NewFSNotifyWatcher(cfg.Watcher.GetDebounce(), logger), catalog, logger)
		if err := app.reload.Start(ctx); err != nil {
			// The catalog still serves the snapshot loaded above
			logger.Warn("template hot reload disabled", zap.Error(err))
			app.reload = nil
		}
	}

	var limiter httpadapter.RequestLimiter
	if cfg.RateLimit.IsEnabled() {
		store, err := newRateLimitStore(ctx, cfg.RateLimit)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.limiter = services.NewRateLimiter(store, cfg.RateLimit.GetLimit(), cfg.RateLimit.GetWindow(), nil)
		limiter = app.limiter
	}

	generation := services.NewGenerationService(llmClient, htmlSanitizer, deckRenderer, catalog, services.GenerationOptions{
		StreamMode:      cfg.Sanitizer.GetStreamMode(),
		DefaultTemplate: cfg.Prompts.GetDefaultTemplate(),
	}, logger)
	images := services.NewImageSearchService(searchers, slideExtractor, services.ImageSearchOptions{
		DefaultProvider:   cfg.Images.GetDefaultProvider(),
		Parallelism:       cfg.Images.GetParallelism(),
		MaxImagesPerSlide: cfg.Matcher.GetMaxImagesPerSlide(),
	}, logger)

	app.server = httpadapter.NewServer(&cfg.Server, httpadapter.Dependencies{
		Generation: generation,
		Images:     images,
		Sanitizer:  htmlSanitizer,
		Extractor:  slideExtractor,
		Catalog:    catalog,
		Limiter:    limiter,
		Metrics:    metrics,
		Logger:     logger,
		Version:    Version,
	})

	return app, nil
}

// newRateLimitStore connects the configured window store
func newRateLimitStore(ctx context.Context, cfg entities.RateLimitConfig) (ports.RateLimitStore, error) {
	switch cfg.GetStore() {
	case entities.RateLimitStoreRedis:
		store, err := ratelimit.ConnectRedis(ctx, cfg.RedisURL, cfg.GetKeyPrefix())
		if err != nil {
			return nil, fmt.Errorf("connecting rate limit store: %w", err)
		}
		return store, nil
	case entities.RateLimitStoreMemory:
		return ratelimit.NewMemoryStore(cfg.GetWindow()), nil
	default:
		return nil, fmt.Errorf("unknown rate limit store: %s", cfg.GetStore())
	}
}

// Close stops the catalog watcher and releases the rate limit store
func (a *application) Close() {
	var errs []error
	if a.reload != nil {
		errs = append(errs, a.reload.Stop())
	}
	if a.limiter != nil {
		errs = append(errs, a.limiter.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("releasing resources", zap.Error(err))
	}
}
