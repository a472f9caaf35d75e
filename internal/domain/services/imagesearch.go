package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// ImageSearchOptions configures the image search service
type ImageSearchOptions struct {
	DefaultProvider   string
	Parallelism       int
	MaxImagesPerSlide int
}

// ImageSearchService dispatches queries to image providers and matches results to slides
type ImageSearchService struct {
	searchers map[string]ports.ImageSearcher
	extractor ports.SlideExtractor
	opts      ImageSearchOptions
	logger    *zap.Logger
}

// NewImageSearchService creates a new image search service
func NewImageSearchService(
	searchers []ports.ImageSearcher,
	extractor ports.SlideExtractor,
	opts ImageSearchOptions,
	logger *zap.Logger,
) *ImageSearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = entities.ProviderPixabay
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 5
	}
	if opts.MaxImagesPerSlide <= 0 {
		opts.MaxImagesPerSlide = entities.DefaultMaxImagesPerSlide
	}

	byName := make(map[string]ports.ImageSearcher, len(searchers))
	for _, s := range searchers {
		byName[s.Name()] = s
	}

	return &ImageSearchService{
		searchers: byName,
		extractor: extractor,
		opts:      opts,
		logger:    logger.With(zap.String("service", "image_search")),
	}
}

// Providers returns the registered provider names
func (s *ImageSearchService) Providers() []string {
	names := make([]string, 0, len(s.searchers))
	for name := range s.searchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *ImageSearchService) searcher(provider string) (ports.ImageSearcher, error) {
	if provider == "" {
		provider = s.opts.DefaultProvider
	}
	searcher, ok := s.searchers[strings.ToLower(provider)]
	if !ok {
		return nil, entities.NewValidationError("provider", fmt.Sprintf("unknown image provider: %s", provider))
	}
	return searcher, nil
}

// Search runs a single query against a provider
func (s *ImageSearchService) Search(ctx context.Context, provider string, query entities.ImageSearchQuery, creds entities.ImageCredentials) (entities.ImageSearchResult, error) {
	searcher, err := s.searcher(provider)
	if err != nil {
		return entities.ImageSearchResult{}, err
	}

	if err := query.Validate(); err != nil {
		return entities.ImageSearchResult{}, err
	}

	result, err := searcher.Search(ctx, query.Normalize(), creds)
	if err != nil {
		return entities.ImageSearchResult{}, fmt.Errorf("searching %s: %w", searcher.Name(), err)
	}
	return result, nil
}

// SearchBatch runs up to MaxBatchQueries queries concurrently. Results keep the input
// order; a failed query yields an empty result carrying the error message. Validation
// failures such as a missing key abort the batch.
func (s *ImageSearchService) SearchBatch(ctx context.Context, provider string, queries []entities.ImageSearchQuery, creds entities.ImageCredentials) ([]entities.ImageSearchResult, error) {
	searcher, err := s.searcher(provider)
	if err != nil {
		return nil, err
	}

	if len(queries) == 0 {
		return nil, entities.NewValidationError("queries", "at least one query is required")
	}
	if len(queries) > entities.MaxBatchQueries {
		return nil, entities.NewValidationError("queries", fmt.Sprintf("at most %d queries per batch, got %d", entities.MaxBatchQueries, len(queries)))
	}

	normalized := make([]entities.ImageSearchQuery, len(queries))
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		normalized[i] = q.Normalize()
	}

	results := make([]entities.ImageSearchResult, len(normalized))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for i, q := range normalized {
		i, q := i, q
		g.Go(func() error {
			result, err := searcher.Search(gctx, q, creds)
			if err != nil {
				var validationErr *entities.ValidationError
				if errors.As(err, &validationErr) {
					return err
				}

				s.logger.Warn("image query failed",
					zap.String("provider", searcher.Name()),
					zap.String("query", q.Q),
					zap.Error(err),
				)
				result = entities.EmptyResult(q.Q)
				result.Error = err.Error()
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MatchImages suggests images for every slide in a document
func (s *ImageSearchService) MatchImages(ctx context.Context, req ports.MatchRequest) ([]entities.SlideWithImages, error) {
	if _, err := s.searcher(req.Provider); err != nil {
		return nil, err
	}
	if req.MaxImagesPerSlide < 0 {
		return nil, entities.NewValidationError("maxImagesPerSlide", "must be non-negative")
	}

	slides, err := s.extractor.Extract(ctx, req.HTML)
	if err != nil {
		return nil, fmt.Errorf("extracting slides: %w", err)
	}
	if len(slides) == 0 {
		return []entities.SlideWithImages{}, nil
	}

	perSlide := make([][]entities.ImageSearchQuery, len(slides))
	for i, slide := range slides {
		perSlide[i] = GenerateQueries(slide)
	}
	merged := MergeQueries(perSlide)

	creds := entities.ImageCredentials{PixabayKey: req.PixabayKey}
	var results []entities.ImageSearchResult
	for _, batch := range Batches(merged, entities.MaxBatchQueries) {
		batchResults, err := s.SearchBatch(ctx, req.Provider, batch, creds)
		if err != nil {
			return nil, err
		}
		results = append(results, batchResults...)
	}

	limit := req.MaxImagesPerSlide
	if limit == 0 {
		limit = s.opts.MaxImagesPerSlide
	}

	s.logger.Debug("matched images",
		zap.Int("slides", len(slides)),
		zap.Int("queries", len(merged)),
		zap.Int("limit", limit),
	)

	return Match(slides, results, limit), nil
}
