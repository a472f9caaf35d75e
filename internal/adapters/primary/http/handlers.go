package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/adapters/secondary/logging"
	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// SearchRequest is the body of the provider search routes. Either Query or
// Queries is set; the top-level filters apply to batch entries that omit them.
type SearchRequest struct {
	Query         string               `json:"query,omitempty"`
	Queries       []QueryItem          `json:"queries,omitempty"`
	ImageType     entities.ImageType   `json:"imageType,omitempty"`
	Orientation   entities.Orientation `json:"orientation,omitempty"`
	MinWidth      int                  `json:"minWidth,omitempty"`
	MinHeight     int                  `json:"minHeight,omitempty"`
	EditorsChoice bool                 `json:"editorsChoice,omitempty"`
	APIKey        string               `json:"apiKey,omitempty"`
}

// QueryItem is a batch entry, given either as a bare string or a query object
type QueryItem entities.ImageSearchQuery

// UnmarshalJSON accepts "text" or {"q": "text", ...}
func (q *QueryItem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*q = QueryItem{Q: text}
		return nil
	}

	var full entities.ImageSearchQuery
	if err := json.Unmarshal(data, &full); err != nil {
		return fmt.Errorf("query must be a string or an object: %w", err)
	}
	*q = QueryItem(full)
	return nil
}

// BatchResponse wraps the results of a batch search
type BatchResponse struct {
	Results []entities.ImageSearchResult `json:"results"`
}

// SlidesResponse wraps extracted slides
type SlidesResponse struct {
	Slides interface{} `json:"slides"`
}

// MatchResponse carries matched slides and the URL set to pass to chat as validImageUrls
type MatchResponse struct {
	Slides         []entities.SlideWithImages `json:"slides"`
	ValidImageURLs []string                   `json:"validImageUrls"`
}

// SanitizeRequest is the body of the sanitize route
type SanitizeRequest struct {
	HTML           string   `json:"html"`
	ValidImageURLs []string `json:"validImageUrls,omitempty"`
}

// SanitizeResponse carries the rewritten markup and what changed
type SanitizeResponse struct {
	HTML   string               `json:"html"`
	Report ports.SanitizeReport `json:"report"`
}

// ConvertRequest is the body of the data URL route
type ConvertRequest struct {
	Code     string `json:"code,omitempty"`
	HTML     string `json:"html,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ConvertResponse carries the base64 data URL
type ConvertResponse struct {
	DataURL string `json:"dataUrl"`
}

// TemplateSummary lists a catalog entry without its prompt bodies
type TemplateSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds float64  `json:"uptimeSeconds"`
	ActiveStreams int      `json:"activeStreams"`
	Providers     []string `json:"providers"`
}

func (s *Server) handleGenerateQueries(w http.ResponseWriter, r *http.Request) {
	var req ports.QueryPlanRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	suggestions, err := s.generation.GenerateQueries(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, suggestions)
}

func (s *Server) handleGenerateSlides(w http.ResponseWriter, r *http.Request) {
	var req ports.DeckRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.generation.GenerateSlides(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, result)
}

// handleProviderSearch serves single and batch searches for one provider
func (s *Server) handleProviderSearch(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		creds := entities.ImageCredentials{PixabayKey: req.APIKey}

		if len(req.Queries) > 0 {
			if len(req.Queries) > entities.MaxBatchQueries {
				s.writeError(w, r, entities.NewValidationError("queries",
					fmt.Sprintf("at most %d queries per batch, got %d", entities.MaxBatchQueries, len(req.Queries))))
				return
			}

			queries := make([]entities.ImageSearchQuery, len(req.Queries))
			for i, item := range req.Queries {
				queries[i] = req.withFilters(entities.ImageSearchQuery(item))
			}

			results, err := s.images.SearchBatch(r.Context(), provider, queries, creds)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, r, http.StatusOK, BatchResponse{Results: results})
			return
		}

		if strings.TrimSpace(req.Query) == "" {
			s.writeError(w, r, entities.NewValidationError("query", "query or queries is required"))
			return
		}

		result, err := s.images.Search(r.Context(), provider, req.withFilters(entities.ImageSearchQuery{Q: req.Query}), creds)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, result)
	}
}

// withFilters fills the unset filters of q from the request
func (req SearchRequest) withFilters(q entities.ImageSearchQuery) entities.ImageSearchQuery {
	if q.ImageType == "" {
		q.ImageType = req.ImageType
	}
	if q.Orientation == "" {
		q.Orientation = req.Orientation
	}
	if q.MinWidth == 0 {
		q.MinWidth = req.MinWidth
	}
	if q.MinHeight == 0 {
		q.MinHeight = req.MinHeight
	}
	if !q.EditorsChoice {
		q.EditorsChoice = req.EditorsChoice
	}
	return q
}

func (s *Server) handleMatchImages(w http.ResponseWriter, r *http.Request) {
	var req ports.MatchRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	slides, err := s.images.MatchImages(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, MatchResponse{
		Slides:         slides,
		ValidImageURLs: entities.SuggestedImageURLs(slides),
	})
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		s.writeError(w, r, entities.NewValidationError("html", "html is required"))
		return
	}

	html, report := s.sanitizer.Sanitize(req.HTML, req.ValidImageURLs)
	s.writeJSON(w, r, http.StatusOK, SanitizeResponse{HTML: html, Report: report})
}

func (s *Server) handleExtractSlides(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	slides, err := s.extractor.Extract(r.Context(), req.HTML)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, SlidesResponse{Slides: slides})
}

func (s *Server) handleConvertDataURL(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	dataURL, err := toDataURL(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, ConvertResponse{DataURL: dataURL})
}

// toDataURL wraps the request content as a base64 data URL
func toDataURL(req ConvertRequest) (string, error) {
	content := req.Code
	if content == "" {
		content = req.HTML
	}
	if content == "" {
		return "", entities.NewValidationError("code", "code or html is required")
	}

	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = "text/html"
	}
	if _, _, err := mime.ParseMediaType(mimeType); err != nil {
		return "", entities.NewValidationError("mimeType", fmt.Sprintf("invalid mime type: %s", mimeType))
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString([]byte(content)), nil
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	summaries := []TemplateSummary{}
	if s.catalog != nil {
		for _, tmpl := range s.catalog.List() {
			summaries = append(summaries, TemplateSummary{Name: tmpl.Name, Description: tmpl.Description})
		}
	}
	s.writeJSON(w, r, http.StatusOK, summaries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := []string{}
	if s.images != nil {
		providers = s.images.Providers()
	}

	s.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: s.metrics.Uptime().Seconds(),
		ActiveStreams: s.connMgr.Count(),
		Providers:     providers,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, errNotFound)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, errMethodNotAllowed)
}

var (
	errNotFound         = errors.New("resource not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errShuttingDown     = errors.New("server is shutting down")
)

// decodeJSON reads a size-limited JSON body into v
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.GetMaxBodyBytes())

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		return entities.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// statusForError maps domain errors to HTTP status codes. Upstream failures are
// reported as 500 with their message passed through.
func statusForError(err error) int {
	var (
		validationErr *entities.ValidationError
		rateErr       *entities.RateLimitError
		maxErr        *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, errShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageForError returns the client-facing message. Domain and upstream errors
// are safe to pass through; anything else is replaced by a generic message.
func messageForError(err error, status int) string {
	var externalErr *entities.ExternalServiceError

	switch {
	case status == http.StatusRequestEntityTooLarge:
		return "Request body too large"
	case status == http.StatusGatewayTimeout:
		return "Upstream request timed out"
	case errors.As(err, &externalErr):
		return err.Error()
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		return "Internal server error"
	default:
		return err.Error()
	}
}

// writeError writes a JSON error with the mapped status; the full error is only logged
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}

	s.writeJSON(w, r, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: messageForError(err, status),
		Time:    time.Now(),
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode JSON response", zap.Error(err))
	}
}
