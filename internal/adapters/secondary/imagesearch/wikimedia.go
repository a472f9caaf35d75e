package imagesearch

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// maxWikimediaLimit is the largest gsrlimit accepted for anonymous clients
const maxWikimediaLimit = 50

// thumbWidth is the preview width requested from Commons
const thumbWidth = 640

// WikimediaConfig configures the Wikimedia Commons searcher
type WikimediaConfig struct {
	BaseURL   string
	PerPage   int
	UserAgent string
	Throttle  Throttle
}

// WikimediaSearcher searches Wikimedia Commons files
type WikimediaSearcher struct {
	client  ports.HTTPClient
	config  WikimediaConfig
	limiter *rate.Limiter
}

// NewWikimediaSearcher creates a new Wikimedia Commons searcher
func NewWikimediaSearcher(client ports.HTTPClient, config WikimediaConfig) *WikimediaSearcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://commons.wikimedia.org"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.PerPage <= 0 {
		config.PerPage = 20
	}
	if config.PerPage > maxWikimediaLimit {
		config.PerPage = maxWikimediaLimit
	}

	return &WikimediaSearcher{
		client:  client,
		config:  config,
		limiter: config.Throttle.limiter(),
	}
}

// Name returns the provider name
func (w *WikimediaSearcher) Name() string {
	return entities.ProviderWikimedia
}

type wikimediaResponse struct {
	Query struct {
		Pages map[string]wikimediaPage `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type wikimediaPage struct {
	PageID    int64                `json:"pageid"`
	Title     string               `json:"title"`
	Index     int                  `json:"index"`
	ImageInfo []wikimediaImageInfo `json:"imageinfo"`
}

type wikimediaImageInfo struct {
	URL         string                        `json:"url"`
	ThumbURL    string                        `json:"thumburl"`
	Width       int                           `json:"width"`
	Height      int                           `json:"height"`
	User        string                        `json:"user"`
	ExtMetadata map[string]wikimediaMetaValue `json:"extmetadata"`
}

type wikimediaMetaValue struct {
	Value interface{} `json:"value"`
}

// Search runs one query. Commons has no orientation or size filters, so those are
// applied to the returned pages.
func (w *WikimediaSearcher) Search(ctx context.Context, q entities.ImageSearchQuery, _ entities.ImageCredentials) (entities.ImageSearchResult, error) {
	q = q.Normalize()

	fileType := "filetype:bitmap"
	if q.ImageType == entities.ImageTypeVector {
		fileType = "filetype:drawing"
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrnamespace", "6")
	params.Set("gsrsearch", fileType+" "+q.Q)
	params.Set("gsrlimit", strconv.Itoa(w.config.PerPage))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|size|user|extmetadata")
	params.Set("iiurlwidth", strconv.Itoa(thumbWidth))

	var resp wikimediaResponse
	endpoint := w.config.BaseURL + "/w/api.php?" + params.Encode()
	if err := getJSON(ctx, w.client, w.limiter, entities.ProviderWikimedia, endpoint, w.config.UserAgent, &resp); err != nil {
		return entities.ImageSearchResult{}, err
	}
	if resp.Error != nil {
		return entities.ImageSearchResult{}, &entities.ExternalServiceError{
			Service: entities.ProviderWikimedia,
			Message: resp.Error.Code + ": " + resp.Error.Info,
		}
	}

	pages := make([]wikimediaPage, 0, len(resp.Query.Pages))
	for _, page := range resp.Query.Pages {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Index != pages[j].Index {
			return pages[i].Index < pages[j].Index
		}
		return pages[i].PageID < pages[j].PageID
	})

	hits := make([]entities.ImageHit, 0, len(pages))
	for _, page := range pages {
		hit, ok := normalizePage(page)
		if !ok || !matchesFilters(hit, q) {
			continue
		}
		hits = append(hits, hit)
	}

	return entities.ImageSearchResult{
		Query: q.Q,
		Result: entities.ImageSearchPage{
			Total:     len(hits),
			TotalHits: len(hits),
			Hits:      hits,
		},
	}, nil
}

func normalizePage(page wikimediaPage) (entities.ImageHit, bool) {
	if len(page.ImageInfo) == 0 || page.ImageInfo[0].URL == "" {
		return entities.ImageHit{}, false
	}
	info := page.ImageInfo[0]

	preview := info.ThumbURL
	if preview == "" {
		preview = info.URL
	}

	return entities.ImageHit{
		ID:         strconv.FormatInt(page.PageID, 10),
		PreviewURL: preview,
		LargeURL:   info.URL,
		Tags:       pageTags(page.Title, info.ExtMetadata),
		User:       info.User,
		Width:      info.Width,
		Height:     info.Height,
		Source:     entities.ProviderWikimedia,
	}, true
}

// pageTags combines the file categories with the words of the file title
func pageTags(title string, meta map[string]wikimediaMetaValue) string {
	var tags []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			return
		}
		seen[key] = true
		tags = append(tags, tag)
	}

	if categories, ok := meta["Categories"]; ok {
		if value, ok := categories.Value.(string); ok {
			for _, c := range strings.Split(value, "|") {
				add(c)
			}
		}
	}

	name := strings.TrimPrefix(title, "File:")
	name = strings.TrimSuffix(name, path.Ext(name))
	for _, word := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(word)) > 2 {
			add(strings.ToLower(word))
		}
	}

	return strings.Join(tags, ", ")
}

func matchesFilters(hit entities.ImageHit, q entities.ImageSearchQuery) bool {
	switch q.Orientation {
	case entities.OrientationHorizontal:
		if hit.Width <= hit.Height {
			return false
		}
	case entities.OrientationVertical:
		if hit.Height <= hit.Width {
			return false
		}
	}
	if q.MinWidth > 0 && hit.Width < q.MinWidth {
		return false
	}
	if q.MinHeight > 0 && hit.Height < q.MinHeight {
		return false
	}
	return true
}
