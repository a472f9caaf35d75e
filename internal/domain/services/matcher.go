package services

import (
	"math"
	"sort"
	"strings"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// Score rates how well an image found by query fits a slide. The terms are additive
// and not normalized against each other.
func Score(slide entities.Slide, hit entities.ImageHit, query string) float64 {
	score := math.Min(float64(hit.Likes)/100, 10)
	score += math.Min(float64(hit.Downloads)/1000, 5)

	switch {
	case hit.Width >= 1920 && hit.Height >= 1080:
		score += 5
	case hit.Width >= 1280 && hit.Height >= 720:
		score += 3
	}

	if slide.Type == entities.SlideTypeCover && hit.IsLandscape() {
		score += 5
	}

	text := strings.ToLower(slide.Title + " " + slide.Content)
	for _, tag := range hit.TagList() {
		if strings.Contains(text, strings.ToLower(tag)) {
			score += 2
		}
	}

	if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(strings.ToLower(hit.Tags), q) {
		score += 3
	}

	return score
}

type candidate struct {
	hit      entities.ImageHit
	query    string
	score    float64
	queryPos int
	hitPos   int
}

// Match ranks every image from every result against each slide and keeps the best
// limit distinct images per slide. Ranking is per distinct image: an image returned
// under several queries takes one slot, ranked by its best scoring query.
func Match(slides []entities.Slide, results []entities.ImageSearchResult, limit int) []entities.SlideWithImages {
	if limit <= 0 {
		limit = entities.DefaultMaxImagesPerSlide
	}

	matched := make([]entities.SlideWithImages, 0, len(slides))
	for _, slide := range slides {
		matched = append(matched, matchSlide(slide, results, limit))
	}
	return matched
}

func matchSlide(slide entities.Slide, results []entities.ImageSearchResult, limit int) entities.SlideWithImages {
	var candidates []candidate
	for qi, result := range results {
		for hi, hit := range result.Result.Hits {
			candidates = append(candidates, candidate{
				hit:      hit,
				query:    result.Query,
				score:    Score(slide, hit, result.Query),
				queryPos: qi,
				hitPos:   hi,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.hit.ID != b.hit.ID {
			return a.hit.ID < b.hit.ID
		}
		if a.queryPos != b.queryPos {
			return a.queryPos < b.queryPos
		}
		return a.hitPos < b.hitPos
	})

	out := entities.SlideWithImages{
		Slide:           slide,
		SuggestedImages: make([]entities.ImageHit, 0, limit),
		SearchQueries:   []string{},
	}

	taken := make(map[string]bool)
	usedQuery := make(map[string]bool)
	for _, c := range candidates {
		if len(out.SuggestedImages) == limit {
			break
		}

		key := imageKey(c.hit)
		if taken[key] {
			continue
		}
		taken[key] = true

		out.SuggestedImages = append(out.SuggestedImages, c.hit)
		if !usedQuery[c.query] {
			usedQuery[c.query] = true
			out.SearchQueries = append(out.SearchQueries, c.query)
		}
	}

	return out
}

// imageKey identifies an image across results; hits without an ID fall back to their URL
func imageKey(hit entities.ImageHit) string {
	if hit.ID != "" {
		return hit.Source + ":" + hit.ID
	}
	return hit.LargeURL + "|" + hit.PreviewURL
}
