package services

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// MaxQueriesPerSlide caps the queries generated for one slide
const MaxQueriesPerSlide = 3

// fallbackQuery is used when a slide yields no usable words at all
const fallbackQuery = "abstract presentation background"

var stopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true, "all": true,
	"also": true, "and": true, "any": true, "are": true, "because": true, "been": true,
	"before": true, "being": true, "below": true, "between": true, "both": true, "but": true,
	"can": true, "could": true, "did": true, "does": true, "doing": true, "down": true,
	"during": true, "each": true, "few": true, "for": true, "from": true, "further": true,
	"had": true, "has": true, "have": true, "having": true, "her": true, "here": true,
	"hers": true, "herself": true, "him": true, "himself": true, "his": true, "how": true,
	"into": true, "its": true, "itself": true, "just": true, "more": true, "most": true,
	"much": true, "must": true, "not": true, "now": true, "off": true, "once": true,
	"only": true, "other": true, "our": true, "ours": true, "ourselves": true, "out": true,
	"over": true, "own": true, "same": true, "she": true, "should": true, "some": true,
	"such": true, "than": true, "that": true, "the": true, "their": true, "theirs": true,
	"them": true, "themselves": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "those": true, "through": true, "too": true, "under": true, "until": true,
	"very": true, "was": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "who": true, "whom": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "yours": true, "yourself": true,
	"yourselves": true, "slide": true, "untitled": true,
}

// Tokenize lowercases text and returns its words in order, without stop-words
// and without tokens of two runes or fewer
func Tokenize(text string) []string {
	lower := cases.Lower(language.English).String(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) <= 2 || stopWords[field] {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// TopTerms returns distinct tokens ordered by frequency, ties broken by first occurrence
func TopTerms(text string) []string {
	tokens := Tokenize(text)

	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

// GenerateQueries derives up to three image queries for a slide. The result is
// deterministic for a given slide.
func GenerateQueries(slide entities.Slide) []entities.ImageSearchQuery {
	terms := TopTerms(slide.Text())

	var candidates []entities.ImageSearchQuery
	switch slide.Type {
	case entities.SlideTypeCover:
		candidates = coverQueries(terms, slide.Title)
	case entities.SlideTypeConclusion:
		candidates = conclusionQueries(terms)
	default:
		candidates = contentQueries(terms, rawTitle(slide))
	}

	queries := make([]entities.ImageSearchQuery, 0, MaxQueriesPerSlide)
	seen := make(map[string]bool)
	for _, q := range candidates {
		q = q.Normalize()
		if q.Q == "" || seen[q.Key()] {
			continue
		}
		seen[q.Key()] = true
		queries = append(queries, q)
		if len(queries) == MaxQueriesPerSlide {
			break
		}
	}

	if len(queries) == 0 {
		queries = append(queries, entities.ImageSearchQuery{Q: fallbackQuery}.Normalize())
	}
	return queries
}

func coverQueries(terms []string, title string) []entities.ImageSearchQuery {
	subject := "presentation"
	if len(terms) > 0 {
		subject = terms[0]
	} else if t := strings.TrimSpace(title); t != "" {
		subject = t
	}

	queries := []entities.ImageSearchQuery{{
		Q:             subject + " concept",
		ImageType:     entities.ImageTypePhoto,
		Orientation:   entities.OrientationHorizontal,
		MinWidth:      1280,
		EditorsChoice: true,
	}}
	if len(terms) >= 2 {
		queries = append(queries, entities.ImageSearchQuery{
			Q:           terms[0] + " " + terms[1],
			ImageType:   entities.ImageTypePhoto,
			Orientation: entities.OrientationHorizontal,
		})
	}
	return queries
}

// closingWords are skipped as the subject of a conclusion query
var closingWords = map[string]bool{"conclusion": true, "conclusions": true, "summary": true, "thank": true, "thanks": true}

func conclusionQueries(terms []string) []entities.ImageSearchQuery {
	prefix := ""
	for _, term := range terms {
		if !closingWords[term] {
			prefix = term + " "
			break
		}
	}

	return []entities.ImageSearchQuery{
		{
			Q:           prefix + "summary",
			ImageType:   entities.ImageTypeIllustration,
			Orientation: entities.OrientationHorizontal,
		},
		{
			Q:           prefix + "conclusion concept",
			ImageType:   entities.ImageTypePhoto,
			Orientation: entities.OrientationHorizontal,
		},
	}
}

// rawTitle returns the slide title unless it is a generated placeholder
func rawTitle(slide entities.Slide) string {
	if slide.Title == entities.UntitledSlideTitle || slide.Title == entities.DefaultSlideTitle(slide.Index) {
		return ""
	}
	return slide.Title
}

func contentQueries(terms []string, title string) []entities.ImageSearchQuery {
	var queries []entities.ImageSearchQuery

	switch {
	case len(terms) >= 2:
		queries = append(queries, entities.ImageSearchQuery{
			Q:           terms[0] + " " + terms[1],
			ImageType:   entities.ImageTypePhoto,
			Orientation: entities.OrientationHorizontal,
		})
	case len(terms) == 1:
		queries = append(queries, entities.ImageSearchQuery{
			Q:           terms[0],
			ImageType:   entities.ImageTypePhoto,
			Orientation: entities.OrientationHorizontal,
		})
	}

	switch {
	case len(terms) >= 4:
		queries = append(queries, entities.ImageSearchQuery{
			Q:           terms[2] + " " + terms[3],
			ImageType:   entities.ImageTypeIllustration,
			Orientation: entities.OrientationHorizontal,
		})
	case len(terms) >= 1:
		queries = append(queries, entities.ImageSearchQuery{
			Q:           terms[0] + " illustration",
			ImageType:   entities.ImageTypeIllustration,
			Orientation: entities.OrientationHorizontal,
		})
	}

	queries = append(queries, entities.ImageSearchQuery{
		Q:           strings.TrimSpace(title),
		ImageType:   entities.ImageTypePhoto,
		Orientation: entities.OrientationAll,
	})
	return queries
}

// MergeQueries flattens per-slide queries, keeping the first occurrence of each query text
func MergeQueries(perSlide [][]entities.ImageSearchQuery) []entities.ImageSearchQuery {
	var merged []entities.ImageSearchQuery
	seen := make(map[string]bool)
	for _, queries := range perSlide {
		for _, q := range queries {
			key := q.Key()
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, q)
		}
	}
	return merged
}

// Batches splits queries into chunks of at most size entries
func Batches(queries []entities.ImageSearchQuery, size int) [][]entities.ImageSearchQuery {
	if size <= 0 {
		size = entities.MaxBatchQueries
	}

	var batches [][]entities.ImageSearchQuery
	for start := 0; start < len(queries); start += size {
		end := start + size
		if end > len(queries) {
			end = len(queries)
		}
		batches = append(batches, queries[start:end])
	}
	return batches
}
