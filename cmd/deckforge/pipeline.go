package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fredcamaral/deckforge/internal/adapters/secondary/extractor"
	"github.com/fredcamaral/deckforge/internal/adapters/secondary/sanitizer"
	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/services"
)

// extractCmd prints the slides of a presentation file
var extractCmd = &cobra.Command{
	Use:   "extract <file.html>",
	Short: "Print the slides of an HTML presentation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

// queriesCmd prints the image queries derived from each slide
var queriesCmd = &cobra.Command{
	Use:   "queries <file.html>",
	Short: "Print the image search queries derived from each slide",
	Long: `Extract the slides of an HTML presentation and print the image queries
generated for each one, followed by the merged list that would be sent to
the image providers.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueries,
}

// sanitizeCmd rewrites the images of a presentation file
var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <file.html>",
	Short: "Sanitize image references and print the HTML",
	Long: `Convert markdown images, normalize every <img> and replace or flag image
URLs that are not in the --valid-url list. The policy and the extra suspect
domains come from the same configuration as serve. The sanitized HTML is
written to stdout and a summary to stderr.

Example:
  deckforge sanitize deck.html --valid-url https://cdn.pixabay.com/photo/a.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runSanitize,
}

func init() {
	rootCmd.AddCommand(extractCmd, queriesCmd, sanitizeCmd)

	sanitizeCmd.Flags().StringSlice("valid-url", nil, "Verified image URL (repeatable)")
	sanitizeCmd.Flags().String("policy", string(entities.SanitizerPolicyReplace), "Unverified URL policy: replace or flag (overrides config)")
}

// SlideQueries is the query plan printed for one slide
type SlideQueries struct {
	Title   string                      `json:"title"`
	Type    entities.SlideType          `json:"type"`
	Queries []entities.ImageSearchQuery `json:"queries"`
}

// QueryPlan is the output of the queries command
type QueryPlan struct {
	Slides  []SlideQueries              `json:"slides"`
	Merged  []entities.ImageSearchQuery `json:"merged"`
	Batches int                         `json:"batches"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	slides, err := extractFile(cmd, args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), slides)
}

func runQueries(cmd *cobra.Command, args []string) error {
	slides, err := extractFile(cmd, args[0])
	if err != nil {
		return err
	}
	if len(slides) == 0 {
		return fmt.Errorf("%s: %w", args[0], entities.ErrNoSlides)
	}

	return writeJSON(cmd.OutOrStdout(), planQueries(slides))
}

// planQueries generates the queries for every slide and merges them
func planQueries(slides []entities.Slide) QueryPlan {
	plan := QueryPlan{Slides: make([]SlideQueries, 0, len(slides))}
	perSlide := make([][]entities.ImageSearchQuery, 0, len(slides))

	for _, slide := range slides {
		queries := services.GenerateQueries(slide)
		perSlide = append(perSlide, queries)
		plan.Slides = append(plan.Slides, SlideQueries{Title: slide.Title, Type: slide.Type, Queries: queries})
	}

	plan.Merged = services.MergeQueries(perSlide)
	plan.Batches = len(services.Batches(plan.Merged, entities.MaxBatchQueries))
	return plan
}

func runSanitize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	validURLs, _ := cmd.Flags().GetStringSlice("valid-url")
	settings := cfg.Sanitizer
	if cmd.Flags().Changed("policy") {
		settings.Policy, _ = cmd.Flags().GetString("policy")
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	markup, err := readFile(args[0])
	if err != nil {
		return err
	}

	html, report := sanitizer.New(sanitizer.Options{
		Policy:         settings.GetPolicy(),
		SuspectDomains: settings.SuspectDomains,
	}).Sanitize(markup, validURLs)
	if _, err := io.WriteString(cmd.OutOrStdout(), html); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "images: %d, markdown converted: %d, replaced: %d, flagged: %d\n",
		report.ImagesSeen, report.MarkdownConverted, report.Replaced, report.Flagged)
	return err
}

func extractFile(cmd *cobra.Command, path string) ([]entities.Slide, error) {
	markup, err := readFile(path)
	if err != nil {
		return nil, err
	}

	slides, err := extractor.NewSlideExtractor().Extract(cmd.Context(), markup)
	if err != nil {
		return nil, fmt.Errorf("extracting slides: %w", err)
	}
	return slides, nil
}

// readFile reads a regular file
func readFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("accessing presentation file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("presentation path is not a regular file: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return "", fmt.Errorf("reading presentation file: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
