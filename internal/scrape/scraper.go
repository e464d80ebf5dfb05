package scrape

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/gate"
	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/telemetry"
)

// colorToken matches embedded color value text anywhere in an element.
var colorToken = regexp.MustCompile(
	`#[0-9A-Fa-f]{6}\b|\brgb\(\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*\)|\blab\(\s*[+-]?\d+(?:\.\d+)?\s*,\s*[+-]?\d+(?:\.\d+)?\s*,\s*[+-]?\d+(?:\.\d+)?\s*\)`,
)

// PageMetadata carries fetch diagnostics for a scraped page.
type PageMetadata struct {
	FetchedAt  time.Time `json:"fetchedAt"`
	DurationMs int64     `json:"durationMs"`
}

// PageData is the extraction result for one page.
type PageData struct {
	URL          string                   `json:"url"`
	Title        string                   `json:"title"`
	Colors       []palette.CanonicalColor `json:"colors"`
	Combinations []palette.Combination    `json:"combinations"`
	Metadata     PageMetadata             `json:"metadata"`
	FromCache    bool                     `json:"fromCache"`
}

// Scraper extracts color data from a single page through the request gate.
type Scraper struct {
	gate   *gate.Gate
	cache  cache.Store
	clock  palette.Clock
	logger *zap.Logger
}

// NewScraper wires a Scraper.
func NewScraper(g *gate.Gate, store cache.Store, clock palette.Clock, logger *zap.Logger) *Scraper {
	return &Scraper{
		gate:   g,
		cache:  store,
		clock:  clock,
		logger: logger,
	}
}

// ScrapeColorPage fetches one page, extracts embedded color values, groups
// adjacent values into combinations and attaches the page's Sanzo
// identifier when one is present. Results are cached per URL.
func (s *Scraper) ScrapeColorPage(ctx context.Context, rawURL string, force bool) (PageData, error) {
	cacheKey := "scrape:page:" + rawURL
	if !force {
		if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
			var data PageData
			if err := json.Unmarshal(raw, &data); err == nil {
				telemetry.IncCacheHit()
				data.FromCache = true
				return data, nil
			}
		}
		telemetry.IncCacheMiss()
	}

	resp, err := s.gate.Do(ctx, rawURL)
	if err != nil {
		return PageData{}, fmt.Errorf("scrape %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return PageData{}, fmt.Errorf("parse page %s: %w", rawURL, err)
	}

	data := PageData{
		URL:   rawURL,
		Title: trimTitle(doc.Find("title").First().Text()),
		Metadata: PageMetadata{
			FetchedAt:  s.clock.Now(),
			DurationMs: resp.Duration.Milliseconds(),
		},
	}

	groups := extractColorGroups(doc)
	sanzo := palette.ExtractSanzoNumber(doc.Text())

	seen := make(map[string]struct{})
	for i, group := range groups {
		combo := palette.Combination{
			ID:          combinationID(rawURL, i),
			Name:        combinationName(data.Title, i),
			Colors:      group,
			Source:      palette.SourceWebScrape,
			SanzoNumber: sanzo,
		}
		data.Combinations = append(data.Combinations, combo)
		for _, c := range group {
			key := c.Hex
			if key == "" && c.Lab != nil {
				key = fmt.Sprintf("lab(%g,%g,%g)", c.Lab.L, c.Lab.A, c.Lab.B)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			data.Colors = append(data.Colors, c)
		}
	}

	if raw, err := json.Marshal(data); err == nil {
		if err := s.cache.Put(ctx, cacheKey, raw); err != nil {
			s.logger.Warn("cache scraped page", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return data, nil
}

// extractColorGroups walks leaf elements in document order. Consecutive
// leaves carrying color values accumulate into one group; a non-empty leaf
// without any color value closes the current group.
func extractColorGroups(doc *goquery.Document) [][]palette.CanonicalColor {
	var groups [][]palette.CanonicalColor
	var current []palette.CanonicalColor

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
	}

	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := sel.Text()
		if attr, ok := sel.Attr("data-color"); ok {
			text = text + " " + attr
		}
		tokens := colorToken.FindAllString(text, -1)
		if len(tokens) == 0 {
			if strings.TrimSpace(text) != "" {
				flush()
			}
			return
		}
		for _, token := range tokens {
			if color := palette.ParseColorValue(token); color != nil {
				current = append(current, *color)
			}
		}
	})
	flush()
	return groups
}

func combinationID(rawURL string, index int) string {
	sum := sha1.Sum([]byte(rawURL))
	return fmt.Sprintf("webscrape:%s:%d", hex.EncodeToString(sum[:])[:16], index)
}

func combinationName(title string, index int) string {
	if title == "" {
		title = "Scraped combination"
	}
	return fmt.Sprintf("%s #%d", title, index+1)
}
