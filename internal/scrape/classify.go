// Package scrape discovers color-chart pages with a polite crawler and
// extracts canonical color data from them.
package scrape

import (
	"strings"

	"github.com/sanzolab/colorsync/internal/palette"
)

var colorKeywords = []string{
	"color", "colour", "palette", "wada", "combination", "swatch", "hue",
}

// IsColorRelated reports whether a link looks like color content, judged by
// keyword heuristics over its path and title text.
func IsColorRelated(path, title string) bool {
	haystack := strings.ToLower(path + " " + title)
	for _, kw := range colorKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// CategorizeColorPage buckets a color-related page. Combination and palette
// paths outrank the broader keywords so a "palette chart" page still lands
// in the combination bucket.
func CategorizeColorPage(path, title string) palette.PageType {
	haystack := strings.ToLower(path + " " + title)
	switch {
	case strings.Contains(haystack, "combination") || strings.Contains(haystack, "palette"):
		return palette.PageCombination
	case strings.Contains(haystack, "chart"):
		return palette.PageChart
	case strings.Contains(haystack, "about"):
		return palette.PageAbout
	case IsColorRelated(path, title):
		return palette.PageIndividual
	default:
		return palette.PageUnknown
	}
}
