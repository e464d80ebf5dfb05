// Package palette defines the canonical color data model shared across subsystems.
package palette

import "time"

// ColorType identifies the encoding a canonical color was parsed from.
type ColorType string

// Color encodings recognized by the parser.
const (
	ColorTypeHex ColorType = "hex"
	ColorTypeRGB ColorType = "rgb"
	ColorTypeLab ColorType = "lab"
)

// RGB holds integer channels in [0,255].
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Lab holds CIELAB components.
type Lab struct {
	L float64 `json:"l"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// CanonicalColor is the normalized color representation used across the
// system. Hex is always "#RRGGBB" (uppercase) when Type is hex or rgb.
type CanonicalColor struct {
	Hex  string    `json:"hex,omitempty"`
	RGB  *RGB      `json:"rgb,omitempty"`
	Lab  *Lab      `json:"lab,omitempty"`
	Name string    `json:"name"`
	Type ColorType `json:"type"`
}

// Source records which data client produced a combination.
type Source string

// Known combination sources.
const (
	SourceGitHub    Source = "github"
	SourceWebScrape Source = "webscrape"
)

// Combination is a named group of canonical colors with provenance.
// ID is stable across re-fetches of unchanged upstream content; identity is
// (Source, ID), never memory address. RoomTypes and AgeGroups are optional
// dataset tags consumed by the combination filters.
type Combination struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Colors      []CanonicalColor `json:"colors"`
	Description string           `json:"description,omitempty"`
	Source      Source           `json:"source"`
	SanzoNumber *int             `json:"sanzoNumber,omitempty"`
	RoomTypes   []string         `json:"roomTypes,omitempty"`
	AgeGroups   []string         `json:"ageGroups,omitempty"`
}

// PageType classifies a discovered crawl page.
type PageType string

// Crawl page categories assigned by the discovery heuristics.
const (
	PageCombination PageType = "combination"
	PageIndividual  PageType = "individual"
	PageChart       PageType = "chart"
	PageAbout       PageType = "about"
	PageUnknown     PageType = "unknown"
)

// CrawlPage is a candidate page found by discovery.
type CrawlPage struct {
	URL   string   `json:"url"`
	Path  string   `json:"path"`
	Title string   `json:"title"`
	Type  PageType `json:"type"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
