package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/palette"
)

// Pipeline chains discovery and scraping into the webscrape combination
// source consumed by the sync orchestrator.
type Pipeline struct {
	discoverer *Discoverer
	scraper    *Scraper
	logger     *zap.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(d *Discoverer, s *Scraper, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		discoverer: d,
		scraper:    s,
		logger:     logger,
	}
}

// Name identifies the source in sync reports.
func (p *Pipeline) Name() string {
	return string(palette.SourceWebScrape)
}

// Fetch discovers color pages and scrapes the ones classified as
// combination or chart pages. A page that fails to scrape is logged and
// skipped; the remaining pages still contribute.
func (p *Pipeline) Fetch(ctx context.Context, force bool) ([]palette.Combination, error) {
	discovery, err := p.discoverer.DiscoverColorPages(ctx, force)
	if err != nil {
		return nil, fmt.Errorf("discover color pages: %w", err)
	}

	var combos []palette.Combination
	for _, page := range discovery.Pages {
		if page.Type != palette.PageCombination && page.Type != palette.PageChart {
			continue
		}
		data, err := p.scraper.ScrapeColorPage(ctx, page.URL, force)
		if err != nil {
			p.logger.Warn("scrape failed; skipping page",
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		combos = append(combos, data.Combinations...)
	}
	return combos, nil
}
