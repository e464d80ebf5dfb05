package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/robots"
	"github.com/sanzolab/colorsync/internal/telemetry"
)

const discoveryCacheKey = "scrape:pages"

// DiscoveryConfig controls the crawl that locates color pages.
type DiscoveryConfig struct {
	BaseURL   string
	UserAgent string
	MaxDepth  int
	MaxPages  int
	Delay     time.Duration
}

// DiscoveryResult is the cached output of DiscoverColorPages.
type DiscoveryResult struct {
	Pages        []palette.CrawlPage `json:"pages"`
	FromCache    bool                `json:"fromCache"`
	DiscoveredAt time.Time           `json:"discoveredAt"`
}

// Discoverer crawls outward from the base URL, classifying color-related
// links. Politeness comes from the collector's limit rule (serialized, with
// the larger of the configured delay and the robots crawl-delay) plus an
// explicit robots prefix check per link.
type Discoverer struct {
	cfg    DiscoveryConfig
	policy *robots.Policy
	cache  cache.Store
	clock  palette.Clock
	logger *zap.Logger
}

// NewDiscoverer wires a Discoverer.
func NewDiscoverer(cfg DiscoveryConfig, policy *robots.Policy, store cache.Store, clock palette.Clock, logger *zap.Logger) *Discoverer {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &Discoverer{
		cfg:    cfg,
		policy: policy,
		cache:  store,
		clock:  clock,
		logger: logger,
	}
}

// DiscoverColorPages returns the classified color pages reachable from the
// base URL. Within the cache TTL the previous result is served with
// FromCache set; force bypasses the cache.
func (d *Discoverer) DiscoverColorPages(ctx context.Context, force bool) (DiscoveryResult, error) {
	if !force {
		if raw, ok, err := d.cache.Get(ctx, discoveryCacheKey); err == nil && ok {
			var result DiscoveryResult
			if err := json.Unmarshal(raw, &result); err == nil {
				telemetry.IncCacheHit()
				result.FromCache = true
				return result, nil
			}
		}
		telemetry.IncCacheMiss()
	}

	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil || base.Host == "" {
		return DiscoveryResult{}, fmt.Errorf("parse base url %q: %w", d.cfg.BaseURL, err)
	}

	rules := d.policy.Check(ctx, d.cfg.BaseURL)
	delay := d.cfg.Delay
	if rules.CrawlDelay > delay {
		delay = rules.CrawlDelay
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.MaxDepth(d.cfg.MaxDepth),
		colly.UserAgent(d.cfg.UserAgent),
		colly.Async(true),
	)
	collector.AllowURLRevisit = false
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
	}); err != nil {
		return DiscoveryResult{}, fmt.Errorf("set collector limits: %w", err)
	}

	var mu sync.Mutex
	found := make(map[string]palette.CrawlPage)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		parsed, err := url.Parse(link)
		if err != nil {
			return
		}
		if !robots.IsPathAllowed(parsed.Path, rules) {
			d.logger.Debug("link disallowed by robots policy", zap.String("url", link))
			return
		}
		title := trimTitle(e.Text)

		mu.Lock()
		full := len(found) >= d.cfg.MaxPages
		if !full && IsColorRelated(parsed.Path, title) {
			if _, seen := found[link]; !seen {
				page := palette.CrawlPage{
					URL:   link,
					Path:  parsed.Path,
					Title: title,
					Type:  CategorizeColorPage(parsed.Path, title),
				}
				found[link] = page
				telemetry.IncPageScraped(string(page.Type))
			}
		}
		mu.Unlock()

		if !full {
			if err := e.Request.Visit(link); err != nil {
				d.logger.Debug("visit skipped", zap.String("url", link), zap.Error(err))
			}
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		d.logger.Warn("discovery fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	if err := collector.Visit(d.cfg.BaseURL); err != nil {
		return DiscoveryResult{}, fmt.Errorf("visit base url: %w", err)
	}
	collector.Wait()

	pages := make([]palette.CrawlPage, 0, len(found))
	for _, page := range found {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	result := DiscoveryResult{
		Pages:        pages,
		DiscoveredAt: d.clock.Now(),
	}
	if raw, err := json.Marshal(result); err == nil {
		if err := d.cache.Put(ctx, discoveryCacheKey, raw); err != nil {
			d.logger.Warn("cache discovery result", zap.Error(err))
		}
	}
	return result, nil
}

func trimTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
