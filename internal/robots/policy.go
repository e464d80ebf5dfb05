package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxRobotsBody = 1 << 20

// Policy fetches robots.txt per host, resolves the rules for our user
// agent, and caches the result. A fetch failure degrades to "allowed with
// the default delay" so a broken robots endpoint never stalls acquisition.
type Policy struct {
	client       *http.Client
	cache        sync.Map
	userAgent    string
	defaultDelay time.Duration
	logger       *zap.Logger
}

// NewPolicy builds a Policy for the given crawler user agent.
func NewPolicy(userAgent string, defaultDelay time.Duration, logger *zap.Logger) *Policy {
	return &Policy{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent:    userAgent,
		defaultDelay: defaultDelay,
		logger:       logger,
	}
}

// Check returns the resolved rules for the host of baseURL, fetching and
// parsing robots.txt on first sight of the host.
func (p *Policy) Check(ctx context.Context, baseURL string) Rules {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		p.logger.Warn("robots check on unparsable URL; allowing access", zap.String("url", baseURL))
		return Rules{Allowed: true, CrawlDelay: p.defaultDelay}
	}
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := p.cache.Load(hostKey); ok {
		if rules, assertOK := cached.(Rules); assertOK {
			return rules
		}
	}

	rules, err := p.fetch(ctx, parsed)
	if err != nil {
		p.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host),
			zap.Error(err),
		)
		return Rules{Allowed: true, CrawlDelay: p.defaultDelay}
	}
	p.cache.Store(hostKey, rules)
	return rules
}

// PathAllowed is the convenience path for callers holding a full URL.
func (p *Policy) PathAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	rules := p.Check(ctx, rawURL)
	return IsPathAllowed(parsed.Path, rules)
}

func (p *Policy) fetch(ctx context.Context, parsed *url.URL) (Rules, error) {
	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return Rules{}, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Rules{}, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()

	// Missing or broken robots.txt means no restrictions.
	if resp.StatusCode != http.StatusOK {
		return Rules{Allowed: true, CrawlDelay: p.defaultDelay}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return Rules{}, fmt.Errorf("read robots body: %w", err)
	}
	return ResolveRules(Parse(string(body)), p.userAgent, p.defaultDelay), nil
}
