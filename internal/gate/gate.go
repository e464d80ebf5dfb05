// Package gate dispatches outbound HTTP requests under politeness
// constraints: bounded concurrency, a fixed inter-dispatch delay, per-attempt
// timeouts and retry with exponential backoff.
package gate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sanzolab/colorsync/internal/telemetry"
)

// Config controls Gate behavior. Zero values take the documented defaults.
type Config struct {
	MaxConcurrent int           // default 1
	RequestDelay  time.Duration // default 2s
	MaxRetries    int           // default 3
	Timeout       time.Duration // default 30s
	UserAgent     string
}

// Response is the result of a dispatched request.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError marks a non-2xx response that exhausted or bypassed retries.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.Code)
}

// Gate serializes and spaces outbound requests. The inter-dispatch delay is
// enforced with a token limiter so request n never starts before
// (n-1)*RequestDelay after the first dispatch; a semaphore caps in-flight
// requests on top of that.
type Gate struct {
	client *http.Client
	retry  *RetryPolicy
	sem    chan struct{}
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration)

	mu      sync.Mutex
	delay   time.Duration
	limiter *rate.Limiter
}

// New constructs a Gate with defaults filled in.
func New(cfg Config, logger *zap.Logger) *Gate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Gate{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: cfg.MaxConcurrent * 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		retry:   NewRetryPolicy(cfg.MaxRetries, 0, 0),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepWithContext,
		delay:   cfg.RequestDelay,
		limiter: rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
	}
}

// UseCrawlDelay widens the inter-dispatch delay when a robots.txt
// crawl-delay exceeds the configured one; the larger value always wins.
func (g *Gate) UseCrawlDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d <= g.delay {
		return
	}
	g.delay = d
	g.limiter = rate.NewLimiter(rate.Every(d), 1)
	g.logger.Info("request delay raised by crawl-delay", zap.Duration("delay", d))
}

// Delay reports the effective inter-dispatch delay.
func (g *Gate) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// Do dispatches a GET through the gate, retrying transient failures per the
// retry policy. Every call either returns a 2xx/3xx Response, a
// *StatusError, or the final transport error.
func (g *Gate) Do(ctx context.Context, rawURL string) (Response, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return Response{}, fmt.Errorf("gate admission: %w", ctx.Err())
	}
	defer func() { <-g.sem }()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := g.currentLimiter().Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("gate rate wait: %w", err)
		}

		resp, err := g.fetchOnce(ctx, rawURL)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}

		statusCode := 0
		if err == nil {
			statusCode = resp.StatusCode
			lastErr = &StatusError{Code: resp.StatusCode, URL: rawURL}
		} else {
			lastErr = err
		}

		if !g.retry.ShouldRetry(err, statusCode, attempt) {
			return resp, lastErr
		}

		backoff := g.retry.Backoff(attempt)
		telemetry.IncGateRetry()
		g.logger.Warn("request retry scheduled",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusCode),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		g.sleep(ctx, backoff)
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("gate canceled: %w", ctx.Err())
		}
	}
}

func (g *Gate) currentLimiter() *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter
}

func (g *Gate) fetchOnce(ctx context.Context, rawURL string) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("new request: %w", err)
	}
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
