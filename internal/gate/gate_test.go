package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGate(cfg Config) *Gate {
	g := New(cfg, zap.NewNop())
	// Deterministic, fast backoff for tests.
	g.retry = NewRetryPolicy(cfg.MaxRetries, time.Millisecond, 5*time.Millisecond)
	return g
}

func TestDoReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, Timeout: time.Second})
	resp, err := g.Do(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
}

func TestDoSpacingProperty(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const delay = 150 * time.Millisecond
	g := newTestGate(Config{MaxConcurrent: 1, RequestDelay: delay, Timeout: time.Second})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Do(context.Background(), srv.URL)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	require.Len(t, hits, 3)
	assert.GreaterOrEqual(t, elapsed, 2*delay,
		"three requests must span at least (n-1)*requestDelay")
}

func TestDoRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, MaxRetries: 3, Timeout: time.Second})
	resp, err := g.Do(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestDoRetries429(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, Timeout: time.Second})
	_, err := g.Do(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, MaxRetries: 3, Timeout: time.Second})
	_, err := g.Do(context.Background(), srv.URL)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, 1, calls, "4xx other than 429 fails immediately")
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, MaxRetries: 2, Timeout: time.Second})
	_, err := g.Do(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus maxRetries")
}

func TestDoTimesOut(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGate(Config{RequestDelay: time.Millisecond, MaxRetries: 1, Timeout: 20 * time.Millisecond})
	_, err := g.Do(context.Background(), srv.URL)
	require.Error(t, err, "a request exceeding the timeout fails after retries")
}

func TestUseCrawlDelayKeepsLarger(t *testing.T) {
	t.Parallel()

	g := newTestGate(Config{RequestDelay: time.Second})
	g.UseCrawlDelay(500 * time.Millisecond)
	assert.Equal(t, time.Second, g.Delay(), "smaller crawl-delay must not shrink the gate delay")

	g.UseCrawlDelay(3 * time.Second)
	assert.Equal(t, 3*time.Second, g.Delay())
}

func TestRetryPolicyClassification(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	assert.True(t, p.ShouldRetry(nil, http.StatusInternalServerError, 0))
	assert.True(t, p.ShouldRetry(nil, http.StatusTooManyRequests, 0))
	assert.False(t, p.ShouldRetry(nil, http.StatusBadRequest, 0))
	assert.False(t, p.ShouldRetry(nil, http.StatusNotFound, 0))
	assert.False(t, p.ShouldRetry(nil, http.StatusInternalServerError, 3), "budget exhausted")
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded, 0, 0), "timeouts retry")
	assert.False(t, p.ShouldRetry(context.Canceled, 0, 0), "cancellation does not retry")
}
