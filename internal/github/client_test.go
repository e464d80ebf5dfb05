package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/clock/system"
	"github.com/sanzolab/colorsync/internal/palette"
)

const combinationsJSON = `{
  "colors": [
    {"id": "sanzo-001", "hex": "#DC143C", "name_english": "Crimson"},
    {"id": "sanzo-002", "rgb": {"r": 0, "g": 128, "b": 255}, "name_english": "Azure"}
  ],
  "combinations": [
    {
      "id": "combo-1",
      "name": "Harbor Dawn",
      "color_ids": ["sanzo-001", "sanzo-002"],
      "sanzo_plate_reference": 48,
      "room_types": ["living_room"],
      "age_groups": ["adult"]
    },
    {
      "name": "Inline Pair",
      "colors": ["#AABBCC", {"r": 10, "g": 20, "b": 30, "name": "Ink"}]
    },
    {
      "name": "Empty",
      "colors": ["not-a-color"]
    }
  ]
}`

type fakeRepo struct {
	requests  atomic.Int64
	updatedAt string
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("x-ratelimit-remaining", "4000")
		switch strings.TrimSuffix(r.URL.Path, "/") {
		case "/repos/sanzolab/sanzo-colors":
			fmt.Fprintf(w, `{
				"name": "sanzo-colors",
				"description": "Sanzo Wada color data",
				"updated_at": %q,
				"default_branch": "main",
				"stargazers_count": 42,
				"forks_count": 7
			}`, f.updatedAt)
		case "/repos/sanzolab/sanzo-colors/contents":
			fmt.Fprint(w, `[
				{"name": "src", "type": "dir", "path": "src"},
				{"name": "README.md", "type": "file", "path": "README.md", "sha": "aaa"}
			]`)
		case "/repos/sanzolab/sanzo-colors/contents/src":
			fmt.Fprint(w, `[{"name": "data", "type": "dir", "path": "src/data"}]`)
		case "/repos/sanzolab/sanzo-colors/contents/src/data":
			fmt.Fprint(w, `[
				{"name": "combinations.json", "type": "file", "path": "src/data/combinations.json", "sha": "bbb"},
				{"name": "notes.txt", "type": "file", "path": "src/data/notes.txt", "sha": "ccc"}
			]`)
		case "/repos/sanzolab/sanzo-colors/contents/src/data/combinations.json":
			encoded := base64.StdEncoding.EncodeToString([]byte(combinationsJSON))
			fmt.Fprintf(w, `{
				"content": %q,
				"encoding": "base64",
				"sha": "bbb",
				"size": %d,
				"path": "src/data/combinations.json"
			}`, encoded, len(combinationsJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		}
	})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	store := cache.NewMemory(time.Minute, system.New())
	return New(Config{
		BaseURL:   baseURL,
		Owner:     "sanzolab",
		Repo:      "sanzo-colors",
		UserAgent: "colorsync-bot",
		Timeout:   5 * time.Second,
	}, store, system.New(), zap.NewNop())
}

func TestRepositoryInfo(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL).RepositoryInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sanzo-colors", info.Name)
	assert.Equal(t, "main", info.DefaultBranch)
	assert.Equal(t, 42, info.Stars)
	assert.Equal(t, 7, info.Forks)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), info.LastUpdated)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	health, err := newTestClient(t, srv.URL).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, health.OK)
	assert.Equal(t, 4000, health.RateLimitRemaining)
	assert.GreaterOrEqual(t, health.LatencyMs, int64(0))
}

func TestHealthCheckLowQuota(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "3")
		fmt.Fprint(w, `{"name": "sanzo-colors"}`)
	}))
	defer srv.Close()

	health, err := newTestClient(t, srv.URL).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, health.OK, "quota below the threshold fails the probe")
}

func TestFindColorFiles(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	files, err := newTestClient(t, srv.URL).FindColorFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "combinations.json", files[0].Name)
	assert.Equal(t, "src/data/combinations.json", files[0].Path)
	assert.Equal(t, "bbb", files[0].SHA)
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	file, err := newTestClient(t, srv.URL).DownloadFile(context.Background(), "src/data/combinations.json")
	require.NoError(t, err)
	assert.Equal(t, "bbb", file.SHA)
	assert.JSONEq(t, combinationsJSON, string(file.Content))
}

func TestProcessColorCombinationsData(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://unused.invalid")
	combos, err := client.ProcessColorCombinationsData([]byte(combinationsJSON), "combinations.json")
	require.NoError(t, err)
	require.Len(t, combos, 2, "entries with no parsable colors are dropped")

	first := combos[0]
	assert.Equal(t, "github:combinations:0", first.ID)
	assert.Equal(t, "Harbor Dawn", first.Name)
	assert.Equal(t, palette.SourceGitHub, first.Source)
	require.NotNil(t, first.SanzoNumber)
	assert.Equal(t, 48, *first.SanzoNumber)
	require.Len(t, first.Colors, 2)
	assert.Equal(t, "#DC143C", first.Colors[0].Hex)
	assert.Equal(t, "Crimson", first.Colors[0].Name)
	assert.Equal(t, "#0080FF", first.Colors[1].Hex)

	second := combos[1]
	assert.Equal(t, "github:combinations:1", second.ID)
	require.Len(t, second.Colors, 2)
	assert.Equal(t, "#AABBCC", second.Colors[0].Hex)
	assert.Equal(t, "Ink", second.Colors[1].Name)
}

func TestFetchColorCombinationsCaches(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	first, err := client.FetchColorCombinations(ctx, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Combinations, 2)
	fetched := repo.requests.Load()

	second, err := client.FetchColorCombinations(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, fetched, repo.requests.Load(), "cache hit issues no requests")

	third, err := client.FetchColorCombinations(ctx, true)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Greater(t, repo.requests.Load(), fetched, "force bypasses the cache")

	assert.Equal(t, first.Combinations[0].ID, third.Combinations[0].ID,
		"ids are stable across re-fetches of unchanged content")
}

func TestRateLimitedErrorCarriesQuota(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.Header().Set("x-ratelimit-reset", fmt.Sprint(reset))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).RepositoryInfo(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "API rate limit exceeded", apiErr.APIMessage)
	require.NotNil(t, apiErr.RateLimit)
	assert.Equal(t, 0, apiErr.RateLimit.Remaining)
	assert.Equal(t, time.Unix(reset, 0).UTC(), apiErr.RateLimit.Reset)
}

func TestServerErrorsAreRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"name": "sanzo-colors", "default_branch": "main"}`)
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL).RepositoryInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sanzo-colors", info.Name)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Contents(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSyncWithRepository(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{updatedAt: "2026-08-01T12:00:00Z"}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	first, err := client.SyncWithRepository(ctx, false)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.True(t, first.SyncNeeded, "no cached marker forces a sync")
	assert.Equal(t, 2, first.CombinationsCount)

	second, err := client.SyncWithRepository(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.False(t, second.SyncNeeded, "unchanged marker skips the re-fetch")
	assert.Equal(t, 2, second.CombinationsCount)

	repo.updatedAt = "2026-08-20T08:00:00Z"
	third, err := client.SyncWithRepository(ctx, false)
	require.NoError(t, err)
	assert.True(t, third.SyncNeeded, "a newer lastUpdated triggers a re-fetch")
}

func TestNetworkErrorSurfaces(t *testing.T) {
	t.Parallel()

	client := New(Config{
		BaseURL:    "http://127.0.0.1:1",
		Owner:      "sanzolab",
		Repo:       "sanzo-colors",
		Timeout:    200 * time.Millisecond,
		MaxRetries: 1,
	}, cache.NewMemory(time.Minute, system.New()), system.New(), zap.NewNop())

	_, err := client.RepositoryInfo(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "network failures are plain errors, not API errors")
}
