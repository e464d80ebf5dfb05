// Package github fetches Sanzo Wada color data from a hosted GitHub
// repository through the REST contents API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/gate"
	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/telemetry"
)

const (
	combinationsCacheKey = "github:combinations"
	syncMarkerCacheKey   = "github:marker"

	maxResponseBytes = 10 << 20
	maxSearchDepth   = 3
)

// Config holds the repository coordinates and client tuning knobs.
type Config struct {
	BaseURL            string
	Owner              string
	Repo               string
	Token              string
	UserAgent          string
	Timeout            time.Duration
	MaxRetries         int
	RateLimitThreshold int
}

// RateLimit is the quota snapshot attached to rate-limited errors.
type RateLimit struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// APIError is a structured upstream failure. RateLimit is set when a 403
// response carries x-ratelimit headers.
type APIError struct {
	Message    string     `json:"message"`
	Status     int        `json:"status,omitempty"`
	StatusText string     `json:"statusText,omitempty"`
	APIMessage string     `json:"apiError,omitempty"`
	RateLimit  *RateLimit `json:"rateLimit,omitempty"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %d %s", e.Message, e.Status, e.StatusText)
	}
	return e.Message
}

// Health is the result of a repository health probe.
type Health struct {
	OK                 bool  `json:"ok"`
	LatencyMs          int64 `json:"latencyMs"`
	RateLimitRemaining int   `json:"rateLimitRemaining"`
}

// RepoInfo is the repository metadata subset the sync layer needs.
type RepoInfo struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	LastUpdated   time.Time `json:"lastUpdated"`
	DefaultBranch string    `json:"defaultBranch"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
}

// Entry is one row of a directory listing.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
}

// ColorFile identifies a color-data file discovered in the repository.
type ColorFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
}

// FileContent is a downloaded file with its checksum.
type FileContent struct {
	Content []byte `json:"content"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	Path    string `json:"path"`
}

// CombinationsResult is the cached output of FetchColorCombinations.
type CombinationsResult struct {
	Combinations []palette.Combination `json:"combinations"`
	FromCache    bool                  `json:"fromCache"`
	FetchedAt    time.Time             `json:"fetchedAt"`
}

// SyncResult reports whether a repository sync re-fetched data.
type SyncResult struct {
	Success           bool `json:"success"`
	SyncNeeded        bool `json:"syncNeeded"`
	CombinationsCount int  `json:"combinationsCount"`
}

// Client talks to the repository REST API. Unlike the scrape path it has no
// internal concurrency cap; the upstream quota is observed via response
// headers instead.
type Client struct {
	cfg    Config
	client *http.Client
	retry  *gate.RetryPolicy
	cache  cache.Store
	clock  palette.Clock
	logger *zap.Logger
}

// New builds a Client. Zero config values fall back to the public GitHub
// API, a 30s timeout, three retries and a quota threshold of ten calls.
func New(cfg Config, store cache.Store, clock palette.Clock, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimitThreshold <= 0 {
		cfg.RateLimitThreshold = 10
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  gate.NewRetryPolicy(cfg.MaxRetries, 0, 0),
		cache:  store,
		clock:  clock,
		logger: logger,
	}
}

// HealthCheck probes repository metadata, reporting latency and whether the
// remaining quota is above the configured threshold.
func (c *Client) HealthCheck(ctx context.Context) (Health, error) {
	start := c.clock.Now()
	_, header, err := c.get(ctx, c.repoPath(""))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Health{OK: false, LatencyMs: latency}, err
	}
	remaining := headerInt(header, "x-ratelimit-remaining", -1)
	return Health{
		OK:                 remaining < 0 || remaining >= c.cfg.RateLimitThreshold,
		LatencyMs:          latency,
		RateLimitRemaining: remaining,
	}, nil
}

// RepositoryInfo returns the repository metadata subset.
func (c *Client) RepositoryInfo(ctx context.Context) (RepoInfo, error) {
	body, _, err := c.get(ctx, c.repoPath(""))
	if err != nil {
		return RepoInfo{}, err
	}
	var raw struct {
		Name          string    `json:"name"`
		Description   string    `json:"description"`
		UpdatedAt     time.Time `json:"updated_at"`
		DefaultBranch string    `json:"default_branch"`
		Stars         int       `json:"stargazers_count"`
		Forks         int       `json:"forks_count"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return RepoInfo{}, fmt.Errorf("decode repository info: %w", err)
	}
	return RepoInfo{
		Name:          raw.Name,
		Description:   raw.Description,
		LastUpdated:   raw.UpdatedAt,
		DefaultBranch: raw.DefaultBranch,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
	}, nil
}

// Contents lists a repository directory.
func (c *Client) Contents(ctx context.Context, dir string) ([]Entry, error) {
	body, _, err := c.get(ctx, c.repoPath("contents/"+strings.TrimPrefix(dir, "/")))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode contents of %q: %w", dir, err)
	}
	return entries, nil
}

// FindColorFiles walks the repository tree looking for JSON files whose
// names follow the color-data conventions.
func (c *Client) FindColorFiles(ctx context.Context) ([]ColorFile, error) {
	var files []ColorFile
	if err := c.findColorFiles(ctx, "", 0, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) findColorFiles(ctx context.Context, dir string, depth int, out *[]ColorFile) error {
	if depth > maxSearchDepth {
		return nil
	}
	entries, err := c.Contents(ctx, dir)
	if err != nil {
		if depth > 0 {
			c.logger.Warn("skipping unreadable directory", zap.String("path", dir), zap.Error(err))
			return nil
		}
		return err
	}
	for _, entry := range entries {
		switch entry.Type {
		case "dir":
			if err := c.findColorFiles(ctx, entry.Path, depth+1, out); err != nil {
				return err
			}
		case "file":
			if isColorDataFile(entry.Name) {
				*out = append(*out, ColorFile{Name: entry.Name, Path: entry.Path, SHA: entry.SHA})
			}
		}
	}
	return nil
}

func isColorDataFile(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".json") {
		return false
	}
	for _, kw := range []string{"color", "colour", "combination", "palette", "sanzo"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DownloadFile fetches one file through the contents API and decodes its
// base64 payload.
func (c *Client) DownloadFile(ctx context.Context, filePath string) (FileContent, error) {
	body, _, err := c.get(ctx, c.repoPath("contents/"+strings.TrimPrefix(filePath, "/")))
	if err != nil {
		return FileContent{}, err
	}
	var raw struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
		SHA      string `json:"sha"`
		Size     int    `json:"size"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return FileContent{}, fmt.Errorf("decode file response for %q: %w", filePath, err)
	}
	content := []byte(raw.Content)
	if raw.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
		if err != nil {
			return FileContent{}, fmt.Errorf("decode base64 content of %q: %w", filePath, err)
		}
		content = decoded
	}
	return FileContent{Content: content, SHA: raw.SHA, Size: raw.Size, Path: raw.Path}, nil
}

// FetchColorCombinations discovers color files, downloads them and maps
// their entries to canonical combinations. Within the cache TTL the cached
// result is returned with FromCache set; force bypasses the cache.
func (c *Client) FetchColorCombinations(ctx context.Context, force bool) (CombinationsResult, error) {
	if !force {
		if raw, ok, err := c.cache.Get(ctx, combinationsCacheKey); err == nil && ok {
			var result CombinationsResult
			if err := json.Unmarshal(raw, &result); err == nil {
				telemetry.IncCacheHit()
				result.FromCache = true
				return result, nil
			}
		}
		telemetry.IncCacheMiss()
	}

	files, err := c.FindColorFiles(ctx)
	if err != nil {
		return CombinationsResult{}, err
	}

	var combos []palette.Combination
	for _, file := range files {
		content, err := c.DownloadFile(ctx, file.Path)
		if err != nil {
			c.logger.Warn("skipping undownloadable color file",
				zap.String("path", file.Path), zap.Error(err))
			continue
		}
		parsed, err := c.ProcessColorCombinationsData(content.Content, file.Name)
		if err != nil {
			c.logger.Warn("skipping unparsable color file",
				zap.String("path", file.Path), zap.Error(err))
			continue
		}
		combos = append(combos, parsed...)
	}

	result := CombinationsResult{Combinations: combos, FetchedAt: c.clock.Now()}
	if raw, err := json.Marshal(result); err == nil {
		if err := c.cache.Put(ctx, combinationsCacheKey, raw); err != nil {
			c.logger.Warn("cache combinations result", zap.Error(err))
		}
	}
	return result, nil
}

// rawCombination tolerates both the combinations-file shape (color_ids,
// sanzo_plate_reference) and inline color lists.
type rawCombination struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Colors      []json.RawMessage `json:"colors"`
	ColorIDs    []string          `json:"color_ids"`
	Description string            `json:"description"`
	SanzoPlate  *int              `json:"sanzo_plate_reference"`
	RoomTypes   []string          `json:"room_types"`
	AgeGroups   []string          `json:"age_groups"`
}

type rawColor struct {
	ID   string       `json:"id"`
	Hex  string       `json:"hex"`
	RGB  *palette.RGB `json:"rgb"`
	Name string       `json:"name_english"`
	Alt  string       `json:"name"`
}

// ProcessColorCombinationsData maps a raw color-data document into
// canonical combinations with stable ids derived from the source file name
// and entry index.
func (c *Client) ProcessColorCombinationsData(raw []byte, sourceFileName string) ([]palette.Combination, error) {
	var doc struct {
		Combinations []rawCombination `json:"combinations"`
		Colors       []rawColor       `json:"colors"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %q: %w", sourceFileName, err)
	}

	byID := make(map[string]palette.CanonicalColor, len(doc.Colors))
	for _, rc := range doc.Colors {
		if canonical := standardizeRaw(rc); canonical != nil {
			byID[rc.ID] = *canonical
		}
	}

	base := strings.TrimSuffix(path.Base(sourceFileName), path.Ext(sourceFileName))
	combos := make([]palette.Combination, 0, len(doc.Combinations))
	for i, rc := range doc.Combinations {
		colors := make([]palette.CanonicalColor, 0, len(rc.Colors)+len(rc.ColorIDs))
		for _, entry := range rc.Colors {
			input, err := palette.DecodeColorInput(entry)
			if err != nil {
				continue
			}
			if canonical := palette.StandardizeColor(input); canonical != nil {
				colors = append(colors, *canonical)
			}
		}
		for _, id := range rc.ColorIDs {
			if canonical, ok := byID[id]; ok {
				colors = append(colors, canonical)
			}
		}
		if len(colors) == 0 {
			continue
		}
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("%s #%d", base, i+1)
		}
		combos = append(combos, palette.Combination{
			ID:          fmt.Sprintf("github:%s:%d", base, i),
			Name:        name,
			Colors:      colors,
			Description: rc.Description,
			Source:      palette.SourceGitHub,
			SanzoNumber: rc.SanzoPlate,
			RoomTypes:   rc.RoomTypes,
			AgeGroups:   rc.AgeGroups,
		})
	}
	return combos, nil
}

func standardizeRaw(rc rawColor) *palette.CanonicalColor {
	name := rc.Name
	if name == "" {
		name = rc.Alt
	}
	if rc.RGB != nil {
		return palette.StandardizeColor(palette.RGBInput{R: rc.RGB.R, G: rc.RGB.G, B: rc.RGB.B, Name: name})
	}
	if rc.Hex != "" {
		canonical := palette.StandardizeColor(palette.HexInput(rc.Hex))
		if canonical != nil && name != "" {
			canonical.Name = name
		}
		return canonical
	}
	return nil
}

// SyncWithRepository compares the cached change marker against the live
// repository state and re-fetches combinations when they diverge.
func (c *Client) SyncWithRepository(ctx context.Context, force bool) (SyncResult, error) {
	info, err := c.RepositoryInfo(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	marker := info.LastUpdated.UTC().Format(time.RFC3339)

	syncNeeded := force
	if !syncNeeded {
		raw, ok, err := c.cache.Get(ctx, syncMarkerCacheKey)
		if err != nil || !ok {
			syncNeeded = true
		} else {
			var cached string
			if err := json.Unmarshal(raw, &cached); err != nil || cached != marker {
				syncNeeded = true
			}
		}
	}

	if !syncNeeded {
		cached, err := c.FetchColorCombinations(ctx, false)
		if err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Success: true, SyncNeeded: false, CombinationsCount: len(cached.Combinations)}, nil
	}

	result, err := c.FetchColorCombinations(ctx, true)
	if err != nil {
		return SyncResult{}, err
	}
	if raw, err := json.Marshal(marker); err == nil {
		if err := c.cache.Put(ctx, syncMarkerCacheKey, raw); err != nil {
			c.logger.Warn("cache sync marker", zap.Error(err))
		}
	}
	return SyncResult{Success: true, SyncNeeded: true, CombinationsCount: len(result.Combinations)}, nil
}

// Name identifies the source in sync reports.
func (c *Client) Name() string {
	return string(palette.SourceGitHub)
}

// Fetch runs the marker-based sync and returns the resulting combinations,
// satisfying the orchestrator's source contract.
func (c *Client) Fetch(ctx context.Context, force bool) ([]palette.Combination, error) {
	if _, err := c.SyncWithRepository(ctx, force); err != nil {
		return nil, err
	}
	result, err := c.FetchColorCombinations(ctx, false)
	if err != nil {
		return nil, err
	}
	return result.Combinations, nil
}

func (c *Client) repoPath(suffix string) string {
	p := fmt.Sprintf("/repos/%s/%s", c.cfg.Owner, c.cfg.Repo)
	if suffix != "" {
		p += "/" + strings.TrimPrefix(suffix, "/")
	}
	return p
}

// get issues a GET with auth headers, retrying transient failures per the
// retry policy.
func (c *Client) get(ctx context.Context, apiPath string) ([]byte, http.Header, error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + apiPath

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, header, status, err := c.fetchOnce(ctx, url)
		if err == nil && status == http.StatusOK {
			return body, header, nil
		}
		if err == nil {
			lastErr = c.statusError(apiPath, status, header, body)
			if status == http.StatusNotFound {
				return nil, nil, lastErr
			}
		} else {
			lastErr = fmt.Errorf("request %s: %w", apiPath, err)
		}
		if !c.retry.ShouldRetry(err, status, attempt) {
			return nil, nil, lastErr
		}
		backoff := c.retry.Backoff(attempt)
		c.logger.Warn("retrying repository request",
			zap.String("path", apiPath),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, http.Header, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, resp.StatusCode, err
	}
	return body, resp.Header, resp.StatusCode, nil
}

func (c *Client) statusError(apiPath string, status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{
		Message:    fmt.Sprintf("repository request %s failed", apiPath),
		Status:     status,
		StatusText: http.StatusText(status),
	}
	var upstream struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &upstream); err == nil {
		apiErr.APIMessage = upstream.Message
	}
	if status == http.StatusForbidden {
		if remaining := header.Get("x-ratelimit-remaining"); remaining != "" {
			limit := &RateLimit{Remaining: headerInt(header, "x-ratelimit-remaining", 0)}
			if reset := headerInt(header, "x-ratelimit-reset", 0); reset > 0 {
				limit.Reset = time.Unix(int64(reset), 0).UTC()
			}
			apiErr.RateLimit = limit
		}
	}
	return apiErr
}

func headerInt(header http.Header, key string, fallback int) int {
	v := header.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
