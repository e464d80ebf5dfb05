package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/store"
)

type fakeSource struct {
	name   string
	combos []palette.Combination
	err    error
	calls  int
	force  bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, force bool) ([]palette.Combination, error) {
	f.calls++
	f.force = force
	return f.combos, f.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func combo(source palette.Source, id, hex string) palette.Combination {
	rgb, _ := palette.HexToRGB(hex)
	return palette.Combination{
		ID:     id,
		Name:   id,
		Source: source,
		Colors: []palette.CanonicalColor{
			{Hex: hex, RGB: &rgb, Type: palette.ColorTypeHex},
		},
	}
}

func newOrchestrator(t *testing.T, sources ...Source) (*Orchestrator, *store.Memory) {
	t.Helper()
	provider := store.NewMemory()
	clock := fixedClock{now: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
	return New(provider, clock, zap.NewNop(), sources...), provider
}

func TestSyncAllSources(t *testing.T) {
	t.Parallel()

	github := &fakeSource{name: "github", combos: []palette.Combination{
		combo(palette.SourceGitHub, "github:combinations:0", "#DC143C"),
	}}
	web := &fakeSource{name: "webscrape", combos: []palette.Combination{
		combo(palette.SourceWebScrape, "webscrape:a1:0", "#0080FF"),
	}}
	o, provider := newOrchestrator(t, github, web)

	report, err := o.Sync(context.Background(), "all", false)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Sources["github"].Count)
	assert.Equal(t, 1, report.Sources["webscrape"].Count)

	count, err := provider.CombinationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncSingleSource(t *testing.T) {
	t.Parallel()

	github := &fakeSource{name: "github", combos: []palette.Combination{
		combo(palette.SourceGitHub, "github:combinations:0", "#DC143C"),
	}}
	web := &fakeSource{name: "webscrape"}
	o, _ := newOrchestrator(t, github, web)

	report, err := o.Sync(context.Background(), "github", true)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, github.calls)
	assert.True(t, github.force, "force flag reaches the source")
	assert.Zero(t, web.calls, "unselected sources are not invoked")
	assert.NotContains(t, report.Sources, "webscrape")
}

func TestSyncPartialFailure(t *testing.T) {
	t.Parallel()

	github := &fakeSource{name: "github", err: errors.New("rate limited")}
	web := &fakeSource{name: "webscrape", combos: []palette.Combination{
		combo(palette.SourceWebScrape, "webscrape:a1:0", "#0080FF"),
	}}
	o, provider := newOrchestrator(t, github, web)

	report, err := o.Sync(context.Background(), "all", false)
	require.NoError(t, err, "a failing source does not abort the run")
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Total)
	assert.False(t, report.Sources["github"].Success)
	assert.Contains(t, report.Sources["github"].Error, "rate limited")
	assert.True(t, report.Sources["webscrape"].Success)

	count, err := provider.CombinationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the surviving subset is stored")
}

func TestSyncAllSourcesFail(t *testing.T) {
	t.Parallel()

	github := &fakeSource{name: "github", err: errors.New("down")}
	o, _ := newOrchestrator(t, github)

	report, err := o.Sync(context.Background(), "all", false)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Zero(t, report.Total)
}

func TestSyncDeduplicates(t *testing.T) {
	t.Parallel()

	dup := combo(palette.SourceGitHub, "github:combinations:0", "#DC143C")
	github := &fakeSource{name: "github", combos: []palette.Combination{dup, dup}}
	o, _ := newOrchestrator(t, github)

	report, err := o.Sync(context.Background(), "github", false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total, "duplicates by (source, id) collapse")
}

func TestSyncUnknownSource(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator(t, &fakeSource{name: "github"})

	_, err := o.Sync(context.Background(), "gitlab", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sync source")
}

func TestSyncDefaultsToAll(t *testing.T) {
	t.Parallel()

	github := &fakeSource{name: "github"}
	web := &fakeSource{name: "webscrape"}
	o, _ := newOrchestrator(t, github, web)

	_, err := o.Sync(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, github.calls)
	assert.Equal(t, 1, web.calls)
}
