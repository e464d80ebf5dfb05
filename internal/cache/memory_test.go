package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanzolab/colorsync/internal/clock/system"
)

// fakeClock lets TTL tests move time without sleeping.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryPutGet(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewMemory(time.Minute, clk)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte(`{"v":1}`)))

	data, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(data))

	_, ok, err = store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLazyExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewMemory(time.Minute, clk)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("x")))

	clk.advance(time.Minute - time.Millisecond)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "entry should survive until the TTL elapses")

	clk.advance(time.Millisecond)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "read at exactly the TTL is a miss")
}

func TestMemoryExpiryWithRealClock(t *testing.T) {
	t.Parallel()

	store := NewMemory(time.Millisecond, system.New())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("x")))
	time.Sleep(10 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryClearAndStatus(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := NewMemory(time.Minute, clk)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "b", []byte("2")))
	require.NoError(t, store.Put(ctx, "a", []byte("1")))

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Entries)
	assert.Equal(t, []string{"a", "b"}, status.Keys)

	clk.advance(2 * time.Minute)
	status, err = store.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Entries, "expired entries are not reported")

	require.NoError(t, store.Clear(ctx))
	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
