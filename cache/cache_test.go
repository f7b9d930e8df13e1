package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory(clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(59 * time.Second)
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expires exactly at ttl")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryDeleteAndOverwrite(t *testing.T) {
	c := NewMemory(nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("a"), time.Hour))
	require.NoError(t, c.Set(ctx, "k", []byte("b"), time.Hour))
	got, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("b"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("x"), 0))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "non-positive ttl stores nothing")
}

func TestMemoryCopiesValues(t *testing.T) {
	c := NewMemory(nil)
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Hour))
	buf[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'z'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestEffectsKey(t *testing.T) {
	assert.Equal(t, "effects:u1", EffectsKey("u1"))
}

func TestDialRedisErrors(t *testing.T) {
	_, err := DialRedis(context.Background(), " ")
	assert.Error(t, err)

	_, err = DialRedis(context.Background(), "127.0.0.1:1")
	assert.Error(t, err, "nothing listens on port 1")
}
