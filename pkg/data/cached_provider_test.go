package data

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptive-trader/pkg/types"
)

// countingProvider counts loads and serves a fixed series.
type countingProvider struct {
	loads int
	data  []types.OHLCV
	err   error
}

func (p *countingProvider) LoadData(source string) ([]types.OHLCV, error) {
	p.loads++
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}

func (p *countingProvider) ValidateData(data []types.OHLCV) error { return nil }
func (p *countingProvider) GetName() string                       { return "counting" }

func sampleBars() []types.OHLCV {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []types.OHLCV{
		{Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000, Timestamp: ts},
		{Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 1100, Timestamp: ts.Add(time.Hour)},
	}
}

func TestTTLCache_GetSet(t *testing.T) {
	cache := NewTTLCache(time.Hour)
	bars := sampleBars()

	_, _, ok := cache.Get("k")
	assert.False(t, ok)

	cache.Set("k", bars)
	got, _, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, bars, got)
	assert.Equal(t, 1, cache.Size())
}

func TestTTLCache_Expiry(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewTTLCache(time.Hour)
	cache.now = func() time.Time { return current }

	cache.Set("k", sampleBars())

	current = current.Add(59 * time.Minute)
	_, _, ok := cache.Get("k")
	assert.True(t, ok, "entry still fresh")

	current = current.Add(2 * time.Minute)
	_, _, ok = cache.Get("k")
	assert.False(t, ok, "entry past its ttl")
	assert.Zero(t, cache.Size(), "expired entry dropped on access")
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewTTLCache(0)
	cache.now = func() time.Time { return current }

	cache.Set("k", sampleBars())
	current = current.Add(1000 * time.Hour)

	_, _, ok := cache.Get("k")
	assert.True(t, ok)
}

func TestTTLCache_CopiesOnGet(t *testing.T) {
	cache := NewTTLCache(0)
	cache.Set("k", sampleBars())

	first, _, ok := cache.Get("k")
	require.True(t, ok)
	first[0].Close = 999

	second, _, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 100.5, second[0].Close, "cached bars are isolated from callers")
}

func TestTTLCache_Clear(t *testing.T) {
	cache := NewTTLCache(0)
	cache.Set("a", sampleBars())
	cache.Set("b", sampleBars())
	require.Equal(t, 2, cache.Size())

	cache.Clear()
	assert.Zero(t, cache.Size())
}

func TestCachedProvider_LoadData_ServesFromCache(t *testing.T) {
	inner := &countingProvider{data: sampleBars()}
	provider := NewCachedProvider(inner, NewTTLCache(time.Hour), zerolog.Nop())

	first, err := provider.LoadData("bars.csv")
	require.NoError(t, err)
	second, err := provider.LoadData("bars.csv")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.loads, "second load must hit the cache")
}

func TestCachedProvider_LoadData_ErrorNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	provider := NewCachedProvider(inner, NewTTLCache(time.Hour), zerolog.Nop())

	_, err := provider.LoadData("bars.csv")
	require.Error(t, err)

	inner.err = nil
	inner.data = sampleBars()
	_, err = provider.LoadData("bars.csv")
	assert.NoError(t, err)
	assert.Equal(t, 2, inner.loads)
}

func TestCachedProvider_GetName(t *testing.T) {
	provider := NewCachedProvider(&countingProvider{}, NewTTLCache(0), zerolog.Nop())
	assert.Equal(t, "Cached counting", provider.GetName())
}
