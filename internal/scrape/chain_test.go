package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func page(source string, chars int) *Result {
	return &Result{HTML: strings.Repeat("я", chars), Source: source, StatusCode: 200}
}

func TestChain_Fetch_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, result: page("primary", 600)}
	s2 := &mockScraper{name: "fallback", supports: true, result: page("fallback", 600)}

	chain := NewChain(nil, 500, s1, s2)
	html, err := chain.Fetch(context.Background(), "https://bank.by/cards/visa")

	require.NoError(t, err)
	assert.Len(t, []rune(html), 600)
	assert.Equal(t, 1, s1.calls)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_Fetch_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("timeout")}
	s2 := &mockScraper{name: "fallback", supports: true, result: page("fallback", 700)}

	chain := NewChain(nil, 500, s1, s2)
	html, err := chain.Fetch(context.Background(), "https://bank.by")

	require.NoError(t, err)
	assert.Len(t, []rune(html), 700)
	assert.Equal(t, 1, s2.calls)
}

func TestChain_Fetch_ThresholdBoundary(t *testing.T) {
	t.Run("exactly at threshold is accepted", func(t *testing.T) {
		s := &mockScraper{name: "s", supports: true, result: page("s", 500)}
		html, err := NewChain(nil, 500, s).Fetch(context.Background(), "https://bank.by")
		require.NoError(t, err)
		assert.Len(t, []rune(html), 500)
	})

	t.Run("one below threshold falls through", func(t *testing.T) {
		small := &mockScraper{name: "small", supports: true, result: page("small", 499)}
		next := &mockScraper{name: "next", supports: true, result: page("next", 800)}

		html, err := NewChain(nil, 500, small, next).Fetch(context.Background(), "https://bank.by")
		require.NoError(t, err)
		assert.Len(t, []rune(html), 800)
		assert.Equal(t, 1, next.calls)
	})
}

func TestChain_Fetch_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, err: errors.New("s1 error")}
	s2 := &mockScraper{name: "s2", supports: true, result: page("s2", 10)}

	chain := NewChain(nil, 500, s1, s2)
	html, err := chain.Fetch(context.Background(), "https://bank.by")

	require.Error(t, err)
	assert.Empty(t, html)
	assert.True(t, errors.Is(err, ErrNotAvailable))
	assert.Contains(t, err.Error(), "all strategies failed")
}

func TestChain_Fetch_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: false, result: page("s1", 600)}
	s2 := &mockScraper{name: "s2", supports: true, result: page("s2", 650)}

	html, err := NewChain(nil, 500, s1, s2).Fetch(context.Background(), "https://bank.by")

	require.NoError(t, err)
	assert.Len(t, []rune(html), 650)
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Fetch_NoSupportingStrategy(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: false}

	_, err := NewChain(nil, 500, s1).Fetch(context.Background(), "https://bank.by")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAvailable))
	assert.Contains(t, err.Error(), "no strategy supports")
}

func TestChain_Fetch_UsesCache(t *testing.T) {
	cache := NewMemoryCache()
	s := &mockScraper{name: "s", supports: true, result: page("s", 600)}
	chain := NewChain(cache, 500, s)

	first, err := chain.Fetch(context.Background(), "https://bank.by/a")
	require.NoError(t, err)
	second, err := chain.Fetch(context.Background(), "https://bank.by/a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 1, cache.Len())
}

func TestChain_Fetch_FailureNotCached(t *testing.T) {
	cache := NewMemoryCache()
	s := &mockScraper{name: "s", supports: true, err: errors.New("down")}

	_, err := NewChain(cache, 500, s).Fetch(context.Background(), "https://bank.by/a")

	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestChain_Fetch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &mockScraper{name: "s", supports: true, result: page("s", 600)}

	_, err := NewChain(nil, 500, s).Fetch(ctx, "https://bank.by")

	require.Error(t, err)
	assert.Equal(t, 0, s.calls)
}

func TestNewChain_DefaultMinLength(t *testing.T) {
	c := NewChain(nil, 0)
	assert.Equal(t, DefaultMinContentLength, c.minLength)
}

type closingScraper struct {
	mockScraper
	closed bool
}

func (c *closingScraper) Close() error {
	c.closed = true
	return nil
}

func TestChain_Close(t *testing.T) {
	closer := &closingScraper{mockScraper: mockScraper{name: "c"}}
	chain := NewChain(nil, 0, &mockScraper{name: "m"}, closer)

	require.NoError(t, chain.Close())
	assert.True(t, closer.closed)
}
