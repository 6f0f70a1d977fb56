package scrape

import (
	"context"
	"io"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/metrics"
)

// DefaultMinContentLength is the smallest page, in characters, treated as
// real content rather than a redirect or interstitial.
const DefaultMinContentLength = 500

// Chain tries scrapers in order and returns the first result long enough to
// be a real page. Successful fetches are cached by URL.
type Chain struct {
	scrapers  []Scraper
	cache     Cache
	minLength int
}

// NewChain creates a Chain. A nil cache disables caching; minLength <= 0
// selects DefaultMinContentLength.
func NewChain(cache Cache, minLength int, scrapers ...Scraper) *Chain {
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	return &Chain{
		scrapers:  scrapers,
		cache:     cache,
		minLength: minLength,
	}
}

// Fetch returns page markup for targetURL or an error wrapping
// ErrNotAvailable. Strategy failures are logged and never escape on their own.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (string, error) {
	if c.cache != nil {
		if html, ok := c.cache.Get(ctx, targetURL); ok {
			zap.L().Debug("scrape: cache hit", zap.String("url", targetURL))
			return html, nil
		}
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "scrape: fetch cancelled")
		}

		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			err = c.accept(result)
		}
		if err != nil {
			metrics.FetchAttempts.WithLabelValues(s.Name(), "failed").Inc()
			zap.L().Debug("scrape: strategy failed, trying next",
				zap.String("strategy", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		metrics.FetchAttempts.WithLabelValues(s.Name(), "ok").Inc()
		zap.L().Debug("scrape: fetched page",
			zap.String("strategy", s.Name()),
			zap.String("url", targetURL),
			zap.Int("chars", utf8.RuneCountInString(result.HTML)),
		)
		if c.cache != nil {
			c.cache.Set(ctx, targetURL, result.HTML)
		}
		return result.HTML, nil
	}

	if lastErr == nil {
		return "", eris.Wrapf(ErrNotAvailable, "no strategy supports %s", targetURL)
	}
	return "", eris.Wrapf(ErrNotAvailable, "all strategies failed for %s: %v", targetURL, lastErr)
}

func (c *Chain) accept(r *Result) error {
	if n := utf8.RuneCountInString(r.HTML); n < c.minLength {
		return eris.Wrapf(ErrTooSmall, "%s: %d < %d chars", r.Source, n, c.minLength)
	}
	return nil
}

// Close releases strategies that hold resources, such as a running browser.
func (c *Chain) Close() error {
	var firstErr error
	for _, s := range c.scrapers {
		if closer, ok := s.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
