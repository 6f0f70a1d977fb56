// Package scrape fetches product pages through an ordered chain of
// strategies: direct HTTP, a headless browser, and referer-spoofed retries.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotAvailable is returned when every strategy failed for a URL.
	ErrNotAvailable = eris.New("page not available")

	// ErrTooSmall marks content below the minimum viable length.
	ErrTooSmall = eris.New("content below minimum length")
)

// Result holds raw page markup and the strategy that produced it.
type Result struct {
	URL        string
	HTML       string
	StatusCode int
	Source     string // e.g. "local_http", "browser", "referer"
}

// Scraper fetches a single URL and returns its raw markup.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
