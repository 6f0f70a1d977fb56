package scrape

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// BrowserUserAgent is a desktop Chrome user agent sent by every strategy.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const maxBodyBytes = 5 << 20

// browserHeaders returns the header set of a real browser session.
func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "ru-RU,ru;q=0.9")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// newInsecureClient builds a client that skips TLS verification. Several bank
// sites serve incomplete certificate chains.
func newInsecureClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
}

// LocalScraper performs a direct GET with browser headers.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper. timeout <= 0 selects 10s.
func NewLocalScraper(timeout time.Duration) *LocalScraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocalScraper{client: newInsecureClient(timeout)}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL directly.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	return get(ctx, l.client, targetURL, browserHeaders(), l.Name())
}

// get issues a GET with the given headers and returns the decoded body when
// the response is a non-blocked success.
func get(ctx context.Context, client *http.Client, targetURL string, headers http.Header, source string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", source)
	}
	req.Header = headers

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: fetch", source)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read body", source)
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("%s: blocked (%s)", source, kind)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("%s: status %d", source, resp.StatusCode)
	}

	return &Result{
		URL:        targetURL,
		HTML:       decodeBody(body, resp.Header.Get("Content-Type")),
		StatusCode: resp.StatusCode,
		Source:     source,
	}, nil
}

// decodeBody converts a response body to UTF-8. Valid UTF-8 passes through
// untouched; anything else is decoded using the declared or sniffed charset.
func decodeBody(body []byte, contentType string) string {
	if utf8.Valid(body) {
		return string(body)
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body)
	}
	return string(out)
}
