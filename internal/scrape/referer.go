package scrape

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RefererRule overrides the Referer header and timeout for hosts containing
// Match.
type RefererRule struct {
	Match   string        `yaml:"match" mapstructure:"match"`
	Referer string        `yaml:"referer" mapstructure:"referer"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultRefererRules lists banks that reject requests without in-site
// navigation history.
func DefaultRefererRules() []RefererRule {
	return []RefererRule{
		{Match: "sber", Referer: "https://www.sber-bank.by/", Timeout: 12 * time.Second},
		{Match: "alfabank", Referer: "https://www.alfabank.by/", Timeout: 12 * time.Second},
		{Match: "mtbank", Referer: "https://www.mtbank.by/", Timeout: 12 * time.Second},
	}
}

// RefererRegistry maps hosts to Referer overrides. Rules are checked in
// order; unmatched hosts get a referer derived from the URL itself.
type RefererRegistry struct {
	rules           []RefererRule
	fallbackTimeout time.Duration
}

// NewRefererRegistry creates a registry. fallbackTimeout <= 0 selects 15s.
func NewRefererRegistry(rules []RefererRule, fallbackTimeout time.Duration) *RefererRegistry {
	if fallbackTimeout <= 0 {
		fallbackTimeout = 15 * time.Second
	}
	return &RefererRegistry{rules: rules, fallbackTimeout: fallbackTimeout}
}

// Lookup returns the referer and timeout to use for rawURL.
func (r *RefererRegistry) Lookup(rawURL string) (string, time.Duration) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", r.fallbackTimeout
	}

	host := strings.ToLower(u.Hostname())
	for _, rule := range r.rules {
		if rule.Match != "" && strings.Contains(host, strings.ToLower(rule.Match)) {
			timeout := rule.Timeout
			if timeout <= 0 {
				timeout = r.fallbackTimeout
			}
			return rule.Referer, timeout
		}
	}
	return parentURL(u), r.fallbackTimeout
}

// parentURL drops the last path segment, query, and fragment:
// https://bank.by/cards/visa?x=1 becomes https://bank.by/cards/.
func parentURL(u *url.URL) string {
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	if dir == "" {
		dir = "/"
	}
	return u.Scheme + "://" + u.Host + dir
}

// RefererScraper retries the direct GET with a plausible Referer.
type RefererScraper struct {
	registry *RefererRegistry
	client   *http.Client
}

// NewRefererScraper creates a RefererScraper backed by registry.
func NewRefererScraper(registry *RefererRegistry) *RefererScraper {
	return &RefererScraper{
		registry: registry,
		// Per-request deadlines come from the registry.
		client: newInsecureClient(0),
	}
}

func (r *RefererScraper) Name() string           { return "referer" }
func (r *RefererScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL with the registry's referer and timeout.
func (r *RefererScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	referer, timeout := r.registry.Lookup(targetURL)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := browserHeaders()
	if referer != "" {
		headers.Set("Referer", referer)
	}
	return get(ctx, r.client, targetURL, headers, r.Name())
}
