package llm

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// GigaChat OAuth defaults.
const (
	GigaChatAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	GigaChatScope   = "GIGACHAT_API_B2B"
)

// tokenEarly refreshes a token this long before it expires.
const tokenEarly = time.Minute

// GigaChatTokens exchanges a GigaChat authorization key for short-lived
// access tokens and caches them until shortly before expiry.
type GigaChatTokens struct {
	client *resty.Client
	url    string
	key    string
	scope  string
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// GigaChatAuthOptions configures GigaChatTokens.
type GigaChatAuthOptions struct {
	Key         string // base64 authorization key
	Scope       string // default GigaChatScope
	URL         string // default GigaChatAuthURL
	InsecureTLS bool
	Timeout     time.Duration
}

// NewGigaChatTokens creates a token source.
func NewGigaChatTokens(opts GigaChatAuthOptions) *GigaChatTokens {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	if opts.InsecureTLS {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}
	return &GigaChatTokens{
		client: client,
		url:    orDefault(opts.URL, GigaChatAuthURL),
		key:    opts.Key,
		scope:  orDefault(opts.Scope, GigaChatScope),
		now:    time.Now,
	}
}

type gigaChatToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Token returns a cached access token or fetches a new one.
func (g *GigaChatTokens) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Add(tokenEarly).Before(g.expires) {
		return g.token, nil
	}

	var out gigaChatToken
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+g.key).
		SetHeader("RqUID", uuid.NewString()).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{"scope": g.scope}).
		SetResult(&out).
		Post(g.url)
	if err != nil {
		return "", eris.Wrap(err, "gigachat: oauth")
	}
	if resp.IsError() {
		return "", eris.Errorf("gigachat: oauth status %d", resp.StatusCode())
	}
	if out.AccessToken == "" {
		return "", eris.New("gigachat: oauth returned no token")
	}

	g.token = out.AccessToken
	g.expires = time.UnixMilli(out.ExpiresAt)
	return g.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (g *GigaChatTokens) Invalidate() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
}

// tokenSource supplies bearer tokens per request.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// bearerTransport sets Authorization from a token source on each request.
type bearerTransport struct {
	base   http.RoundTripper
	tokens tokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base.RoundTrip(r)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.tokens.Invalidate()
	}
	return resp, err
}
