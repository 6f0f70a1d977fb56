package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		want   BlockType
	}{
		{"clean", 200, nil, "<html><body>Visa Gold</body></html>", BlockNone},
		{"cloudflare header", 403, map[string]string{"cf-ray": "x"}, "denied", BlockCloudflare},
		{"cloudflare server", 503, map[string]string{"server": "cloudflare"}, "", BlockCloudflare},
		{"cloudflare body", 200, nil, "Checking your browser before accessing", BlockCloudflare},
		{"captcha", 200, nil, "Please solve the CAPTCHA", BlockCaptcha},
		{"js shell", 200, nil, "<noscript>Enable JavaScript</noscript>", BlockJSShell},
		{"meta refresh", 200, nil, `<meta http-equiv="refresh" content="0;url=/x">`, BlockJSShell},
		{"large page with captcha widget", 200, nil, strings.Repeat("x", interstitialMax+1) + "recaptcha", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.header {
				resp.Header.Set(k, v)
			}
			blocked, kind := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want, kind)
			assert.Equal(t, tt.want != BlockNone, blocked)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, kind := DetectBlock(nil, []byte("captcha"))
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, kind)
}
