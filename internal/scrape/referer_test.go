package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefererRegistry_Lookup(t *testing.T) {
	reg := NewRefererRegistry(DefaultRefererRules(), 15*time.Second)

	tests := []struct {
		url     string
		referer string
		timeout time.Duration
	}{
		{"https://www.sber-bank.by/card/visa-gold", "https://www.sber-bank.by/", 12 * time.Second},
		{"https://sberbank.by/cards", "https://www.sber-bank.by/", 12 * time.Second},
		{"https://www.AlfaBank.by/cards/x", "https://www.alfabank.by/", 12 * time.Second},
		{"https://www.mtbank.by/cards/otkrytie", "https://www.mtbank.by/", 12 * time.Second},
		{"https://belarusbank.by/ru/fizicheskim_licam/cards/visa?tab=2", "https://belarusbank.by/ru/fizicheskim_licam/cards/", 15 * time.Second},
		{"https://bank.by/cards/", "https://bank.by/cards/", 15 * time.Second},
		{"https://bank.by", "https://bank.by/", 15 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			referer, timeout := reg.Lookup(tt.url)
			assert.Equal(t, tt.referer, referer)
			assert.Equal(t, tt.timeout, timeout)
		})
	}
}

func TestRefererRegistry_CustomRuleWithoutTimeout(t *testing.T) {
	reg := NewRefererRegistry([]RefererRule{{Match: "priorbank", Referer: "https://www.priorbank.by/"}}, 0)

	referer, timeout := reg.Lookup("https://www.priorbank.by/cards/1")
	assert.Equal(t, "https://www.priorbank.by/", referer)
	assert.Equal(t, 15*time.Second, timeout)
}

func TestRefererScraper_SendsReferer(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	s := NewRefererScraper(NewRefererRegistry(nil, time.Second))
	result, err := s.Scrape(context.Background(), srv.URL+"/cards/visa")

	require.NoError(t, err)
	assert.Equal(t, "referer", result.Source)
	assert.Equal(t, srv.URL+"/cards/", referer)
}

func TestRefererScraper_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := NewRefererScraper(NewRefererRegistry(nil, 50*time.Millisecond))
	_, err := s.Scrape(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "referer: fetch")
}
