// Package metrics exposes Prometheus collectors for the extraction pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscope_fetch_attempts_total",
			Help: "Page fetch attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscope_model_calls_total",
			Help: "Model calls by prompt mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	ModelTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cardscope_model_tokens_total",
			Help: "Tokens reported by the model provider.",
		},
	)

	Products = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscope_products_total",
			Help: "Products processed by extraction outcome.",
		},
		[]string{"outcome"},
	)

	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscope_runs_total",
			Help: "Batch runs by final status.",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(FetchAttempts, ModelCalls, ModelTokens, Products, Runs)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
