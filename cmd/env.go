package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/batch"
	"github.com/sells-group/cardscope/internal/config"
	"github.com/sells-group/cardscope/internal/export"
	"github.com/sells-group/cardscope/internal/extract"
	"github.com/sells-group/cardscope/internal/jsonrepair"
	"github.com/sells-group/cardscope/internal/llm"
	"github.com/sells-group/cardscope/internal/notify"
	"github.com/sells-group/cardscope/internal/reduce"
	"github.com/sells-group/cardscope/internal/scrape"
	"github.com/sells-group/cardscope/internal/store"
)

// openStore validates store settings, connects, and migrates.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pageCache returns the configured fetch cache and a release func.
func pageCache(c *config.Config) (scrape.Cache, func()) {
	if c.Scrape.Cache != "redis" {
		return scrape.NewMemoryCache(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	ttl := time.Duration(c.Scrape.CacheTTLHours) * time.Hour
	return scrape.NewRedisCache(client, c.Redis.KeyPrefix, ttl), func() { _ = client.Close() }
}

// buildChain assembles direct, browser, and referer strategies in that order.
func buildChain(c *config.Config) (*scrape.Chain, func()) {
	rules := scrape.DefaultRefererRules()
	for _, r := range c.Scrape.Referers {
		rules = append(rules, scrape.RefererRule{
			Match:   r.Match,
			Referer: r.Referer,
			Timeout: time.Duration(r.TimeoutSecs) * time.Second,
		})
	}

	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(time.Duration(c.Scrape.DirectTimeoutSecs) * time.Second),
	}
	if c.Scrape.Browser {
		scrapers = append(scrapers, scrape.NewBrowserScraper(scrape.BrowserOptions{
			Bin:        c.Scrape.BrowserBin,
			Timeout:    time.Duration(c.Scrape.BrowserTimeoutSecs) * time.Second,
			AutoScroll: c.Scrape.AutoScroll,
		}))
	}
	scrapers = append(scrapers,
		scrape.NewRefererScraper(scrape.NewRefererRegistry(rules, time.Duration(c.Scrape.RefererTimeoutSecs)*time.Second)))

	cache, release := pageCache(c)
	chain := scrape.NewChain(cache, c.Scrape.MinContentLength, scrapers...)
	return chain, func() {
		if err := chain.Close(); err != nil {
			zap.L().Warn("close fetch chain", zap.Error(err))
		}
		release()
	}
}

// buildExtractor wires fetch chain, reducer, parser, and model client.
func buildExtractor(c *config.Config) (*extract.Extractor, func(), error) {
	model, err := llm.New(c.LLM)
	if err != nil {
		return nil, nil, err
	}
	chain, release := buildChain(c)
	ex := &extract.Extractor{
		Fetcher:           chain,
		Model:             model,
		Reducer:           &reduce.Reducer{HTMLLimit: c.Extract.HTMLLimit, TextLimit: c.Extract.TextLimit},
		Parser:            &jsonrepair.Parser{Lenient: c.Extract.Lenient},
		MinHTML:           c.Extract.MinHTML,
		ClassifyTextLimit: c.Extract.ClassifyTextLimit,
	}
	return ex, release, nil
}

// progressFor logs progress and, when configured, posts it to a webhook.
func progressFor(c *config.Config) notify.Progress {
	if c.Notify.WebhookURL == "" {
		return notify.Log{}
	}
	return notify.Multi{
		notify.Log{},
		notify.NewWebhook(c.Notify.WebhookURL, time.Duration(c.Notify.TimeoutSecs)*time.Second),
	}
}

// buildRunner wires a batch runner over st.
func buildRunner(c *config.Config, st store.Store) (*batch.Runner, func(), error) {
	ex, release, err := buildExtractor(c)
	if err != nil {
		return nil, nil, err
	}
	return &batch.Runner{
		Store:     st,
		Extractor: ex,
		Exporter:  export.NewXLSX(c.Batch.ExportDir),
		Progress:  progressFor(c),
		Pause:     c.Batch.Pause(),
	}, release, nil
}
