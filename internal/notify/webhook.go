package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/model"
)

// Webhook POSTs each event as JSON to URL. Failures are logged and dropped.
type Webhook struct {
	url    string
	client *resty.Client
}

// NewWebhook creates a Webhook with the given per-request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "cardscope")
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Started(ctx context.Context, run *model.RunLog, total int) {
	ev := newEvent(KindStarted, run)
	ev.Total = total
	w.post(ctx, ev)
}

func (w *Webhook) Item(ctx context.Context, run *model.RunLog, item Item) {
	ev := newEvent(KindItem, run)
	ev.Total = item.Total
	ev.Item = &item
	w.post(ctx, ev)
}

func (w *Webhook) Finished(ctx context.Context, run *model.RunLog, path string) {
	ev := newEvent(KindFinished, run)
	ev.Path = path
	// The run context may already be cancelled; the final event still goes out.
	w.post(context.WithoutCancel(ctx), ev)
}

func (w *Webhook) post(ctx context.Context, ev Event) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(ev).
		Post(w.url)
	if err != nil {
		zap.L().Warn("notify: webhook failed", zap.String("kind", ev.Kind), zap.Error(err))
		return
	}
	if resp.IsError() {
		zap.L().Warn("notify: webhook rejected",
			zap.String("kind", ev.Kind),
			zap.Int("status", resp.StatusCode()),
		)
	}
}
