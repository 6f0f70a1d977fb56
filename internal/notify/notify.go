// Package notify reports batch progress to observers. Delivery is
// best-effort and never affects the run.
package notify

import (
	"context"

	"github.com/sells-group/cardscope/internal/model"
)

// Event kinds.
const (
	KindStarted  = "started"
	KindItem     = "item"
	KindFinished = "finished"
)

// Item describes one finished product within a run.
type Item struct {
	Index   int    `json:"index"` // 1-based
	Total   int    `json:"total"`
	Bank    string `json:"bank"`
	Product string `json:"product"`
	Outcome string `json:"outcome"`
	Tokens  int    `json:"tokens"`
	Error   string `json:"error,omitempty"`
}

// Event is the payload delivered to webhooks.
type Event struct {
	Kind    string          `json:"kind"`
	RunID   int64           `json:"run_id"`
	Tag     string          `json:"tag"`
	UserID  int64           `json:"user_id"`
	Status  model.RunStatus `json:"status"`
	Total   int             `json:"total,omitempty"`
	Item    *Item           `json:"item,omitempty"`
	Tokens  int             `json:"tokens_used"`
	Message string          `json:"message,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// Progress observes a batch run.
type Progress interface {
	Started(ctx context.Context, run *model.RunLog, total int)
	Item(ctx context.Context, run *model.RunLog, item Item)
	Finished(ctx context.Context, run *model.RunLog, path string)
}

func newEvent(kind string, run *model.RunLog) Event {
	return Event{
		Kind:    kind,
		RunID:   run.ID,
		Tag:     run.Tag,
		UserID:  run.UserID,
		Status:  run.Status,
		Tokens:  run.TokensUsed,
		Message: run.Message,
	}
}

// Multi fans events out to every member.
type Multi []Progress

func (m Multi) Started(ctx context.Context, run *model.RunLog, total int) {
	for _, p := range m {
		p.Started(ctx, run, total)
	}
}

func (m Multi) Item(ctx context.Context, run *model.RunLog, item Item) {
	for _, p := range m {
		p.Item(ctx, run, item)
	}
}

func (m Multi) Finished(ctx context.Context, run *model.RunLog, path string) {
	for _, p := range m {
		p.Finished(ctx, run, path)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Started(context.Context, *model.RunLog, int)     {}
func (Nop) Item(context.Context, *model.RunLog, Item)       {}
func (Nop) Finished(context.Context, *model.RunLog, string) {}
