package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/model"
)

// Log writes progress to the global zap logger.
type Log struct{}

func (Log) Started(_ context.Context, run *model.RunLog, total int) {
	zap.L().Info("batch: started",
		zap.Int64("run_id", run.ID),
		zap.String("tag", run.Tag),
		zap.Int64("user_id", run.UserID),
		zap.Int("products", total),
	)
}

func (Log) Item(_ context.Context, run *model.RunLog, item Item) {
	fields := []zap.Field{
		zap.Int64("run_id", run.ID),
		zap.Int("index", item.Index),
		zap.Int("total", item.Total),
		zap.String("bank", item.Bank),
		zap.String("product", item.Product),
		zap.String("outcome", item.Outcome),
		zap.Int("tokens", item.Tokens),
	}
	if item.Error != "" {
		zap.L().Warn("batch: product failed", append(fields, zap.String("error", item.Error))...)
		return
	}
	zap.L().Info("batch: product done", fields...)
}

func (Log) Finished(_ context.Context, run *model.RunLog, path string) {
	fields := []zap.Field{
		zap.Int64("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("tokens_used", run.TokensUsed),
		zap.String("message", run.Message),
	}
	if path != "" {
		fields = append(fields, zap.String("export", path))
	}
	if run.Status == model.RunStatusError {
		zap.L().Error("batch: finished", fields...)
		return
	}
	zap.L().Info("batch: finished", fields...)
}
