// Package batch runs extraction over a set of products, one at a time, and
// records the outcome in a RunLog.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/export"
	"github.com/sells-group/cardscope/internal/extract"
	"github.com/sells-group/cardscope/internal/metrics"
	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/notify"
	"github.com/sells-group/cardscope/internal/store"
)

// DefaultPause separates consecutive products.
const DefaultPause = 500 * time.Millisecond

// ErrEmptyRequest is returned when a request names no products or no
// characteristics.
var ErrEmptyRequest = eris.New("batch: request needs at least one product and one characteristic")

// Extractor produces one product's values.
type Extractor interface {
	ExtractOne(ctx context.Context, product model.Product, chars []model.Characteristic) (*extract.Result, error)
}

// Exporter writes a finished comparison table and returns where it went.
type Exporter interface {
	Export(ctx context.Context, t *export.Table) (string, error)
}

// Request selects what one run extracts.
type Request struct {
	UserID            int64   `json:"user_id"`
	ProductIDs        []int64 `json:"product_ids"`
	CharacteristicIDs []int64 `json:"characteristic_ids"`
}

// Runner executes batch runs. Products within a run are never processed
// concurrently; separate runs may overlap.
type Runner struct {
	Store     store.Store
	Extractor Extractor
	Exporter  Exporter        // nil skips the export step
	Progress  notify.Progress // nil logs progress
	Pause     time.Duration   // negative disables the pause

	wg sync.WaitGroup
}

// plan is a validated request with its catalog rows loaded.
type plan struct {
	req      Request
	products []model.Product
	chars    []model.Characteristic
	banks    map[int64]string
}

// Run executes req to completion. The returned RunLog is always terminal
// when non-nil; err is set when it ended in error.
func (r *Runner) Run(ctx context.Context, req Request) (*model.RunLog, error) {
	p, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	log, err := r.open(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := r.execute(ctx, log, p); err != nil {
		return log, err
	}
	return log, nil
}

// Start validates req, records a new RunLog, and runs it in the background
// under ctx, so ctx must outlive the caller's request. The returned snapshot
// is in status new. Use Wait to block until every started run has finished.
func (r *Runner) Start(ctx context.Context, req Request) (*model.RunLog, error) {
	p, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	log, err := r.open(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	snapshot := *log

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.execute(ctx, log, p) //nolint:errcheck // outcome lives in the RunLog
	}()
	return &snapshot, nil
}

// Wait blocks until every run launched by Start has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) progress() notify.Progress {
	if r.Progress == nil {
		return notify.Log{}
	}
	return r.Progress
}

func (r *Runner) pause() time.Duration {
	switch {
	case r.Pause < 0:
		return 0
	case r.Pause == 0:
		return DefaultPause
	default:
		return r.Pause
	}
}

func (r *Runner) prepare(ctx context.Context, req Request) (*plan, error) {
	if len(req.ProductIDs) == 0 || len(req.CharacteristicIDs) == 0 {
		return nil, ErrEmptyRequest
	}

	products, err := r.Store.GetProducts(ctx, req.ProductIDs)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load products")
	}
	if missing := missingIDs(req.ProductIDs, products, func(p model.Product) int64 { return p.ID }); len(missing) > 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "batch: products %v", missing)
	}

	chars, err := r.Store.GetCharacteristics(ctx, req.CharacteristicIDs)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load characteristics")
	}
	if missing := missingIDs(req.CharacteristicIDs, chars, func(c model.Characteristic) int64 { return c.ID }); len(missing) > 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "batch: characteristics %v", missing)
	}

	bankIDs := make([]int64, 0, len(products))
	for _, p := range products {
		bankIDs = append(bankIDs, p.BankID)
	}
	banks, err := r.Store.GetBanks(ctx, bankIDs)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load banks")
	}
	names := make(map[int64]string, len(banks))
	for _, b := range banks {
		names[b.ID] = b.Name
	}

	return &plan{req: req, products: products, chars: chars, banks: names}, nil
}

func (r *Runner) open(ctx context.Context, userID int64) (*model.RunLog, error) {
	log := &model.RunLog{
		UserID: userID,
		Tag:    uuid.NewString(),
		Action: model.ActionParse,
		Status: model.RunStatusNew,
	}
	if err := r.Store.CreateRunLog(ctx, log); err != nil {
		return nil, eris.Wrap(err, "batch: create run log")
	}
	return log, nil
}

// execute drives log from new to a terminal status.
func (r *Runner) execute(ctx context.Context, log *model.RunLog, p *plan) error {
	zlog := zap.L().With(zap.Int64("run_id", log.ID), zap.String("tag", log.Tag))

	if err := r.advance(ctx, log, model.RunStatusProcess, ""); err != nil {
		return r.fail(ctx, log, err)
	}
	r.progress().Started(ctx, log, len(p.products))

	extracted := 0
	for i, product := range p.products {
		if i > 0 {
			if err := sleep(ctx, r.pause()); err != nil {
				return r.fail(ctx, log, err)
			}
		}

		item := notify.Item{
			Index:   i + 1,
			Total:   len(p.products),
			Bank:    p.banks[product.BankID],
			Product: product.Name,
		}

		res, err := r.extractOne(ctx, product, p.chars)
		switch {
		case ctx.Err() != nil:
			return r.fail(ctx, log, ctx.Err())
		case err != nil:
			// Isolated: the product contributes nothing and the run moves on.
			zlog.Warn("batch: product failed", zap.Int64("product_id", product.ID), zap.Error(err))
			item.Error = err.Error()
		default:
			if err := r.Store.AppendValues(ctx, toValues(log, product, res)); err != nil {
				return r.fail(ctx, log, eris.Wrapf(err, "batch: save values for product %d", product.ID))
			}
			if res.Outcome == extract.OutcomeExtracted {
				extracted++
			}
			log.TokensUsed += res.Tokens
			item.Outcome = string(res.Outcome)
			item.Tokens = res.Tokens
			if err := r.Store.UpdateRunLog(ctx, log); err != nil {
				return r.fail(ctx, log, eris.Wrap(err, "batch: update run log"))
			}
		}
		r.progress().Item(ctx, log, item)
	}

	var path string
	if r.Exporter != nil {
		table, err := export.BuildTable(ctx, r.Store, p.req.UserID, p.req.ProductIDs, p.req.CharacteristicIDs)
		if err != nil {
			return r.fail(ctx, log, err)
		}
		if path, err = r.Exporter.Export(ctx, table); err != nil {
			return r.fail(ctx, log, err)
		}
	}

	summary := fmt.Sprintf("extracted %d of %d products, %d tokens", extracted, len(p.products), log.TokensUsed)
	if err := r.advance(ctx, log, model.RunStatusOK, summary); err != nil {
		return r.fail(ctx, log, err)
	}
	metrics.Runs.WithLabelValues(string(model.RunStatusOK)).Inc()
	r.progress().Finished(ctx, log, path)
	return nil
}

// extractOne shields the loop from a panicking extractor.
func (r *Runner) extractOne(ctx context.Context, product model.Product, chars []model.Characteristic) (res *extract.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("batch: extractor panic: %v", rec)
		}
	}()
	res, err = r.Extractor.ExtractOne(ctx, product, chars)
	if err == nil && res == nil {
		err = eris.New("batch: extractor returned no result")
	}
	return res, err
}

func (r *Runner) advance(ctx context.Context, log *model.RunLog, next model.RunStatus, message string) error {
	prev := *log
	if err := log.Advance(next, message); err != nil {
		return err
	}
	if err := r.Store.UpdateRunLog(ctx, log); err != nil {
		// Unsaved transitions do not count.
		*log = prev
		return eris.Wrap(err, "batch: update run log")
	}
	return nil
}

// fail records cause on the RunLog and returns it. The final write uses a
// context that survives cancellation of ctx.
func (r *Runner) fail(ctx context.Context, log *model.RunLog, cause error) error {
	if !log.Status.Terminal() {
		if err := log.Advance(model.RunStatusError, cause.Error()); err != nil {
			zap.L().Error("batch: cannot mark run failed", zap.Int64("run_id", log.ID), zap.Error(err))
		} else if err := r.Store.UpdateRunLog(context.WithoutCancel(ctx), log); err != nil {
			zap.L().Error("batch: cannot persist run failure", zap.Int64("run_id", log.ID), zap.Error(err))
		}
	}
	metrics.Runs.WithLabelValues(string(model.RunStatusError)).Inc()
	r.progress().Finished(ctx, log, "")
	return cause
}

func toValues(log *model.RunLog, product model.Product, res *extract.Result) []model.Value {
	values := make([]model.Value, len(res.Values))
	for i, fv := range res.Values {
		values[i] = model.Value{
			UserID:           log.UserID,
			ProductID:        product.ID,
			CharacteristicID: fv.CharacteristicID,
			Value:            fv.Value,
			BatchTag:         log.Tag,
		}
	}
	return values
}

func missingIDs[T any](ids []int64, rows []T, id func(T) int64) []int64 {
	have := make(map[int64]bool, len(rows))
	for _, r := range rows {
		have[id(r)] = true
	}
	var missing []int64
	for _, i := range ids {
		if !have[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
