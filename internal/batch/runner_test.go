package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cardscope/internal/export"
	"github.com/sells-group/cardscope/internal/extract"
	"github.com/sells-group/cardscope/internal/llm"
	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/notify"
	"github.com/sells-group/cardscope/internal/reduce"
	"github.com/sells-group/cardscope/internal/scrape"
	"github.com/sells-group/cardscope/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

type catalog struct {
	products []model.Product
	chars    []model.Characteristic
}

func (c catalog) request(userID int64) Request {
	req := Request{UserID: userID}
	for _, p := range c.products {
		req.ProductIDs = append(req.ProductIDs, p.ID)
	}
	for _, ch := range c.chars {
		req.CharacteristicIDs = append(req.CharacteristicIDs, ch.ID)
	}
	return req
}

// seed creates three products at https://bank.test/1..3 and two characteristics.
func seed(t *testing.T, st store.Store) catalog {
	t.Helper()
	ctx := context.Background()
	bank, err := st.CreateBank(ctx, "Тестбанк", "https://bank.test")
	require.NoError(t, err)

	var c catalog
	for _, n := range []string{"1", "2", "3"} {
		p, err := st.CreateProduct(ctx, model.Product{BankID: bank.ID, Name: "Card " + n, URL: "https://bank.test/" + n})
		require.NoError(t, err)
		c.products = append(c.products, *p)
	}
	for _, n := range []string{"type", "currency"} {
		ch, err := st.CreateCharacteristic(ctx, model.Characteristic{UserID: 1, Name: n})
		require.NoError(t, err)
		c.chars = append(c.chars, *ch)
	}
	return c
}

type pageFetcher map[string]string

func (f pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	if html, ok := f[url]; ok {
		return html, nil
	}
	return "", scrape.ErrNotAvailable
}

// countingModel answers every prompt with the same reply.
type countingModel struct {
	mu     sync.Mutex
	calls  int
	reply  string
	tokens int
}

func (m *countingModel) Chat(_ context.Context, _ string) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return &llm.Reply{Text: m.reply, Usage: llm.Usage{TotalTokens: m.tokens}}, nil
}

var cardPage = `<html><body><h1>Карта</h1><table>` +
	strings.Repeat(`<tr><td>Платежная система</td><td>Visa</td></tr><tr><td>Валюта</td><td>BYN</td></tr>`, 6) +
	`</table></body></html>`

type events struct {
	mu       sync.Mutex
	started  int
	items    []notify.Item
	finished []model.RunStatus
}

func (e *events) Started(context.Context, *model.RunLog, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
}

func (e *events) Item(_ context.Context, _ *model.RunLog, item notify.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, item)
}

func (e *events) Finished(_ context.Context, run *model.RunLog, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, run.Status)
}

func TestRun_UnavailableProductIsIsolated(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)
	ctx := context.Background()

	m := &countingModel{reply: `{"type": "Visa", "currency": "BYN"}`, tokens: 150}
	ex := &extract.Extractor{
		Fetcher: pageFetcher{
			"https://bank.test/1": cardPage,
			"https://bank.test/3": cardPage,
		},
		Model:   m,
		Reducer: reduce.New(),
	}
	ev := &events{}
	dir := t.TempDir()
	r := &Runner{Store: st, Extractor: ex, Exporter: export.NewXLSX(dir), Progress: ev, Pause: -1}

	log, err := r.Run(ctx, cat.request(1))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, log.Status)
	assert.Equal(t, 300, log.TokensUsed)
	assert.Equal(t, 2, m.calls)
	assert.Contains(t, log.Message, "extracted 2 of 3 products")

	saved, err := st.GetRunLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, saved.Status)
	assert.Equal(t, 300, saved.TokensUsed)

	values, err := st.ListValues(ctx, store.ValueFilter{UserID: 1, BatchTag: log.Tag})
	require.NoError(t, err)
	require.Len(t, values, 6)
	got := map[int64][]string{}
	for _, v := range values {
		got[v.ProductID] = append(got[v.ProductID], v.Value)
	}
	assert.Equal(t, []string{"Visa", "BYN"}, got[cat.products[0].ID])
	assert.Equal(t, []string{model.NotSpecified, model.NotSpecified}, got[cat.products[1].ID])
	assert.Equal(t, []string{"Visa", "BYN"}, got[cat.products[2].ID])

	assert.Equal(t, 1, ev.started)
	require.Len(t, ev.items, 3)
	assert.Equal(t, string(extract.OutcomeUnavailable), ev.items[1].Outcome)
	assert.Equal(t, 0, ev.items[1].Tokens)
	assert.Equal(t, "Тестбанк", ev.items[0].Bank)
	assert.Equal(t, []model.RunStatus{model.RunStatusOK}, ev.finished)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

// stubExtractor returns canned results per product id.
type stubExtractor struct {
	results map[int64]*extract.Result
	errs    map[int64]error
	panics  map[int64]bool
	cancel  context.CancelFunc
	seen    []int64
}

func (s *stubExtractor) ExtractOne(_ context.Context, p model.Product, chars []model.Characteristic) (*extract.Result, error) {
	s.seen = append(s.seen, p.ID)
	if s.panics[p.ID] {
		panic("boom")
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err, ok := s.errs[p.ID]; ok {
		return nil, err
	}
	if res, ok := s.results[p.ID]; ok {
		return res, nil
	}
	vals := make([]model.FieldValue, len(chars))
	for i, c := range chars {
		vals[i] = model.FieldValue{CharacteristicID: c.ID, Name: c.Name, Value: "v", Found: true}
	}
	return &extract.Result{Values: vals, Tokens: 10, Calls: 1, Outcome: extract.OutcomeExtracted}, nil
}

func TestRun_ExtractorErrorAndPanicAreIsolated(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)

	stub := &stubExtractor{
		errs:   map[int64]error{cat.products[0].ID: errors.New("parser exploded")},
		panics: map[int64]bool{cat.products[1].ID: true},
	}
	ev := &events{}
	r := &Runner{Store: st, Extractor: stub, Progress: ev, Pause: -1}

	log, err := r.Run(context.Background(), cat.request(1))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, log.Status)
	assert.Equal(t, 10, log.TokensUsed)
	assert.Contains(t, log.Message, "1 of 3 products")

	require.Len(t, ev.items, 3)
	assert.Equal(t, "parser exploded", ev.items[0].Error)
	assert.Contains(t, ev.items[1].Error, "panic")
	assert.Empty(t, ev.items[2].Error)

	values, err := st.ListValues(context.Background(), store.ValueFilter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestRun_SummaryCountsOnlyExtracted(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)

	sentinel := func(outcome extract.Outcome) *extract.Result {
		vals := make([]model.FieldValue, len(cat.chars))
		for i, c := range cat.chars {
			vals[i] = model.FieldValue{CharacteristicID: c.ID, Name: c.Name, Value: model.NotSpecified}
		}
		return &extract.Result{Values: vals, Tokens: 5, Outcome: outcome}
	}
	stub := &stubExtractor{results: map[int64]*extract.Result{
		cat.products[0].ID: sentinel(extract.OutcomeEmpty),
		cat.products[1].ID: sentinel(extract.OutcomeUnavailable),
	}}
	r := &Runner{Store: st, Extractor: stub, Progress: &events{}, Pause: -1}

	log, err := r.Run(context.Background(), cat.request(1))
	require.NoError(t, err)
	assert.Equal(t, "extracted 1 of 3 products, 20 tokens", log.Message)

	values, err := st.ListValues(context.Background(), store.ValueFilter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, values, 6, "sentinel rows are still stored")
}

func TestRun_ProcessesInRequestOrder(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)

	stub := &stubExtractor{}
	r := &Runner{Store: st, Extractor: stub, Progress: notify.Nop{}, Pause: -1}

	req := cat.request(1)
	req.ProductIDs = []int64{cat.products[2].ID, cat.products[0].ID}
	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{cat.products[2].ID, cat.products[0].ID}, stub.seen)
}

type failingValues struct {
	store.Store
}

func (failingValues) AppendValues(context.Context, []model.Value) error {
	return errors.New("disk full")
}

func TestRun_ValuePersistenceFailureEndsInError(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)
	ev := &events{}

	r := &Runner{Store: failingValues{st}, Extractor: &stubExtractor{}, Progress: ev, Pause: -1}
	log, err := r.Run(context.Background(), cat.request(1))
	require.Error(t, err)
	require.NotNil(t, log)
	assert.Equal(t, model.RunStatusError, log.Status)
	assert.Contains(t, log.Message, "disk full")

	saved, err := st.GetRunLog(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusError, saved.Status)
	assert.Contains(t, saved.Message, "disk full")
	assert.Equal(t, []model.RunStatus{model.RunStatusError}, ev.finished)
}

type failingExporter struct{}

func (failingExporter) Export(context.Context, *export.Table) (string, error) {
	return "", errors.New("read-only filesystem")
}

func TestRun_ExportFailureEndsInError(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)

	r := &Runner{Store: st, Extractor: &stubExtractor{}, Exporter: failingExporter{}, Progress: notify.Nop{}, Pause: -1}
	log, err := r.Run(context.Background(), cat.request(1))
	require.Error(t, err)
	assert.Equal(t, model.RunStatusError, log.Status)
	assert.Equal(t, "read-only filesystem", log.Message)
}

func TestRun_CancellationEndsInError(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stub := &stubExtractor{cancel: cancel}

	r := &Runner{Store: st, Extractor: stub, Progress: notify.Nop{}}
	log, err := r.Run(ctx, cat.request(1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunStatusError, log.Status)
	assert.Len(t, stub.seen, 1)

	saved, err := st.GetRunLog(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusError, saved.Status)
}

func TestRun_RejectsBadRequests(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)
	r := &Runner{Store: st, Extractor: &stubExtractor{}, Progress: notify.Nop{}, Pause: -1}
	ctx := context.Background()

	_, err := r.Run(ctx, Request{UserID: 1, ProductIDs: []int64{cat.products[0].ID}})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	req := cat.request(1)
	req.ProductIDs = append(req.ProductIDs, 999)
	_, err = r.Run(ctx, req)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "999")

	logs, err := st.ListRunLogs(ctx, store.RunLogFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestStart_ReturnsNewAndFinishesInBackground(t *testing.T) {
	st := newTestStore(t)
	cat := seed(t, st)
	r := &Runner{Store: st, Extractor: &stubExtractor{}, Progress: notify.Nop{}, Pause: -1}

	snapshot, err := r.Start(context.Background(), cat.request(1))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusNew, snapshot.Status)
	assert.NotEmpty(t, snapshot.Tag)

	r.Wait()

	saved, err := st.GetRunLog(context.Background(), snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusOK, saved.Status)
	assert.Equal(t, 30, saved.TokensUsed)
}

func TestPauseDefaults(t *testing.T) {
	assert.Equal(t, DefaultPause, (&Runner{}).pause())
	assert.Equal(t, int64(0), int64((&Runner{Pause: -1}).pause()))
	assert.Equal(t, int64(7), int64((&Runner{Pause: 7}).pause()))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, DefaultPause), context.Canceled)
}
