// Package extract turns a product page into one value per requested
// characteristic.
package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/jsonrepair"
	"github.com/sells-group/cardscope/internal/llm"
	"github.com/sells-group/cardscope/internal/metrics"
	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/prompt"
	"github.com/sells-group/cardscope/internal/reduce"
)

// Fetcher returns raw page markup for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Outcome classifies how a product's extraction ended.
type Outcome string

const (
	OutcomeExtracted   Outcome = "extracted"
	OutcomeEmpty       Outcome = "empty"
	OutcomeUnavailable Outcome = "unavailable"
)

// Result is the extraction of one product.
type Result struct {
	Values  []model.FieldValue
	Tokens  int
	Calls   int
	Outcome Outcome
}

// Extractor drives fetch, reduce, prompt, model call, and parse for a
// product.
type Extractor struct {
	Fetcher Fetcher
	Model   llm.Client
	Reducer *reduce.Reducer
	Parser  *jsonrepair.Parser

	// Sentinel fills characteristics with no value. Default model.NotSpecified.
	Sentinel string

	// MinHTML is the smallest cleaned page sent as HTML. Default
	// reduce.MinHTMLLength.
	MinHTML int

	// ClassifyTextLimit bounds page text for Identify. Default
	// reduce.ClassifyTextLimit.
	ClassifyTextLimit int
}

func (e *Extractor) sentinel() string {
	if e.Sentinel == "" {
		return model.NotSpecified
	}
	return e.Sentinel
}

func (e *Extractor) parser() *jsonrepair.Parser {
	if e.Parser == nil {
		return &jsonrepair.Parser{}
	}
	return e.Parser
}

func (e *Extractor) tooSmall(cleaned string) bool {
	if e.MinHTML <= 0 {
		return reduce.TooSmall(cleaned)
	}
	return len([]rune(cleaned)) < e.MinHTML
}

// ExtractOne returns exactly one value per characteristic, in order. Values
// the model did not find hold the sentinel. The error is non-nil only when
// ctx is done.
func (e *Extractor) ExtractOne(ctx context.Context, product model.Product, chars []model.Characteristic) (*Result, error) {
	log := zap.L().With(zap.Int64("product_id", product.ID), zap.String("url", product.URL))
	res := &Result{Outcome: OutcomeUnavailable}

	raw, err := e.Fetcher.Fetch(ctx, product.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract: cancelled")
		}
		log.Warn("extract: page unavailable", zap.Error(err))
		res.Values = e.fill(chars, nil)
		metrics.Products.WithLabelValues(string(res.Outcome)).Inc()
		return res, nil
	}

	fields := prompt.FieldsFrom(chars)
	var obj map[string]any

	cleaned := e.Reducer.Reduce(raw)
	if e.tooSmall(cleaned) {
		log.Debug("extract: cleaned html too small, using text", zap.Int("chars", len([]rune(cleaned))))
	} else {
		obj, err = e.attempt(ctx, res, product.Name, fields, cleaned, prompt.ModeHTML)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			log.Debug("extract: html attempt yielded nothing, retrying with text")
		}
	}

	if obj == nil {
		obj, err = e.attempt(ctx, res, product.Name, fields, e.textContent(raw), prompt.ModeText)
		if err != nil {
			return nil, err
		}
	}

	res.Outcome = OutcomeEmpty
	if obj != nil {
		res.Outcome = OutcomeExtracted
	}
	res.Values = e.fill(chars, obj)
	metrics.Products.WithLabelValues(string(res.Outcome)).Inc()

	log.Info("extract: product done",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("calls", res.Calls),
		zap.Int("tokens", res.Tokens),
	)
	return res, nil
}

// attempt makes one model call. It returns a nil object when the call
// failed, the reply did not parse, or every field was blank; the error is
// reserved for cancellation.
func (e *Extractor) attempt(ctx context.Context, res *Result, subject string, fields []prompt.Field, content string, mode prompt.Mode) (map[string]any, error) {
	res.Calls++
	reply, err := e.Model.Chat(ctx, prompt.Extraction(subject, fields, content, mode))
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract: cancelled")
		}
		metrics.ModelCalls.WithLabelValues(string(mode), "error").Inc()
		zap.L().Warn("extract: model call failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, nil
	}

	tokens := reply.Usage.Tokens()
	res.Tokens += tokens
	metrics.ModelTokens.Add(float64(tokens))

	obj, ok := e.parser().Parse(reply.Text)
	switch {
	case !ok:
		metrics.ModelCalls.WithLabelValues(string(mode), "unparsed").Inc()
		zap.L().Debug("extract: reply did not parse", zap.String("mode", string(mode)), zap.String("reply", reduce.Truncate(reply.Text, 200)))
		return nil, nil
	case jsonrepair.EmptySignal(obj):
		metrics.ModelCalls.WithLabelValues(string(mode), "empty").Inc()
		return nil, nil
	}
	metrics.ModelCalls.WithLabelValues(string(mode), "ok").Inc()
	return obj, nil
}

// textContent flattens the page and appends its tables and lists.
func (e *Extractor) textContent(raw string) string {
	text := e.Reducer.ExtractText(raw)
	if hint := reduce.ExtractStructured(raw).Render(); hint != "" {
		return text + "\n\nСТРУКТУРА:\n" + hint
	}
	return text
}

func (e *Extractor) fill(chars []model.Characteristic, obj map[string]any) []model.FieldValue {
	values := make([]model.FieldValue, len(chars))
	for i, c := range chars {
		v := model.FieldValue{CharacteristicID: c.ID, Name: c.Name, Value: e.sentinel()}
		if raw, ok := obj[c.Name]; ok && !jsonrepair.Blank(raw) {
			if s := strings.TrimSpace(jsonrepair.Stringify(raw)); s != "" {
				v.Value = s
				v.Found = true
			}
		}
		values[i] = v
	}
	return values
}
