package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/jsonrepair"
	"github.com/sells-group/cardscope/internal/prompt"
	"github.com/sells-group/cardscope/internal/reduce"
)

// Fallbacks used when the model gives no usable answer.
const (
	UnknownBank        = "Банк (уточните)"
	UnknownProduct     = "Продукт (уточните)"
	DefaultDescription = "Описание характеристики"
	DefaultValueHint   = "Формат значения"
)

// Guess is the model's reading of which bank and product a page describes.
type Guess struct {
	Bank    string `json:"bank"`
	Product string `json:"product"`
}

// Identify guesses the bank and product behind url. It fails only when the
// page cannot be fetched or the model cannot be reached.
func (e *Extractor) Identify(ctx context.Context, url string) (*Guess, int, error) {
	raw, err := e.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, 0, eris.Wrap(err, "extract: identify fetch")
	}

	limit := e.ClassifyTextLimit
	if limit <= 0 {
		limit = reduce.ClassifyTextLimit
	}
	text := e.Reducer.ExtractTextLimit(raw, limit)

	reply, err := e.Model.Chat(ctx, prompt.Identify(text))
	if err != nil {
		return nil, 0, eris.Wrap(err, "extract: identify model call")
	}
	tokens := reply.Usage.Tokens()

	guess := &Guess{Bank: UnknownBank, Product: UnknownProduct}
	if obj, ok := e.parser().Parse(reply.Text); ok {
		guess.Bank = field(obj, "bank", UnknownBank)
		guess.Product = field(obj, "product", UnknownProduct)
	} else {
		zap.L().Debug("extract: identify reply did not parse", zap.String("url", url))
	}
	return guess, tokens, nil
}

// Describe drafts a description and value hint for a new characteristic.
// Any failure yields the defaults.
func (e *Extractor) Describe(ctx context.Context, name string) (string, string, int) {
	reply, err := e.Model.Chat(ctx, prompt.Describe(name))
	if err != nil {
		zap.L().Warn("extract: describe model call failed", zap.String("name", name), zap.Error(err))
		return DefaultDescription, DefaultValueHint, 0
	}

	obj, _ := e.parser().Parse(reply.Text)
	return field(obj, "description", DefaultDescription),
		field(obj, "value_hint", DefaultValueHint),
		reply.Usage.Tokens()
}

func field(obj map[string]any, key, fallback string) string {
	v, ok := obj[key]
	if !ok || jsonrepair.Blank(v) {
		return fallback
	}
	if s := strings.TrimSpace(jsonrepair.Stringify(v)); s != "" {
		return s
	}
	return fallback
}
