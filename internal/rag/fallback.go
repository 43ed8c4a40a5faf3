package rag

import (
	"context"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// FallbackGenerator is the opaque terminal capability §6 describes:
// given the original query and whatever candidates survived, it
// returns a best-effort answer string. *SimpleFallback satisfies it by
// folding the candidates into the prompt it sends to a Generator such
// as *HTTPGenerator.
type FallbackGenerator interface {
	Generate(ctx context.Context, query string, candidates []model.SearchResult) (string, error)
}

// SimpleFallback wraps a Generator, composing whatever candidates are
// available (possibly none) into the prompt it sends. Used when the
// cascade exhausts every level without reaching an accept threshold.
type SimpleFallback struct {
	gen Generator
}

// NewSimpleFallback builds a SimpleFallback around a Generator.
func NewSimpleFallback(gen Generator) *SimpleFallback {
	return &SimpleFallback{gen: gen}
}

// Generate produces the terminal fallback answer.
func (f *SimpleFallback) Generate(ctx context.Context, query string, candidates []model.SearchResult) (string, error) {
	if len(candidates) == 0 {
		return f.gen.Generate(ctx, "Answer this question as helpfully as possible: "+query)
	}
	contextBlock, _ := compose(candidates)
	return f.gen.Generate(ctx, buildPrompt(query, contextBlock, false))
}
