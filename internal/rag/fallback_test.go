package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

func TestSimpleFallbackNoCandidates(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"這是一個通用回答"}}
	fb := NewSimpleFallback(gen)

	out, err := fb.Generate(context.Background(), "隨便問個問題", nil)
	require.NoError(t, err)
	assert.Equal(t, "這是一個通用回答", out)
}

func TestSimpleFallbackWithCandidatesComposesContext(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"根據資料回答"}}
	fb := NewSimpleFallback(gen)

	candidates := []model.SearchResult{{DocumentID: "d1", Content: "一些內容"}}
	out, err := fb.Generate(context.Background(), "問題", candidates)
	require.NoError(t, err)
	assert.Equal(t, "根據資料回答", out)
}

func TestSimpleFallbackPropagatesGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: assertErr{"backend down"}}
	fb := NewSimpleFallback(gen)

	_, err := fb.Generate(context.Background(), "問題", nil)
	assert.Error(t, err)
}
