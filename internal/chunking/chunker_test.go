package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkThreeParagraphs(t *testing.T) {
	c := New(Config{})
	para := strings.Repeat("字", 300)
	text := para + "\n" + para + "\n" + para

	chunks := c.Chunk("RSS_1321", text)
	assert.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), DefaultMaxChunkSize)
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	c := New(Config{})
	text := "第一段落內容。\n\n第二段落內容，包含一些   多餘   空白。\n第三段。"

	first := c.Chunk("RSS_1", text)
	second := c.Chunk("RSS_1", text)
	assert.Equal(t, first, second)
}

func TestChunkDropsEmptyParagraphs(t *testing.T) {
	c := New(Config{})
	text := "paragraph one\n\n\n   \nparagraph two"
	chunks := c.Chunk("RSS_1", text)
	assert.Equal(t, []string{"paragraph one", "paragraph two"}, chunks)
}

func TestChunkHardSplitsOversizedParagraph(t *testing.T) {
	c := New(Config{MaxChunkSize: 10})
	text := "one two three four five six seven"
	chunks := c.Chunk("RSS_1", text)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 10)
	}
	assert.Greater(t, len(chunks), 1)
}

func TestChunkCollapsesWhitespacePreservingNewlines(t *testing.T) {
	c := New(Config{})
	got := c.Clean("RSS_1", "hello    world\n\nfoo   bar")
	assert.Equal(t, "hello world\n\nfoo bar", got)
}

func TestChunkStripsControlChars(t *testing.T) {
	c := New(Config{})
	got := c.Clean("RSS_1", "hello\x00world\x07")
	assert.Equal(t, "helloworld", got)
}

func TestSpecialCleanerHook(t *testing.T) {
	c := New(Config{})
	c.RegisterSpecialCleaner("RSS_999", func(text string) string {
		return strings.ReplaceAll(text, "[ARTIFACT]", "")
	})

	got := c.Clean("RSS_999", "real content[ARTIFACT] more")
	assert.NotContains(t, got, "[ARTIFACT]")

	untouched := c.Clean("RSS_1", "real content[ARTIFACT] more")
	assert.Contains(t, untouched, "[ARTIFACT]")
}

func TestEmptyTranscriptYieldsNoChunks(t *testing.T) {
	c := New(Config{})
	assert.Empty(t, c.Chunk("RSS_1", ""))
	assert.Empty(t, c.Chunk("RSS_1", "   \n\n  "))
}
