// Package chunking implements the Text Cleaner & Chunker: normalizes raw
// transcripts and splits them into bounded, deterministic chunks.
package chunking

import (
	"strings"
	"unicode"
)

// DefaultMaxChunkSize is the spec's default bound on chunk length, in
// runes.
const DefaultMaxChunkSize = 1024

// SpecialCleaner is a per-collection hook applied before the general
// cleaning pipeline, registered statically at startup.
type SpecialCleaner func(text string) string

// Config configures a Chunker.
type Config struct {
	MaxChunkSize int
	// SpecialCleaners maps a collection ID to an extra cleaning step
	// applied before the general pipeline.
	SpecialCleaners map[string]SpecialCleaner
}

// Chunker splits cleaned transcript text into bounded, paragraph-aware
// chunks.
type Chunker struct {
	maxChunkSize int
	cleaners     map[string]SpecialCleaner
}

// New creates a Chunker. A zero or negative MaxChunkSize falls back to
// DefaultMaxChunkSize.
func New(cfg Config) *Chunker {
	size := cfg.MaxChunkSize
	if size <= 0 {
		size = DefaultMaxChunkSize
	}
	cleaners := cfg.SpecialCleaners
	if cleaners == nil {
		cleaners = map[string]SpecialCleaner{}
	}
	return &Chunker{maxChunkSize: size, cleaners: cleaners}
}

// RegisterSpecialCleaner adds or replaces a per-collection cleaning
// hook.
func (c *Chunker) RegisterSpecialCleaner(collectionID string, cleaner SpecialCleaner) {
	c.cleaners[collectionID] = cleaner
}

// Clean applies, in order: the collection's special cleaner (if any),
// control-character stripping, and whitespace-run collapsing that
// preserves newlines.
func (c *Chunker) Clean(collectionID, text string) string {
	if cleaner, ok := c.cleaners[collectionID]; ok {
		text = cleaner(text)
	}
	text = stripControlChars(text)
	text = collapseWhitespacePreservingNewlines(text)
	return text
}

// Chunk cleans and splits text into an ordered, deterministic list of
// chunks. Empty and whitespace-only chunks are discarded. Each
// paragraph becomes one chunk, preserved intact, unless the paragraph
// itself exceeds maxChunkSize — in which case it is hard-split on
// whitespace into consecutive pieces each ≤ maxChunkSize.
func (c *Chunker) Chunk(collectionID, text string) []string {
	cleaned := c.Clean(collectionID, text)
	if cleaned == "" {
		return nil
	}

	paragraphs := splitParagraphs(cleaned)

	var chunks []string
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if runeLen(para) > c.maxChunkSize {
			chunks = append(chunks, hardSplit(para, c.maxChunkSize)...)
			continue
		}

		chunks = append(chunks, para)
	}

	return chunks
}

func splitParagraphs(text string) []string {
	return strings.Split(text, "\n")
}

func stripControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseWhitespacePreservingNewlines collapses runs of horizontal
// whitespace into a single space, but keeps newline boundaries intact
// so paragraph splitting still works downstream.
func collapseWhitespacePreservingNewlines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		lines[i] = strings.Join(fields, " ")
	}
	return strings.Join(lines, "\n")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// hardSplit splits an oversize paragraph on whitespace boundaries into
// pieces of at most max runes.
func hardSplit(para string, max int) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return nil
	}

	var out []string
	var current strings.Builder
	currentLen := 0

	for _, w := range words {
		wl := runeLen(w)
		if wl > max {
			// A single "word" longer than the bound: split it without
			// regard to word boundaries as a last resort.
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
				currentLen = 0
			}
			runes := []rune(w)
			for len(runes) > max {
				out = append(out, string(runes[:max]))
				runes = runes[max:]
			}
			if len(runes) > 0 {
				current.WriteString(string(runes))
				currentLen = len(runes)
			}
			continue
		}

		sep := 0
		if current.Len() > 0 {
			sep = 1
		}
		if currentLen+sep+wl > max {
			out = append(out, current.String())
			current.Reset()
			current.WriteString(w)
			currentLen = wl
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(w)
		currentLen += sep + wl
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
