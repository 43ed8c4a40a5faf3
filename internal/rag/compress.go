package rag

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

const compressedMaxLen = 200

var bracketedAnnotation = regexp.MustCompile(`[\[(（【][^\])）】]*[\])）】]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// fillerTokens is a small closed list of conversational filler common
// in transcribed Mandarin podcast speech.
var fillerTokens = []string{"嗯", "啊", "那個", "就是說", "然後呢", "這個嘛"}

// CompressConfig holds the L5 acceptance threshold.
type CompressConfig struct {
	AcceptThreshold float64
}

// DefaultCompressConfig returns the spec's 0.5 default.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{AcceptThreshold: 0.5}
}

// Compressor implements Level 5: context compression of the reranked
// candidates (§4.K).
type Compressor struct {
	cfg    CompressConfig
	logger *logrus.Logger
}

// NewCompressor builds a Compressor.
func NewCompressor(cfg CompressConfig, logger *logrus.Logger) *Compressor {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultCompressConfig().AcceptThreshold
	}
	return &Compressor{cfg: cfg, logger: logger}
}

// CompressResult is L5's output.
type CompressResult struct {
	Results    []model.SearchResult
	Confidence float64
}

// Compress produces a compressed form of every candidate's content.
func (c *Compressor) Compress(results []model.SearchResult) CompressResult {
	if len(results) == 0 {
		return CompressResult{}
	}

	compressed := make([]model.SearchResult, len(results))
	var ratioSum float64

	for i, cand := range results {
		original := cand.Content
		text := bracketedAnnotation.ReplaceAllString(original, "")
		text = stripFillers(text)
		text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

		truncated := text
		if len([]rune(truncated)) > compressedMaxLen {
			r := []rune(truncated)
			truncated = string(r[:compressedMaxLen-3]) + "..."
		}

		ratio := 1.0
		if len(original) > 0 {
			ratio = float64(len(truncated)) / float64(len(original))
		}
		ratioSum += ratio

		out := cand
		out.Content = truncated
		out.Source = model.SourceCompressed
		if out.Metadata == nil {
			out.Metadata = map[string]interface{}{}
		}
		out.Metadata["compression_ratio"] = ratio
		compressed[i] = out
	}

	meanRatio := ratioSum / float64(len(results))
	return CompressResult{Results: compressed, Confidence: compressConfidence(meanRatio)}
}

// Accept reports whether result's confidence clears the L5 threshold.
func (c *Compressor) Accept(result CompressResult) bool {
	return result.Confidence >= c.cfg.AcceptThreshold
}

func stripFillers(text string) string {
	for _, f := range fillerTokens {
		text = strings.ReplaceAll(text, f, "")
	}
	return text
}

func compressConfidence(meanRatio float64) float64 {
	switch {
	case meanRatio >= 0.3 && meanRatio <= 0.7:
		return 0.9
	case meanRatio < 0.3:
		return 0.9 * meanRatio / 0.3
	default:
		return 0.9 * (1 - meanRatio) / 0.3
	}
}
