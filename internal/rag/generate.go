package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/model"
)

const (
	generateTopN        = 3
	adaptiveDetailedMin  = 5
	summaryWordCap       = 300
)

// forbiddenTokens is a small closed list of hedging phrases L6's
// quality control rejects outright.
var forbiddenTokens = []string{"我不知道", "無法回答", "抱歉，我沒有足夠資訊"}

// Generator produces a single completion for a prompt; *HTTPGenerator
// satisfies it in production.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerateConfig configures Level 6.
type GenerateConfig struct {
	// AcceptThreshold is nominally 0.9 per §4.L's fixed success
	// confidence, kept configurable for the controller's uniform
	// accept-check.
	AcceptThreshold float64
}

// DefaultGenerateConfig returns the spec's fixed 0.9 success
// confidence as the (trivially satisfied) acceptance threshold.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{AcceptThreshold: 0.9}
}

// HybridGenerator implements Level 6: multi-model generation over the
// compressed top candidates, with adaptive verbosity and a
// quality-control retry (§4.L).
type HybridGenerator struct {
	general *namedGenerator
	domain  *namedGenerator
	cfg     GenerateConfig
	logger  *logrus.Logger
}

type namedGenerator struct {
	name string
	gen  Generator
}

// NewHybridGenerator builds a HybridGenerator from a general-purpose
// and a domain-tuned backend.
func NewHybridGenerator(generalName string, general Generator, domainName string, domain Generator, cfg GenerateConfig, logger *logrus.Logger) *HybridGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultGenerateConfig().AcceptThreshold
	}
	return &HybridGenerator{
		general: &namedGenerator{name: generalName, gen: general},
		domain:  &namedGenerator{name: domainName, gen: domain},
		cfg:     cfg,
		logger:  logger,
	}
}

// GenerateResult is L6's output.
type GenerateResult struct {
	Response model.RAGResponse
	OK       bool
}

// Generate composes context from the top candidates, fans out to both
// generator backends, fuses and re-summarizes their outputs, and
// enforces quality control with a single stricter-prompt retry.
func (g *HybridGenerator) Generate(ctx context.Context, query string, candidates []model.SearchResult, candidateCountAtL5 int) (GenerateResult, error) {
	if len(candidates) == 0 {
		return GenerateResult{}, nil
	}

	top := candidates
	if len(top) > generateTopN {
		top = top[:generateTopN]
	}

	contextBlock, sources := compose(top)

	answer, err := g.generateOnce(ctx, query, contextBlock, false)
	if err != nil {
		return GenerateResult{}, err
	}

	if !passesQualityControl(answer) {
		g.logger.Warn("L6 answer failed quality control, retrying with a stricter prompt")
		answer, err = g.generateOnce(ctx, query, contextBlock, true)
		if err != nil {
			return GenerateResult{}, err
		}
		if !passesQualityControl(answer) {
			return GenerateResult{OK: false}, nil
		}
	}

	if candidateCountAtL5 <= adaptiveDetailedMin {
		answer = concise(answer)
	}

	return GenerateResult{
		OK: true,
		Response: model.RAGResponse{
			Content:    answer,
			Confidence: g.cfg.AcceptThreshold,
			Sources:    sources,
			LevelUsed:  model.LevelL6,
			Metadata:   map[string]interface{}{"variant": variantName(candidateCountAtL5)},
		},
	}, nil
}

func variantName(candidateCountAtL5 int) string {
	if candidateCountAtL5 > adaptiveDetailedMin {
		return "detailed"
	}
	return "concise"
}

// compose builds the joined context block with [1][2][3] source tags
// and returns the document_ids in the same order.
func compose(top []model.SearchResult) (string, []string) {
	var b strings.Builder
	sources := make([]string, len(top))
	for i, c := range top {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
		sources[i] = c.DocumentID
	}
	return b.String(), sources
}

func (g *HybridGenerator) generateOnce(ctx context.Context, query, contextBlock string, strict bool) (string, error) {
	prompt := buildPrompt(query, contextBlock, strict)

	var generalOut, domainOut string
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		out, err := g.general.gen.Generate(egctx, prompt)
		generalOut = out
		return err
	})
	eg.Go(func() error {
		out, err := g.domain.gen.Generate(egctx, prompt)
		domainOut = out
		return err
	})
	if err := eg.Wait(); err != nil {
		return "", errs.Wrap(errs.ResourceError, "rag.generate", err, "generator backend call failed")
	}

	fused := fmt.Sprintf("## %s\n%s\n\n## %s\n%s", g.general.name, generalOut, g.domain.name, domainOut)
	return truncateWords(fused, summaryWordCap), nil
}

func buildPrompt(query, contextBlock string, strict bool) string {
	if strict {
		return fmt.Sprintf("Answer strictly using only the sources below, citing at least one with its [n] tag, and never say you don't know.\n\nSources:\n%s\nQuestion: %s", contextBlock, query)
	}
	return fmt.Sprintf("Answer the question using the sources below, citing them with their [n] tags.\n\nSources:\n%s\nQuestion: %s", contextBlock, query)
}

func passesQualityControl(answer string) bool {
	if !strings.Contains(answer, "[1]") && !strings.Contains(answer, "[2]") && !strings.Contains(answer, "[3]") {
		return false
	}
	for _, token := range forbiddenTokens {
		if strings.Contains(answer, token) {
			return false
		}
	}
	return true
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

// concise collapses a detailed answer into a headline plus two
// bullets, per §4.L's adaptive mode.
func concise(answer string) string {
	sentences := strings.FieldsFunc(answer, func(r rune) bool {
		return r == '。' || r == '.' || r == '\n'
	})
	var nonEmpty []string
	for _, s := range sentences {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}
	if len(nonEmpty) == 0 {
		return answer
	}

	var b strings.Builder
	b.WriteString(nonEmpty[0])
	for i := 1; i < len(nonEmpty) && i <= 2; i++ {
		fmt.Fprintf(&b, "\n- %s", nonEmpty[i])
	}
	return b.String()
}
