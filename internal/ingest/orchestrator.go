// Package ingest implements the Ingestion Orchestrator (§4.F): drives
// transcripts through tagging, chunking, embedding, and metadata
// resolution before writing them to the vector store, with resumable
// progress tracking and bounded concurrency across documents.
package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/chunking"
	"github.com/BDSE37/Podwise-sub002/internal/concurrency"
	"github.com/BDSE37/Podwise-sub002/internal/embedding"
	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/journal"
	"github.com/BDSE37/Podwise-sub002/internal/metadata"
	"github.com/BDSE37/Podwise-sub002/internal/model"
	"github.com/BDSE37/Podwise-sub002/internal/tagging"
	"github.com/BDSE37/Podwise-sub002/internal/transcripts"
	"github.com/BDSE37/Podwise-sub002/internal/vectorstore"
)

// Mode selects whether a Run processes a bounded cycle of collections
// or all of them in one shot (§4.F).
type Mode int

const (
	ModeCycle Mode = iota
	ModeOneShot
)

// Config controls the orchestrator's batching and retry behavior.
type Config struct {
	ConcurrentWorkers int
	CycleSize         int
	RetryAttempts     int
	ChunkLimit        int // optional cap on chunks kept per document (not summed across a collection), 0 = unlimited
}

// DefaultConfig returns the spec's ingestion defaults.
func DefaultConfig() Config {
	return Config{ConcurrentWorkers: 4, CycleSize: 5, RetryAttempts: 3}
}

// TranscriptSource is the narrow transcript-store access the
// orchestrator needs; *transcripts.Store satisfies it in production.
type TranscriptSource interface {
	ListDocuments(ctx context.Context, collection string) ([]string, error)
	GetDocument(ctx context.Context, objectKey string) (*transcripts.Document, error)
}

// ChunkWriter is the narrow vector-store access the orchestrator
// needs; *vectorstore.Store satisfies it in production.
type ChunkWriter interface {
	Upsert(ctx context.Context, chunks []model.Chunk) (vectorstore.WriteResult, error)
}

// Orchestrator wires the ingestion-side components (A-E) together.
type Orchestrator struct {
	transcripts TranscriptSource
	chunker     *chunking.Chunker
	tagger      *tagging.Registry
	embedder    *embedding.Adapter
	resolver    *metadata.Resolver
	writer      ChunkWriter
	progress    *journal.Store
	errJournal  *journal.ErrorJournal
	cfg         Config
	logger      *logrus.Logger
}

// New assembles an Orchestrator from its already-constructed
// dependencies.
func New(
	ts TranscriptSource,
	chunker *chunking.Chunker,
	tagger *tagging.Registry,
	embedder *embedding.Adapter,
	resolver *metadata.Resolver,
	writer ChunkWriter,
	progress *journal.Store,
	errJournal *journal.ErrorJournal,
	cfg Config,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ConcurrentWorkers <= 0 {
		cfg.ConcurrentWorkers = DefaultConfig().ConcurrentWorkers
	}
	if cfg.CycleSize <= 0 {
		cfg.CycleSize = DefaultConfig().CycleSize
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultConfig().RetryAttempts
	}
	return &Orchestrator{
		transcripts: ts, chunker: chunker, tagger: tagger, embedder: embedder,
		resolver: resolver, writer: writer, progress: progress, errJournal: errJournal,
		cfg: cfg, logger: logger,
	}
}

// DocumentOutcome reports the result of processing a single transcript
// document.
type DocumentOutcome struct {
	Collection    string
	File          string
	ChunksWritten int
	Skipped       bool
	Err           error
}

// RunSummary aggregates outcomes across a Run call.
type RunSummary struct {
	Outcomes      []DocumentOutcome
	CollectionsOK []string
}

// Run drives ingestion over collectionIDs in the given mode. A
// collection or document already marked complete in the progress
// journal is skipped, making restarts resumable (§4.F, I4).
func (o *Orchestrator) Run(ctx context.Context, collectionIDs []string, mode Mode) (RunSummary, error) {
	pending := make([]string, 0, len(collectionIDs))
	for _, c := range collectionIDs {
		if !o.progress.IsCollectionDone(c) {
			pending = append(pending, c)
		}
	}

	if mode == ModeCycle && len(pending) > o.cfg.CycleSize {
		pending = pending[:o.cfg.CycleSize]
	}

	summary := RunSummary{}
	for _, collectionID := range pending {
		outcomes, err := o.processCollection(ctx, collectionID)
		summary.Outcomes = append(summary.Outcomes, outcomes...)
		if err != nil {
			// A document-level failure never aborts the run; only a
			// progress-journal I/O failure is run-fatal (§7).
			if errs.Is(err, errs.ResourceError) && strings.Contains(err.Error(), "journal") {
				return summary, err
			}
			o.logger.WithError(err).WithField("collection", collectionID).Warn("collection ingestion reported errors")
		}

		anyWritten := false
		for _, oc := range outcomes {
			if oc.ChunksWritten > 0 {
				anyWritten = true
				break
			}
		}
		if anyWritten || len(outcomes) == 0 {
			if err := o.progress.RecordCollectionDone(collectionID); err != nil {
				return summary, err
			}
			summary.CollectionsOK = append(summary.CollectionsOK, collectionID)
		}
	}

	if mode == ModeCycle {
		if err := o.progress.AdvanceCycle(); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (o *Orchestrator) processCollection(ctx context.Context, collectionID string) ([]DocumentOutcome, error) {
	files, err := o.transcripts.ListDocuments(ctx, collectionID)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "ingest.list_documents", err, "list transcript documents")
	}

	pending := make([]string, 0, len(files))
	for _, f := range files {
		if !o.progress.IsFileDone(collectionID + "/" + f) {
			pending = append(pending, f)
		}
	}

	results, err := concurrency.Map(ctx, pending, o.cfg.ConcurrentWorkers, func(ctx context.Context, file string) (DocumentOutcome, error) {
		outcome := o.processDocument(ctx, collectionID, file)
		return outcome, nil
	})
	if err != nil {
		return nil, err
	}

	for _, outcome := range results {
		if outcome.ChunksWritten > 0 {
			if err := o.progress.RecordFile(outcome.File, outcome.ChunksWritten); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// processDocument runs the full per-document pipeline: fetch, chunk,
// tag, embed, resolve metadata, write. The document counts as
// processed only if at least one chunk writes successfully (§4.F).
func (o *Orchestrator) processDocument(ctx context.Context, collectionID, file string) DocumentOutcome {
	outcome := DocumentOutcome{Collection: collectionID, File: collectionID + "/" + file}

	fetched, err := retryOp(ctx, o.cfg.RetryAttempts, o.backoff, func(ctx context.Context) (*transcripts.Document, error) {
		return o.transcripts.GetDocument(ctx, collectionID+"/"+file)
	})
	if err != nil {
		o.recordError(ctx, collectionID, file, "fetch", err)
		outcome.Err = err
		return outcome
	}

	podcastID := podcastIDFromCollection(collectionID)
	episodeHint := fetched.EpisodeTitle

	bundle, err := o.resolver.Resolve(ctx, podcastID, episodeHint)
	if err != nil {
		o.recordError(ctx, collectionID, file, "metadata", err)
		outcome.Err = err
		return outcome
	}
	if !metadataComplete(bundle) {
		err := errs.New(errs.DataError, "ingest.metadata_validation", "podcast-level metadata unresolved")
		o.recordError(ctx, collectionID, file, "metadata", err)
		outcome.Err = err
		return outcome
	}

	texts, tagHints := chunkTexts(o.chunker, collectionID, fetched)
	if o.cfg.ChunkLimit > 0 && len(texts) > o.cfg.ChunkLimit {
		texts = texts[:o.cfg.ChunkLimit]
		tagHints = tagHints[:o.cfg.ChunkLimit]
	}
	if len(texts) == 0 {
		return outcome
	}

	results, err := retryOp(ctx, o.cfg.RetryAttempts, o.backoff, func(ctx context.Context) ([]embedding.Result, error) {
		return o.embedder.Embed(ctx, texts)
	})
	if err != nil {
		o.recordError(ctx, collectionID, file, "embed", err)
		outcome.Err = err
		return outcome
	}

	chunks := make([]model.Chunk, 0, len(texts))
	for i, text := range texts {
		tags := o.tagger.Resolve(text)
		if len(tags) == 0 && len(tagHints[i]) > 0 {
			tags = tagHints[i]
		}

		c := model.Chunk{
			ChunkID:       fmt.Sprintf("%s-%s-%d", collectionID, file, i),
			ChunkIndex:    i,
			ChunkText:     text,
			Embedding:     results[i].Vector,
			EpisodeID:     bundle.EpisodeID,
			PodcastID:     bundle.PodcastID,
			PodcastName:   bundle.PodcastName,
			EpisodeTitle:  bundle.EpisodeTitle,
			Author:        bundle.Author,
			Category:      bundle.Category,
			Duration:      bundle.Duration,
			PublishedDate: bundle.PublishedDate,
			AppleRating:   bundle.AppleRating,
			Language:      "zh",
			CreatedAt:     time.Now().Format(time.RFC3339),
			SourceModel:   "podwise-embedding",
			Tags:          tags,
			EmbeddingBad:  results[i].Failed,
		}
		c.Clamp()
		chunks = append(chunks, c)
	}

	writeResult, err := o.writer.Upsert(ctx, chunks)
	if err != nil {
		o.recordError(ctx, collectionID, file, "write", err)
		outcome.Err = err
		return outcome
	}
	for id, werr := range writeResult.Failed {
		o.recordError(ctx, collectionID, file, "write", fmt.Errorf("chunk %s: %w", id, werr))
	}

	outcome.ChunksWritten = len(writeResult.Written)
	return outcome
}

func podcastIDFromCollection(collectionID string) int64 {
	trimmed := strings.TrimPrefix(collectionID, "RSS_")
	id, _ := strconv.ParseInt(trimmed, 10, 64)
	return id
}

func metadataComplete(b metadata.Bundle) bool {
	// §4.F's completeness gate: the podcast itself must have resolved.
	// A per-episode fallback (EpisodeTitle == sentinel, EpisodeID == 0)
	// is an accepted outcome per §4.D/§9, not a validation failure.
	return b.PodcastName != model.UnknownSentinel
}

func chunkTexts(c *chunking.Chunker, collectionID string, doc *transcripts.Document) ([]string, [][]string) {
	if doc.RawTranscript != "" {
		texts := c.Chunk(collectionID, doc.RawTranscript)
		hints := make([][]string, len(texts))
		return texts, hints
	}

	texts := make([]string, 0, len(doc.Chunks))
	hints := make([][]string, 0, len(doc.Chunks))
	for _, rc := range doc.Chunks {
		cleaned := c.Clean(collectionID, rc.ChunkText)
		if strings.TrimSpace(cleaned) == "" {
			continue
		}
		texts = append(texts, cleaned)
		hints = append(hints, rc.EnhancedTags)
	}
	return texts, hints
}

func (o *Orchestrator) recordError(ctx context.Context, collectionID, file, stage string, err error) {
	rec := journal.ErrorRecord{
		CollectionID: collectionID,
		RSSID:        podcastIDString(collectionID),
		Title:        file,
		ErrorType:    string(errs.KindOf(err)),
		Stage:        stage,
		Message:      err.Error(),
		Timestamp:    time.Now(),
	}
	if jerr := o.errJournal.Append(ctx, rec); jerr != nil {
		o.logger.WithError(jerr).Warn("failed to append to error journal")
	}
}

func podcastIDString(collectionID string) string {
	return strings.TrimPrefix(collectionID, "RSS_")
}

// retryOp implements the exponential backoff described in §4.F/§5
// (1s/2s/4s) for transient resource/timeout errors, up to attempts
// tries. Each call gets its own result slot, so it is safe to invoke
// concurrently across the documents a worker pool is processing.
func retryOp[T any](ctx context.Context, attempts int, backoff func(ctx context.Context, attempt int), fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return zero, err
		}
		backoff(ctx, attempt)
	}
	return zero, lastErr
}

func (o *Orchestrator) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
