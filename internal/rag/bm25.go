package rag

import (
	"context"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// bm25Doc is one indexed row: enough of a model.Chunk to score and to
// reconstruct a model.SearchResult.
type bm25Doc struct {
	chunkID string
	terms   map[string]int
	length  int
	chunk   model.Chunk
}

// bm25Params are the classic Okapi BM25 tuning constants.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Index is an in-memory lexical index over chunk_text and tags,
// grounding Level 2's sparse retriever (§4.H). It is rebuilt
// wholesale from the vector store's corpus rather than maintained
// incrementally, since the ingestion and query paths are separate
// processes in this core.
type BM25Index struct {
	mu        sync.RWMutex
	docs      map[string]*bm25Doc
	df        map[string]int
	totalLen  int
}

// NewBM25Index returns an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{docs: map[string]*bm25Doc{}, df: map[string]int{}}
}

// Index adds or replaces chunks in the corpus, recomputing document
// frequencies incrementally.
func (idx *BM25Index) Index(chunks []model.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		if old, ok := idx.docs[c.ChunkID]; ok {
			idx.removeLocked(old)
		}
		terms := tokenizeCJK(c.ChunkText + " " + c.TagsJoined())
		freq := map[string]int{}
		for _, t := range terms {
			freq[t]++
		}
		doc := &bm25Doc{chunkID: c.ChunkID, terms: freq, length: len(terms), chunk: c}
		idx.docs[c.ChunkID] = doc
		idx.totalLen += doc.length
		for t := range freq {
			idx.df[t]++
		}
	}
}

func (idx *BM25Index) removeLocked(doc *bm25Doc) {
	delete(idx.docs, doc.chunkID)
	idx.totalLen -= doc.length
	for t := range doc.terms {
		idx.df[t]--
		if idx.df[t] <= 0 {
			delete(idx.df, t)
		}
	}
}

// Search scores every indexed document against query's terms using
// BM25 and returns the top limit results, descending by score.
func (idx *BM25Index) Search(_ context.Context, query string, limit int) ([]model.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return nil, nil
	}

	queryTerms := tokenizeCJK(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	avgLen := float64(idx.totalLen) / float64(len(idx.docs))
	n := float64(len(idx.docs))

	scored := make([]model.SearchResult, 0, len(idx.docs))
	for _, doc := range idx.docs {
		var score float64
		for _, qt := range queryTerms {
			tf, ok := doc.terms[qt]
			if !ok {
				continue
			}
			df := float64(idx.df[qt])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen)
			score += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, model.SearchResult{
			DocumentID: doc.chunkID,
			Content:    doc.chunk.ChunkText,
			Score:      normalizeBM25(score),
			Source:     model.SourceSparse,
			Metadata:   map[string]interface{}{"episode_id": doc.chunk.EpisodeID, "chunk_index": doc.chunk.ChunkIndex, "category": doc.chunk.Category},
		})
	}

	sortResultsDesc(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// normalizeBM25 squashes an unbounded BM25 score into [0,1] so it is
// comparable with the dense/semantic retrievers' cosine scores during
// fusion, per §4.H's "score ∈ [0,1]" contract.
func normalizeBM25(score float64) float64 {
	return score / (score + 1)
}

func tokenizeCJK(s string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r), unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
