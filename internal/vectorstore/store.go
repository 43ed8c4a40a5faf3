// Package vectorstore implements the Vector Store Writer: upserts
// chunk rows into a Qdrant collection and serves the ANN searches used
// by the hierarchical retrieval engine's dense/semantic retrievers.
package vectorstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// pointNamespace derives a stable UUID point ID from a chunk_id, since
// Qdrant point IDs must be a uint64 or UUID but chunk_id is an
// arbitrary string primary key.
var pointNamespace = uuid.MustParse("8f14e45f-ceea-467a-9575-000000000001")

// Config configures the collection this Store manages.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorSize     uint64
	BatchSize      int
	FlushTimeout   time.Duration
}

// DefaultConfig returns the default connection, collection, vector-size
// and batching settings. It carries no index parameters: ensureCollection
// always creates a cosine collection with an HNSW index.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6334,
		CollectionName: "podwise_chunks",
		VectorSize:     uint64(model.EmbeddingDim),
		BatchSize:      50,
		FlushTimeout:   30 * time.Second,
	}
}

// Store wraps a Qdrant client scoped to a single collection.
type Store struct {
	client *qdrantgo.Client
	cfg    Config
	logger *logrus.Logger
}

// New connects to Qdrant and ensures the chunk collection exists with
// the 1024-dimension cosine vector space described in §3/§6.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = uint64(model.EmbeddingDim)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	client, err := qdrantgo.NewClient(&qdrantgo.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "vectorstore.connect", err, "connect to qdrant")
	}

	s := &Store{client: client, cfg: cfg, logger: logger}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.CollectionName)
	if err != nil {
		return errs.Wrap(errs.ResourceError, "vectorstore.collection_exists", err, "check collection existence")
	}
	if exists {
		return nil
	}

	nlist := uint64(1024)
	err = s.client.CreateCollection(ctx, &qdrantgo.CreateCollection{
		CollectionName: s.cfg.CollectionName,
		VectorsConfig: qdrantgo.NewVectorsConfig(&qdrantgo.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrantgo.Distance_Cosine,
		}),
		HnswConfig: &qdrantgo.HnswConfigDiff{
			// Qdrant uses HNSW rather than IVF-flat; nlist's analogue here
			// is the graph's candidate list width during build.
			EfConstruct: &nlist,
		},
	})
	if err != nil {
		return errs.Wrap(errs.ResourceError, "vectorstore.create_collection", err, "create collection")
	}
	return nil
}

// WriteResult reports per-chunk outcomes for a batch upsert: partial
// failure does not roll back the batch (§4.E).
type WriteResult struct {
	Written []string
	Failed  map[string]error
}

func pointID(chunkID string) *qdrantgo.PointId {
	return qdrantgo.NewID(uuid.NewSHA1(pointNamespace, []byte(chunkID)).String())
}

// Upsert writes chunk rows in bounded batches, flushing after each
// batch and recording any offending chunk_id without aborting the
// remaining rows.
func (s *Store) Upsert(ctx context.Context, chunks []model.Chunk) (WriteResult, error) {
	result := WriteResult{Failed: map[string]error{}}

	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		points := make([]*qdrantgo.PointStruct, 0, len(batch))
		for i := range batch {
			batch[i].Clamp()
			points = append(points, toPoint(&batch[i]))
		}

		batchCtx, cancel := context.WithTimeout(ctx, s.cfg.FlushTimeout)
		_, err := s.client.Upsert(batchCtx, &qdrantgo.UpsertPoints{
			CollectionName: s.cfg.CollectionName,
			Points:         points,
			Wait:           boolPtr(true),
		})
		cancel()

		if err != nil {
			s.logger.WithError(err).WithField("batch_start", start).Warn("vector store batch upsert failed")
			for i := range batch {
				result.Failed[batch[i].ChunkID] = err
			}
			continue
		}
		for i := range batch {
			result.Written = append(result.Written, batch[i].ChunkID)
		}
	}

	return result, nil
}

func toPoint(c *model.Chunk) *qdrantgo.PointStruct {
	vector := make([]float32, len(c.Embedding))
	copy(vector, c.Embedding)

	payload := map[string]*qdrantgo.Value{
		"chunk_id":       qdrantgo.NewValueString(c.ChunkID),
		"chunk_index":    qdrantgo.NewValueInt(int64(c.ChunkIndex)),
		"chunk_text":     qdrantgo.NewValueString(c.ChunkText),
		"episode_id":     qdrantgo.NewValueInt(c.EpisodeID),
		"podcast_id":     qdrantgo.NewValueInt(c.PodcastID),
		"podcast_name":   qdrantgo.NewValueString(c.PodcastName),
		"episode_title":  qdrantgo.NewValueString(c.EpisodeTitle),
		"author":         qdrantgo.NewValueString(c.Author),
		"category":       qdrantgo.NewValueString(c.Category),
		"duration":       qdrantgo.NewValueString(c.Duration),
		"published_date": qdrantgo.NewValueString(c.PublishedDate),
		"apple_rating":   qdrantgo.NewValueInt(int64(c.AppleRating)),
		"language":       qdrantgo.NewValueString(c.Language),
		"created_at":     qdrantgo.NewValueString(c.CreatedAt),
		"source_model":   qdrantgo.NewValueString(c.SourceModel),
		"tags":           qdrantgo.NewValueString(c.TagsJoined()),
		"embedding_bad":  qdrantgo.NewValueBool(c.EmbeddingBad),
	}

	return &qdrantgo.PointStruct{
		Id:      pointID(c.ChunkID),
		Vectors: qdrantgo.NewVectors(vector...),
		Payload: payload,
	}
}

func boolPtr(b bool) *bool { return &b }

// SearchFilter holds the scalar filters §4.H applies at the
// vector-store level: category filtering for business/education
// domains, plus optional podcast/language/tag-substring narrowing.
type SearchFilter struct {
	Category      string
	PodcastID     *int64
	EpisodeID     *int64
	ChunkIndex    *int
	Language      string
	TagsSubstring string
}

func (f SearchFilter) build() *qdrantgo.Filter {
	var must []*qdrantgo.Condition
	if f.Category != "" {
		must = append(must, qdrantgo.NewMatch("category", f.Category))
	}
	if f.PodcastID != nil {
		must = append(must, qdrantgo.NewMatchInt("podcast_id", *f.PodcastID))
	}
	if f.EpisodeID != nil {
		must = append(must, qdrantgo.NewMatchInt("episode_id", *f.EpisodeID))
	}
	if f.ChunkIndex != nil {
		must = append(must, qdrantgo.NewMatchInt("chunk_index", int64(*f.ChunkIndex)))
	}
	if f.Language != "" {
		must = append(must, qdrantgo.NewMatch("language", f.Language))
	}
	if f.TagsSubstring != "" {
		must = append(must, qdrantgo.NewMatchText("tags", f.TagsSubstring))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrantgo.Filter{Must: must}
}

// FindByEpisodeIndex looks up the single chunk at chunkIndex within
// episodeID, used by the retrieval augmentation level (§4.I) to fetch a
// candidate's neighboring chunks. It issues a filter-only query with a
// zero vector since only one point can match the exact index.
func (s *Store) FindByEpisodeIndex(ctx context.Context, episodeID int64, chunkIndex int) (*model.SearchResult, bool, error) {
	filter := SearchFilter{EpisodeID: &episodeID, ChunkIndex: &chunkIndex}
	zero := make([]float32, s.cfg.VectorSize)
	results, err := s.Search(ctx, zero, 1, filter)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, nil
	}
	return &results[0], true, nil
}

// Search performs an ANN cosine search with the given scalar filters,
// returning scored chunk rows reconstructed from payload.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, filter SearchFilter) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	query := &qdrantgo.QueryPoints{
		CollectionName: s.cfg.CollectionName,
		Query:          qdrantgo.NewQuery(vector...),
		Limit:          uint64Ptr(uint64(limit)),
		WithPayload:    qdrantgo.NewWithPayload(true),
		Filter:         filter.build(),
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "vectorstore.search", err, "query collection")
	}

	results := make([]model.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, model.SearchResult{
			DocumentID: stringPayload(p.GetPayload(), "chunk_id"),
			Content:    stringPayload(p.GetPayload(), "chunk_text"),
			Score:      float64(p.GetScore()),
			Source:     model.SourceDense,
			Metadata:   payloadToMap(p.GetPayload()),
		})
	}
	return results, nil
}

func stringPayload(payload map[string]*qdrantgo.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func payloadToMap(payload map[string]*qdrantgo.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch kind := v.Kind.(type) {
		case *qdrantgo.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrantgo.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrantgo.Value_BoolValue:
			out[k] = kind.BoolValue
		case *qdrantgo.Value_DoubleValue:
			out[k] = kind.DoubleValue
		}
	}
	return out
}

func uint64Ptr(v uint64) *uint64 { return &v }

const scrollPageSize = 200

// ScrollAll pages through the entire collection and reconstructs every
// indexed chunk, grounding the query path's BM25 corpus load (§4.H's
// sparse retriever needs the full chunk_text/tags corpus, which this
// core keeps in-memory rather than backed by a dedicated search
// engine).
func (s *Store) ScrollAll(ctx context.Context) ([]model.Chunk, error) {
	var chunks []model.Chunk
	var offset *qdrantgo.PointId

	for {
		points, err := s.client.Scroll(ctx, &qdrantgo.ScrollPoints{
			CollectionName: s.cfg.CollectionName,
			Limit:          uint64Ptr(scrollPageSize),
			Offset:         offset,
			WithPayload:    qdrantgo.NewWithPayload(true),
		})
		if err != nil {
			return nil, errs.Wrap(errs.ResourceError, "vectorstore.scroll", err, "scroll collection")
		}

		for _, p := range points {
			chunks = append(chunks, chunkFromPayload(p.GetPayload()))
		}
		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}
	return chunks, nil
}

func chunkFromPayload(payload map[string]*qdrantgo.Value) model.Chunk {
	meta := payloadToMap(payload)
	var tags []string
	if joined := stringPayload(payload, "tags"); joined != "" {
		tags = strings.Split(joined, ",")
	}
	return model.Chunk{
		ChunkID:       stringPayload(payload, "chunk_id"),
		ChunkIndex:    intMeta(meta, "chunk_index"),
		ChunkText:     stringPayload(payload, "chunk_text"),
		EpisodeID:     int64(intMeta(meta, "episode_id")),
		PodcastID:     int64(intMeta(meta, "podcast_id")),
		PodcastName:   stringPayload(payload, "podcast_name"),
		EpisodeTitle:  stringPayload(payload, "episode_title"),
		Author:        stringPayload(payload, "author"),
		Category:      stringPayload(payload, "category"),
		Duration:      stringPayload(payload, "duration"),
		PublishedDate: stringPayload(payload, "published_date"),
		AppleRating:   intMeta(meta, "apple_rating"),
		Language:      stringPayload(payload, "language"),
		CreatedAt:     stringPayload(payload, "created_at"),
		SourceModel:   stringPayload(payload, "source_model"),
		Tags:          tags,
	}
}

func intMeta(meta map[string]interface{}, key string) int {
	if v, ok := meta[key].(int64); ok {
		return int(v)
	}
	return 0
}

// Delete removes points by chunk_id, used by ingestion cleanup and tests.
func (s *Store) Delete(ctx context.Context, chunkIDs []string) error {
	ids := make([]*qdrantgo.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}
	_, err := s.client.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: s.cfg.CollectionName,
		Points:         qdrantgo.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return errs.Wrap(errs.ResourceError, "vectorstore.delete", err, "delete points")
	}
	return nil
}
