// Package transcripts implements the source transcript store: a MinIO
// object store organized as collections named RSS_<podcast_id>, each
// document carrying {file, chunks[{chunk_text, chunk_index,
// enhanced_tags[]}]}.
package transcripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
)

// RawChunk is a pre-cleaning chunk as stored by the upstream transcript
// producer.
type RawChunk struct {
	ChunkText    string   `json:"chunk_text"`
	ChunkIndex   int      `json:"chunk_index"`
	EnhancedTags []string `json:"enhanced_tags,omitempty"`
}

// Document is a single source transcript document within a collection.
type Document struct {
	File   string     `json:"file"`
	Chunks []RawChunk `json:"chunks"`

	// Optional raw transcript fields carried through for episodes whose
	// upstream producer did not pre-chunk the content.
	RawTranscript string `json:"raw_transcript,omitempty"`
	EpisodeTitle  string `json:"episode_title,omitempty"`
	EpisodeNumber string `json:"episode_number,omitempty"`
}

// Config configures the MinIO connection backing the transcript store.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// Store reads transcript documents out of per-podcast collections.
type Store struct {
	client *minio.Client
	bucket string
	logger *logrus.Logger
}

// New creates a Store and ensures the backing bucket exists.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "transcripts.new", err, "create minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "transcripts.new", err, "check bucket existence")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errs.Wrap(errs.ResourceError, "transcripts.new", err, "create bucket")
		}
	}

	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// CollectionName builds the RSS_<podcast_id> collection name the source
// transcript store uses.
func CollectionName(podcastID int64) string {
	return fmt.Sprintf("RSS_%d", podcastID)
}

// ListDocuments lists every document file under a collection's prefix,
// with the "<collection>/" prefix stripped — callers rejoin it
// themselves when addressing a specific document (§6: each collection
// is a bucket prefix, each document a bare file within it).
func (s *Store) ListDocuments(ctx context.Context, collection string) ([]string, error) {
	prefix := collection + "/"
	var files []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errs.Wrap(errs.ResourceError, "transcripts.list", obj.Err, "list objects")
		}
		files = append(files, strings.TrimPrefix(obj.Key, prefix))
	}
	return files, nil
}

// GetDocument fetches and decodes a single transcript document.
func (s *Store) GetDocument(ctx context.Context, objectKey string) (*Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "transcripts.get", err, "get object")
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "transcripts.get", err, "read object")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.DataError, "transcripts.get", err, "malformed transcript document")
	}
	return &doc, nil
}

// PutDocument writes a transcript document back to the store (used by
// test fixtures and re-ingestion tooling).
func (s *Store) PutDocument(ctx context.Context, collection, file string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.DataError, "transcripts.put", err, "marshal document")
	}
	objectKey := fmt.Sprintf("%s/%s", collection, file)
	_, err = s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return errs.Wrap(errs.ResourceError, "transcripts.put", err, "put object")
	}
	return nil
}
