// Package journal implements the ingestion orchestrator's persisted
// state: an atomically-written progress journal and an append-only
// error journal written side-by-side as JSON and CSV.
package journal

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
)

// Progress is the ingestion run's resumable state (§3, §5, §6):
// completed collections/files, the cycle cursor, and a running chunk
// total. It is written with write-temp-then-rename semantics so a
// crash mid-write never corrupts the file a restart reads.
type Progress struct {
	LastUpdated         time.Time `json:"last_updated"`
	CompletedCollections []string `json:"completed_collections"`
	ProcessedFiles      []string  `json:"processed_files"`
	CycleCount          int       `json:"cycle_count"`
	CurrentCycle        int       `json:"current_cycle"`
	TotalChunks         int       `json:"total_chunks"`
}

// Store manages a Progress journal at a fixed path, guarding in-process
// mutation with a mutex since only the orchestrator coordinator writes
// it (workers report back over a channel, per §5).
type Store struct {
	mu   sync.Mutex
	path string
	cur  Progress
}

// Load reads an existing progress journal, or returns a fresh empty
// Progress if none exists yet — a missing file is a fresh run, not an
// error.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "journal.load", err, "read progress journal")
	}
	if err := json.Unmarshal(data, &s.cur); err != nil {
		return nil, errs.Wrap(errs.InvariantError, "journal.load", err, "parse progress journal")
	}
	return s, nil
}

// Snapshot returns a copy of the current in-memory progress.
func (s *Store) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.cur
	cp.CompletedCollections = append([]string{}, s.cur.CompletedCollections...)
	cp.ProcessedFiles = append([]string{}, s.cur.ProcessedFiles...)
	return cp
}

// IsCollectionDone reports whether a collection is already marked
// complete — used to skip completed collections on restart.
func (s *Store) IsCollectionDone(collectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cur.CompletedCollections {
		if c == collectionID {
			return true
		}
	}
	return false
}

// IsFileDone reports whether a specific document has already been
// processed successfully.
func (s *Store) IsFileDone(filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.cur.ProcessedFiles {
		if f == filePath {
			return true
		}
	}
	return false
}

// RecordFile marks filePath processed and adds chunksWritten to the
// running total, then atomically persists the journal.
func (s *Store) RecordFile(filePath string, chunksWritten int) error {
	s.mu.Lock()
	s.cur.ProcessedFiles = append(s.cur.ProcessedFiles, filePath)
	s.cur.TotalChunks += chunksWritten
	s.cur.LastUpdated = time.Now()
	snapshot := s.cur
	s.mu.Unlock()
	return s.persist(snapshot)
}

// RecordCollectionDone marks a collection complete and advances the
// cycle cursor, then atomically persists.
func (s *Store) RecordCollectionDone(collectionID string) error {
	s.mu.Lock()
	s.cur.CompletedCollections = append(s.cur.CompletedCollections, collectionID)
	s.cur.CurrentCycle++
	s.cur.LastUpdated = time.Now()
	snapshot := s.cur
	s.mu.Unlock()
	return s.persist(snapshot)
}

// AdvanceCycle increments the cycle counter at the end of a bounded
// ingestion cycle run.
func (s *Store) AdvanceCycle() error {
	s.mu.Lock()
	s.cur.CycleCount++
	s.cur.LastUpdated = time.Now()
	snapshot := s.cur
	s.mu.Unlock()
	return s.persist(snapshot)
}

// persist writes the journal via write-temp-then-rename so a crash
// mid-write can never leave a half-written file for the next restart
// to read (§4.F "progress updated atomically").
func (s *Store) persist(p Progress) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvariantError, "journal.persist", err, "marshal progress")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.Wrap(errs.ResourceError, "journal.persist", err, "create journal directory")
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return errs.Wrap(errs.ResourceError, "journal.persist", err, "atomic write progress journal")
	}
	return nil
}

// ErrorRecord is a single structured ingestion failure (§4.F): a
// document-level or chunk-level error captured for operator review.
type ErrorRecord struct {
	CollectionID string    `json:"collection_id"`
	RSSID        string    `json:"rss_id"`
	Title        string    `json:"title"`
	ErrorType    string    `json:"error_type"`
	Stage        string    `json:"stage"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorJournal appends structured failures to JSON and CSV files kept
// side-by-side, so an operator can tail either format.
type ErrorJournal struct {
	mu       sync.Mutex
	jsonPath string
	csvPath  string
}

// NewErrorJournal prepares an append-only error journal pair. The CSV
// file gets a header row written on first use only.
func NewErrorJournal(jsonPath, csvPath string) *ErrorJournal {
	return &ErrorJournal{jsonPath: jsonPath, csvPath: csvPath}
}

// Append records a single error, writing both the JSON array file and
// the CSV file. Append never returns an error that should abort
// ingestion — a journal write failure here is itself logged by the
// caller but treated as best-effort (the run-fatal path is reserved
// for the progress journal, per §7).
func (j *ErrorJournal) Append(ctx context.Context, rec ErrorRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendJSON(rec); err != nil {
		return err
	}
	return j.appendCSV(rec)
}

func (j *ErrorJournal) appendJSON(rec ErrorRecord) error {
	var records []ErrorRecord
	if data, err := os.ReadFile(j.jsonPath); err == nil {
		_ = json.Unmarshal(data, &records)
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvariantError, "journal.error_append", err, "marshal error journal")
	}
	if err := os.MkdirAll(filepath.Dir(j.jsonPath), 0o755); err != nil {
		return errs.Wrap(errs.ResourceError, "journal.error_append", err, "create error journal directory")
	}
	return renameio.WriteFile(j.jsonPath, data, 0o644)
}

func (j *ErrorJournal) appendCSV(rec ErrorRecord) error {
	if err := os.MkdirAll(filepath.Dir(j.csvPath), 0o755); err != nil {
		return errs.Wrap(errs.ResourceError, "journal.error_append", err, "create error journal directory")
	}

	needsHeader := false
	if _, err := os.Stat(j.csvPath); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(j.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.ResourceError, "journal.error_append", err, "open error csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		_ = w.Write([]string{"collection_id", "rss_id", "title", "error_type", "stage", "message", "timestamp"})
	}
	_ = w.Write([]string{
		rec.CollectionID, rec.RSSID, rec.Title, rec.ErrorType, rec.Stage, rec.Message,
		rec.Timestamp.Format(time.RFC3339),
	})
	w.Flush()
	return w.Error()
}

// Stats is the per-cycle ingestion statistics record (§6), written as
// JSON alongside the progress journal.
type Stats struct {
	Cycle             int            `json:"cycle"`
	Timestamp         time.Time      `json:"timestamp"`
	DocumentsAttempted int           `json:"documents_attempted"`
	DocumentsWritten  int            `json:"documents_written"`
	ChunksWritten     int            `json:"chunks_written"`
	PerCollection     map[string]int `json:"per_collection"`
}

// WriteStats persists a per-cycle stats snapshot as
// "<statsDir>/cycle_<n>.json".
func WriteStats(statsDir string, s Stats) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvariantError, "journal.stats", err, "marshal stats")
	}
	if err := os.MkdirAll(statsDir, 0o755); err != nil {
		return errs.Wrap(errs.ResourceError, "journal.stats", err, "create stats directory")
	}
	path := filepath.Join(statsDir, "cycle_"+strconv.Itoa(s.Cycle)+".json")
	return renameio.WriteFile(path, data, 0o644)
}
