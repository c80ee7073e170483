// Package chunkstore wraps the vector index collaborator with the uniform
// error handling the rest of the pipeline relies on: retrieval failures
// degrade to empty results, count failures to a -1 sentinel. Callers never
// see an index-layer error on the query path.
package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vkruglov/docqa/internal/index"
)

// CountFailed is the sentinel Count returns when the index call fails,
// distinguishing "store unreachable" from a genuine zero count.
const CountFailed = -1

// Chunk is a unit of text headed for the index. IDs are assigned at commit.
type Chunk struct {
	Text string
	Meta index.Metadata
}

// Store provides add/retrieve/count/sources over the vector index.
type Store struct {
	idx index.Index
}

// New creates a Store over the given index.
func New(idx index.Index) *Store {
	return &Store{idx: idx}
}

// Add assigns fresh ids to the chunks and commits them. Empty input is
// logged and ignored, never an error. Every chunk must carry a source.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		slog.Warn("chunk store: add called with no chunks")
		return nil
	}

	now := time.Now().UTC()
	records := make([]index.Record, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Meta.Source) == "" {
			return fmt.Errorf("chunk %d has no source", i)
		}
		records[i] = index.Record{
			ID:        uuid.New().String(),
			Text:      c.Text,
			Meta:      c.Meta,
			CreatedAt: now,
		}
	}

	if err := s.idx.Add(ctx, records); err != nil {
		return fmt.Errorf("adding %d chunks: %w", len(records), err)
	}
	return nil
}

// Retrieve returns up to k chunk texts ranked by similarity. A failed or
// empty index yields an empty slice; the fallback chain treats that as
// "no results", not an error.
func (s *Store) Retrieve(ctx context.Context, query string, k int) []string {
	records, err := s.idx.Query(ctx, query, k)
	if err != nil {
		slog.Error("chunk store: retrieval failed, returning no results", "error", err)
		return nil
	}

	texts := make([]string, 0, len(records))
	for _, r := range records {
		texts = append(texts, r.Text)
	}
	return texts
}

// Count returns the number of indexed chunks, or CountFailed when the
// index cannot answer.
func (s *Store) Count(ctx context.Context) int {
	n, err := s.idx.Count(ctx)
	if err != nil {
		slog.Error("chunk store: count failed", "error", err)
		return CountFailed
	}
	return n
}

// Sources returns the distinct source names across all chunks, sorted.
// Chunks with a blank source are skipped and logged, not fatal.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	records, err := s.idx.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	seen := make(map[string]struct{})
	for _, r := range records {
		src := strings.TrimSpace(r.Meta.Source)
		if src == "" {
			slog.Warn("chunk store: chunk with blank source skipped", "id", r.ID)
			continue
		}
		seen[src] = struct{}{}
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

// Texts returns the set of chunk texts already indexed, used for exact-match
// deduplication during ingestion. A failed index degrades to an empty set
// with a warning — ingestion proceeds as if the index were fresh.
func (s *Store) Texts(ctx context.Context) map[string]struct{} {
	records, err := s.idx.All(ctx)
	if err != nil {
		slog.Warn("chunk store: failed to fetch existing texts, proceeding fresh", "error", err)
		return map[string]struct{}{}
	}

	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.Text] = struct{}{}
	}
	return set
}
