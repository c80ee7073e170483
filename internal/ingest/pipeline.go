package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/vkruglov/docqa/internal/chunkstore"
	"github.com/vkruglov/docqa/internal/filestore"
	"github.com/vkruglov/docqa/internal/index"
)

var (
	// ErrCommitFailed means no chunks were stored; the upload left no trace.
	ErrCommitFailed = errors.New("ingest: committing chunks failed")
	// ErrMoveFailed means chunks were stored but the source file could not be
	// relocated into managed storage. The index and the filesystem diverge.
	ErrMoveFailed = errors.New("ingest: chunks stored but file move failed")
)

// TextExtractor turns an uploaded file into plain text plus its media type.
// Classify answers without touching the file, so unsupported uploads can be
// rejected before anything else happens.
type TextExtractor interface {
	Classify(filename string) (mediaType string, err error)
	Extract(ctx context.Context, path, filename string) (text, mediaType string, err error)
}

// ChunkWriter is the slice of the chunk store the pipeline writes through.
type ChunkWriter interface {
	Add(ctx context.Context, chunks []chunkstore.Chunk) error
	Texts(ctx context.Context) map[string]struct{}
}

// Pipeline carries an uploaded file from raw bytes to indexed chunks plus a
// copy in managed storage.
type Pipeline struct {
	chunks    ChunkWriter
	extractor TextExtractor
	files     *filestore.Store
	log       *slog.Logger

	chunkSize    int
	chunkOverlap int
}

func NewPipeline(chunks ChunkWriter, extractor TextExtractor, files *filestore.Store, log *slog.Logger) *Pipeline {
	return &Pipeline{
		chunks:       chunks,
		extractor:    extractor,
		files:        files,
		log:          log,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// Result reports what an ingestion run actually did.
type Result struct {
	Filename  string
	MediaType string
	Added     int
	Skipped   int
}

// IngestFile processes the file at tempPath under the given display name.
// The name is reserved up front so two concurrent uploads of the same
// filename cannot both proceed. On any failure the temp file is removed and
// the reservation released; the store is only ever fully updated or untouched,
// with the one exception reported as ErrMoveFailed.
func (p *Pipeline) IngestFile(ctx context.Context, tempPath, filename, userContext string) (Result, error) {
	name := filestore.Sanitize(filename)
	if name == "" {
		os.Remove(tempPath)
		return Result{}, fmt.Errorf("ingest: invalid filename %q", filename)
	}

	// Unsupported extensions fail before the durable name is claimed.
	if _, err := p.extractor.Classify(name); err != nil {
		os.Remove(tempPath)
		return Result{}, fmt.Errorf("ingest: %q: %w", name, err)
	}

	res, err := p.files.Reserve(name)
	if err != nil {
		os.Remove(tempPath)
		return Result{}, fmt.Errorf("ingest: reserve %q: %w", name, err)
	}

	text, mediaType, err := p.extractor.Extract(ctx, tempPath, name)
	if err != nil {
		p.abandon(res, tempPath)
		return Result{}, fmt.Errorf("ingest: extract %q: %w", name, err)
	}

	pieces := Split(text, p.chunkSize, p.chunkOverlap)
	existing := p.chunks.Texts(ctx)

	var novel []chunkstore.Chunk
	skipped := 0
	for i, piece := range pieces {
		if _, ok := existing[piece]; ok {
			skipped++
			continue
		}
		existing[piece] = struct{}{}
		novel = append(novel, chunkstore.Chunk{
			Text: piece,
			Meta: index.Metadata{
				Source:      name,
				ChunkIndex:  i,
				MediaType:   mediaType,
				UserContext: userContext,
			},
		})
	}

	if len(novel) > 0 {
		if err := p.chunks.Add(ctx, novel); err != nil {
			p.abandon(res, tempPath)
			return Result{}, fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
	} else {
		p.log.Info("no new content, all chunks already indexed", "filename", name, "skipped", skipped)
	}

	if err := res.Commit(tempPath); err != nil {
		os.Remove(tempPath)
		res.Release()
		return Result{Filename: name, MediaType: mediaType, Added: len(novel), Skipped: skipped},
			fmt.Errorf("%w: %v", ErrMoveFailed, err)
	}

	p.log.Info("file ingested", "filename", name, "media_type", mediaType,
		"chunks_added", len(novel), "chunks_skipped", skipped)
	return Result{Filename: name, MediaType: mediaType, Added: len(novel), Skipped: skipped}, nil
}

func (p *Pipeline) abandon(res *filestore.Reservation, tempPath string) {
	res.Release()
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("could not remove temp upload", "path", tempPath, "error", err)
	}
}
