package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vkruglov/docqa/internal/chunkstore"
	"github.com/vkruglov/docqa/internal/filestore"
)

type fakeExtractor struct {
	text        string
	mediaType   string
	err         error
	classifyErr error
}

func (f *fakeExtractor) Classify(string) (string, error) {
	return f.mediaType, f.classifyErr
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string) (string, string, error) {
	return f.text, f.mediaType, f.err
}

type fakeChunks struct {
	added  []chunkstore.Chunk
	texts  map[string]struct{}
	addErr error
}

func (f *fakeChunks) Add(_ context.Context, chunks []chunkstore.Chunk) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, chunks...)
	return nil
}

func (f *fakeChunks) Texts(_ context.Context) map[string]struct{} {
	if f.texts == nil {
		return map[string]struct{}{}
	}
	return f.texts
}

func newTestPipeline(t *testing.T, chunks ChunkWriter, ext TextExtractor) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := filestore.Open(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("open filestore: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(chunks, ext, files, log), dir
}

func writeTemp(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "upload-tmp")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestIngestFileStoresChunksAndMovesFile(t *testing.T) {
	chunks := &fakeChunks{}
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{text: "alpha beta gamma", mediaType: "text"})

	tmp := writeTemp(t, dir, "alpha beta gamma")
	res, err := p.IngestFile(context.Background(), tmp, "notes.txt", "user ctx")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Added != 1 || res.Skipped != 0 {
		t.Fatalf("got added=%d skipped=%d, want 1/0", res.Added, res.Skipped)
	}
	if len(chunks.added) != 1 {
		t.Fatalf("got %d stored chunks, want 1", len(chunks.added))
	}
	c := chunks.added[0]
	if c.Meta.Source != "notes.txt" || c.Meta.MediaType != "text" || c.Meta.UserContext != "user ctx" {
		t.Errorf("unexpected metadata: %+v", c.Meta)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file should be gone after commit")
	}
	names, err := p.files.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "notes.txt" {
		t.Errorf("got stored files %v, want [notes.txt]", names)
	}
}

func TestIngestFileSkipsDuplicateChunks(t *testing.T) {
	chunks := &fakeChunks{texts: map[string]struct{}{"alpha beta gamma": {}}}
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{text: "alpha beta gamma", mediaType: "text"})

	tmp := writeTemp(t, dir, "alpha beta gamma")
	res, err := p.IngestFile(context.Background(), tmp, "copy.txt", "")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Added != 0 || res.Skipped != 1 {
		t.Fatalf("got added=%d skipped=%d, want 0/1", res.Added, res.Skipped)
	}
	if len(chunks.added) != 0 {
		t.Errorf("duplicate content must not be re-added, got %d chunks", len(chunks.added))
	}
	// The file itself still moves; only the index stays unchanged.
	names, _ := p.files.List()
	if len(names) != 1 {
		t.Errorf("got stored files %v, want the duplicate file kept", names)
	}
}

func TestIngestFileExtractFailureCleansUp(t *testing.T) {
	chunks := &fakeChunks{}
	wantErr := errors.New("broken codec")
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{err: wantErr})

	tmp := writeTemp(t, dir, "data")
	if _, err := p.IngestFile(context.Background(), tmp, "clip.mp3", ""); !errors.Is(err, wantErr) {
		t.Fatalf("got err %v, want wrapped %v", err, wantErr)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file should be removed on failure")
	}
	names, _ := p.files.List()
	if len(names) != 0 {
		t.Errorf("reservation should be released, got files %v", names)
	}
	if len(chunks.added) != 0 {
		t.Error("no chunks may be stored when extraction fails")
	}
}

func TestIngestFileUnsupportedTypeTouchesNothing(t *testing.T) {
	chunks := &fakeChunks{}
	wantErr := errors.New("unsupported file type")
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{classifyErr: wantErr})

	tmp := writeTemp(t, dir, "PK")
	if _, err := p.IngestFile(context.Background(), tmp, "archive.zip", ""); !errors.Is(err, wantErr) {
		t.Fatalf("got err %v, want wrapped %v", err, wantErr)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file should be removed")
	}
	names, _ := p.files.List()
	if len(names) != 0 {
		t.Errorf("durable storage must stay untouched, got %v", names)
	}
	if len(chunks.added) != 0 {
		t.Error("no chunks may be stored for an unsupported type")
	}
}

func TestIngestFileCommitFailureIsAllOrNothing(t *testing.T) {
	chunks := &fakeChunks{addErr: errors.New("db closed")}
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{text: "some fresh text", mediaType: "text"})

	tmp := writeTemp(t, dir, "some fresh text")
	if _, err := p.IngestFile(context.Background(), tmp, "fresh.txt", ""); !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("got err %v, want ErrCommitFailed", err)
	}
	names, _ := p.files.List()
	if len(names) != 0 {
		t.Errorf("failed ingest must leave no stored file, got %v", names)
	}
}

func TestIngestFileNameConflict(t *testing.T) {
	chunks := &fakeChunks{}
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{text: "text", mediaType: "text"})

	held, err := p.files.Reserve("taken.txt")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer held.Release()

	tmp := writeTemp(t, dir, "text")
	if _, err := p.IngestFile(context.Background(), tmp, "taken.txt", ""); !errors.Is(err, filestore.ErrNameTaken) {
		t.Fatalf("got err %v, want ErrNameTaken", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file should be removed on name conflict")
	}
}

func TestIngestFileMoveFailureReportedDistinctly(t *testing.T) {
	chunks := &fakeChunks{}
	p, dir := newTestPipeline(t, chunks, &fakeExtractor{text: "indexed anyway", mediaType: "text"})

	// A temp path that no longer exists makes the final move fail.
	tmp := filepath.Join(dir, "vanished")
	res, err := p.IngestFile(context.Background(), tmp, "ghost.txt", "")
	if !errors.Is(err, ErrMoveFailed) {
		t.Fatalf("got err %v, want ErrMoveFailed", err)
	}
	if errors.Is(err, ErrCommitFailed) {
		t.Error("move failure must be distinct from commit failure")
	}
	if res.Added != 1 || len(chunks.added) != 1 {
		t.Errorf("chunks should remain stored despite move failure, got added=%d", res.Added)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "", 10, 2, nil},
		{"whitespace only", "   \n\t  ", 10, 2, nil},
		{"fits in one", "hello world", 100, 10, []string{"hello world"}},
		{"overlapping windows", "abcdefghij", 4, 2, []string{"abcd", "cdef", "efgh", "ghij"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("a", 1500)
	got := Split(text, DefaultChunkSize, DefaultChunkOverlap)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if len(got[0]) != DefaultChunkSize {
		t.Errorf("first chunk length %d, want %d", len(got[0]), DefaultChunkSize)
	}
}
