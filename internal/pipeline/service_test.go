package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/vkruglov/docqa/internal/chunkstore"
	"github.com/vkruglov/docqa/internal/composer"
	"github.com/vkruglov/docqa/internal/ingest"
	"github.com/vkruglov/docqa/internal/retrieval"
	"github.com/vkruglov/docqa/internal/status"
)

type fakeMeta struct {
	count   int
	sources []string
}

func (f *fakeMeta) Count(context.Context) int { return f.count }

func (f *fakeMeta) Sources(context.Context) ([]string, error) { return f.sources, nil }

type fakeOrchestrator struct {
	result retrieval.Context
	calls  int
}

func (f *fakeOrchestrator) Gather(_ context.Context, _ string, _ []string) retrieval.Context {
	f.calls++
	return f.result
}

type fakeResponder struct {
	text      string
	gotPrompt string
	calls     int
}

func (f *fakeResponder) Answer(_ context.Context, prompt string, _ retrieval.Source) string {
	f.gotPrompt = prompt
	f.calls++
	return f.text
}

type fakeIngestor struct {
	res ingest.Result
	err error
}

func (f *fakeIngestor) IngestFile(context.Context, string, string, string) (ingest.Result, error) {
	return f.res, f.err
}

type fakePlanner struct{ plan string }

func (f *fakePlanner) Plan(context.Context, string) string { return f.plan }

type fixture struct {
	svc       *Service
	meta      *fakeMeta
	retriever *fakeOrchestrator
	responder *fakeResponder
	ingestor  *fakeIngestor
	tracker   *status.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		meta:      &fakeMeta{},
		retriever: &fakeOrchestrator{result: retrieval.Context{Source: retrieval.SourceNone}},
		responder: &fakeResponder{text: "generated answer"},
		ingestor:  &fakeIngestor{},
		tracker:   status.NewTracker(0),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.meta, f.retriever, composer.Compose, f.responder,
		f.ingestor, &fakePlanner{plan: "1. do it"}, f.tracker, log)
	return f
}

func TestSubmitQueryEmptyRejected(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SubmitQuery(context.Background(), "   ", "", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("got err %v, want ErrEmptyQuery", err)
	}
	if f.retriever.calls != 0 {
		t.Error("no collaborator may run for an invalid query")
	}
}

func TestSubmitQueryAnswersViaGeneration(t *testing.T) {
	f := newFixture(t)
	f.retriever.result = retrieval.Context{Documents: []string{"chunk"}, Source: retrieval.SourceDocuments}

	got, err := f.svc.SubmitQuery(context.Background(), "what is in the report", "", nil)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if got.Text != "generated answer" || got.Source != retrieval.SourceDocuments {
		t.Errorf("got %+v", got)
	}
	if !strings.Contains(f.responder.gotPrompt, "chunk") {
		t.Errorf("retrieved context missing from prompt:\n%s", f.responder.gotPrompt)
	}
	if st := f.svc.Status(got.QueryID); st.Phase != status.PhaseDone {
		t.Errorf("final phase = %q, want done", st.Phase)
	}
}

func TestSubmitQueryCountShortcut(t *testing.T) {
	f := newFixture(t)
	f.meta.count = 12
	f.meta.sources = []string{"a.txt", "b.pdf"}

	got, err := f.svc.SubmitQuery(context.Background(), "how many documents do you have", "", nil)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if f.retriever.calls != 0 || f.responder.calls != 0 {
		t.Error("count questions must not touch retrieval or generation")
	}
	if !strings.Contains(got.Text, "12") || !strings.Contains(got.Text, "a.txt") {
		t.Errorf("count answer = %q", got.Text)
	}
}

func TestSubmitQueryCountShortcutSkippedWithInstruction(t *testing.T) {
	f := newFixture(t)
	f.meta.count = 12

	_, err := f.svc.SubmitQuery(context.Background(), "how many documents do you have", "Summarize.", nil)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if f.retriever.calls != 1 {
		t.Error("a task instruction must disable the metadata shortcut")
	}
}

func TestSubmitQueryCountShortcutSkippedWithExternalContext(t *testing.T) {
	f := newFixture(t)
	f.meta.count = 12

	_, err := f.svc.SubmitQuery(context.Background(), "how many documents do you have", "", []string{"supplied context"})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if f.retriever.calls != 1 {
		t.Error("external context must disable the metadata shortcut")
	}
}

func TestSubmitQueryCountFailureDistinctFromZero(t *testing.T) {
	f := newFixture(t)

	f.meta.count = chunkstore.CountFailed
	failed, err := f.svc.SubmitQuery(context.Background(), "how many files are indexed", "", nil)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	f.meta.count = 0
	empty, err := f.svc.SubmitQuery(context.Background(), "how many files are indexed", "", nil)
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	if failed.Text == empty.Text {
		t.Errorf("store failure and empty index must read differently, both %q", failed.Text)
	}
	if !strings.Contains(failed.Text, "couldn't") {
		t.Errorf("failure answer = %q", failed.Text)
	}
	if !strings.Contains(empty.Text, "any documents") {
		t.Errorf("empty answer = %q", empty.Text)
	}
}

func TestIngestFileSuccessMessage(t *testing.T) {
	f := newFixture(t)
	f.ingestor.res = ingest.Result{Filename: "doc.txt", Added: 3, Skipped: 1}

	got := f.svc.IngestFile(context.Background(), "/tmp/x", "doc.txt", "")
	if !got.Success {
		t.Fatalf("got failure: %s", got.Message)
	}
	if !strings.Contains(got.Message, "3 chunks added") || !strings.Contains(got.Message, "1 duplicates skipped") {
		t.Errorf("message = %q", got.Message)
	}
}

func TestIngestFilePartialCommitReported(t *testing.T) {
	f := newFixture(t)
	f.ingestor.res = ingest.Result{Filename: "doc.txt", Added: 5}
	f.ingestor.err = ingest.ErrMoveFailed

	got := f.svc.IngestFile(context.Background(), "/tmp/x", "doc.txt", "")
	if got.Success {
		t.Fatal("partial commit must not report success")
	}
	if !strings.Contains(got.Message, "out of sync") {
		t.Errorf("partial commit message = %q", got.Message)
	}
}

func TestIngestFileEmptyFilename(t *testing.T) {
	f := newFixture(t)
	if got := f.svc.IngestFile(context.Background(), "/tmp/x", "  ", ""); got.Success {
		t.Error("empty filename must be rejected")
	}
}

func TestGeneratePlan(t *testing.T) {
	f := newFixture(t)
	plan, err := f.svc.GeneratePlan(context.Background(), "organize my research")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if plan != "1. do it" {
		t.Errorf("plan = %q", plan)
	}
	if _, err := f.svc.GeneratePlan(context.Background(), ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("empty request: got %v, want ErrEmptyQuery", err)
	}
}
