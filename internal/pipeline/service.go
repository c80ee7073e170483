// Package pipeline wires retrieval, generation and ingestion into the
// operations the transport layers expose.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vkruglov/docqa/internal/chunkstore"
	"github.com/vkruglov/docqa/internal/ingest"
	"github.com/vkruglov/docqa/internal/intent"
	"github.com/vkruglov/docqa/internal/retrieval"
	"github.com/vkruglov/docqa/internal/status"
)

var (
	ErrEmptyQuery    = errors.New("pipeline: query must not be empty")
	ErrEmptyFilename = errors.New("pipeline: filename must not be empty")
)

// ChunkMeta is the metadata slice of the chunk store the service reads for
// count questions and source listings.
type ChunkMeta interface {
	Count(ctx context.Context) int
	Sources(ctx context.Context) ([]string, error)
}

// Orchestrator resolves the context for a query.
type Orchestrator interface {
	Gather(ctx context.Context, query string, externalContext []string) retrieval.Context
}

// Responder produces the final answer text for a prompt.
type Responder interface {
	Answer(ctx context.Context, prompt string, source retrieval.Source) string
}

// Composer renders a generation prompt.
type Composer func(query string, documents []string, source retrieval.Source, taskInstruction string) string

// Ingestor runs file ingestion.
type Ingestor interface {
	IngestFile(ctx context.Context, tempPath, filename, userContext string) (ingest.Result, error)
}

// PlanMaker produces an action plan for a request.
type PlanMaker interface {
	Plan(ctx context.Context, request string) string
}

// Service is the orchestration facade. Every transport (HTTP, MCP, CLI)
// calls through here.
type Service struct {
	chunks    ChunkMeta
	retriever Orchestrator
	compose   Composer
	responder Responder
	ingestor  Ingestor
	planner   PlanMaker
	tracker   *status.Tracker
	log       *slog.Logger
}

func NewService(chunks ChunkMeta, retriever Orchestrator, compose Composer, responder Responder,
	ingestor Ingestor, planner PlanMaker, tracker *status.Tracker, log *slog.Logger) *Service {
	return &Service{
		chunks:    chunks,
		retriever: retriever,
		compose:   compose,
		responder: responder,
		ingestor:  ingestor,
		planner:   planner,
		tracker:   tracker,
		log:       log,
	}
}

// Answer is the outcome of one query.
type Answer struct {
	QueryID string
	Text    string
	Source  retrieval.Source
}

// SubmitQuery answers a question. Count questions about the index itself are
// answered from metadata without touching retrieval or the generator, but
// only when the caller supplied no task instruction and no external context.
func (s *Service) SubmitQuery(ctx context.Context, query, taskInstruction string, externalContext []string) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, ErrEmptyQuery
	}

	id := uuid.New().String()
	s.tracker.Set(id, status.PhaseLoading, 5, "query received")

	if taskInstruction == "" && len(externalContext) == 0 && intent.IsDocumentCount(query) {
		answer := s.answerCount(ctx)
		s.tracker.Set(id, status.PhaseDone, 100, "answered from index metadata")
		return Answer{QueryID: id, Text: answer, Source: retrieval.SourceDocuments}, nil
	}

	s.tracker.Set(id, status.PhaseRetrieving, 30, "gathering context")
	rctx := s.retriever.Gather(ctx, query, externalContext)

	prompt := s.compose(query, rctx.Documents, rctx.Source, taskInstruction)
	text := s.responder.Answer(ctx, prompt, rctx.Source)

	s.tracker.Set(id, status.PhaseDone, 100, "answer ready")
	return Answer{QueryID: id, Text: text, Source: rctx.Source}, nil
}

// answerCount renders the document-count answer, distinguishing a store
// failure from a genuinely empty index.
func (s *Service) answerCount(ctx context.Context) string {
	count := s.chunks.Count(ctx)
	switch {
	case count == chunkstore.CountFailed:
		return "I couldn't check the document index right now. Please try again later."
	case count == 0:
		return "I don't have any documents indexed yet."
	}

	sources, err := s.chunks.Sources(ctx)
	if err != nil {
		s.log.Error("listing sources for count answer", "error", err)
		sources = nil
	}
	if len(sources) == 0 {
		return fmt.Sprintf("I currently hold %d indexed chunks.", count)
	}
	return fmt.Sprintf("I currently hold %d indexed chunks from %d documents: %s.",
		count, len(sources), strings.Join(sources, ", "))
}

// IngestResult is what an upload operation reports back to the caller.
type IngestResult struct {
	Success bool
	Message string
	Added   int
	Skipped int
}

// IngestFile runs the ingestion pipeline and folds its error taxonomy into a
// caller-facing message. The boundary layer uses Success plus the message to
// pick a status signal; partial commits are called out explicitly.
func (s *Service) IngestFile(ctx context.Context, tempPath, filename, userContext string) IngestResult {
	if strings.TrimSpace(filename) == "" {
		return IngestResult{Success: false, Message: ErrEmptyFilename.Error()}
	}

	res, err := s.ingestor.IngestFile(ctx, tempPath, filename, userContext)
	if err != nil {
		s.log.Error("ingestion failed", "filename", filename, "error", err)
		if errors.Is(err, ingest.ErrMoveFailed) {
			return IngestResult{
				Success: false,
				Message: fmt.Sprintf("indexed %d chunks from %q but could not store the file; index and storage are out of sync", res.Added, filename),
				Added:   res.Added,
				Skipped: res.Skipped,
			}
		}
		return IngestResult{Success: false, Message: err.Error()}
	}

	msg := fmt.Sprintf("ingested %q: %d chunks added", res.Filename, res.Added)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(", %d duplicates skipped", res.Skipped)
	}
	return IngestResult{Success: true, Message: msg, Added: res.Added, Skipped: res.Skipped}
}

// Status reports the progress of a query by id.
func (s *Service) Status(id string) status.Status {
	return s.tracker.Get(id)
}

// ListIndexedSources returns the distinct document names in the index.
func (s *Service) ListIndexedSources(ctx context.Context) ([]string, error) {
	return s.chunks.Sources(ctx)
}

// GeneratePlan produces an action plan for a free-form request.
func (s *Service) GeneratePlan(ctx context.Context, request string) (string, error) {
	if strings.TrimSpace(request) == "" {
		return "", ErrEmptyQuery
	}
	return s.planner.Plan(ctx, request), nil
}
