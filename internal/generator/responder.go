package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vkruglov/docqa/internal/retrieval"
)

// Degraded answers returned when generation itself fails. The request still
// succeeds; the failure travels as the answer text.
const (
	quotaMessage   = "I'm currently handling too many requests and have hit my usage limit. Please try again in a few minutes."
	timeoutMessage = "The language model took too long to respond. Please try again."
	failureMessage = "Sorry, I ran into an error while generating a response."
)

func provenanceSuffix(source retrieval.Source) string {
	switch source {
	case retrieval.SourceDocuments:
		return "\n\n(Source: Internal Documents)"
	case retrieval.SourceInternet:
		return "\n\n(Source: Internet Search)"
	case retrieval.SourceExternal:
		return "\n\n(Source: Provided External Context)"
	case retrieval.SourceNone:
		return "\n\n(Source: General Knowledge - No specific documents found)"
	default:
		return ""
	}
}

// Responder runs the generator and shapes its output into the user-facing
// answer, including the provenance note.
type Responder struct {
	gen Generator
	log *slog.Logger
}

func NewResponder(gen Generator, log *slog.Logger) *Responder {
	return &Responder{gen: gen, log: log}
}

// Answer generates a response for the prompt and appends the provenance
// suffix for the context source. Failures never propagate: the caller gets a
// degraded answer string and the error is logged here.
func (r *Responder) Answer(ctx context.Context, prompt string, source retrieval.Source) string {
	out, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		r.log.Error("generation failed", "source", string(source), "error", err)
		switch {
		case errors.Is(err, ErrQuotaExceeded):
			return quotaMessage
		case errors.Is(err, ErrCollaboratorTimeout):
			return timeoutMessage
		default:
			return fmt.Sprintf("%s (%v)", failureMessage, err)
		}
	}

	text := out.Normalize()
	if text == "" {
		r.log.Error("generator returned empty text", "source", string(source))
		return failureMessage
	}
	return text + provenanceSuffix(source)
}
