// Package planner turns a free-form request into a numbered action plan
// grounded in what the assistant can actually do.
package planner

import (
	"context"
	"strings"

	"github.com/vkruglov/docqa/internal/retrieval"
)

// apology replaces plans the generator produced that do not look like a
// numbered list.
const apology = "I'm sorry, I could not produce a step-by-step plan for that request. Please try rephrasing it."

var baseCapabilities = []string{
	"Search the internet for up-to-date information",
	"Read and extract text from uploaded documents (text, HTML, PDF, audio, video)",
	"List the documents currently in the index",
	"Add new documents to the index",
	"Generate text, summaries and answers with a language model",
}

const codeExecutionCapability = "Execute short code snippets in a sandbox"

// Responder is the answering facility the planner delegates to.
type Responder interface {
	Answer(ctx context.Context, prompt string, source retrieval.Source) string
}

type Planner struct {
	responder           Responder
	enableCodeExecution bool
}

func New(responder Responder, enableCodeExecution bool) *Planner {
	return &Planner{responder: responder, enableCodeExecution: enableCodeExecution}
}

func (p *Planner) capabilities() []string {
	caps := baseCapabilities
	if p.enableCodeExecution {
		caps = append(append([]string{}, caps...), codeExecutionCapability)
	}
	return caps
}

func (p *Planner) prompt(request string) string {
	var b strings.Builder
	b.WriteString("You are a planning assistant. You can only use these capabilities:\n")
	for _, c := range p.capabilities() {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a short numbered plan for the following request, using only the capabilities above.\n\nRequest: ")
	b.WriteString(strings.TrimSpace(request))
	b.WriteString("\n\nPlan:")
	return b.String()
}

// Plan produces a numbered plan for the request. A result without a single
// digit does not look like a numbered list and is replaced with a fixed
// apology. Best-effort validation, not structural parsing.
func (p *Planner) Plan(ctx context.Context, request string) string {
	out := p.responder.Answer(ctx, p.prompt(request), retrieval.SourceNone)
	if !containsDigit(out) {
		return apology
	}
	return out
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
