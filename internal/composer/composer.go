// Package composer renders the final prompt sent to the generator. Same
// inputs always produce the same prompt, byte for byte.
package composer

import (
	"strings"

	"github.com/vkruglov/docqa/internal/retrieval"
)

func sourceClause(source retrieval.Source) string {
	switch source {
	case retrieval.SourceDocuments:
		return "using information from internal storage"
	case retrieval.SourceInternet:
		return "using information from the internet"
	case retrieval.SourceExternal:
		return "using the provided context"
	default:
		return ""
	}
}

// Compose builds the generation prompt. An empty taskInstruction gets a
// default synthesized from the query; the context block is only rendered
// when there are documents to put in it.
func Compose(query string, documents []string, source retrieval.Source, taskInstruction string) string {
	task := strings.TrimSpace(taskInstruction)
	if task == "" {
		task = "Answer the following question: " + strings.TrimSpace(query)
		if len(documents) > 0 && source != retrieval.SourceNone {
			task += " Use the provided context to inform your answer."
		}
	}

	var b strings.Builder
	b.WriteString("Instruction: ")
	b.WriteString(task)
	if clause := sourceClause(source); clause != "" && len(documents) > 0 {
		b.WriteString(" ")
		b.WriteString(clause)
		b.WriteString(".")
	}
	if len(documents) > 0 {
		b.WriteString("\n\nContext:\n---\n")
		b.WriteString(strings.Join(documents, "\n"))
		b.WriteString("\n---")
	}
	b.WriteString("\n\nResponse:")
	return b.String()
}
