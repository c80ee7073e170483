// Package retrieval decides where the context for an answer comes from.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
)

// Source tags where the answering context came from. It travels with the
// documents through prompt composition and into the final answer attribution.
type Source string

const (
	SourceExternal  Source = "external"
	SourceDocuments Source = "documents"
	SourceInternet  Source = "internet"
	SourceNone      Source = "none"
)

// DefaultTopK is how many chunks a document lookup returns.
const DefaultTopK = 7

// DocumentRetriever is the slice of the chunk store the orchestrator reads.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, k int) []string
}

// WebSearcher finds context on the open internet.
type WebSearcher interface {
	Search(ctx context.Context, query string, k int) []string
}

// Context is the outcome of one retrieval pass.
type Context struct {
	Documents []string
	Source    Source
}

// Orchestrator walks the context fallback chain: caller-provided external
// context first, then the local index, then web search, then nothing. Each
// tier is only consulted when every tier before it came up empty.
type Orchestrator struct {
	documents  DocumentRetriever
	searcher   WebSearcher
	topK       int
	maxResults int
	log        *slog.Logger
}

func NewOrchestrator(documents DocumentRetriever, searcher WebSearcher, topK, maxResults int, log *slog.Logger) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Orchestrator{documents: documents, searcher: searcher, topK: topK, maxResults: maxResults, log: log}
}

// Gather resolves the context for a query. externalContext short-circuits the
// whole chain: when the caller supplies context, neither the index nor the
// web is touched. Whitespace-only entries do not count as supplied context.
func (o *Orchestrator) Gather(ctx context.Context, query string, externalContext []string) Context {
	if docs := nonBlank(externalContext); len(docs) > 0 {
		return Context{Documents: docs, Source: SourceExternal}
	}

	if docs := o.documents.Retrieve(ctx, query, o.topK); len(docs) > 0 {
		o.log.Debug("context from local index", "chunks", len(docs))
		return Context{Documents: docs, Source: SourceDocuments}
	}

	if results := o.searcher.Search(ctx, query, o.maxResults); len(results) > 0 {
		o.log.Debug("context from web search", "results", len(results))
		return Context{Documents: results, Source: SourceInternet}
	}

	o.log.Debug("no context found, answering from general knowledge")
	return Context{Source: SourceNone}
}

// nonBlank keeps the order of the input, dropping whitespace-only entries.
func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
