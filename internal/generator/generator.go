// Package generator wraps the hosted language model behind a small interface
// and turns its heterogeneous output shapes into plain answer text.
package generator

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrQuotaExceeded is a rate or billing limit on the generator side.
	// Callers back off instead of retrying immediately.
	ErrQuotaExceeded = errors.New("generator: quota exceeded")
	// ErrCollaboratorTimeout means the model did not answer within the
	// configured deadline. Distinct from a failed call.
	ErrCollaboratorTimeout = errors.New("generator: request timed out")
	// ErrEmptyResponse means the call succeeded but produced no text.
	ErrEmptyResponse = errors.New("generator: empty response")
)

// Kind tags which shape the generator returned.
type Kind int

const (
	KindPlain Kind = iota
	KindParts
)

// GeneratedText is the raw output of one generation call. Plain responses
// carry Text; multi-part responses carry Parts. Normalize flattens either.
type GeneratedText struct {
	Kind  Kind
	Text  string
	Parts []string
}

// Normalize returns the response as one flat string.
func (g GeneratedText) Normalize() string {
	if g.Kind == KindParts {
		return strings.TrimSpace(strings.Join(g.Parts, ""))
	}
	return strings.TrimSpace(g.Text)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GeneratedText, error)
}
