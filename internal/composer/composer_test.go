package composer

import (
	"strings"
	"testing"

	"github.com/vkruglov/docqa/internal/retrieval"
)

func TestComposeDeterministic(t *testing.T) {
	first := Compose("X", []string{"A", "B"}, retrieval.SourceDocuments, "")
	for i := 0; i < 10; i++ {
		if got := Compose("X", []string{"A", "B"}, retrieval.SourceDocuments, ""); got != first {
			t.Fatalf("call %d diverged:\n%q\nvs\n%q", i, got, first)
		}
	}
}

func TestComposeWithDocuments(t *testing.T) {
	got := Compose("what is the policy", []string{"chunk one", "chunk two"}, retrieval.SourceDocuments, "")

	if !strings.Contains(got, "Answer the following question: what is the policy") {
		t.Errorf("missing default task instruction:\n%s", got)
	}
	if !strings.Contains(got, "Use the provided context to inform your answer.") {
		t.Errorf("missing context hint:\n%s", got)
	}
	if !strings.Contains(got, "internal storage") {
		t.Errorf("missing source clause:\n%s", got)
	}
	if !strings.Contains(got, "Context:\n---\nchunk one\nchunk two\n---") {
		t.Errorf("context block malformed:\n%s", got)
	}
	if !strings.HasSuffix(got, "Response:") {
		t.Errorf("prompt must end with the response marker:\n%s", got)
	}
}

func TestComposeNoDocumentsOmitsContextBlock(t *testing.T) {
	got := Compose("what is love", nil, retrieval.SourceNone, "")

	if strings.Contains(got, "Context:") {
		t.Errorf("context block must be omitted without documents:\n%s", got)
	}
	if strings.Contains(got, "Use the provided context") {
		t.Errorf("context hint must be omitted without documents:\n%s", got)
	}
	if !strings.HasSuffix(got, "Response:") {
		t.Errorf("prompt must end with the response marker:\n%s", got)
	}
}

func TestComposeCustomTaskInstruction(t *testing.T) {
	got := Compose("ignored for task", []string{"doc"}, retrieval.SourceExternal, "Summarize the context in one line.")

	if !strings.Contains(got, "Instruction: Summarize the context in one line.") {
		t.Errorf("custom task not used verbatim:\n%s", got)
	}
	if strings.Contains(got, "Answer the following question") {
		t.Errorf("default task must not appear with a custom instruction:\n%s", got)
	}
	if !strings.Contains(got, "using the provided context") {
		t.Errorf("external source clause missing:\n%s", got)
	}
}

func TestComposeSourceClauses(t *testing.T) {
	tests := []struct {
		source retrieval.Source
		want   string
	}{
		{retrieval.SourceDocuments, "internal storage"},
		{retrieval.SourceInternet, "the internet"},
		{retrieval.SourceExternal, "provided context"},
	}
	for _, tt := range tests {
		got := Compose("q", []string{"doc"}, tt.source, "")
		if !strings.Contains(got, tt.want) {
			t.Errorf("source %q: clause %q missing from:\n%s", tt.source, tt.want, got)
		}
	}
}
