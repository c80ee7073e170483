package intent

import "testing"

func TestIsDocumentCount(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"how many files do you have", true},
		{"How many documents are indexed?", true},
		{"what is the total count of indexed files", true},
		{"count my documents", true},
		{"how many apples are in the basket", false},
		{"list my documents", false},
		{"what does the report say", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := IsDocumentCount(tt.query); got != tt.want {
				t.Errorf("IsDocumentCount(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
