// Package intent recognizes queries the server can answer from index
// metadata alone, without retrieval or generation.
package intent

import "strings"

var countKeywords = []string{"how many", "count", "total"}

var documentNouns = []string{"document", "file", "indexed"}

// IsDocumentCount reports whether the query asks for the number of indexed
// documents. Both a counting keyword and a document noun must be present:
// "how many apples are red" is not a document-count question.
func IsDocumentCount(query string) bool {
	q := strings.ToLower(query)
	return containsAny(q, countKeywords) && containsAny(q, documentNouns)
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
