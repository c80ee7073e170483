package ingest

import "strings"

// Default chunking parameters. The overlap carries context across chunk
// boundaries so retrieval does not lose sentences cut mid-thought.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 180
)

// Split cuts text into overlapping chunks of at most size runes, stepping
// size-overlap runes between starts. Whitespace-only chunks are dropped.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}

	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
