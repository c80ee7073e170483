package index

import (
	"context"
	"time"
)

// Metadata describes where an indexed chunk came from.
type Metadata struct {
	Source      string
	ChunkIndex  int
	MediaType   string
	UserContext string
}

// Record is one indexed text chunk with its embedding.
type Record struct {
	ID        string
	Text      string
	Meta      Metadata
	Embedding []float32
	CreatedAt time.Time
}

// Index is the vector index collaborator contract. The core treats it as a
// black box; SQLiteIndex is the default implementation.
type Index interface {
	// Add embeds (when needed) and stores the given records.
	Add(ctx context.Context, records []Record) error
	// Query returns up to k records ranked by similarity to the text.
	Query(ctx context.Context, text string, k int) ([]Record, error)
	// All returns every stored record, without embeddings.
	All(ctx context.Context) ([]Record, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
