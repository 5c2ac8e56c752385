package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrConnectionFailed indicates a gRPC connection problem.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per
	// input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize queries differently from documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the similarity-search backend contract.
//
// All operations are collection-scoped; a collection is created on
// first write. Implementations must be safe for concurrent use.
type Store interface {
	// AddDocuments embeds and stores documents in the named collection,
	// returning their IDs.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Search returns up to k documents from the collection ranked by
	// similarity to the query, highest score first. filters are exact
	// metadata matches applied before ranking. A missing collection
	// yields an empty result, not an error.
	Search(ctx context.Context, collection, query string, k int, filters map[string]any) ([]SearchResult, error)

	// DeleteDocuments removes documents by ID from the collection.
	DeleteDocuments(ctx context.Context, collection string, ids []string) error

	// Count reports the number of documents in the collection. A
	// missing collection counts as zero.
	Count(ctx context.Context, collection string) (int, error)

	// Persist flushes the store to durable storage. A no-op for
	// backends that persist server-side.
	Persist(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
