// Package embedding turns book descriptions and search queries into fixed-length vectors.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable is returned when the model failed to load or a call timed out.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrEmptyText is returned for empty or whitespace-only input.
	ErrEmptyText = errors.New("empty text")
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderONNX = "onnx"
	ProviderHash = "hash"
)
