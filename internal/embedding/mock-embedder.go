package embedding

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockEmbedder is a deterministic embedder for tests. Texts registered with Set
// get exactly that vector; any other text falls back to the hash embedder, so the
// same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	hash       *HashEmbedder

	mu      sync.RWMutex
	vectors map[string][]float32
	err     error

	calls atomic.Int64
}

// NewMockEmbedder returns a mock embedder of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{
		dimensions: dimensions,
		hash:       NewHashEmbedder(dimensions),
		vectors:    make(map[string][]float32),
	}
}

// Set pins the embedding returned for text.
func (e *MockEmbedder) Set(text string, vec []float32) *MockEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = cloneVec(vec)
	return e
}

// Fail makes every subsequent call return err; nil restores normal behavior.
func (e *MockEmbedder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns how many texts have been embedded.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Embed returns the pinned vector for text, or its hash embedding.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.RLock()
	vec, ok := e.vectors[text]
	err := e.err
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if ok {
		return cloneVec(vec), nil
	}
	return e.hash.Embed(ctx, text)
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
