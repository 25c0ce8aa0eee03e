package vector

import (
	"errors"
	"fmt"
	"sync"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for catalogs up to tens of thousands of books.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses FAISS IndexIDMap2(IndexFlatL2).
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an empty vector index of the specified type.
// Supported types: "memory" (default), "faiss".
func NewVectorIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// LoadVectorIndex creates a fresh index of the given type and loads path into it.
// Errors wrap ErrIndexAbsent or ErrIndexCorrupt.
func LoadVectorIndex(indexType string, dimensions int, path string) (Index, error) {
	idx, err := NewVectorIndex(indexType, dimensions)
	if err != nil {
		return nil, errors.Join(ErrIndexUnavailable, err)
	}
	if err := idx.Load(path); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// IsFAISSAvailable reports whether FAISS support is compiled in (-tags=faiss).
// The answer is computed once.
func IsFAISSAvailable() bool {
	return faissAvailable()
}

var faissAvailable = sync.OnceValue(func() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
})
