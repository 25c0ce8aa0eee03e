// Package vector provides the book vector index: exact nearest-neighbour search
// by squared Euclidean distance over int64 book ids, persisted to a single file.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrIndexAbsent is returned by Load when the index file does not exist.
	ErrIndexAbsent = errors.New("index file absent")
	// ErrIndexCorrupt is returned by Load when the index file cannot be parsed.
	ErrIndexCorrupt = errors.New("index file corrupt")
	// ErrIndexUnavailable is returned when no index is persisted or held in memory.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrDimensionMismatch is returned for vectors or queries of the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index stores one vector per book id. Ties in distance are broken by insertion order,
// and InsertOrReplace moves an existing id to the end of that order.
type Index interface {
	InsertOrReplace(ctx context.Context, id int64, vector []float32) error
	InsertBatch(ctx context.Context, ids []int64, vectors [][]float32) error
	Remove(ctx context.Context, ids ...int64) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Contains(id int64) bool
	Vector(id int64) ([]float32, bool)
	IDs() []int64
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Result is a single search hit. Distance is the squared L2 distance to the query.
type Result struct {
	ID       int64   `json:"id"`
	Distance float32 `json:"distance"`
}
