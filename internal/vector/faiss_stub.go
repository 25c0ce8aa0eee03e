//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"
)

var errNoFAISS = fmt.Errorf("%w: FAISS not available: build with -tags=faiss and install FAISS library", ErrIndexUnavailable)

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) InsertOrReplace(context.Context, int64, []float32) error { return errNoFAISS }

func (f *FAISSIndex) InsertBatch(context.Context, []int64, [][]float32) error { return errNoFAISS }

func (f *FAISSIndex) Remove(context.Context, ...int64) error { return errNoFAISS }

func (f *FAISSIndex) Search(context.Context, []float32, int) ([]Result, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Contains(int64) bool { return false }

func (f *FAISSIndex) Vector(int64) ([]float32, bool) { return nil, false }

func (f *FAISSIndex) IDs() []int64 { return nil }

func (f *FAISSIndex) Save(string) error { return errNoFAISS }

func (f *FAISSIndex) Load(string) error { return errNoFAISS }

func (f *FAISSIndex) Size() int { return 0 }

func (f *FAISSIndex) Dimensions() int { return 0 }

func (f *FAISSIndex) Close() error { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
