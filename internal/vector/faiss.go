//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/MetaIndexes_c.h>
#include <faiss/c_api/impl/AuxIndexStructures_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex wraps IndexIDMap2(IndexFlatL2): exact squared-L2 search with
// external int64 ids, removal and reconstruction. It persists with FAISS's own
// serialization, written through the same temp-then-rename swap as MemoryIndex.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	index, err := newFAISSIDMap(dimensions)
	if err != nil {
		return nil, err
	}
	return &FAISSIndex{index: index, dimensions: dimensions}, nil
}

func newFAISSIDMap(dimensions int) (*C.FaissIndex, error) {
	var flat *C.FaissIndexFlatL2
	if C.faiss_IndexFlatL2_new_with(&flat, C.idx_t(dimensions)) != 0 {
		return nil, fmt.Errorf("failed to create FAISS flat index: %s", faissLastError())
	}
	var idmap *C.FaissIndexIDMap2
	if C.faiss_IndexIDMap2_new(&idmap, (*C.FaissIndex)(flat)) != 0 {
		C.faiss_Index_free((*C.FaissIndex)(flat))
		return nil, fmt.Errorf("failed to create FAISS id map: %s", faissLastError())
	}
	// The id map owns and frees the flat index.
	C.faiss_IndexIDMap_set_own_fields((*C.FaissIndexIDMap)(unsafe.Pointer(idmap)), 1)
	return (*C.FaissIndex)(idmap), nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// InsertOrReplace stores vector under id, replacing any existing entry.
func (f *FAISSIndex) InsertOrReplace(ctx context.Context, id int64, vector []float32) error {
	return f.InsertBatch(ctx, []int64{id}, [][]float32{vector})
}

// InsertBatch removes any existing ids, then adds all pairs in one call.
func (f *FAISSIndex) InsertBatch(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}

	// Later duplicates in the batch win.
	last := make(map[int64]int, len(ids))
	for i, id := range ids {
		last[id] = i
	}
	n := 0
	flat := make([]float32, 0, len(ids)*f.dimensions)
	keep := make([]int64, 0, len(ids))
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), f.dimensions)
		}
		if last[ids[i]] != i {
			continue
		}
		flat = append(flat, vec...)
		keep = append(keep, ids[i])
		n++
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeLocked(keep); err != nil {
		return err
	}
	ret := C.faiss_Index_add_with_ids(
		f.index,
		C.idx_t(n),
		(*C.float)(unsafe.Pointer(&flat[0])),
		(*C.idx_t)(unsafe.Pointer(&keep[0])),
	)
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Remove deletes the given ids. Absent ids are ignored.
func (f *FAISSIndex) Remove(ctx context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(ids)
}

func (f *FAISSIndex) removeLocked(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var sel *C.FaissIDSelectorBatch
	if C.faiss_IDSelectorBatch_new(&sel, C.size_t(len(ids)), (*C.idx_t)(unsafe.Pointer(&ids[0]))) != 0 {
		return fmt.Errorf("failed to create FAISS id selector: %s", faissLastError())
	}
	defer C.faiss_IDSelector_free((*C.FaissIDSelector)(sel))
	var removed C.size_t
	if C.faiss_Index_remove_ids(f.index, (*C.FaissIDSelector)(sel), &removed) != 0 {
		return fmt.Errorf("failed to remove ids from FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns up to k entries closest to query by squared L2, closest first.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return []Result{}, nil
	}
	if k > ntotal {
		k = ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]Result, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		results = append(results, Result{ID: labels[i], Distance: distances[i]})
	}
	return results, nil
}

// IDs returns the ids in insertion order.
func (f *FAISSIndex) IDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.idsLocked()
}

func (f *FAISSIndex) idsLocked() []int64 {
	var p *C.idx_t
	var size C.size_t
	C.faiss_IndexIDMap2_id_map(C.faiss_IndexIDMap2_cast(f.index), &p, &size)
	out := make([]int64, int(size))
	if size > 0 {
		copy(out, unsafe.Slice((*int64)(unsafe.Pointer(p)), int(size)))
	}
	return out
}

// Contains reports whether id has an entry.
func (f *FAISSIndex) Contains(id int64) bool {
	_, ok := f.Vector(id)
	return ok
}

// Vector reconstructs the vector stored for id.
func (f *FAISSIndex) Vector(id int64) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]float32, f.dimensions)
	if C.faiss_Index_reconstruct(f.index, C.idx_t(id), (*C.float)(unsafe.Pointer(&out[0]))) != 0 {
		return nil, false
	}
	return out, true
}

// Save atomically writes the serialized FAISS index to path.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("index path is empty")
	}

	// FAISS writes by file name, so serialize to a scratch file and stream it
	// through the atomic writer.
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	scratch, err := os.CreateTemp(filepath.Dir(path), ".faiss-scratch-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	_ = scratch.Close()
	defer os.Remove(scratchPath)

	cPath := C.CString(scratchPath)
	defer C.free(unsafe.Pointer(cPath))
	if C.faiss_write_index_fname(f.index, cPath) != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}

	return writeFileAtomic(path, func(w io.Writer) error {
		src, err := os.Open(scratchPath)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
}

// Load replaces the index with the one at path. A missing file returns
// ErrIndexAbsent; a file FAISS cannot read returns ErrIndexCorrupt.
func (f *FAISSIndex) Load(path string) error {
	if err := checkExists(path); err != nil {
		return err
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if C.faiss_read_index_fname(cPath, 0, &loaded) != 0 {
		return fmt.Errorf("%w: %s", ErrIndexCorrupt, faissLastError())
	}
	if int(C.faiss_Index_d(loaded)) != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: dimension mismatch", ErrIndexCorrupt)
	}
	idmap := C.faiss_IndexIDMap2_cast(loaded)
	if idmap == nil {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: not an IndexIDMap2", ErrIndexCorrupt)
	}
	if C.faiss_IndexIDMap2_construct_rev_map(idmap) != 0 {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: %s", ErrIndexCorrupt, faissLastError())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
