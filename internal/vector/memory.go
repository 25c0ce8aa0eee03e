package vector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sort"
	"sync"
)

const (
	memoryMagic   = "MBVI"
	memoryVersion = uint32(1)
	// magic + version + dimensions + count
	memoryHeaderSize = 4 + 4 + 4 + 8
)

// MemoryIndex is a flat in-memory index using brute-force squared L2 search.
// Entries keep insertion order, which breaks distance ties.
type MemoryIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	pos        map[int64]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]int64, 0),
		vectors:    make([][]float32, 0),
		pos:        make(map[int64]int),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// InsertOrReplace stores vector under id. An existing entry is removed first,
// so the id moves to the end of insertion order.
func (m *MemoryIndex) InsertOrReplace(ctx context.Context, id int64, vector []float32) error {
	return m.InsertBatch(ctx, []int64{id}, [][]float32{vector})
}

// InsertBatch inserts each (id, vector) pair with replace semantics.
func (m *MemoryIndex) InsertBatch(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if _, ok := m.pos[id]; ok {
			m.removeLocked(map[int64]struct{}{id: {}})
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Remove deletes the given ids. Absent ids are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids ...int64) error {
	removeSet := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		removeSet[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(removeSet)
	return nil
}

func (m *MemoryIndex) removeLocked(removeSet map[int64]struct{}) {
	hit := false
	for id := range removeSet {
		if _, ok := m.pos[id]; ok {
			hit = true
			break
		}
	}
	if !hit {
		return
	}
	newIDs := make([]int64, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	for i, id := range m.ids {
		if _, drop := removeSet[id]; drop {
			delete(m.pos, id)
			continue
		}
		m.pos[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, m.vectors[i])
	}
	m.ids = newIDs
	m.vectors = newVectors
}

// Search returns up to k entries closest to query, closest first.
// An empty index or k <= 0 yields an empty result.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return []Result{}, nil
	}
	scores := make([]Result, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = Result{ID: m.ids[i], Distance: SquaredL2(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Distance < scores[j].Distance })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k:k], nil
}

// Contains reports whether id has an entry.
func (m *MemoryIndex) Contains(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pos[id]
	return ok
}

// Vector returns a copy of the vector stored for id.
func (m *MemoryIndex) Vector(id int64) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.pos[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, m.dimensions)
	copy(out, m.vectors[i])
	return out, true
}

// IDs returns the ids in insertion order.
func (m *MemoryIndex) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(m.ids))
	copy(out, m.ids)
	return out
}

// Save atomically persists the index to path. Format (little endian):
// "MBVI", version u32, dimensions u32, count u64, count × (id i64, dimensions × f32),
// then a CRC-32 (IEEE) of everything before it.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		crc := crc32.NewIEEE()
		bw := bufio.NewWriter(io.MultiWriter(w, crc))

		header := make([]byte, memoryHeaderSize)
		copy(header[0:4], memoryMagic)
		binary.LittleEndian.PutUint32(header[4:8], memoryVersion)
		binary.LittleEndian.PutUint32(header[8:12], uint32(m.dimensions))
		binary.LittleEndian.PutUint64(header[12:20], uint64(len(m.ids)))
		if _, err := bw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}

		idBuf := make([]byte, 8)
		for i, id := range m.ids {
			binary.LittleEndian.PutUint64(idBuf, uint64(id))
			if _, err := bw.Write(idBuf); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if _, err := bw.Write(float32SliceToBytes(m.vectors[i])); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flush index: %w", err)
		}
		trailer := make([]byte, 4)
		binary.LittleEndian.PutUint32(trailer, crc.Sum32())
		if _, err := w.Write(trailer); err != nil {
			return fmt.Errorf("write checksum: %w", err)
		}
		return nil
	})
}

// Load replaces the in-memory contents with the index at path.
// A missing file returns ErrIndexAbsent; anything unparseable returns ErrIndexCorrupt.
// On error the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if err := checkExists(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}
	if len(data) < memoryHeaderSize+4 {
		return fmt.Errorf("%w: file too short (%d bytes)", ErrIndexCorrupt, len(data))
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return fmt.Errorf("%w: checksum mismatch", ErrIndexCorrupt)
	}

	r := bytes.NewReader(body)
	header := make([]byte, memoryHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrIndexCorrupt, err)
	}
	if string(header[0:4]) != memoryMagic {
		return fmt.Errorf("%w: bad magic %q", ErrIndexCorrupt, header[0:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != memoryVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrIndexCorrupt, v)
	}
	if dim := int(binary.LittleEndian.Uint32(header[8:12])); dim != m.dimensions {
		return fmt.Errorf("%w: dimension mismatch: file has %d, index expects %d", ErrIndexCorrupt, dim, m.dimensions)
	}
	n := binary.LittleEndian.Uint64(header[12:20])
	entrySize := uint64(8 + m.dimensions*4)
	if uint64(r.Len()) != n*entrySize {
		return fmt.Errorf("%w: expected %d entries, body has %d bytes", ErrIndexCorrupt, n, r.Len())
	}

	ids := make([]int64, 0, n)
	vectors := make([][]float32, 0, n)
	pos := make(map[int64]int, n)
	idBuf := make([]byte, 8)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint64(0); i < n; i++ {
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return fmt.Errorf("%w: read id: %v", ErrIndexCorrupt, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("%w: read vector: %v", ErrIndexCorrupt, err)
		}
		id := int64(binary.LittleEndian.Uint64(idBuf))
		if _, dup := pos[id]; dup {
			return fmt.Errorf("%w: duplicate id %d", ErrIndexCorrupt, id)
		}
		pos[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(vecBuf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = ids
	m.vectors = vectors
	m.pos = pos
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
