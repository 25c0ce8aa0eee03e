package vector

import (
	"context"
	"math/rand"
	"testing"
)

func BenchmarkMemoryIndex_Search(b *testing.B) {
	const dims = 384
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	idx, _ := NewMemoryIndex(dims)
	ids := make([]int64, 5000)
	vecs := make([][]float32, len(ids))
	for i := range ids {
		ids[i] = int64(i + 1)
		vecs[i] = make([]float32, dims)
		for j := range vecs[i] {
			vecs[i][j] = rng.Float32()
		}
	}
	if err := idx.InsertBatch(ctx, ids, vecs); err != nil {
		b.Fatal(err)
	}
	query := vecs[42]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(ctx, query, 3); err != nil {
			b.Fatal(err)
		}
	}
}
