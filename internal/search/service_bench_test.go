package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/vector"
)

func BenchmarkSearchBooks(b *testing.B) {
	const (
		benchDims = 384
		n         = 2000
	)
	ctx := context.Background()
	embedder := embedding.NewMockEmbedder(benchDims)
	idx, err := vector.NewMemoryIndex(benchDims)
	if err != nil {
		b.Fatal(err)
	}
	ids := make([]int64, n)
	texts := make([]string, n)
	for i := range ids {
		ids[i] = int64(i + 1)
		texts[i] = fmt.Sprintf("a book about topic %d and its history", i)
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		b.Fatal(err)
	}
	if err := idx.InsertBatch(ctx, ids, vecs); err != nil {
		b.Fatal(err)
	}
	svc := NewService(booksFor(ids...), embedder, snapshotOf(idx), Config{DefaultK: 3, MaxK: 50})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.SearchBooks(ctx, "history of topic 42", 10); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
