package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/vector"
)

func TestOrderByRank(t *testing.T) {
	hits := []vector.Result{{ID: 5, Distance: 0.1}, {ID: 2, Distance: 0.4}, {ID: 9, Distance: 0.9}}
	books := []*models.Book{{ID: 2, Title: "two"}, {ID: 9, Title: "nine"}, {ID: 5, Title: "five"}}

	got := orderByRank(hits, books)
	if assert.Len(t, got, 3) {
		assert.Equal(t, int64(5), got[0].Book.ID)
		assert.Equal(t, int64(2), got[1].Book.ID)
		assert.Equal(t, int64(9), got[2].Book.ID)
		assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
		assert.InDelta(t, 0.4, got[1].Distance, 1e-6)
	}
}

func TestOrderByRank_missingRowsSkipped(t *testing.T) {
	hits := []vector.Result{{ID: 5}, {ID: 2}, {ID: 9}}
	books := []*models.Book{{ID: 9}, {ID: 5}}

	got := orderByRank(hits, books)
	if assert.Len(t, got, 2) {
		assert.Equal(t, int64(5), got[0].Book.ID)
		assert.Equal(t, int64(9), got[1].Book.ID)
		assert.Equal(t, 2, got[1].Rank)
	}
}

func TestDropSentinels(t *testing.T) {
	hits := []vector.Result{{ID: 3}, {ID: -1}, {ID: 0}, {ID: -1}}
	assert.Equal(t, []vector.Result{{ID: 3}, {ID: 0}}, dropSentinels(hits))
	assert.Empty(t, dropSentinels(nil))
}
