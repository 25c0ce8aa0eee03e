package search

import (
	"sort"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/vector"
)

// dropSentinels removes placeholder hits (negative ids) that some backends
// return when fewer than k real entries exist.
func dropSentinels(hits []vector.Result) []vector.Result {
	out := hits[:0:0]
	for _, h := range hits {
		if h.ID >= 0 {
			out = append(out, h)
		}
	}
	return out
}

// orderByRank returns books re-sequenced to the order of hits. Books the store
// returned in any order are matched through an id -> rank map; hits whose row
// no longer exists are skipped.
func orderByRank(hits []vector.Result, books []*models.Book) []*models.SearchResult {
	rank := make(map[int64]int, len(hits))
	for i, h := range hits {
		if _, seen := rank[h.ID]; !seen {
			rank[h.ID] = i
		}
	}
	found := make([]*models.Book, 0, len(books))
	for _, b := range books {
		if _, ok := rank[b.ID]; ok {
			found = append(found, b)
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return rank[found[i].ID] < rank[found[j].ID] })

	results := make([]*models.SearchResult, len(found))
	for i, b := range found {
		results[i] = &models.SearchResult{
			Book:     b,
			Distance: hits[rank[b.ID]].Distance,
			Rank:     i + 1,
		}
	}
	return results
}
