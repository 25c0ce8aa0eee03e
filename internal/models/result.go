package models

// SearchResult is a single ranked hit.
type SearchResult struct {
	Book     *Book   `json:"book"`
	Distance float32 `json:"distance"`
	Rank     int     `json:"rank"`
}

// SearchResponse is the response for a search request. Results are in ascending
// distance order. NoMatches is set when the index produced no usable ids; it is
// not an error condition.
type SearchResponse struct {
	Query     string          `json:"query"`
	K         int             `json:"k"`
	Results   []*SearchResult `json:"results"`
	NoMatches bool            `json:"no_matches"`
	QueryTime int64           `json:"query_time_ms"`
}

// Books returns the ranked books without scores.
func (r *SearchResponse) Books() []*Book {
	books := make([]*Book, len(r.Results))
	for i, res := range r.Results {
		books[i] = res.Book
	}
	return books
}
