package search

import (
	"strings"

	"github.com/bblohar/MyBook-project/internal/models"
)

// ProcessQuery trims the query text and clamps K into [1, maxK].
// Blank query text returns ErrEmptyQuery.
func ProcessQuery(query *models.SearchQuery, defaultK, maxK int) error {
	query.Query = strings.TrimSpace(query.Query)
	if query.Query == "" {
		return ErrEmptyQuery
	}
	query.Normalize(defaultK, maxK)
	return nil
}
