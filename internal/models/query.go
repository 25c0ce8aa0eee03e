package models

// SearchQuery is a semantic book search request.
type SearchQuery struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Normalize clamps K into [1, maxK], using defaultK when K is unset or negative.
func (q *SearchQuery) Normalize(defaultK, maxK int) {
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
}

// ChatRequest is the conversational search request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the human-readable reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}
