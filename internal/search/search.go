// Package search finds users to invite onto boards. Meilisearch serves
// queries when it is reachable; otherwise a PostgreSQL ILIKE scan answers.
package search

// UserRecord is the data indexed per user.
type UserRecord struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// MaxResults caps every user search. Clients may ask for fewer but
// never more.
const MaxResults = 20

// Query describes a user search request.
type Query struct {
	Text  string
	Limit int
}

// Bounded returns the query with its limit forced into (0, MaxResults].
func (q Query) Bounded() Query {
	if q.Limit <= 0 || q.Limit > MaxResults {
		q.Limit = MaxResults
	}
	return q
}

// Response is the envelope returned by the user search endpoint.
type Response struct {
	Results []UserRecord `json:"results"`
	Total   int          `json:"total"`
	Query   string       `json:"query"`
}

// Searcher can execute a user search.
type Searcher interface {
	Search(q Query) ([]UserRecord, int, error)
	Healthy() bool
}
