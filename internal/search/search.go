// Package search provides full-text search over mood notes, backed by
// Meilisearch with a Postgres fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Mood      string  `json:"mood"`
	Intensity int     `json:"intensity"`
	Snippet   string  `json:"snippet"`
	CreatedAt string  `json:"timestamp"`
	Score     float64 `json:"-"`
}

// Query describes a search request. UserIDs restricts hits to entries
// owned by those users; a session always passes its own id plus the
// partner id when linked.
type Query struct {
	Text    string
	UserIDs []string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// MoodRecord is the data indexed per mood entry.
type MoodRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Mood      string `json:"mood"`
	Intensity int    `json:"intensity"`
	Note      string `json:"note"`
	CreatedAt string `json:"timestamp"`
}
