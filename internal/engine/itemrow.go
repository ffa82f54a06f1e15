package engine

// ItemRow represents a single content item (row-oriented view).
// Used when reading data from disk or returning query results.
type ItemRow struct {
	ID        string   `json:"id"`
	CreatedAt int64    `json:"created_at"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags"`
}

// Filter defines criteria for item retrieval.
type Filter struct {
	MinTime int64  `json:"min_time"`
	MaxTime int64  `json:"max_time"`
	Tag     string `json:"tag"`  // Single-tag shortcut filter
	Query   string `json:"q"`    // Keyword search in title and body
	Expr    string `json:"expr"` // Boolean tag query, parsed via tagql
}
