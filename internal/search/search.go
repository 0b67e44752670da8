package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultEntry   ResultType = "entry"
	ResultProject ResultType = "project"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
	EntryType string     `json:"entryType,omitempty"`
	Color     string     `json:"statusColor,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	FilterEntryType string
	FilterColor     string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexEntry(e EntryRecord) error
	IndexProject(p ProjectRecord) error
	DeleteEntry(id string) error
	DeleteProject(id string) error
}

// EntryRecord is the data we index for a tree entry.
type EntryRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProjectID string `json:"projectId"`
	EntryType string `json:"entryType"`
	Color     string `json:"statusColor"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
