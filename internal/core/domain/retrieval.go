package domain

type RetrievalStrategy string

const (
	StrategyMMR        RetrievalStrategy = "mmr"
	StrategySimilarity RetrievalStrategy = "similarity"
)

// SearchFilter narrows an index query. An empty Source searches the whole collection.
type SearchFilter struct {
	Source string
}

// ScoredDocument pairs a chunk with its distance to the query.
// Distance is nil when the strategy has no comparable score.
type ScoredDocument struct {
	Chunk    Chunk    `json:"chunk"`
	Distance *float64 `json:"distance"`
}

type RetrievalResult []ScoredDocument

type SourceCitation struct {
	Source    string   `json:"source"`
	Page      int      `json:"page"`
	Relevance *float64 `json:"relevance"`
	Preview   string   `json:"content_preview"`
}

type Answer struct {
	Text          string           `json:"answer"`
	Sources       []SourceCitation `json:"sources"`
	RetrievedDocs int              `json:"retrieved_docs"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
