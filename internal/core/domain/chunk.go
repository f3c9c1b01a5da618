package domain

// Chunk is the immutable unit of retrievable text, produced once during the
// offline index build. Row i of the embedding matrix corresponds to chunk i.
type Chunk struct {
	ID           string `json:"id"`
	DocumentID   string `json:"doc_id"`
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Lang         string `json:"lang,omitempty"`
	Text         string `json:"text"`
}

// Candidate is a per-query (score, chunk) pair produced by score fusion.
type Candidate struct {
	Score float64 `json:"score"`
	Chunk Chunk   `json:"chunk"`
}

// FittedSource is a candidate whose text has been truncated to fit the
// context budget. Truncated text carries a trailing ellipsis marker.
type FittedSource struct {
	Score     float64 `json:"score"`
	Chunk     Chunk   `json:"chunk"`
	Truncated bool    `json:"truncated"`
}

// SourceRef is the compact numbered citation returned with an answer.
// N is the 1-based position used by [n] citations in the answer text.
type SourceRef struct {
	N     int     `json:"n"`
	Score float64 `json:"score"`
	URL   string  `json:"url"`
	Title string  `json:"title,omitempty"`
}

type Answer struct {
	Text    string      `json:"text"`
	Sources []SourceRef `json:"sources"`

	// ShortCircuit names the routing decision that skipped generation
	// ("greeting", "too_short", "empty", "reset", "needs_exact_number").
	// Empty for answers produced by the generative model.
	ShortCircuit string `json:"short_circuit,omitempty"`
}

// HistoryTurn is an ordered role-tagged message pair element passed opaquely
// into the prompt. History is caller-owned.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryIntent classifies what kind of question a query is. Used for
// interaction logging only, never for retrieval.
type QueryIntent string

const (
	IntentNumerical  QueryIntent = "numerical"
	IntentProcedural QueryIntent = "procedural"
	IntentFactual    QueryIntent = "factual"
	IntentGeneral    QueryIntent = "general"
)
