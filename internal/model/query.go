package model

// Confidence grades a ResolvedQuery.
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceLow       Confidence = "low"
	ConfidenceAmbiguous Confidence = "ambiguous" // low, caused by tied candidates
)

// AttributeUnknown marks a question with no recognized attribute keyword.
const AttributeUnknown = "unknown"

// Candidate is one member identity matched in a question. A member may own
// several records sharing the same display name.
type Candidate struct {
	Name      string   `json:"name"`
	RecordIDs []string `json:"record_ids"`
	Score     int      `json:"score"`
	Tied      bool     `json:"tied,omitempty"`
}

// ResolvedQuery is the resolver's reading of a single question.
type ResolvedQuery struct {
	Question   string      `json:"question"`
	Normalized string      `json:"normalized"`
	Candidates []Candidate `json:"candidates"`
	Attribute  string      `json:"attribute"`
	Keyword    string      `json:"keyword,omitempty"`
	FieldKeys  []string    `json:"field_keys,omitempty"`
	Reliable   bool        `json:"reliable"`
	Confidence Confidence  `json:"confidence"`
}

// IsHigh reports whether the query is safe for an exact lookup.
func (q ResolvedQuery) IsHigh() bool {
	return q.Confidence == ConfidenceHigh
}

// Top returns the best-ranked candidate, if any.
func (q ResolvedQuery) Top() (Candidate, bool) {
	if len(q.Candidates) == 0 {
		return Candidate{}, false
	}
	return q.Candidates[0], true
}

// KnownAttribute reports whether an attribute keyword was recognized.
func (q ResolvedQuery) KnownAttribute() bool {
	return q.Attribute != "" && q.Attribute != AttributeUnknown
}
