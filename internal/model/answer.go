package model

// Provenance tags which engine produced an Answer.
type Provenance string

const (
	ProvenanceDeterministic Provenance = "deterministic"
	ProvenanceLLM           Provenance = "llm"
	ProvenanceUnresolved    Provenance = "unresolved"
)

// Answer is the text returned for one question.
type Answer struct {
	Text       string     `json:"answer"`
	Provenance Provenance `json:"provenance"`
}

// OutcomeKind classifies an engine result.
type OutcomeKind string

const (
	OutcomeAnswered    OutcomeKind = "answered"
	OutcomeUnresolved  OutcomeKind = "unresolved"  // engine ran, found nothing it can stand behind
	OutcomeUnavailable OutcomeKind = "unavailable" // engine could not run
)

// Outcome is an engine's result expressed as data. Engines never use an
// error to say "no answer".
type Outcome struct {
	Kind   OutcomeKind
	Answer Answer
	Reason string
}

// Answered wraps a produced answer.
func Answered(a Answer) Outcome {
	return Outcome{Kind: OutcomeAnswered, Answer: a}
}

// Unresolved reports that an engine found no grounded answer.
func Unresolved(reason string) Outcome {
	return Outcome{Kind: OutcomeUnresolved, Reason: reason}
}

// Unavailable reports that an engine could not be used for this request.
func Unavailable(reason string) Outcome {
	return Outcome{Kind: OutcomeUnavailable, Reason: reason}
}

// OK reports whether the outcome carries an answer.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeAnswered
}
