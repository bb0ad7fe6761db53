// Package lookup answers resolved questions by exact field lookup in a
// snapshot. It never invents a value: every answer quotes data that is
// present on the member's records.
package lookup

import (
	"strings"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/quality"
)

// Reasons attached to unresolved outcomes.
const (
	ReasonAmbiguous  = "ambiguous member"
	ReasonNoMember   = "no matching member"
	ReasonLowConf    = "low confidence"
	ReasonNotPresent = "field not present"
	ReasonNoSnapshot = "no snapshot"
)

const defaultTextField = "message"

// Options configures an Engine.
type Options struct {
	// TextFields are free-text fields scanned for mentions of the attribute
	// when no structured field carries it. Default: ["message"].
	TextFields []string
}

// Engine is the deterministic answer engine. It holds no mutable state.
type Engine struct {
	textFields []string
}

// New creates an Engine.
func New(opts Options) *Engine {
	if len(opts.TextFields) == 0 {
		opts.TextFields = []string{defaultTextField}
	}
	return &Engine{textFields: append([]string(nil), opts.TextFields...)}
}

// Answer looks up q against snap. Anything short of a high-confidence query
// with a present value is reported as unresolved.
func (e *Engine) Answer(q model.ResolvedQuery, snap *model.DatasetSnapshot) model.Outcome {
	if snap == nil {
		return model.Unresolved(ReasonNoSnapshot)
	}
	switch {
	case q.Confidence == model.ConfidenceAmbiguous:
		return model.Unresolved(ReasonAmbiguous)
	case len(q.Candidates) == 0:
		return model.Unresolved(ReasonNoMember)
	case !q.IsHigh():
		return model.Unresolved(ReasonLowConf)
	}

	top, _ := q.Top()
	records := snap.RecordsByID(top.RecordIDs)

	for _, key := range q.FieldKeys {
		for _, rec := range records {
			v, ok := rec.Field(key)
			if !ok || v == nil || quality.IsEmpty(v) {
				continue
			}
			return answered(render(top.Name, q.Attribute, key, v))
		}
	}

	if text, ok := e.fromMentions(top.Name, q, records); ok {
		return answered(text)
	}
	return model.Unresolved(ReasonNotPresent)
}

func answered(text string) model.Outcome {
	return model.Answered(model.Answer{Text: text, Provenance: model.ProvenanceDeterministic})
}

// humanize turns a field key into words: "favorite_food" becomes "favorite food".
func humanize(key string) string {
	return strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	}), " ")
}
