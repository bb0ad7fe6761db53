// Package resolver reads a free-form question into a member identity and an
// attribute, grading how safe the reading is for an exact lookup.
package resolver

import (
	"maps"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/sells-group/member-qa/internal/model"
)

// Candidate match scores.
const (
	scoreFullName  = 2
	scoreFirstName = 1
)

// Options configures a Resolver.
type Options struct {
	// Vocabulary adds to or overrides DefaultVocabulary, phrase to field.
	Vocabulary map[string]string

	// PresenceThreshold is the presence fraction at which a field is
	// reliable. Default: 0.5.
	PresenceThreshold float64
}

// Resolver is safe for concurrent use.
type Resolver struct {
	phrases   []phrase
	threshold float64

	index atomic.Pointer[nameIndex]
}

// New builds a Resolver from opts.
func New(opts Options) *Resolver {
	vocab := DefaultVocabulary()
	maps.Copy(vocab, opts.Vocabulary)
	if opts.PresenceThreshold <= 0 {
		opts.PresenceThreshold = 0.5
	}
	return &Resolver{phrases: compileVocabulary(vocab), threshold: opts.PresenceThreshold}
}

// Threshold returns the presence fraction used for reliability.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Fields returns every canonical field the vocabulary can produce, sorted.
func (r *Resolver) Fields() []string {
	seen := map[string]struct{}{}
	for _, p := range r.phrases {
		seen[p.field] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Resolve reads question against snap. It never fails: a question with no
// recognizable member yields no candidates and low confidence.
func (r *Resolver) Resolve(question string, snap *model.DatasetSnapshot, profile *model.Profile) model.ResolvedQuery {
	tokens := Tokens(question)
	q := model.ResolvedQuery{
		Question:   question,
		Normalized: strings.Join(tokens, " "),
		Attribute:  model.AttributeUnknown,
		Confidence: model.ConfidenceLow,
	}

	q.Candidates = r.indexFor(snap).match(tokens)

	if p, ok := r.matchPhrase(tokens); ok {
		q.Attribute = p.field
		q.Keyword = p.text
		q.Reliable = profile.Reliable(p.field, r.threshold)
		q.FieldKeys = r.fieldKeys(p.field, profile)
	}

	switch {
	case len(q.Candidates) == 1 && q.KnownAttribute():
		q.Confidence = model.ConfidenceHigh
	case len(q.Candidates) > 1:
		q.Confidence = model.ConfidenceAmbiguous
	}
	return q
}

// matchPhrase returns the preferred vocabulary phrase found in tokens.
// Phrases are pre-sorted by preference, so the first hit wins.
func (r *Resolver) matchPhrase(tokens []string) (phrase, bool) {
	for _, p := range r.phrases {
		if containsSeq(tokens, p.tokens) >= 0 {
			return p, true
		}
	}
	return phrase{}, false
}

// fieldKeys lists the field names to try for attribute: the canonical name,
// then, when it is not reliable, observed fields whose name contains its stem
// ordered by presence.
func (r *Resolver) fieldKeys(attribute string, profile *model.Profile) []string {
	keys := []string{attribute}
	if profile == nil || profile.Reliable(attribute, r.threshold) {
		return keys
	}

	stem := Normalize(strings.TrimSuffix(attribute, "s"))
	if stem == "" {
		return keys
	}
	var related []model.FieldProfile
	for name, fp := range profile.Fields {
		if name == attribute || fp.Present == 0 {
			continue
		}
		if strings.Contains(Normalize(name), stem) {
			related = append(related, fp)
		}
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].Present != related[j].Present {
			return related[i].Present > related[j].Present
		}
		return related[i].Name < related[j].Name
	})
	for _, fp := range related {
		keys = append(keys, fp.Name)
	}
	return keys
}

type member struct {
	key       string
	display   string
	tokens    []string
	recordIDs []string
}

// nameIndex groups a snapshot's records by normalized display name.
type nameIndex struct {
	snapshotID string
	members    []*member
}

func (r *Resolver) indexFor(snap *model.DatasetSnapshot) *nameIndex {
	if snap == nil {
		return &nameIndex{}
	}
	if idx := r.index.Load(); idx != nil && snap.ID != "" && idx.snapshotID == snap.ID {
		return idx
	}
	idx := buildIndex(snap)
	r.index.Store(idx)
	return idx
}

func buildIndex(snap *model.DatasetSnapshot) *nameIndex {
	idx := &nameIndex{snapshotID: snap.ID}
	byKey := map[string]*member{}
	for _, rec := range snap.Records {
		toks := Tokens(rec.Name)
		if len(toks) == 0 {
			continue
		}
		key := strings.Join(toks, " ")
		m, ok := byKey[key]
		if !ok {
			m = &member{key: key, display: rec.Name, tokens: toks}
			byKey[key] = m
			idx.members = append(idx.members, m)
		}
		m.recordIDs = append(m.recordIDs, rec.ID)
	}
	return idx
}

// match returns the members named in tokens. Full-name matches shadow
// first-name matches, and a full name found inside a longer matched full name
// ("Layla" inside "Layla Kawaguchi") is dropped. Every remaining member is
// returned, ranked alphabetically and flagged as tied when there is more
// than one.
func (idx *nameIndex) match(tokens []string) []model.Candidate {
	var full []nameHit
	var first []*member
	for _, m := range idx.members {
		if pos := containsSeq(tokens, m.tokens); pos >= 0 {
			full = append(full, nameHit{m: m, pos: pos})
		} else if containsSeq(tokens, m.tokens[:1]) >= 0 {
			first = append(first, m)
		}
	}

	best, hits := scoreFullName, outermost(full)
	if len(hits) == 0 {
		best, hits = scoreFirstName, first
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].key < hits[j].key })

	out := make([]model.Candidate, 0, len(hits))
	for _, m := range hits {
		out = append(out, model.Candidate{
			Name:      m.display,
			RecordIDs: append([]string(nil), m.recordIDs...),
			Score:     best,
			Tied:      len(hits) > 1,
		})
	}
	return out
}

type nameHit struct {
	m   *member
	pos int
}

func (h nameHit) end() int { return h.pos + len(h.m.tokens) }

// outermost drops hits whose span lies within a longer hit's span.
func outermost(hits []nameHit) []*member {
	var out []*member
	for _, h := range hits {
		nested := false
		for _, g := range hits {
			if len(g.m.tokens) > len(h.m.tokens) && g.pos <= h.pos && h.end() <= g.end() {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, h.m)
		}
	}
	return out
}
