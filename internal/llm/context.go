package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/resolver"
)

const instructions = `You answer questions about club members using only the member records below.
Each record is one JSON object per line. A member may have several records.
Answer in one or two sentences and quote values exactly as they appear in the records.
If the records do not answer the question, or it could refer to more than one member, reply with exactly UNKNOWN.`

// nameWeight makes a single name-token hit outrank any amount of content overlap.
const nameWeight = 10

// stopWords are ignored when scoring content overlap.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "have": true, "has": true, "had": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "does": true, "which": true, "where": true, "when": true,
	"who": true, "why": true, "can": true, "will": true, "not": true,
	"many": true, "much": true, "her": true, "his": true, "their": true,
}

type scoredRecord struct {
	idx   int
	line  string
	name  int // name-token overlap
	score int
}

// EstimateTokens approximates the token count of s at four characters per
// token, rounded up.
func EstimateTokens(s string) int {
	return tokensForChars(len(s))
}

func tokensForChars(n int) int {
	return (n + 3) / 4
}

// rankRecords scores every record against the question. Records sharing a
// name token with the question form the subset when there are any; otherwise
// the whole snapshot is kept. Higher scores come first and ties keep
// snapshot order.
func rankRecords(question string, snap *model.DatasetSnapshot) []scoredRecord {
	qTokens := map[string]bool{}
	keywords := map[string]bool{}
	for _, tok := range resolver.Tokens(question) {
		qTokens[tok] = true
		if len(tok) >= 3 && !stopWords[tok] {
			keywords[tok] = true
		}
	}

	all := make([]scoredRecord, 0, snap.Len())
	named := 0
	for i, rec := range snap.Records {
		line := recordLine(rec)
		sr := scoredRecord{idx: i, line: line}
		for _, tok := range uniq(resolver.Tokens(rec.Name)) {
			if qTokens[tok] {
				sr.name++
			}
		}
		content := 0
		for _, tok := range uniq(resolver.Tokens(fieldText(rec))) {
			if keywords[tok] {
				content++
			}
		}
		sr.score = sr.name*nameWeight + content
		if sr.name > 0 {
			named++
		}
		all = append(all, sr)
	}

	out := all
	if named > 0 {
		out = make([]scoredRecord, 0, named)
		for _, sr := range all {
			if sr.name > 0 {
				out = append(out, sr)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// buildPrompt assembles the prompt from ranked records, dropping the least
// relevant ones until the estimate fits budget. ok is false when not even
// one record fits.
func buildPrompt(question string, profile *model.Profile, threshold float64, ranked []scoredRecord, budget int) (Prompt, bool) {
	p := Prompt{
		Instructions: instructions + fieldSummary(profile, threshold),
		Question:     question,
	}
	base := len(p.Text()) + len("\n\n")

	n := len(ranked)
	size := base
	for _, sr := range ranked {
		size += len(sr.line) + 1
	}
	for n > 0 && tokensForChars(size) > budget {
		n--
		size -= len(ranked[n].line) + 1
	}
	if n == 0 {
		return Prompt{}, false
	}

	lines := make([]string, n)
	for i := range n {
		lines[i] = ranked[i].line
	}
	p.Context = strings.Join(lines, "\n")
	return p, true
}

// fieldSummary lists profile fields by reliability so the model knows which
// attributes are sparse.
func fieldSummary(profile *model.Profile, threshold float64) string {
	if profile == nil || len(profile.Fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(profile.Fields))
	for name := range profile.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var reliable, sparse []string
	for _, name := range names {
		fp := profile.Fields[name]
		entry := fmt.Sprintf("%s (%.0f%%)", name, fp.PresenceFraction*100)
		if fp.Reliable(threshold) {
			reliable = append(reliable, entry)
		} else {
			sparse = append(sparse, entry)
		}
	}

	var b strings.Builder
	b.WriteString("\n")
	if len(reliable) > 0 {
		b.WriteString("\nFields present on most records: " + strings.Join(reliable, ", ") + ".")
	}
	if len(sparse) > 0 {
		b.WriteString("\nFields present on few records: " + strings.Join(sparse, ", ") + ".")
	}
	return b.String()
}

type recordJSON struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

func recordLine(rec model.MemberRecord) string {
	data, err := json.Marshal(recordJSON{ID: rec.ID, Name: rec.Name, Fields: rec.Fields})
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"name":%q}`, rec.ID, rec.Name)
	}
	return string(data)
}

// fieldText flattens a record's field names and values for keyword matching.
func fieldText(rec model.MemberRecord) string {
	var b strings.Builder
	for k, v := range rec.Fields {
		b.WriteString(k)
		b.WriteByte(' ')
		if s, ok := v.(string); ok {
			b.WriteString(s)
		} else if data, err := json.Marshal(v); err == nil {
			b.Write(data)
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func uniq(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
