package lookup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/resolver"
)

// mentionCues are words that mark a free-text message as being about an
// attribute, beyond the attribute's own stem.
var mentionCues = map[string][]string{
	resolver.AttrTrip:        {"trip", "travel", "flight", "fly", "flying", "vacation", "holiday", "visit", "visiting"},
	resolver.AttrCars:        {"car", "vehicle"},
	resolver.AttrRestaurants: {"restaurant", "dinner", "lunch", "table", "reservation", "dining"},
}

var (
	carCountPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(?:\w+\s+)?(?:cars?|vehicles?)\b`)

	datePattern = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|` +
		`(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:st|nd|rd|th)?|` +
		`(?:this|next)\s+(?:week|weekend|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|` +
		`monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	destinationPattern = regexp.MustCompile(`\b(?:to|in|visit|visiting)\s+(\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)?)`)
)

// calendarWords are capitalized words the destination pattern must not
// mistake for a place.
var calendarWords = map[string]bool{
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true,
}

// fromMentions answers from free-text fields when no structured field holds
// the attribute. The member's messages are scanned in snapshot order; a
// count or trip detail extracted from any mention wins over quoting the
// first mention verbatim.
func (e *Engine) fromMentions(name string, q model.ResolvedQuery, records []model.MemberRecord) (string, bool) {
	if !q.KnownAttribute() {
		return "", false
	}
	cues := cuesFor(q)

	var mentions []string
	for _, rec := range records {
		for _, field := range e.textFields {
			v, ok := rec.Field(field)
			if !ok {
				continue
			}
			text, isText := v.(string)
			text = strings.TrimSpace(text)
			if !isText || text == "" {
				continue
			}
			if mentionsAny(text, cues) {
				mentions = append(mentions, text)
			}
		}
	}
	if len(mentions) == 0 {
		return "", false
	}

	switch q.Attribute {
	case resolver.AttrCars:
		for _, m := range mentions {
			if sub := carCountPattern.FindStringSubmatch(m); sub != nil {
				return fmt.Sprintf("%s has %s car(s).", name, sub[1]), true
			}
		}
	case resolver.AttrTrip:
		for _, m := range mentions {
			dest, date := destinationIn(m), datePattern.FindString(m)
			if dest != "" || date != "" {
				return tripSentence(name, dest, date, nil), true
			}
		}
	}
	return fmt.Sprintf("%s mentioned: \"%s\".", name, mentions[0]), true
}

func cuesFor(q model.ResolvedQuery) map[string]bool {
	cues := make(map[string]bool)
	for _, c := range mentionCues[q.Attribute] {
		cues[c] = true
	}
	if stem := strings.TrimSuffix(resolver.Normalize(q.Attribute), "s"); stem != "" {
		cues[stem] = true
	}
	for _, tok := range resolver.Tokens(q.Keyword) {
		if len(tok) > 3 {
			cues[strings.TrimSuffix(tok, "s")] = true
		}
	}
	return cues
}

// mentionsAny reports whether text has a token equal to a cue or its plural.
func mentionsAny(text string, cues map[string]bool) bool {
	for _, tok := range resolver.Tokens(text) {
		if cues[tok] || cues[strings.TrimSuffix(tok, "s")] {
			return true
		}
	}
	return false
}

func destinationIn(text string) string {
	for _, sub := range destinationPattern.FindAllStringSubmatch(text, -1) {
		place := sub[1]
		first, _, _ := strings.Cut(place, " ")
		if calendarWords[strings.ToLower(first)] {
			continue
		}
		return place
	}
	return ""
}
