package resolver

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Canonical attribute names used by the default vocabulary.
const (
	AttrTrip        = "trip"
	AttrCars        = "cars"
	AttrRestaurants = "restaurants"
)

// DefaultVocabulary maps surface keyword phrases to canonical field names.
func DefaultVocabulary() map[string]string {
	return map[string]string{
		"trip":                AttrTrip,
		"trips":               AttrTrip,
		"travel":              AttrTrip,
		"traveling":           AttrTrip,
		"travelling":          AttrTrip,
		"vacation":            AttrTrip,
		"holiday":             AttrTrip,
		"flight":              AttrTrip,
		"car":                 AttrCars,
		"cars":                AttrCars,
		"vehicle":             AttrCars,
		"vehicles":            AttrCars,
		"restaurant":          AttrRestaurants,
		"restaurants":         AttrRestaurants,
		"favorite":            AttrRestaurants,
		"favourite":           AttrRestaurants,
		"favorite restaurant": AttrRestaurants,
		"dining":              AttrRestaurants,
	}
}

// vocabularyFile is the on-disk layout: canonical field to its keyword phrases.
//
//	vocabulary:
//	  trip: [trip, travel, "flying to"]
//	  cars: [car, cars, vehicle]
type vocabularyFile struct {
	Vocabulary map[string][]string `yaml:"vocabulary"`
}

// LoadVocabularyFile reads a YAML vocabulary and returns it keyed by phrase.
func LoadVocabularyFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: read vocabulary %s", path)
	}
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "resolver: parse vocabulary %s", path)
	}
	out := make(map[string]string)
	for field, phrases := range f.Vocabulary {
		for _, p := range phrases {
			out[p] = field
		}
	}
	return out, nil
}

type phrase struct {
	text   string
	tokens []string
	field  string
}

// compileVocabulary normalizes phrases and orders them so the first match in
// a scan is the preferred one: more tokens, then longer text, then lexical.
func compileVocabulary(vocab map[string]string) []phrase {
	byText := map[string]phrase{}
	for surface, field := range vocab {
		toks := Tokens(surface)
		field = strings.TrimSpace(field)
		if len(toks) == 0 || field == "" {
			continue
		}
		text := strings.Join(toks, " ")
		byText[text] = phrase{text: text, tokens: toks, field: field}
	}

	out := make([]phrase, 0, len(byText))
	for _, p := range byText {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if len(a.tokens) != len(b.tokens) {
			return len(a.tokens) > len(b.tokens)
		}
		if len(a.text) != len(b.text) {
			return len(a.text) > len(b.text)
		}
		return a.text < b.text
	})
	return out
}
