package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/member-qa/internal/model"
)

// FindingKind classifies a data quality finding.
type FindingKind string

const (
	FindingInconsistentType FindingKind = "inconsistent_type"
	FindingSparseField      FindingKind = "sparse_field"
	FindingEmptyValues      FindingKind = "empty_values"
	FindingDuplicates       FindingKind = "duplicates"
)

var kindOrder = map[FindingKind]int{
	FindingInconsistentType: 0,
	FindingSparseField:      1,
	FindingEmptyValues:      2,
	FindingDuplicates:       3,
}

// Finding is one anomaly in a profile.
type Finding struct {
	Kind   FindingKind `json:"kind"`
	Field  string      `json:"field,omitempty"`
	Detail string      `json:"detail"`
}

func (f Finding) String() string {
	if f.Field == "" {
		return fmt.Sprintf("[%s] %s", f.Kind, f.Detail)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Kind, f.Field, f.Detail)
}

// Findings lists the anomalies in p: fields observed with more than one
// non-null type, fields present on fewer than threshold of records, fields
// holding null or empty values, and redundant duplicate records.
func Findings(p *model.Profile, threshold float64) []Finding {
	if p == nil {
		return nil
	}
	var out []Finding

	for name, fp := range p.Fields {
		if nonNull := nonNullTypes(fp.Types); len(nonNull) > 1 {
			out = append(out, Finding{
				Kind:   FindingInconsistentType,
				Field:  name,
				Detail: "types " + strings.Join(nonNull, ", "),
			})
		}
		if !fp.Reliable(threshold) {
			out = append(out, Finding{
				Kind:   FindingSparseField,
				Field:  name,
				Detail: fmt.Sprintf("present on %d/%d records (%.0f%%)", fp.Present, p.Total, fp.PresenceFraction*100),
			})
		}
		if fp.Empty > 0 || fp.Nulls > 0 {
			out = append(out, Finding{
				Kind:   FindingEmptyValues,
				Field:  name,
				Detail: fmt.Sprintf("%d null, %d empty", fp.Nulls, fp.Empty),
			})
		}
	}

	if n := p.DuplicateRecords(); n > 0 {
		out = append(out, Finding{
			Kind:   FindingDuplicates,
			Detail: fmt.Sprintf("%d duplicate records in %d groups", n, len(p.Duplicates)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder[out[i].Kind] < kindOrder[out[j].Kind]
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func nonNullTypes(types []string) []string {
	var out []string
	for _, t := range types {
		if t != model.TypeNull {
			out = append(out, t)
		}
	}
	return out
}
