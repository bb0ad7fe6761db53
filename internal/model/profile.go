package model

// Value type names recorded in a FieldProfile.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeList   = "list"
	TypeObject = "object"
	TypeNull   = "null"
)

// FieldProfile summarizes one field name across a snapshot.
type FieldProfile struct {
	Name             string     `json:"name"`
	Types            []string   `json:"types"`
	Present          int        `json:"present"`
	Missing          int        `json:"missing"` // absent or null
	Nulls            int        `json:"nulls"`   // key present with a null value
	Empty            int        `json:"empty"`   // "", [] or {}
	PresenceFraction float64    `json:"presence_fraction"`
	DuplicateSample  [][]string `json:"duplicate_sample,omitempty"`
}

// Reliable reports whether the field is present on at least threshold of records.
func (p FieldProfile) Reliable(threshold float64) bool {
	return p.PresenceFraction >= threshold
}

// Profile is the data quality index derived from one snapshot.
type Profile struct {
	SnapshotID string                  `json:"snapshot_id"`
	Total      int                     `json:"total"`
	Fields     map[string]FieldProfile `json:"fields"`
	Duplicates [][]string              `json:"duplicates,omitempty"`
}

// Field returns the profile for name and whether it was observed.
func (p *Profile) Field(name string) (FieldProfile, bool) {
	if p == nil {
		return FieldProfile{}, false
	}
	fp, ok := p.Fields[name]
	return fp, ok
}

// Reliable reports whether name is a reliable field under threshold.
// Unknown fields and a nil profile are never reliable.
func (p *Profile) Reliable(name string, threshold float64) bool {
	fp, ok := p.Field(name)
	return ok && fp.Reliable(threshold)
}

// DuplicateRecords returns the number of records that are redundant copies,
// i.e. group size minus one summed over all groups.
func (p *Profile) DuplicateRecords() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, g := range p.Duplicates {
		n += len(g) - 1
	}
	return n
}
