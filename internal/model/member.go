package model

import (
	"strings"
	"time"
)

// MemberRecord is one upstream member entry. Field sets differ between
// records, so every access goes through an explicit presence check.
type MemberRecord struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Field returns the value stored under key and whether the key exists.
// A key that exists with a nil value reports (nil, true).
func (r MemberRecord) Field(key string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[key]
	return v, ok
}

// Has reports whether key exists with a non-nil value.
func (r MemberRecord) Has(key string) bool {
	v, ok := r.Field(key)
	return ok && v != nil
}

// FieldNames returns the record's field keys in no particular order.
func (r MemberRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	return names
}

// FirstName returns the first whitespace-separated token of the display name.
func (r MemberRecord) FirstName() string {
	parts := strings.Fields(r.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// DatasetSnapshot is an immutable point-in-time copy of the member dataset.
// A newer snapshot supersedes it; it is never modified in place.
type DatasetSnapshot struct {
	ID        string         `json:"id"`
	Records   []MemberRecord `json:"records"`
	FetchedAt time.Time      `json:"fetched_at"`
	Signature string         `json:"signature"`
}

// Len returns the number of records, treating a nil snapshot as empty.
func (s *DatasetSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Age returns how long ago the snapshot was fetched relative to now.
func (s *DatasetSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// RecordsByID returns the records whose ID is in ids, in snapshot order.
func (s *DatasetSnapshot) RecordsByID(ids []string) []MemberRecord {
	if s == nil || len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []MemberRecord
	for _, r := range s.Records {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}
