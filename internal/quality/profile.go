// Package quality derives field reliability and duplicate groups from a
// member snapshot.
package quality

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/sells-group/member-qa/internal/model"
)

// DefaultThreshold is the presence fraction at which a field counts as reliable.
const DefaultThreshold = 0.5

const maxDuplicateSample = 3

type fieldStats struct {
	types   map[string]struct{}
	present int
	nulls   int
	empty   int
}

// BuildProfile scans snap once per record and returns its quality profile.
// The result depends only on the set of records, not their order.
func BuildProfile(snap *model.DatasetSnapshot) *model.Profile {
	p := &model.Profile{Fields: map[string]model.FieldProfile{}}
	if snap == nil {
		return p
	}
	p.SnapshotID = snap.ID
	p.Total = len(snap.Records)

	stats := map[string]*fieldStats{}
	for _, r := range snap.Records {
		for k, v := range r.Fields {
			st, ok := stats[k]
			if !ok {
				st = &fieldStats{types: map[string]struct{}{}}
				stats[k] = st
			}
			st.types[TypeOf(v)] = struct{}{}
			if v != nil {
				st.present++
			} else {
				st.nulls++
			}
			if IsEmpty(v) {
				st.empty++
			}
		}
	}

	p.Duplicates = duplicateGroups(snap.Records)

	for name, st := range stats {
		types := make([]string, 0, len(st.types))
		for t := range st.types {
			types = append(types, t)
		}
		sort.Strings(types)

		fp := model.FieldProfile{
			Name:    name,
			Types:   types,
			Present: st.present,
			Missing: p.Total - st.present,
			Nulls:   st.nulls,
			Empty:   st.empty,
		}
		if p.Total > 0 {
			fp.PresenceFraction = float64(st.present) / float64(p.Total)
		}
		fp.DuplicateSample = sampleGroups(p.Duplicates, snap, name)
		p.Fields[name] = fp
	}
	return p
}

// TypeOf names the JSON-ish type of a decoded value.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return model.TypeNull
	case string:
		return model.TypeString
	case bool:
		return model.TypeBool
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return model.TypeNumber
	case []any, []string:
		return model.TypeList
	case map[string]any:
		return model.TypeObject
	default:
		return model.TypeObject
	}
}

// IsEmpty reports whether v is present but carries nothing: a blank string,
// an empty list or an empty object.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// canonical renders v so that equal values compare equal as strings.
// encoding/json sorts map keys.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "\x00unencodable"
	}
	return string(b)
}

// sameMember reports whether a and b are duplicates: every field present in
// both compares equal and at least one comparable field exists. The display
// name counts as a field.
func sameMember(a, b model.MemberRecord) bool {
	common := 0
	if a.Name != "" || b.Name != "" {
		if a.Name != b.Name {
			return false
		}
		common++
	}
	for k, av := range a.Fields {
		if av == nil {
			continue
		}
		bv, ok := b.Fields[k]
		if !ok || bv == nil {
			continue
		}
		if canonical(av) != canonical(bv) {
			return false
		}
		common++
	}
	return common > 0
}

// duplicateGroups returns groups of record IDs (size ≥ 2) under the
// transitive closure of sameMember. IDs within a group and the groups
// themselves are sorted.
func duplicateGroups(records []model.MemberRecord) [][]string {
	buckets := map[string][]int{}
	for i, r := range records {
		buckets[strings.TrimSpace(r.Name)] = append(buckets[strings.TrimSpace(r.Name)], i)
	}

	uf := newUnionFind(len(records))
	for _, idx := range buckets {
		for x := 0; x < len(idx); x++ {
			for y := x + 1; y < len(idx); y++ {
				if uf.find(idx[x]) == uf.find(idx[y]) {
					continue
				}
				if sameMember(records[idx[x]], records[idx[y]]) {
					uf.union(idx[x], idx[y])
				}
			}
		}
	}

	byRoot := map[int][]string{}
	for i, r := range records {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], r.ID)
	}
	var groups [][]string
	for _, ids := range byRoot {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		groups = append(groups, ids)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// sampleGroups returns up to maxDuplicateSample duplicate groups whose
// records all carry field.
func sampleGroups(groups [][]string, snap *model.DatasetSnapshot, field string) [][]string {
	if len(groups) == 0 {
		return nil
	}
	has := map[string]bool{}
	for _, r := range snap.Records {
		if r.Has(field) {
			has[r.ID] = true
		}
	}
	var out [][]string
	for _, g := range groups {
		if !slices.ContainsFunc(g, func(id string) bool { return !has[id] }) {
			out = append(out, g)
			if len(out) == maxDuplicateSample {
				break
			}
		}
	}
	return out
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
