package quality

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestFindings(t *testing.T) {
	got := Findings(BuildProfile(fixture()), DefaultThreshold)

	want := []Finding{
		{Kind: FindingInconsistentType, Field: "cars", Detail: "types number, string"},
		{Kind: FindingSparseField, Field: "notes", Detail: "present on 1/5 records (20%)"},
		{Kind: FindingSparseField, Field: "restaurants", Detail: "present on 1/5 records (20%)"},
		{Kind: FindingSparseField, Field: "trip", Detail: "present on 2/5 records (40%)"},
		{Kind: FindingEmptyValues, Field: "cars", Detail: "1 null, 0 empty"},
		{Kind: FindingEmptyValues, Field: "notes", Detail: "0 null, 1 empty"},
		{Kind: FindingDuplicates, Detail: "2 duplicate records in 1 groups"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Findings mismatch (-want +got):\n%s", diff)
	}
}

func TestFindings_ThresholdAndNil(t *testing.T) {
	p := BuildProfile(fixture())
	for _, f := range Findings(p, 0.1) {
		assert.NotEqual(t, FindingSparseField, f.Kind)
	}
	assert.Nil(t, Findings(nil, DefaultThreshold))
}

func TestFinding_String(t *testing.T) {
	assert.Equal(t, "[sparse_field] trip: present on 2/5 records (40%)",
		Finding{Kind: FindingSparseField, Field: "trip", Detail: "present on 2/5 records (40%)"}.String())
	assert.Equal(t, "[duplicates] 1 duplicate records in 1 groups",
		Finding{Kind: FindingDuplicates, Detail: "1 duplicate records in 1 groups"}.String())
}
