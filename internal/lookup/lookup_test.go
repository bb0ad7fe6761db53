package lookup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/quality"
	"github.com/sells-group/member-qa/internal/resolver"
)

func single(id, name string, fields map[string]any) *model.DatasetSnapshot {
	return &model.DatasetSnapshot{ID: "s", Records: []model.MemberRecord{{ID: id, Name: name, Fields: fields}}}
}

func highQuery(name, attribute string, ids []string, keys ...string) model.ResolvedQuery {
	return model.ResolvedQuery{
		Candidates: []model.Candidate{{Name: name, RecordIDs: ids, Score: 2}},
		Attribute:  attribute,
		FieldKeys:  keys,
		Confidence: model.ConfidenceHigh,
	}
}

func TestAnswer_VikramCars(t *testing.T) {
	snap := single("v1", "Vikram Desai", map[string]any{"cars": float64(3)})
	q := resolver.New(resolver.Options{}).Resolve("How many cars does Vikram Desai have?", snap, quality.BuildProfile(snap))
	require.True(t, q.IsHigh())

	out := New(Options{}).Answer(q, snap)
	require.True(t, out.OK())
	assert.Equal(t, model.ProvenanceDeterministic, out.Answer.Provenance)
	assert.Equal(t, "Vikram Desai has 3 car(s).", out.Answer.Text)
	assert.Contains(t, out.Answer.Text, "3")
}

func TestAnswer_ContainsLiteralValue(t *testing.T) {
	tests := []struct {
		name      string
		attribute string
		key       string
		value     any
		want      string
		contains  []string
	}{
		{"cars fractional", resolver.AttrCars, "cars", 2.5, "Vikram Desai has 2.5 car(s).", nil},
		{"cars numeric string", resolver.AttrCars, "cars", " 4 ", "Vikram Desai has 4 car(s).", nil},
		{"cars list", resolver.AttrCars, "cars", []any{"Tesla", "Volvo"}, "Vikram Desai has 2 car(s): Tesla, Volvo.", nil},
		{"cars free text", resolver.AttrCars, "car_notes", "a red Tesla", "Vikram Desai's car notes: a red Tesla.", nil},
		{"cars object", resolver.AttrCars, "cars", map[string]any{"count": float64(2), "make": "BMW"}, "", []string{"2", "BMW"}},
		{"trip object", resolver.AttrTrip, "trip", map[string]any{"destination": "London", "date": "2025-06-01"}, "Vikram Desai is planning a trip to London on 2025-06-01.", nil},
		{"trip city only", resolver.AttrTrip, "trip", map[string]any{"City": "Lisbon"}, "Vikram Desai is planning a trip to Lisbon.", nil},
		{"trip date only", resolver.AttrTrip, "trip", map[string]any{"when": "next Friday"}, "Vikram Desai is planning a trip on next Friday.", nil},
		{"trip other keys", resolver.AttrTrip, "trip", map[string]any{"purpose": "wedding"}, "Vikram Desai's trip: purpose: wedding.", nil},
		{"trip scalar", resolver.AttrTrip, "trip", "Tokyo in May", "Vikram Desai's trip: Tokyo in May.", nil},
		{"restaurant single", resolver.AttrRestaurants, "restaurants", []any{"Nobu"}, "Vikram Desai's favorite restaurant is Nobu.", nil},
		{"restaurants list", resolver.AttrRestaurants, "restaurants", []any{"Nobu", "Dishoom"}, "Vikram Desai's favorite restaurants are Nobu, Dishoom.", nil},
		{"restaurant scalar", resolver.AttrRestaurants, "restaurants", "Dishoom", "Vikram Desai's favorite restaurant is Dishoom.", nil},
		{"generic field", "shoe_size", "shoe_size", float64(42), "Vikram Desai's shoe size is 42.", nil},
		{"generic bool", "vip", "vip", true, "Vikram Desai's vip is true.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := single("v1", "Vikram Desai", map[string]any{tt.key: tt.value})
			out := New(Options{}).Answer(highQuery("Vikram Desai", tt.attribute, []string{"v1"}, tt.key), snap)
			require.True(t, out.OK(), out.Reason)
			if tt.want != "" {
				assert.Equal(t, tt.want, out.Answer.Text)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out.Answer.Text, s)
			}
		})
	}
}

func TestAnswer_Unresolved(t *testing.T) {
	snap := single("v1", "Vikram Desai", map[string]any{"cars": float64(3), "trip": nil, "restaurants": ""})
	e := New(Options{})

	t.Run("low confidence", func(t *testing.T) {
		q := highQuery("Vikram Desai", resolver.AttrCars, []string{"v1"}, "cars")
		q.Confidence = model.ConfidenceLow
		out := e.Answer(q, snap)
		assert.Equal(t, model.OutcomeUnresolved, out.Kind)
		assert.Equal(t, ReasonLowConf, out.Reason)
	})

	t.Run("ambiguous", func(t *testing.T) {
		q := highQuery("Vikram Desai", resolver.AttrCars, []string{"v1"}, "cars")
		q.Candidates = append(q.Candidates, model.Candidate{Name: "Vikram Rao", RecordIDs: []string{"v2"}})
		q.Confidence = model.ConfidenceAmbiguous
		out := e.Answer(q, snap)
		assert.Equal(t, ReasonAmbiguous, out.Reason)
		assert.False(t, out.OK())
	})

	t.Run("no member", func(t *testing.T) {
		q := resolver.New(resolver.Options{}).Resolve("How many cars does Zed have?", snap, nil)
		out := e.Answer(q, snap)
		assert.Equal(t, ReasonNoMember, out.Reason)
	})

	t.Run("no snapshot", func(t *testing.T) {
		out := e.Answer(highQuery("Vikram Desai", resolver.AttrCars, []string{"v1"}, "cars"), nil)
		assert.Equal(t, ReasonNoSnapshot, out.Reason)
	})

	t.Run("absent field", func(t *testing.T) {
		out := e.Answer(highQuery("Vikram Desai", "pets", []string{"v1"}, "pets"), snap)
		assert.Equal(t, ReasonNotPresent, out.Reason)
	})

	t.Run("null and empty values are absent", func(t *testing.T) {
		out := e.Answer(highQuery("Vikram Desai", resolver.AttrTrip, []string{"v1"}, "trip"), snap)
		assert.Equal(t, ReasonNotPresent, out.Reason)
		out = e.Answer(highQuery("Vikram Desai", resolver.AttrRestaurants, []string{"v1"}, "restaurants"), snap)
		assert.Equal(t, ReasonNotPresent, out.Reason)
	})
}

func TestAnswer_FieldKeyOrderAndRecords(t *testing.T) {
	snap := &model.DatasetSnapshot{
		ID: "s",
		Records: []model.MemberRecord{
			{ID: "a", Name: "Amira Khan", Fields: map[string]any{"car_count": float64(1)}},
			{ID: "other", Name: "Someone Else", Fields: map[string]any{"cars": float64(7)}},
			{ID: "b", Name: "Amira Khan", Fields: map[string]any{"cars": float64(2)}},
		},
	}
	e := New(Options{})

	out := e.Answer(highQuery("Amira Khan", resolver.AttrCars, []string{"a", "b"}, "cars", "car_count"), snap)
	require.True(t, out.OK())
	assert.Equal(t, "Amira Khan has 2 car(s).", out.Answer.Text, "earlier key wins over earlier record")

	out = e.Answer(highQuery("Amira Khan", resolver.AttrCars, []string{"a"}, "cars", "car_count"), snap)
	require.True(t, out.OK())
	assert.Equal(t, "Amira Khan has 1 car(s).", out.Answer.Text, "falls through to the related key")
}

func TestAnswer_Mentions(t *testing.T) {
	snap := &model.DatasetSnapshot{
		ID: "s",
		Records: []model.MemberRecord{
			{ID: "1", Name: "Layla Kawaguchi", Fields: map[string]any{"message": "Please confirm my dinner booking."}},
			{ID: "2", Name: "Layla Kawaguchi", Fields: map[string]any{"message": "Planning my trip to London on 2025-03-14, need a hotel."}},
			{ID: "3", Name: "Amira Khan", Fields: map[string]any{"message": "Update the insurance for my 2 electric cars"}},
			{ID: "4", Name: "Amira Khan", Fields: map[string]any{"message": "Book a table at Nobu for Friday"}},
			{ID: "5", Name: "Hans Müller", Fields: map[string]any{"message": "I'm flying to New York next Friday"}},
			{ID: "6", Name: "Hans Müller", Fields: map[string]any{"note": "Trip in March to Rome", "message": 12}},
			{ID: "7", Name: "Sara Ito", Fields: map[string]any{"message": "Need to rethink my travel plans"}},
			{ID: "8", Name: "Sara Ito", Fields: map[string]any{"message": "My car is in the shop"}},
		},
	}
	e := New(Options{})

	tests := []struct {
		name      string
		member    string
		ids       []string
		attribute string
		want      string
	}{
		{"trip with destination and date", "Layla Kawaguchi", []string{"1", "2"}, resolver.AttrTrip, "Layla Kawaguchi is planning a trip to London on 2025-03-14."},
		{"car count from text", "Amira Khan", []string{"3", "4"}, resolver.AttrCars, "Amira Khan has 2 car(s)."},
		{"restaurant quoted", "Amira Khan", []string{"3", "4"}, resolver.AttrRestaurants, `Amira Khan mentioned: "Book a table at Nobu for Friday".`},
		{"relative date", "Hans Müller", []string{"5"}, resolver.AttrTrip, "Hans Müller is planning a trip to New York on next Friday."},
		{"travel without details", "Sara Ito", []string{"7", "8"}, resolver.AttrTrip, `Sara Ito mentioned: "Need to rethink my travel plans".`},
		{"car without count", "Sara Ito", []string{"7", "8"}, resolver.AttrCars, `Sara Ito mentioned: "My car is in the shop".`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Answer(highQuery(tt.member, tt.attribute, tt.ids, tt.attribute), snap)
			require.True(t, out.OK(), out.Reason)
			assert.Equal(t, model.ProvenanceDeterministic, out.Answer.Provenance)
			assert.Equal(t, tt.want, out.Answer.Text)
		})
	}

	t.Run("configured text field skips calendar words", func(t *testing.T) {
		out := New(Options{TextFields: []string{"note"}}).Answer(highQuery("Hans Müller", resolver.AttrTrip, []string{"6"}, "trip"), snap)
		require.True(t, out.OK())
		assert.Equal(t, "Hans Müller is planning a trip to Rome.", out.Answer.Text)
	})

	t.Run("non-text message ignored", func(t *testing.T) {
		out := e.Answer(highQuery("Hans Müller", resolver.AttrTrip, []string{"6"}, "trip"), snap)
		assert.Equal(t, ReasonNotPresent, out.Reason)
	})

	t.Run("no cue in any message", func(t *testing.T) {
		out := e.Answer(highQuery("Layla Kawaguchi", resolver.AttrCars, []string{"1", "2"}, "cars"), snap)
		assert.Equal(t, ReasonNotPresent, out.Reason)
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "3", formatValue(float64(3)))
	assert.Equal(t, "0.1", formatValue(0.1))
	assert.Equal(t, "7", formatValue(json.Number("7")))
	assert.Equal(t, "12", formatValue(int64(12)))
	assert.Equal(t, "a, 2", formatValue([]any{"a", nil, float64(2)}))
	assert.Equal(t, "a: x; b: 1", formatValue(map[string]any{"b": float64(1), "a": "x", "c": nil}))
	assert.Equal(t, "favorite food", humanize("favorite_food"))
}
