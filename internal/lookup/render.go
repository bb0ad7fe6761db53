package lookup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/member-qa/internal/quality"
	"github.com/sells-group/member-qa/internal/resolver"
)

// Sub-field names read from a structured trip value, in preference order.
var (
	destinationKeys = []string{"destination", "city", "location", "to", "place"}
	dateKeys        = []string{"date", "when", "start_date", "departure", "dates"}
)

// render picks the sentence template for attribute. key is the field the
// value was found under.
func render(name, attribute, key string, v any) string {
	switch attribute {
	case resolver.AttrTrip:
		return renderTrip(name, v)
	case resolver.AttrCars:
		return renderCars(name, key, v)
	case resolver.AttrRestaurants:
		return renderRestaurants(name, key, v)
	}
	return fmt.Sprintf("%s's %s is %s.", name, humanize(key), formatValue(v))
}

func renderTrip(name string, v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprintf("%s's trip: %s.", name, formatValue(v))
	}
	dest := pick(obj, destinationKeys)
	date := pick(obj, dateKeys)
	return tripSentence(name, dest, date, obj)
}

// tripSentence renders whatever of destination and date is known. With
// neither, the whole object is listed.
func tripSentence(name, dest, date string, obj map[string]any) string {
	switch {
	case dest != "" && date != "":
		return fmt.Sprintf("%s is planning a trip to %s on %s.", name, dest, date)
	case dest != "":
		return fmt.Sprintf("%s is planning a trip to %s.", name, dest)
	case date != "":
		return fmt.Sprintf("%s is planning a trip on %s.", name, date)
	}
	return fmt.Sprintf("%s's trip: %s.", name, formatValue(obj))
}

func renderCars(name, key string, v any) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("%s has %d car(s): %s.", name, len(val), formatValue(val))
	case string:
		if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return fmt.Sprintf("%s has %s car(s).", name, strings.TrimSpace(val))
		}
		return fmt.Sprintf("%s's %s: %s.", name, humanize(key), val)
	case map[string]any:
		return fmt.Sprintf("%s's %s: %s.", name, humanize(key), formatValue(val))
	}
	return fmt.Sprintf("%s has %s car(s).", name, formatValue(v))
}

func renderRestaurants(name, key string, v any) string {
	switch val := v.(type) {
	case []any:
		if len(val) == 1 {
			return fmt.Sprintf("%s's favorite restaurant is %s.", name, formatValue(val[0]))
		}
		return fmt.Sprintf("%s's favorite restaurants are %s.", name, formatValue(val))
	case map[string]any:
		return fmt.Sprintf("%s's %s: %s.", name, humanize(key), formatValue(val))
	}
	return fmt.Sprintf("%s's favorite restaurant is %s.", name, formatValue(v))
}

// pick returns the first non-empty value in obj under keys, matching key
// names case-insensitively.
func pick(obj map[string]any, keys []string) string {
	lower := make(map[string]any, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}
	for _, k := range keys {
		v, ok := lower[k]
		if !ok || v == nil || quality.IsEmpty(v) {
			continue
		}
		return formatValue(v)
	}
	return ""
}

// formatValue renders v as it appears in the data: numbers without trailing
// zeros, lists comma-joined, objects as sorted "key: value" pairs.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := formatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := formatValue(val[k]); s != "" {
				parts = append(parts, humanize(k)+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}
