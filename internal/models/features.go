package models

import (
	"sort"
	"time"
)

// DailyFeatureRow is one materialized day for a user. Labels hold the
// next-day risk label per target key (y_<target>_next); a nil value means the
// label is undefined, which is always the case for the last day of a range.
type DailyFeatureRow struct {
	UserID    string             `json:"user_id" db:"user_id"`
	Date      time.Time          `json:"date" db:"date"`
	Features  map[string]float64 `json:"features" db:"features_json"`
	Labels    map[string]*int    `json:"labels" db:"labels_json"`
	CreatedAt time.Time          `json:"created_at,omitempty" db:"created_at"`
}

// Label returns the label for target and whether it is defined
func (r DailyFeatureRow) Label(target Target) (int, bool) {
	v, ok := r.Labels[target.LabelKey()]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Vector returns the feature values in the order of names. Names missing from
// the row score as 0.
func (r DailyFeatureRow) Vector(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = r.Features[name]
	}
	return out
}

// SequenceWindow is seq_len consecutive feature vectors plus the labels of the
// row immediately after them. EndDate is the date of that label row.
type SequenceWindow struct {
	UserID       string          `json:"user_id" db:"user_id"`
	EndDate      time.Time       `json:"date" db:"date"`
	FeatureNames []string        `json:"feature_names"`
	X            [][]float64     `json:"X"`
	Labels       map[string]*int `json:"Y"`
}

// Label returns the label for target and whether it is defined
func (w SequenceWindow) Label(target Target) (int, bool) {
	v, ok := w.Labels[target.LabelKey()]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// FeatureNames returns the sorted union of feature names across rows
func FeatureNames(rows []DailyFeatureRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for name := range row.Features {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC calendar day
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// FormatDay renders a calendar day as YYYY-MM-DD
func FormatDay(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DaysBetween returns the inclusive list of calendar days from start to end
func DaysBetween(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// IntPtr is a small helper for building optional labels
func IntPtr(v int) *int {
	return &v
}
