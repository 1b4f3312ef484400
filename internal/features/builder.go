package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrInvalidDateRange is returned when a range ends before it starts
var ErrInvalidDateRange = errors.New("invalid date range: end before start")

// Defaults matching the pipeline configuration defaults
const (
	DefaultRollDays = 7
	DefaultLagDepth = 3
	DefaultSeqLen   = 14

	// hrv_recovery always compares against a one-week baseline
	hrvBaselineDays = 7
)

// Source names used on DailyAggregate
const (
	SourceMeals     = "meals"
	SourceSleep     = "sleep"
	SourceVitals    = "vitals"
	SourceDailyLogs = "daily_logs"
	SourceSymptoms  = "symptoms"
	SourceWorkouts  = "workouts"
)

// BaseColumns lists the per-source aggregate columns every row carries, even
// when the source has no data in the range.
var BaseColumns = map[string][]string{
	SourceMeals:     {"caffeine", "meals_cnt", "avg_calories", "total_protein", "total_carbs", "total_fat", "total_fiber", "total_sugar"},
	SourceSleep:     {"sleep_min", "sleep_score", "deep_min", "rem_min", "avg_awakenings"},
	SourceVitals:    {"hrv_ms", "steps", "hr_mean", "hr_max", "spo2", "active_min", "calories_burned"},
	SourceDailyLogs: {"mood", "stress", "energy", "focus"},
	SourceSymptoms:  {"gut", "skin"},
	SourceWorkouts:  {"workout_count", "total_workout_min", "avg_intensity", "workout_calories"},
}

// RollingColumns get mean/std/min/max over the rolling window
var RollingColumns = []string{
	"caffeine", "sleep_min", "sleep_score", "hrv_ms", "steps",
	"mood", "stress", "energy", "focus", "workout_count",
}

// LagColumns get lag1..lagN features
var LagColumns = []string{"mood", "stress", "sleep_score", "caffeine", "workout_count"}

// EventSource loads per-day aggregates of the raw event tables
type EventSource interface {
	LoadDailyAggregates(ctx context.Context, userID string, start, end time.Time) ([]models.DailyAggregate, error)
}

// Options tunes the feature pipeline
type Options struct {
	RollDays int
	LagDepth int
	SeqLen   int
}

// DefaultOptions returns the standard 7-day rolling, 3-lag, 14-day sequence setup
func DefaultOptions() Options {
	return Options{RollDays: DefaultRollDays, LagDepth: DefaultLagDepth, SeqLen: DefaultSeqLen}
}

func (o Options) normalized() Options {
	if o.RollDays < 1 {
		o.RollDays = DefaultRollDays
	}
	if o.LagDepth < 0 {
		o.LagDepth = DefaultLagDepth
	}
	if o.SeqLen < 1 {
		o.SeqLen = DefaultSeqLen
	}
	return o
}

// Builder materializes the dense daily feature table for a user
type Builder struct {
	source  EventSource
	options Options
	logger  *logrus.Logger
}

// NewBuilder creates a feature builder reading aggregates from source
func NewBuilder(source EventSource, options Options, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{
		source:  source,
		options: options.normalized(),
		logger:  logger,
	}
}

// Options returns the effective pipeline options
func (b *Builder) Options() Options {
	return b.options
}

// Build returns one row per calendar day in [start, end] inclusive. Days with
// no data are zero-filled, never omitted.
func (b *Builder) Build(ctx context.Context, userID string, start, end time.Time) ([]models.DailyFeatureRow, error) {
	start, end = models.Day(start), models.Day(end)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}

	aggregates, err := b.source.LoadDailyAggregates(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily aggregates: %w", err)
	}

	days := models.DaysBetween(start, end)
	table := newColumnTable(days)
	for _, cols := range BaseColumns {
		for _, col := range cols {
			table.ensure(col)
		}
	}

	perSource := make(map[string]int)
	for _, agg := range aggregates {
		idx, ok := table.index[models.FormatDay(agg.Date)]
		if !ok {
			continue
		}
		perSource[agg.Source]++
		for name, value := range agg.Values {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			table.ensure(name)[idx] = value
			table.observed[name] = true
		}
	}

	raw := table.snapshot()
	features := b.engineer(raw)
	rows := b.assemble(userID, days, features, raw, table.observed)

	b.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"start":    models.FormatDay(start),
		"end":      models.FormatDay(end),
		"rows":     len(rows),
		"features": len(features),
		"sources":  perSource,
	}).Debug("Built daily feature table")

	return rows, nil
}

// engineer adds rolling, lag and derived columns on top of the raw columns
func (b *Builder) engineer(raw map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(raw)*2)
	for name, values := range raw {
		out[name] = values
	}

	w := b.options.RollDays
	for _, col := range RollingColumns {
		values := raw[col]
		out[fmt.Sprintf("%s_rmean_%d", col, w)] = RollingMean(values, w)
		out[fmt.Sprintf("%s_rstd_%d", col, w)] = RollingStd(values, w)
		out[fmt.Sprintf("%s_rmin_%d", col, w)] = RollingMin(values, w)
		out[fmt.Sprintf("%s_rmax_%d", col, w)] = RollingMax(values, w)
	}

	for _, col := range LagColumns {
		for k := 1; k <= b.options.LagDepth; k++ {
			out[fmt.Sprintf("%s_lag%d", col, k)] = Lag(raw[col], k)
		}
	}

	for name, values := range derive(raw) {
		out[name] = values
	}
	return out
}

// derive computes the cross-column features
func derive(raw map[string][]float64) map[string][]float64 {
	n := len(raw["sleep_min"])
	sleepEff := make([]float64, n)
	cafAfternoon := make([]float64, n)
	cafEvening := make([]float64, n)
	stressSleep := make([]float64, n)
	exerciseLoad := make([]float64, n)
	hrvRecovery := make([]float64, n)

	hrvBaseline := RollingMean(raw["hrv_ms"], hrvBaselineDays)
	for i := 0; i < n; i++ {
		sleepMin := raw["sleep_min"][i]
		denom := sleepMin + raw["avg_awakenings"][i]*10
		if denom > 0 {
			sleepEff[i] = clip(sleepMin/denom, 0, 1)
		}

		caffeine := raw["caffeine"][i]
		cafAfternoon[i] = caffeine * 0.7
		cafEvening[i] = caffeine * 0.3

		stressSleep[i] = raw["stress"][i] * (10 - raw["sleep_score"][i])
		exerciseLoad[i] = raw["total_workout_min"][i] * raw["avg_intensity"][i]

		hrvRecovery[i] = 1
		if hrvBaseline[i] != 0 {
			hrvRecovery[i] = raw["hrv_ms"][i] / hrvBaseline[i]
		}
	}

	return map[string][]float64{
		"sleep_efficiency":         sleepEff,
		"caffeine_afternoon":       cafAfternoon,
		"caffeine_evening":         cafEvening,
		"stress_sleep_interaction": stressSleep,
		"exercise_load":            exerciseLoad,
		"hrv_recovery":             hrvRecovery,
	}
}

// assemble turns column vectors into rows and attaches next-day labels
func (b *Builder) assemble(userID string, days []time.Time, features, raw map[string][]float64, observed map[string]bool) []models.DailyFeatureRow {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	labelled := make([]models.Target, 0, len(models.AllTargets))
	for _, target := range models.AllTargets {
		if observed[string(target)] {
			labelled = append(labelled, target)
		}
	}

	rows := make([]models.DailyFeatureRow, len(days))
	for i, day := range days {
		values := make(map[string]float64, len(names))
		for _, name := range names {
			v := features[name][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			values[name] = v
		}

		labels := make(map[string]*int, len(labelled))
		for _, target := range labelled {
			key := target.LabelKey()
			if i+1 >= len(days) {
				labels[key] = nil
				continue
			}
			label := 0
			if models.RiskThresholds[target].Positive(raw[string(target)][i+1]) {
				label = 1
			}
			labels[key] = models.IntPtr(label)
		}

		rows[i] = models.DailyFeatureRow{
			UserID:   userID,
			Date:     day,
			Features: values,
			Labels:   labels,
		}
	}
	return rows
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// columnTable is a set of dense float columns indexed by day
type columnTable struct {
	size     int
	index    map[string]int
	columns  map[string][]float64
	observed map[string]bool
}

func newColumnTable(days []time.Time) *columnTable {
	index := make(map[string]int, len(days))
	for i, day := range days {
		index[models.FormatDay(day)] = i
	}
	return &columnTable{
		size:     len(days),
		index:    index,
		columns:  make(map[string][]float64),
		observed: make(map[string]bool),
	}
}

func (t *columnTable) ensure(name string) []float64 {
	col, ok := t.columns[name]
	if !ok {
		col = make([]float64, t.size)
		t.columns[name] = col
	}
	return col
}

func (t *columnTable) snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(t.columns))
	for name, col := range t.columns {
		out[name] = col
	}
	return out
}

// DerivedColumns are the cross-column features derive adds
var DerivedColumns = []string{
	"sleep_efficiency", "caffeine_afternoon", "caffeine_evening",
	"stress_sleep_interaction", "exercise_load", "hrv_recovery",
}

var (
	rollingName = regexp.MustCompile(`^(.+)_r(mean|std|min|max)_\d+$`)
	lagName     = regexp.MustCompile(`^(.+)_lag\d+$`)
)

// SymptomColumn maps a free-text symptom type to its feature column. Types
// that collide with a non-symptom base column or an engineered column get a
// symptom_ prefix.
func SymptomColumn(symptomType string) string {
	name := strings.Join(strings.Fields(strings.ToLower(symptomType)), "_")
	if name == "" {
		return "symptom_unknown"
	}
	if engineered(name) {
		return "symptom_" + name
	}
	for source, cols := range BaseColumns {
		if source == SourceSymptoms {
			continue
		}
		for _, col := range cols {
			if col == name {
				return "symptom_" + name
			}
		}
	}
	return name
}

// engineered reports whether name is produced by engineer for any window
// or lag depth
func engineered(name string) bool {
	if contains(DerivedColumns, name) {
		return true
	}
	if m := rollingName.FindStringSubmatch(name); m != nil && contains(RollingColumns, m[1]) {
		return true
	}
	if m := lagName.FindStringSubmatch(name); m != nil && contains(LagColumns, m[1]) {
		return true
	}
	return false
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
