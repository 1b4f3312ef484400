package features

import (
	"sort"

	"github.com/irfndi/healthcast-go/internal/models"
)

// WindowStats reports how a windowing pass went
type WindowStats struct {
	Rows     int `json:"rows"`
	Windows  int `json:"windows"`
	Dropped  int `json:"dropped"`
	Features int `json:"features"`
}

// Windows slices date-ordered daily rows into overlapping windows of seqLen
// rows. The label of each window comes from the row right after it, so N rows
// yield at most N-seqLen windows. Windows whose rows (label row included) are
// not consecutive calendar days are dropped and counted in Dropped.
func Windows(rows []models.DailyFeatureRow, seqLen int) ([]models.SequenceWindow, WindowStats) {
	stats := WindowStats{Rows: len(rows)}
	if seqLen < 1 || len(rows) <= seqLen {
		return nil, stats
	}

	ordered := make([]models.DailyFeatureRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	names := models.FeatureNames(ordered)
	stats.Features = len(names)

	vectors := make([][]float64, len(ordered))
	for i, row := range ordered {
		vectors[i] = row.Vector(names)
	}

	// breaks[i] is true when row i does not follow row i-1 by exactly one day
	breaks := make([]bool, len(ordered))
	for i := 1; i < len(ordered); i++ {
		prev := models.Day(ordered[i-1].Date)
		breaks[i] = !models.Day(ordered[i].Date).Equal(prev.AddDate(0, 0, 1))
	}

	windows := make([]models.SequenceWindow, 0, len(ordered)-seqLen)
	for i := 0; i+seqLen < len(ordered); i++ {
		if hasBreak(breaks, i+1, i+seqLen) {
			stats.Dropped++
			continue
		}

		labelRow := ordered[i+seqLen]
		labels := make(map[string]*int, len(labelRow.Labels))
		for key, v := range labelRow.Labels {
			labels[key] = v
		}

		windows = append(windows, models.SequenceWindow{
			UserID:       labelRow.UserID,
			EndDate:      models.Day(labelRow.Date),
			FeatureNames: names,
			X:            vectors[i : i+seqLen : i+seqLen],
			Labels:       labels,
		})
	}

	stats.Windows = len(windows)
	return windows, stats
}

// hasBreak reports whether any row in [from, to] starts a gap
func hasBreak(breaks []bool, from, to int) bool {
	for i := from; i <= to; i++ {
		if breaks[i] {
			return true
		}
	}
	return false
}
