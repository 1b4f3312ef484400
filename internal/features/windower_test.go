package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/models"
)

func makeRows(start time.Time, n int) []models.DailyFeatureRow {
	rows := make([]models.DailyFeatureRow, n)
	for i := 0; i < n; i++ {
		label := i % 2
		rows[i] = models.DailyFeatureRow{
			UserID:   "u1",
			Date:     start.AddDate(0, 0, i),
			Features: map[string]float64{"b": float64(i), "a": float64(i * 10)},
			Labels:   map[string]*int{"y_gut_next": models.IntPtr(label)},
		}
	}
	return rows
}

func TestWindows_CountAndShape(t *testing.T) {
	rows := makeRows(day("2024-01-01"), 20)

	windows, stats := Windows(rows, 14)

	require.Len(t, windows, 6)
	assert.Equal(t, WindowStats{Rows: 20, Windows: 6, Dropped: 0, Features: 2}, stats)

	for i, w := range windows {
		assert.Len(t, w.X, 14)
		assert.Equal(t, []string{"a", "b"}, w.FeatureNames)
		// label and date come from the row right after the window
		assert.Equal(t, rows[i+14].Date, w.EndDate)
		label, ok := w.Label(models.TargetGut)
		require.True(t, ok)
		assert.Equal(t, (i+14)%2, label)
		// features follow the sorted schema
		assert.Equal(t, []float64{float64(i * 10), float64(i)}, w.X[0])
	}
}

func TestWindows_TooFewRows(t *testing.T) {
	windows, stats := Windows(makeRows(day("2024-01-01"), 14), 14)
	assert.Empty(t, windows)
	assert.Equal(t, 0, stats.Windows)

	windows, _ = Windows(makeRows(day("2024-01-01"), 15), 14)
	assert.Len(t, windows, 1)

	windows, _ = Windows(nil, 14)
	assert.Empty(t, windows)

	windows, _ = Windows(makeRows(day("2024-01-01"), 5), 0)
	assert.Empty(t, windows)
}

func TestWindows_DropsWindowsAcrossGaps(t *testing.T) {
	rows := makeRows(day("2024-01-01"), 10)
	// skip a day between index 4 and 5
	for i := 5; i < len(rows); i++ {
		rows[i].Date = rows[i].Date.AddDate(0, 0, 1)
	}

	windows, stats := Windows(rows, 3)

	// 7 candidate windows; those spanning rows 4->5 (starts 2, 3, 4) are dropped
	assert.Equal(t, 4, stats.Windows)
	assert.Equal(t, 3, stats.Dropped)
	for _, w := range windows {
		assert.Len(t, w.X, 3)
	}
}

func TestWindows_SortsUnorderedInput(t *testing.T) {
	rows := makeRows(day("2024-01-01"), 5)
	rows[0], rows[4] = rows[4], rows[0]

	windows, stats := Windows(rows, 2)

	assert.Equal(t, 3, stats.Windows)
	assert.Equal(t, day("2024-01-03"), windows[0].EndDate)
}

func TestWindows_NullLabelCarried(t *testing.T) {
	rows := makeRows(day("2024-01-01"), 4)
	rows[3].Labels["y_gut_next"] = nil

	windows, _ := Windows(rows, 3)
	require.Len(t, windows, 1)
	_, ok := windows[0].Label(models.TargetGut)
	assert.False(t, ok)
}
