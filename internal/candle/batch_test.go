package candle

import (
	"testing"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateHistorical_Chunks(t *testing.T) {
	bars := minuteBars(sessionStart, 12)

	got, err := AggregateHistorical(bars, types.Minute5)
	require.NoError(t, err)

	require.Len(t, got, 2, "trailing partial chunk is dropped")
	assert.Equal(t, mustCombine(t, bars[0:5]), got[0])
	assert.Equal(t, mustCombine(t, bars[5:10]), got[1])
}

func TestAggregateHistorical_Intraday(t *testing.T) {
	bars := minuteBars(sessionStart, 500)

	testCases := []struct {
		tf   types.Timeframe
		want int
	}{
		{tf: types.Minute1, want: 500},
		{tf: types.Minute15, want: 33},
		{tf: types.Minute30, want: 16},
		{tf: types.Hour1, want: 8},
		{tf: types.Hour4, want: 2},
		{tf: types.Day1, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.tf.String(), func(t *testing.T) {
			got, err := AggregateHistorical(bars, tc.tf)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestAggregateHistorical_DailyChunksAreNotCalendarAligned(t *testing.T) {
	// starts mid-session, so the first 1440-bar chunk spans two dates
	bars := minuteBars(sessionStart, 3000)

	got, err := AggregateHistorical(bars, types.Day1)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, mustCombine(t, bars[0:1440]), got[0])
	assert.Equal(t, mustCombine(t, bars[1440:2880]), got[1])
}

func TestAggregateHistorical_Unsupported(t *testing.T) {
	_, err := AggregateHistorical(minuteBars(sessionStart, 10), types.Month1)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = AggregateHistorical(minuteBars(sessionStart, 10), types.Timeframe("2h"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDaily_GroupsByDate(t *testing.T) {
	day1 := minuteBars(time.Date(2025, 3, 3, 23, 58, 0, 0, time.UTC), 4)

	got := Daily(day1)

	require.Len(t, got, 2)
	assert.Equal(t, mustCombine(t, day1[0:2]), got[0])
	assert.Equal(t, mustCombine(t, day1[2:4]), got[1])
}

func TestDaily_SortsDates(t *testing.T) {
	later := minuteBars(time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), 3)
	earlier := minuteBars(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC), 3)

	got := Daily(append(append([]types.Bar{}, later...), earlier...))

	require.Len(t, got, 2)
	assert.Equal(t, earlier[0].Time, got[0].Time)
	assert.Equal(t, later[0].Time, got[1].Time)
}

func TestWeekly_SplitsAtISOWeekBoundary(t *testing.T) {
	days := []types.Bar{
		dailyBar(2025, time.January, 8, 100),  // Wed, ISO week 2
		dailyBar(2025, time.January, 9, 101),  // Thu
		dailyBar(2025, time.January, 10, 102), // Fri
		dailyBar(2025, time.January, 13, 103), // Mon, ISO week 3
		dailyBar(2025, time.January, 14, 104), // Tue
	}

	got := Weekly(days)

	require.Len(t, got, 2)
	assert.Equal(t, mustCombine(t, days[0:3]), got[0])
	assert.Equal(t, mustCombine(t, days[3:5]), got[1])
}

func TestWeekly_YearEndUsesISOYear(t *testing.T) {
	days := []types.Bar{
		dailyBar(2024, time.December, 27, 100), // ISO 2024-W52
		dailyBar(2024, time.December, 30, 101), // ISO 2025-W01
		dailyBar(2025, time.January, 2, 102),   // ISO 2025-W01
	}

	got := Weekly(days)

	require.Len(t, got, 2)
	assert.Equal(t, days[0], got[0])
	assert.Equal(t, mustCombine(t, days[1:3]), got[1])
}

func TestAggregateHistorical_WeeklyFromMinutes(t *testing.T) {
	var bars []types.Bar
	for _, d := range []int{9, 10, 13} { // Thu, Fri, Mon
		bars = append(bars, minuteBars(time.Date(2025, 1, d, 15, 0, 0, 0, time.UTC), 30)...)
	}

	got, err := AggregateHistorical(bars, types.Week1)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, mustCombine(t, bars[0:60]), got[0])
	assert.Equal(t, mustCombine(t, bars[60:90]), got[1])
}
