package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

func TestFileName(t *testing.T) {
	day := time.Date(2024, 10, 15, 23, 59, 0, 0, time.Local)

	tests := []struct {
		name   string
		mode   nflstats.Mode
		season int
		weeks  []int
		want   string
	}{
		{"weekly whole season", nflstats.ModeWeekly, 2023, nil, "weekly_2023.parquet"},
		{"weekly with weeks", nflstats.ModeWeekly, 2023, []int{1, 2}, "weekly_2023_weeks_1_2.parquet"},
		{"weekly keeps request order", nflstats.ModeWeekly, 2022, []int{10, 3}, "weekly_2022_weeks_10_3.parquet"},
		{"player stats", nflstats.ModePlayerStats, 2024, nil, "player_stats_2024_20241015.parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FileName(tt.mode, tt.season, tt.weeks, day)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FileName("fantasy", 2024, nil, day)
	assert.ErrorIs(t, err, nflstats.ErrInvalidRequest)
}

func TestFileName_SameDayIsStable(t *testing.T) {
	morning := time.Date(2024, 10, 15, 0, 1, 0, 0, time.Local)
	evening := time.Date(2024, 10, 15, 23, 58, 0, 0, time.Local)

	a, err := FileName(nflstats.ModePlayerStats, 2024, nil, morning)
	require.NoError(t, err)
	b, err := FileName(nflstats.ModePlayerStats, 2024, nil, evening)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClocks(t *testing.T) {
	fixed := FixedClock{T: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)}
	assert.Equal(t, fixed.T, fixed.Now())

	before := time.Now()
	now := RealClock{}.Now()
	assert.False(t, now.Before(before))
}
