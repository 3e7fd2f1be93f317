package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func TestCurrentStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name  string
		dates []time.Time
		want  int
	}{
		{
			name:  "no practice days",
			dates: nil,
			want:  0,
		},
		{
			name:  "practiced today only",
			dates: []time.Time{day(2026, 3, 10)},
			want:  1,
		},
		{
			name: "three consecutive days ending today",
			dates: []time.Time{
				day(2026, 3, 10),
				day(2026, 3, 9),
				day(2026, 3, 8),
			},
			want: 3,
		},
		{
			name: "gap breaks the streak",
			dates: []time.Time{
				day(2026, 3, 10),
				day(2026, 3, 9),
				day(2026, 3, 6),
			},
			want: 2,
		},
		{
			name: "streak already broken before today",
			dates: []time.Time{
				day(2026, 3, 7),
				day(2026, 3, 6),
			},
			want: 0,
		},
		{
			name: "timestamps on the same day collapse",
			dates: []time.Time{
				time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC),
				time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC),
			},
			want: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, currentStreak(tc.dates, now))
		})
	}
}

// Completion timestamps and the streak walk must bucket days in the same
// timezone. A session completed now has to register as practice on today's
// UTC day no matter what timezone the database session runs in.
func TestUserStatsStreakAfterCompletion(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()
	sessionID, userID := createTestSession(t, db)

	_, err := db.AppendExchange(ctx, sessionID, "We have strong outcome data.", "Which endpoints?")
	require.NoError(t, err)
	require.NoError(t, db.SetFeedback(ctx, sessionID, userID, "**Overall Score:** 7/10"))

	stats, err := db.UserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 1, stats.CurrentStreak)
	require.NotNil(t, stats.LastPracticeDate)
	assert.Equal(t, truncateToDay(time.Now()), truncateToDay(*stats.LastPracticeDate))
}
