package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyGoalUpsert(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()

	var userID int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name) VALUES ('Goal', 'Setter') RETURNING id`,
	).Scan(&userID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	// First access creates today's goal with the default target.
	goal, err := db.TodayGoal(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, defaultTargetSessions, goal.TargetSessions)

	updated, err := db.SetTodayGoal(ctx, userID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TargetSessions)
	assert.Equal(t, goal.ID, updated.ID, "upsert must reuse today's row")

	fetched, err := db.TodayGoal(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, fetched.TargetSessions)

	// Non-positive targets fall back to the default.
	reset, err := db.SetTodayGoal(ctx, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTargetSessions, reset.TargetSessions)

	history, err := db.GoalHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, goal.ID, history[0].ID)
}
