package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTargetSessions = 3

// DailyGoal is one user's practice target for a single day. Goal days are UTC
// dates, matching how the streak computation buckets completions.
type DailyGoal struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	GoalDate       time.Time `json:"goal_date"`
	TargetSessions int       `json:"target_sessions"`
	CreatedAt      time.Time `json:"created_at"`
}

// TodayGoal returns the user's goal row for the current UTC day, creating it
// with the default target on first access.
func (d *Database) TodayGoal(ctx context.Context, userID int64) (*DailyGoal, error) {
	tracer := otel.Tracer("postgres/TodayGoal")
	ctx, span := tracer.Start(ctx, "TodayGoal")
	defer span.End()

	today := time.Now().UTC().Format("2006-01-02")
	span.SetAttributes(attribute.String("goal.date", today))

	var goal DailyGoal
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, user_id, goal_date, target_sessions, created_at
		 FROM daily_goals
		 WHERE user_id = $1 AND goal_date = $2`,
		userID, today,
	).Scan(&goal.ID, &goal.UserID, &goal.GoalDate, &goal.TargetSessions, &goal.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d.SetTodayGoal(ctx, userID, defaultTargetSessions)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch daily goal: %w", err)
	}

	return &goal, nil
}

// SetTodayGoal upserts the current UTC day's target for the user.
func (d *Database) SetTodayGoal(ctx context.Context, userID int64, targetSessions int) (*DailyGoal, error) {
	tracer := otel.Tracer("postgres/SetTodayGoal")
	ctx, span := tracer.Start(ctx, "SetTodayGoal")
	defer span.End()

	if targetSessions <= 0 {
		targetSessions = defaultTargetSessions
	}
	today := time.Now().UTC().Format("2006-01-02")

	var goal DailyGoal
	err := d.conn.QueryRowContext(ctx,
		`INSERT INTO daily_goals (user_id, goal_date, target_sessions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, goal_date)
		 DO UPDATE SET target_sessions = $3
		 RETURNING id, user_id, goal_date, target_sessions, created_at`,
		userID, today, targetSessions,
	).Scan(&goal.ID, &goal.UserID, &goal.GoalDate, &goal.TargetSessions, &goal.CreatedAt)
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not set daily goal",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		return nil, fmt.Errorf("could not set daily goal: %w", err)
	}

	return &goal, nil
}

// GoalHistory lists the user's most recent daily goals, newest first.
func (d *Database) GoalHistory(ctx context.Context, userID int64) ([]DailyGoal, error) {
	tracer := otel.Tracer("postgres/GoalHistory")
	ctx, span := tracer.Start(ctx, "GoalHistory")
	defer span.End()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, user_id, goal_date, target_sessions, created_at
		 FROM daily_goals
		 WHERE user_id = $1
		 ORDER BY goal_date DESC
		 LIMIT 30`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list goal history: %w", err)
	}
	defer rows.Close()

	goals := []DailyGoal{}
	for rows.Next() {
		var goal DailyGoal
		if err := rows.Scan(&goal.ID, &goal.UserID, &goal.GoalDate, &goal.TargetSessions, &goal.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan goal row: %w", err)
		}
		goals = append(goals, goal)
	}

	return goals, rows.Err()
}
