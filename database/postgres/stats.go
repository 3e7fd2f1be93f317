package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
)

type BreakdownRow struct {
	Key           string   `json:"key"`
	Count         int      `json:"count"`
	AvgConfidence *float64 `json:"avg_confidence,omitempty"`
}

type UserStats struct {
	TotalSessions            int            `json:"totalSessions"`
	CompletedSessions        int            `json:"completedSessions"`
	InProgressSessions       int            `json:"inProgressSessions"`
	AvgConfidence            float64        `json:"avgConfidence"`
	CurrentStreak            int            `json:"currentStreak"`
	LastPracticeDate         *time.Time     `json:"lastPracticeDate,omitempty"`
	TotalPracticeTimeSeconds int            `json:"totalPracticeTimeSeconds"`
	CategoryBreakdown        []BreakdownRow `json:"categoryBreakdown"`
	PersonaBreakdown         []BreakdownRow `json:"personaBreakdown"`
}

// UserStats aggregates a user's practice history for the dashboard.
func (d *Database) UserStats(ctx context.Context, userID int64) (*UserStats, error) {
	tracer := otel.Tracer("postgres/UserStats")
	ctx, span := tracer.Start(ctx, "UserStats")
	defer span.End()

	stats := &UserStats{
		CategoryBreakdown: []BreakdownRow{},
		PersonaBreakdown:  []BreakdownRow{},
	}

	var avgConfidence sql.NullFloat64
	var totalSeconds sql.NullInt64
	err := d.conn.QueryRowContext(ctx,
		`SELECT
		   COUNT(*),
		   COUNT(completed_at),
		   AVG(confidence_rating) FILTER (WHERE completed_at IS NOT NULL),
		   SUM(recording_duration_seconds) FILTER (WHERE completed_at IS NOT NULL)
		 FROM practice_sessions
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.TotalSessions, &stats.CompletedSessions, &avgConfidence, &totalSeconds)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not aggregate sessions: %w", err)
	}
	stats.InProgressSessions = stats.TotalSessions - stats.CompletedSessions
	if avgConfidence.Valid {
		stats.AvgConfidence = avgConfidence.Float64
	}
	if totalSeconds.Valid {
		stats.TotalPracticeTimeSeconds = int(totalSeconds.Int64)
	}

	categoryRows, err := d.conn.QueryContext(ctx,
		`SELECT q.category, COUNT(*), AVG(ps.confidence_rating)
		 FROM practice_sessions ps
		 JOIN questions q ON ps.question_id = q.id
		 WHERE ps.user_id = $1 AND ps.completed_at IS NOT NULL
		 GROUP BY q.category
		 ORDER BY q.category`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not aggregate categories: %w", err)
	}
	defer categoryRows.Close()
	for categoryRows.Next() {
		var row BreakdownRow
		var avg sql.NullFloat64
		if err := categoryRows.Scan(&row.Key, &row.Count, &avg); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan category breakdown: %w", err)
		}
		if avg.Valid {
			row.AvgConfidence = &avg.Float64
		}
		stats.CategoryBreakdown = append(stats.CategoryBreakdown, row)
	}
	if err := categoryRows.Err(); err != nil {
		return nil, err
	}

	personaRows, err := d.conn.QueryContext(ctx,
		`SELECT p.name, COUNT(*), AVG(ps.confidence_rating)
		 FROM practice_sessions ps
		 JOIN personas p ON ps.persona_id = p.id
		 WHERE ps.user_id = $1 AND ps.completed_at IS NOT NULL
		 GROUP BY ps.persona_id, p.name
		 ORDER BY p.name`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not aggregate personas: %w", err)
	}
	defer personaRows.Close()
	for personaRows.Next() {
		var row BreakdownRow
		var avg sql.NullFloat64
		if err := personaRows.Scan(&row.Key, &row.Count, &avg); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan persona breakdown: %w", err)
		}
		if avg.Valid {
			row.AvgConfidence = &avg.Float64
		}
		stats.PersonaBreakdown = append(stats.PersonaBreakdown, row)
	}
	if err := personaRows.Err(); err != nil {
		return nil, err
	}

	dates, err := d.completionDates(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(dates) > 0 {
		stats.LastPracticeDate = &dates[0]
	}
	stats.CurrentStreak = currentStreak(dates, time.Now())

	return stats, nil
}

func (d *Database) completionDates(ctx context.Context, userID int64) ([]time.Time, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT DISTINCT DATE(completed_at AT TIME ZONE 'UTC')
		 FROM practice_sessions
		 WHERE user_id = $1 AND completed_at IS NOT NULL
		 ORDER BY 1 DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("could not fetch completion dates: %w", err)
	}
	defer rows.Close()

	dates := []time.Time{}
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("could not scan completion date: %w", err)
		}
		dates = append(dates, date)
	}

	return dates, rows.Err()
}

// currentStreak counts consecutive practice days ending today, walking the
// distinct completion dates newest-first. Day boundaries are UTC on both
// sides: completionDates buckets timestamps with AT TIME ZONE 'UTC', and
// truncateToDay pins to UTC here, so the database session timezone cannot
// shift a completion across the boundary.
func currentStreak(dates []time.Time, now time.Time) int {
	streak := 0
	checkDate := truncateToDay(now)

	for _, date := range dates {
		sessionDate := truncateToDay(date)
		if sessionDate.Equal(checkDate) {
			streak++
			checkDate = checkDate.AddDate(0, 0, -1)
		} else if sessionDate.Before(checkDate) {
			break
		}
	}

	return streak
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
