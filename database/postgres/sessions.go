package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mslcoach/coach"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type PracticeSession struct {
	ID                       int64      `json:"id"`
	UserID                   int64      `json:"user_id"`
	QuestionID               int64      `json:"question_id"`
	PersonaID                int64      `json:"persona_id"`
	StartedAt                time.Time  `json:"started_at"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
	ConfidenceRating         *int       `json:"confidence_rating,omitempty"`
	ResponseQualityRating    *int       `json:"response_quality_rating,omitempty"`
	ClarityScore             *int       `json:"clarity_score,omitempty"`
	VariabilityScore         *int       `json:"variability_score,omitempty"`
	PolarityScore            *int       `json:"polarity_score,omitempty"`
	UserNotes                *string    `json:"user_notes,omitempty"`
	RecordingText            *string    `json:"recording_text,omitempty"`
	RecordingDurationSeconds *int       `json:"recording_duration_seconds,omitempty"`
	AIFeedback               *string    `json:"ai_feedback,omitempty"`
}

type SessionSummary struct {
	ID               int64      `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ConfidenceRating *int       `json:"confidence_rating,omitempty"`
	UserNotes        *string    `json:"user_notes,omitempty"`
	QuestionID       int64      `json:"question_id"`
	Question         string     `json:"question"`
	Category         string     `json:"category"`
	Difficulty       string     `json:"difficulty"`
	PersonaID        int64      `json:"persona_id"`
	PersonaName      string     `json:"persona_name"`
	Status           string     `json:"status"`
}

type CreateSessionProps struct {
	UserID     int64
	QuestionID int64
	PersonaID  int64
}

func (d *Database) CreateSession(ctx context.Context, args CreateSessionProps) (*PracticeSession, error) {
	tracer := otel.Tracer("postgres/CreateSession")
	ctx, span := tracer.Start(ctx, "CreateSession")
	defer span.End()

	var questionExists, personaExists bool
	err := d.conn.QueryRowContext(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM questions WHERE id = $1),
		   EXISTS (SELECT 1 FROM personas WHERE id = $2)`,
		args.QuestionID, args.PersonaID,
	).Scan(&questionExists, &personaExists)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not verify catalog references: %w", err)
	}
	if !questionExists {
		return nil, fmt.Errorf("question %d: %w", args.QuestionID, ErrNotInCatalog)
	}
	if !personaExists {
		return nil, fmt.Errorf("persona %d: %w", args.PersonaID, ErrNotInCatalog)
	}

	session := PracticeSession{
		UserID:     args.UserID,
		QuestionID: args.QuestionID,
		PersonaID:  args.PersonaID,
	}
	err = d.conn.QueryRowContext(ctx,
		`INSERT INTO practice_sessions (user_id, question_id, persona_id, started_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, started_at`,
		args.UserID, args.QuestionID, args.PersonaID,
	).Scan(&session.ID, &session.StartedAt)
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not create practice session",
			zap.Error(err),
			zap.Int64("user_id", args.UserID),
		)
		return nil, fmt.Errorf("could not create practice session: %w", err)
	}

	return &session, nil
}

// ErrNotInCatalog marks a session-creation reference to a question or persona
// that does not exist.
var ErrNotInCatalog = errors.New("not found in catalog")

// ResolveSession performs the joined ownership lookup the coach runs before
// every exchange: one row of session + question + persona, or not found.
func (d *Database) ResolveSession(ctx context.Context, sessionID int64, userID int64) (*coach.SessionContext, error) {
	tracer := otel.Tracer("postgres/ResolveSession")
	ctx, span := tracer.Start(ctx, "ResolveSession")
	defer span.End()

	var (
		sc          coach.SessionContext
		completedAt sql.NullTime
		feedback    sql.NullString
	)

	err := d.conn.QueryRowContext(ctx,
		`SELECT
		   ps.id,
		   ps.user_id,
		   ps.started_at,
		   ps.completed_at,
		   ps.ai_feedback,
		   q.question,
		   q.context,
		   q.category,
		   q.difficulty,
		   p.name,
		   p.specialty,
		   p.quote,
		   p.communication_style::text,
		   p.priorities::text,
		   p.common_challenges::text
		 FROM practice_sessions ps
		 JOIN questions q ON ps.question_id = q.id
		 JOIN personas p ON ps.persona_id = p.id
		 WHERE ps.id = $1 AND ps.user_id = $2`,
		sessionID, userID,
	).Scan(
		&sc.SessionID,
		&sc.UserID,
		&sc.StartedAt,
		&completedAt,
		&feedback,
		&sc.Question.Text,
		&sc.Question.Context,
		&sc.Question.Category,
		&sc.Question.Difficulty,
		&sc.Persona.Name,
		&sc.Persona.Specialty,
		&sc.Persona.Quote,
		&sc.Persona.CommunicationStyle,
		&sc.Persona.Priorities,
		&sc.Persona.CommonChallenges,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not resolve session",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		return nil, fmt.Errorf("could not resolve session: %w", err)
	}

	if completedAt.Valid {
		sc.CompletedAt = &completedAt.Time
	}
	if feedback.Valid {
		sc.Feedback = feedback.String
	}

	return &sc, nil
}

// SetFeedback stores the critique and freezes the session in one update. The
// completed_at IS NULL guard makes a racing duplicate lose cleanly instead of
// overwriting stored feedback.
func (d *Database) SetFeedback(ctx context.Context, sessionID int64, userID int64, feedback string) error {
	tracer := otel.Tracer("postgres/SetFeedback")
	ctx, span := tracer.Start(ctx, "SetFeedback")
	defer span.End()

	var updatedID int64
	err := d.conn.QueryRowContext(ctx,
		`UPDATE practice_sessions
		 SET ai_feedback = $1,
		     completed_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $2 AND user_id = $3 AND completed_at IS NULL
		 RETURNING id`,
		feedback, sessionID, userID,
	).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if checkErr := d.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM practice_sessions WHERE id = $1 AND user_id = $2)`,
			sessionID, userID,
		).Scan(&exists); checkErr != nil {
			span.RecordError(checkErr)
			return fmt.Errorf("could not store feedback: %w", checkErr)
		}
		if exists {
			return coach.ErrAlreadyCompleted
		}
		return coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not store feedback",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		return fmt.Errorf("could not store feedback: %w", err)
	}

	return nil
}

func (d *Database) GetSession(ctx context.Context, sessionID int64, userID int64) (*PracticeSession, error) {
	tracer := otel.Tracer("postgres/GetSession")
	ctx, span := tracer.Start(ctx, "GetSession")
	defer span.End()

	var (
		s           PracticeSession
		completedAt sql.NullTime
		confidence  sql.NullInt64
		quality     sql.NullInt64
		clarity     sql.NullInt64
		variability sql.NullInt64
		polarity    sql.NullInt64
		notes       sql.NullString
		recText     sql.NullString
		recDuration sql.NullInt64
		feedback    sql.NullString
	)

	err := d.conn.QueryRowContext(ctx,
		`SELECT id, user_id, question_id, persona_id, started_at, completed_at,
		        confidence_rating, response_quality_rating,
		        clarity_score, variability_score, polarity_score,
		        user_notes, recording_text, recording_duration_seconds, ai_feedback
		 FROM practice_sessions
		 WHERE id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(
		&s.ID, &s.UserID, &s.QuestionID, &s.PersonaID, &s.StartedAt, &completedAt,
		&confidence, &quality, &clarity, &variability, &polarity,
		&notes, &recText, &recDuration, &feedback,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch session: %w", err)
	}

	s.CompletedAt = nullTimePtr(completedAt)
	s.ConfidenceRating = nullIntPtr(confidence)
	s.ResponseQualityRating = nullIntPtr(quality)
	s.ClarityScore = nullIntPtr(clarity)
	s.VariabilityScore = nullIntPtr(variability)
	s.PolarityScore = nullIntPtr(polarity)
	s.UserNotes = nullStringPtr(notes)
	s.RecordingText = nullStringPtr(recText)
	s.RecordingDurationSeconds = nullIntPtr(recDuration)
	s.AIFeedback = nullStringPtr(feedback)

	return &s, nil
}

func (d *Database) ListSessions(ctx context.Context, userID int64) ([]SessionSummary, error) {
	tracer := otel.Tracer("postgres/ListSessions")
	ctx, span := tracer.Start(ctx, "ListSessions")
	defer span.End()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT
		   ps.id,
		   ps.started_at,
		   ps.completed_at,
		   ps.confidence_rating,
		   ps.user_notes,
		   q.id,
		   q.question,
		   q.category,
		   q.difficulty,
		   p.id,
		   p.name,
		   CASE WHEN ps.completed_at IS NULL THEN 'in_progress' ELSE 'completed' END
		 FROM practice_sessions ps
		 JOIN questions q ON ps.question_id = q.id
		 JOIN personas p ON ps.persona_id = p.id
		 WHERE ps.user_id = $1
		 ORDER BY ps.created_at DESC
		 LIMIT 50`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var (
			s           SessionSummary
			completedAt sql.NullTime
			confidence  sql.NullInt64
			notes       sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.StartedAt, &completedAt, &confidence, &notes,
			&s.QuestionID, &s.Question, &s.Category, &s.Difficulty,
			&s.PersonaID, &s.PersonaName, &s.Status,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan session row: %w", err)
		}
		s.CompletedAt = nullTimePtr(completedAt)
		s.ConfidenceRating = nullIntPtr(confidence)
		s.UserNotes = nullStringPtr(notes)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// LatestOpenSession finds the user's most recent in-progress session, used by
// the Telegram front door to pick up where the web UI left off.
func (d *Database) LatestOpenSession(ctx context.Context, userID int64) (int64, error) {
	tracer := otel.Tracer("postgres/LatestOpenSession")
	ctx, span := tracer.Start(ctx, "LatestOpenSession")
	defer span.End()

	var sessionID int64
	err := d.conn.QueryRowContext(ctx,
		`SELECT id FROM practice_sessions
		 WHERE user_id = $1 AND completed_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not find open session: %w", err)
	}

	return sessionID, nil
}

type SelfAssessmentProps struct {
	SessionID                int64
	UserID                   int64
	ConfidenceRating         *int
	ResponseQualityRating    *int
	ClarityScore             *int
	VariabilityScore         *int
	PolarityScore            *int
	UserNotes                *string
	RecordingText            *string
	RecordingDurationSeconds *int
}

// SaveSelfAssessment records the user-entered scores and notes. It does not
// touch completed_at: completion belongs to the feedback pass, and the two
// scoring paths stay independent.
func (d *Database) SaveSelfAssessment(ctx context.Context, args SelfAssessmentProps) (*PracticeSession, error) {
	tracer := otel.Tracer("postgres/SaveSelfAssessment")
	ctx, span := tracer.Start(ctx, "SaveSelfAssessment")
	defer span.End()

	var updatedID int64
	err := d.conn.QueryRowContext(ctx,
		`UPDATE practice_sessions
		 SET confidence_rating = COALESCE($1, confidence_rating),
		     response_quality_rating = COALESCE($2, response_quality_rating),
		     clarity_score = COALESCE($3, clarity_score),
		     variability_score = COALESCE($4, variability_score),
		     polarity_score = COALESCE($5, polarity_score),
		     user_notes = COALESCE($6, user_notes),
		     recording_text = COALESCE($7, recording_text),
		     recording_duration_seconds = COALESCE($8, recording_duration_seconds),
		     updated_at = NOW()
		 WHERE id = $9 AND user_id = $10
		 RETURNING id`,
		args.ConfidenceRating,
		args.ResponseQualityRating,
		args.ClarityScore,
		args.VariabilityScore,
		args.PolarityScore,
		args.UserNotes,
		args.RecordingText,
		args.RecordingDurationSeconds,
		args.SessionID,
		args.UserID,
	).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not save self assessment",
			zap.Error(err),
			zap.Int64("session_id", args.SessionID),
		)
		return nil, fmt.Errorf("could not save self assessment: %w", err)
	}

	return d.GetSession(ctx, args.SessionID, args.UserID)
}

func (d *Database) DeleteSession(ctx context.Context, sessionID int64, userID int64) error {
	tracer := otel.Tracer("postgres/DeleteSession")
	ctx, span := tracer.Start(ctx, "DeleteSession")
	defer span.End()

	var deletedID int64
	err := d.conn.QueryRowContext(ctx,
		`DELETE FROM practice_sessions WHERE id = $1 AND user_id = $2 RETURNING id`,
		sessionID, userID,
	).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not delete session: %w", err)
	}

	return nil
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
