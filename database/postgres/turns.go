package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mslcoach/coach"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ListTurns returns a session's transcript in strict turn order.
func (d *Database) ListTurns(ctx context.Context, sessionID int64) ([]coach.Turn, error) {
	tracer := otel.Tracer("postgres/ListTurns")
	ctx, span := tracer.Start(ctx, "ListTurns")
	defer span.End()

	span.SetAttributes(attribute.Int64("session.id", sessionID))

	rows, err := d.conn.QueryContext(ctx,
		`SELECT turn_number, speaker, message, created_at
		 FROM conversation_turns
		 WHERE session_id = $1
		 ORDER BY turn_number ASC`,
		sessionID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list turns: %w", err)
	}
	defer rows.Close()

	turns := []coach.Turn{}
	for rows.Next() {
		var turn coach.Turn
		if err := rows.Scan(&turn.TurnNumber, &turn.Speaker, &turn.Message, &turn.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan turn row: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// AppendExchange writes one user turn and its paired reply in a single
// transaction. The session row is locked first, so two concurrent exchanges
// on the same session serialize and can never observe the same prior turn
// count; the UNIQUE(session_id, turn_number) constraint backs this up.
// Returns the reply's turn number.
func (d *Database) AppendExchange(ctx context.Context, sessionID int64, userMessage string, replyText string) (int32, error) {
	tracer := otel.Tracer("postgres/AppendExchange")
	ctx, span := tracer.Start(ctx, "AppendExchange")
	defer span.End()

	span.SetAttributes(attribute.Int64("session.id", sessionID))

	tx, err := d.conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM practice_sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, coach.ErrSessionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not lock session: %w", err)
	}

	var lastTurn int32
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_number), 0) FROM conversation_turns WHERE session_id = $1`,
		sessionID,
	).Scan(&lastTurn)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not read turn count: %w", err)
	}

	userTurn := lastTurn + 1
	replyTurn := lastTurn + 2

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_turns (session_id, turn_number, speaker, message)
		 VALUES ($1, $2, $3, $4), ($1, $5, $6, $7)`,
		sessionID,
		userTurn, coach.SpeakerUser, userMessage,
		replyTurn, coach.SpeakerPersona, replyText,
	)
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not append exchange",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
			zap.Int32("user_turn", userTurn),
		)
		return 0, fmt.Errorf("could not append exchange: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE practice_sessions SET updated_at = NOW() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("could not commit exchange: %w", err)
	}

	span.SetAttributes(attribute.Int("reply.turn_number", int(replyTurn)))

	return replyTurn, nil
}
