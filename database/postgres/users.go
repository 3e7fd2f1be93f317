package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type UserInfo struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

var ErrUserNotFound = errors.New("user not found")

// GetUserByTelegramID resolves a linked Telegram account to its user record.
func (d *Database) GetUserByTelegramID(ctx context.Context, telegramUserID int64) (*UserInfo, error) {
	tracer := otel.Tracer("postgres/GetUserByTelegramID")
	ctx, span := tracer.Start(ctx, "GetUserByTelegramID")
	defer span.End()

	var user UserInfo
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, first_name, last_name FROM users WHERE telegram_user_id = $1`,
		telegramUserID,
	).Scan(&user.ID, &user.FirstName, &user.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not fetch user: %w", err)
	}

	return &user, nil
}

type LinkTelegramProps struct {
	UserID         int64
	TelegramUserID int64
}

// LinkTelegram attaches a Telegram account to an existing user so the bot can
// route practice messages to their sessions.
func (d *Database) LinkTelegram(ctx context.Context, args LinkTelegramProps) error {
	tracer := otel.Tracer("postgres/LinkTelegram")
	ctx, span := tracer.Start(ctx, "LinkTelegram")
	defer span.End()

	var linkedID int64
	err := d.conn.QueryRowContext(ctx,
		`UPDATE users SET telegram_user_id = $1 WHERE id = $2 RETURNING id`,
		args.TelegramUserID, args.UserID,
	).Scan(&linkedID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not link Telegram account",
			zap.Error(err),
			zap.Int64("user_id", args.UserID),
		)
		return fmt.Errorf("could not link telegram account: %w", err)
	}

	return nil
}
