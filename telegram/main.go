package telegram

import (
	"context"
	"errors"
	"mslcoach/coach"
	"mslcoach/database/postgres"
	"mslcoach/logger"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type TelegramConnectProps struct {
	Logger *logger.LogMiddleware
	Coach  *coach.Coach
	DB     *postgres.Database
}

// Telegram lets a linked user continue their most recent in-progress practice
// session by texting the bot. It is a thin front door over the same Turn
// Orchestrator the web API uses.
type Telegram struct {
	logger *logger.LogMiddleware
	bot    *tgbotapi.BotAPI
	coach  *coach.Coach
	db     *postgres.Database
}

func Connect(ctx context.Context, args TelegramConnectProps) *Telegram {
	tracer := otel.Tracer("telegram/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		args.Logger.Logger(ctx).Fatal("TELEGRAM_BOT_TOKEN environment variable not set")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		args.Logger.Logger(ctx).Fatal("Failed to create Telegram bot", zap.Error(err))
	}

	debug := os.Getenv("TELEGRAM_DEBUG") == "true"
	bot.Debug = debug

	span.SetAttributes(
		attribute.String("bot.username", bot.Self.UserName),
		attribute.Bool("bot.debug", debug),
	)

	args.Logger.Logger(ctx).Info("Telegram bot connected successfully",
		zap.String("username", bot.Self.UserName),
		zap.Bool("debug", debug),
	)

	return &Telegram{
		logger: args.Logger,
		bot:    bot,
		coach:  args.Coach,
		db:     args.DB,
	}
}

func (t *Telegram) Listen(ctx context.Context) {
	tracer := otel.Tracer("telegram/Listen")
	ctx, span := tracer.Start(ctx, "Listen")
	defer span.End()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)

	t.logger.Logger(ctx).Info("Starting Telegram bot message listener")

	for {
		select {
		case <-ctx.Done():
			t.logger.Logger(ctx).Info("Shutting down Telegram bot listener")
			return
		case update := <-updates:
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	tracer := otel.Tracer("telegram/handleUpdate")
	ctx, span := tracer.Start(ctx, "handleUpdate")
	defer span.End()

	if update.Message != nil {
		t.handleMessage(ctx, update.Message)
	}
}

func (t *Telegram) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	tracer := otel.Tracer("telegram/handleMessage")
	ctx, span := tracer.Start(ctx, "handleMessage")
	defer span.End()

	if message.From == nil || message.Text == "" {
		return
	}

	span.SetAttributes(
		attribute.Int64("telegram.user.id", message.From.ID),
		attribute.String("telegram.user.username", message.From.UserName),
	)

	t.logger.Logger(ctx).Info("Received message",
		zap.Int64("telegram_user_id", message.From.ID),
		zap.String("username", message.From.UserName),
	)

	user, err := t.db.GetUserByTelegramID(ctx, message.From.ID)
	if errors.Is(err, postgres.ErrUserNotFound) {
		t.reply(ctx, message.Chat.ID, "This Telegram account is not linked to a practice profile yet. Link it from your profile settings first.")
		return
	}
	if err != nil {
		t.logger.Logger(ctx).Error("Failed to resolve Telegram user", zap.Error(err))
		return
	}

	sessionID, err := t.db.LatestOpenSession(ctx, user.ID)
	if errors.Is(err, coach.ErrSessionNotFound) {
		t.reply(ctx, message.Chat.ID, "You have no practice session in progress. Start one from the web app, then continue it here.")
		return
	}
	if err != nil {
		t.logger.Logger(ctx).Error("Failed to find open session", zap.Error(err))
		return
	}

	result, err := t.coach.AdvanceTurn(ctx, sessionID, user.ID, message.Text)
	if err != nil {
		span.RecordError(err)
		t.logger.Logger(ctx).Error("Failed to advance practice session",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		t.reply(ctx, message.Chat.ID, "Your message was not recorded. Please send it again in a moment.")
		return
	}

	t.reply(ctx, message.Chat.ID, result.Message)
}

func (t *Telegram) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Logger(ctx).Error("Failed to send response", zap.Error(err))
	}
}
