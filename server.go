package main

import (
	"context"
	"log"
	"mslcoach/coach"
	"mslcoach/database/postgres"
	"mslcoach/logger"
	"mslcoach/modelapi/anthropicapi"
	"mslcoach/modelapi/deepgramapi"
	"mslcoach/modelapi/geminiapi"
	"mslcoach/modelapi/openaiapi"
	"mslcoach/telegram"
	"mslcoach/webserver"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

const defaultPort = "80"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	godotenv.Load()
	production := os.Getenv("PRODUCTION") != ""

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %e", err)
	}
	defer otelShutdown()
	ctx := context.Background()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(ctx)

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: production, LoggerProvider: loggerProvider})
	Logger := LogMiddleware.Logger(ctx)

	db := postgres.Connect(ctx, postgres.DatabaseConnectProps{Logger: LogMiddleware})

	dataDir := os.Getenv("CATALOG_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	if err := db.SeedCatalog(ctx, dataDir); err != nil {
		Logger.Error("[Server] Could not seed catalog", zap.Error(err))
	}

	var model coach.ModelClient
	if os.Getenv("MODEL_PROVIDER") == "gemini" {
		model = geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{Logger: LogMiddleware})
	} else {
		model = anthropicapi.Connect(ctx, anthropicapi.AnthropicConnectProps{Logger: LogMiddleware})
	}

	conversationCoach := coach.Connect(ctx, coach.CoachConnectProps{
		Logger: LogMiddleware,
		Store:  db,
		Model:  model,
	})

	deepgramClient := deepgramapi.Connect(LogMiddleware)
	openaiClient := openaiapi.Connect(ctx, openaiapi.OpenAIConnectProps{Logger: LogMiddleware})

	// Optional Telegram front door, only when a bot token is configured
	if os.Getenv("TELEGRAM_BOT_TOKEN") != "" {
		telegramBot := telegram.Connect(ctx, telegram.TelegramConnectProps{
			Logger: LogMiddleware,
			Coach:  conversationCoach,
			DB:     db,
		})
		go telegramBot.Listen(ctx)
	}

	server := webserver.Connect(webserver.WebServerConnectProps{
		Logger:     LogMiddleware,
		DB:         db,
		Coach:      conversationCoach,
		Transcribe: deepgramClient,
		Speech:     openaiClient,
	})

	if production == false {
		Logger.Info("[Server] Starting in development mode", zap.String("port", port))
	} else {
		Logger.Info("[Server] Starting in production mode", zap.String("port", port))
	}

	if err := http.ListenAndServe(":"+port, server.Router()); err != nil {
		Logger.Fatal("[Server] HTTP server stopped", zap.Error(err))
	}
}
