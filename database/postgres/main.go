package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"mslcoach/logger"
	"os"
	"time"

	_ "github.com/lib/pq"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type DatabaseConnectProps struct {
	Logger *logger.LogMiddleware
}

type Database struct {
	conn   *sql.DB
	logger *logger.LogMiddleware
}

func Connect(ctx context.Context, args DatabaseConnectProps) *Database {
	tracer := otel.Tracer("postgres/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	connectRetries := 5
	var conn *sql.DB
	var err error
	var connStr string

	logger := args.Logger.Logger(ctx)

	for connectRetries > 0 {
		conn, err, connStr = getConnection(ctx)
		if err == nil {
			logger.Info("[Postgres] Database client started")
			break
		}
		connectRetries -= 1
		sleepTime := 5
		logger.Error(
			"[Postgres] Could not connect to Postgres. Retrying after sleeping.",
			zap.Error(err),
			zap.Int("Retries Left", connectRetries),
			zap.Int("Sleep Time", sleepTime),
			zap.String("Connection String", connStr))
		time.Sleep(time.Second * time.Duration(sleepTime))
	}

	if connectRetries <= 0 {
		logger.Error("[Postgres] Failed to Connect to Postgres")
		span.RecordError(fmt.Errorf("failed to connect to Postgres"))
		os.Exit(1)
	}

	db := &Database{conn: conn, logger: args.Logger}

	if err := db.initSchema(ctx); err != nil {
		logger.Error("[Postgres] Could not initialize schema", zap.Error(err))
		span.RecordError(err)
		os.Exit(1)
	}

	return db
}

func getConnection(ctx context.Context) (*sql.DB, error, string) {
	tracer := otel.Tracer("postgres/getConnection")
	_, span := tracer.Start(ctx, "getConnection")
	defer span.End()

	host := os.Getenv("POSTGRES_DB_HOST")
	port := os.Getenv("POSTGRES_DB_PORT")
	user := os.Getenv("POSTGRES_DB_USER")
	password := os.Getenv("POSTGRES_DB_PASS")
	dbname := os.Getenv("POSTGRES_DB_NAME")

	sslMode := "disable"

	postgresqlDbInfo := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslMode,
	)

	db, err := sql.Open("postgres", postgresqlDbInfo)
	if err != nil {
		span.RecordError(err)
		return nil, err, postgresqlDbInfo
	}
	err = db.Ping()
	if err != nil {
		span.RecordError(err)
		return nil, err, postgresqlDbInfo
	}

	return db, nil, ""
}

func (d *Database) initSchema(ctx context.Context) error {
	tracer := otel.Tracer("postgres/initSchema")
	ctx, span := tracer.Start(ctx, "initSchema")
	defer span.End()

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		telegram_user_id BIGINT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS personas (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		specialty TEXT NOT NULL,
		communication_style JSONB NOT NULL DEFAULT '{}',
		priorities JSONB NOT NULL DEFAULT '[]',
		common_challenges JSONB NOT NULL DEFAULT '[]',
		quote TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		question TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS question_personas (
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		persona_id BIGINT NOT NULL REFERENCES personas(id) ON DELETE CASCADE,
		PRIMARY KEY (question_id, persona_id)
	);

	CREATE TABLE IF NOT EXISTS practice_sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id),
		persona_id BIGINT NOT NULL REFERENCES personas(id),
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ,
		confidence_rating INT,
		response_quality_rating INT,
		clarity_score INT,
		variability_score INT,
		polarity_score INT,
		user_notes TEXT,
		recording_text TEXT,
		recording_duration_seconds INT,
		ai_feedback TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON practice_sessions(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS sample_responses (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		response_text TEXT NOT NULL,
		response_type TEXT NOT NULL DEFAULT 'model_answer',
		key_messages JSONB,
		created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS daily_goals (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		goal_date DATE NOT NULL,
		target_sessions INT NOT NULL DEFAULT 3,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, goal_date)
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES practice_sessions(id) ON DELETE CASCADE,
		turn_number INT NOT NULL,
		speaker TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, turn_number)
	);
	`

	_, err := d.conn.ExecContext(ctx, schema)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not create schema: %w", err)
	}

	return nil
}
