package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"mslcoach/coach"
	"mslcoach/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a running Postgres. Point POSTGRES_DB_HOST (and friends) at a
// disposable database before running.
func connectTestDatabase(t *testing.T) *Database {
	t.Helper()
	if os.Getenv("POSTGRES_DB_HOST") == "" {
		t.Skip("POSTGRES_DB_HOST environment variable not set, skipping test")
	}

	logMiddleware := logger.Connect(logger.LoggerConnectProps{Production: false})
	return Connect(context.Background(), DatabaseConnectProps{Logger: logMiddleware})
}

func createTestSession(t *testing.T, db *Database) (sessionID int64, userID int64) {
	t.Helper()
	ctx := context.Background()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name) VALUES ('Test', 'User') RETURNING id`,
	).Scan(&userID)
	require.NoError(t, err)

	var questionID, personaID int64
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO questions (question, category, difficulty)
		 VALUES ('Why switch stable patients?', 'clinical_value', 'hard') RETURNING id`,
	).Scan(&questionID)
	require.NoError(t, err)
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO personas (name, specialty) VALUES ('Dr. Test', 'Cardiology') RETURNING id`,
	).Scan(&personaID)
	require.NoError(t, err)

	session, err := db.CreateSession(ctx, CreateSessionProps{
		UserID:     userID,
		QuestionID: questionID,
		PersonaID:  personaID,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		db.conn.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
		db.conn.ExecContext(ctx, `DELETE FROM personas WHERE id = $1`, personaID)
	})

	return session.ID, userID
}

func TestAppendExchangeAssignsDenseTurnNumbers(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()
	sessionID, _ := createTestSession(t, db)

	replyTurn, err := db.AppendExchange(ctx, sessionID, "first question", "first reply")
	require.NoError(t, err)
	assert.Equal(t, int32(2), replyTurn)

	replyTurn, err = db.AppendExchange(ctx, sessionID, "second question", "second reply")
	require.NoError(t, err)
	assert.Equal(t, int32(4), replyTurn)

	turns, err := db.ListTurns(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, int32(i+1), turn.TurnNumber)
	}
	assert.Equal(t, coach.SpeakerUser, turns[0].Speaker)
	assert.Equal(t, coach.SpeakerPersona, turns[1].Speaker)
}

func TestAppendExchangeConcurrent(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()
	sessionID, _ := createTestSession(t, db)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.AppendExchange(ctx, sessionID,
				fmt.Sprintf("message %d", i), fmt.Sprintf("reply %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := db.ListTurns(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, turns, callers*2)
	for i, turn := range turns {
		assert.Equal(t, int32(i+1), turn.TurnNumber, "turn numbers must be gapless")
	}
}

func TestAppendExchangeUnknownSession(t *testing.T) {
	db := connectTestDatabase(t)

	_, err := db.AppendExchange(context.Background(), -1, "hello", "reply")
	assert.ErrorIs(t, err, coach.ErrSessionNotFound)
}

func TestSetFeedbackFreezesSession(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()
	sessionID, userID := createTestSession(t, db)

	require.NoError(t, db.SetFeedback(ctx, sessionID, userID, "**Overall Score:** 7/10"))

	session, err := db.ResolveSession(ctx, sessionID, userID)
	require.NoError(t, err)
	require.NotNil(t, session.CompletedAt)
	assert.WithinDuration(t, time.Now(), *session.CompletedAt, time.Minute)
	assert.Equal(t, "**Overall Score:** 7/10", session.Feedback)

	// A second write must lose to the completed_at guard.
	err = db.SetFeedback(ctx, sessionID, userID, "overwrite attempt")
	assert.ErrorIs(t, err, coach.ErrAlreadyCompleted)

	session, err = db.ResolveSession(ctx, sessionID, userID)
	require.NoError(t, err)
	assert.Equal(t, "**Overall Score:** 7/10", session.Feedback)
}

func TestResolveSessionEnforcesOwnership(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()
	sessionID, userID := createTestSession(t, db)

	_, err := db.ResolveSession(ctx, sessionID, userID+1)
	assert.ErrorIs(t, err, coach.ErrSessionNotFound)
}
