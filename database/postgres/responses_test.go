package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleResponseLifecycle(t *testing.T) {
	db := connectTestDatabase(t)
	ctx := context.Background()

	var userID, questionID int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name) VALUES ('Sample', 'Curator') RETURNING id`,
	).Scan(&userID)
	require.NoError(t, err)
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO questions (question, category, difficulty)
		 VALUES ('How does your safety profile compare?', 'safety', 'medium') RETURNING id`,
	).Scan(&questionID)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.conn.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
		db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	created, err := db.CreateSampleResponse(ctx, CreateSampleResponseProps{
		QuestionID:   questionID,
		ResponseText: "Acknowledge the lack of head-to-head data, then walk through the pooled safety analysis.",
		KeyMessages:  json.RawMessage(`["No head-to-head trial exists","Pooled analysis covers 4,000 patients"]`),
		CreatedBy:    userID,
	})
	require.NoError(t, err)
	assert.Equal(t, "model_answer", created.ResponseType)

	listed, err := db.ListSampleResponses(ctx, questionID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	require.NotNil(t, listed[0].AuthorName)
	assert.Equal(t, "Sample Curator", *listed[0].AuthorName)

	// Deactivation hides the response from listings without deleting it.
	inactive := false
	updated, err := db.UpdateSampleResponse(ctx, UpdateSampleResponseProps{
		ResponseID: created.ID,
		IsActive:   &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	listed, err = db.ListSampleResponses(ctx, questionID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, db.DeleteSampleResponse(ctx, created.ID))
	assert.ErrorIs(t, db.DeleteSampleResponse(ctx, created.ID), ErrSampleResponseNotFound)
}

func TestCreateSampleResponseUnknownQuestion(t *testing.T) {
	db := connectTestDatabase(t)

	_, err := db.CreateSampleResponse(context.Background(), CreateSampleResponseProps{
		QuestionID:   -1,
		ResponseText: "orphaned answer",
	})
	assert.ErrorIs(t, err, ErrNotInCatalog)
}

func TestUpdateSampleResponseNotFound(t *testing.T) {
	db := connectTestDatabase(t)

	text := "rewrite"
	_, err := db.UpdateSampleResponse(context.Background(), UpdateSampleResponseProps{
		ResponseID:   -1,
		ResponseText: &text,
	})
	assert.ErrorIs(t, err, ErrSampleResponseNotFound)
}
