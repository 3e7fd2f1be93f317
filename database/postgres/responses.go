package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SampleResponse is a curated model answer for one catalog question, shown
// alongside the practice UI so users can compare their own attempt.
type SampleResponse struct {
	ID           int64           `json:"id"`
	QuestionID   int64           `json:"question_id"`
	ResponseText string          `json:"response_text"`
	ResponseType string          `json:"response_type"`
	KeyMessages  json.RawMessage `json:"key_messages,omitempty"`
	CreatedBy    *int64          `json:"created_by,omitempty"`
	AuthorName   *string         `json:"author_name,omitempty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

var ErrSampleResponseNotFound = errors.New("sample response not found")

// ListSampleResponses returns the active sample answers for one question,
// newest first, with the curator's name when the account still exists.
func (d *Database) ListSampleResponses(ctx context.Context, questionID int64) ([]SampleResponse, error) {
	tracer := otel.Tracer("postgres/ListSampleResponses")
	ctx, span := tracer.Start(ctx, "ListSampleResponses")
	defer span.End()

	span.SetAttributes(attribute.Int64("question.id", questionID))

	rows, err := d.conn.QueryContext(ctx,
		`SELECT
		   sr.id,
		   sr.question_id,
		   sr.response_text,
		   sr.response_type,
		   sr.key_messages,
		   sr.created_by,
		   CASE WHEN u.id IS NULL THEN NULL ELSE u.first_name || ' ' || u.last_name END,
		   sr.is_active,
		   sr.created_at
		 FROM sample_responses sr
		 LEFT JOIN users u ON sr.created_by = u.id
		 WHERE sr.question_id = $1 AND sr.is_active = TRUE
		 ORDER BY sr.created_at DESC`,
		questionID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not list sample responses: %w", err)
	}
	defer rows.Close()

	responses := []SampleResponse{}
	for rows.Next() {
		var (
			r           SampleResponse
			keyMessages sql.NullString
			createdBy   sql.NullInt64
			authorName  sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.QuestionID, &r.ResponseText, &r.ResponseType,
			&keyMessages, &createdBy, &authorName, &r.IsActive, &r.CreatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("could not scan sample response row: %w", err)
		}
		if keyMessages.Valid {
			r.KeyMessages = json.RawMessage(keyMessages.String)
		}
		if createdBy.Valid {
			r.CreatedBy = &createdBy.Int64
		}
		r.AuthorName = nullStringPtr(authorName)
		responses = append(responses, r)
	}

	return responses, rows.Err()
}

type CreateSampleResponseProps struct {
	QuestionID   int64
	ResponseText string
	ResponseType string
	KeyMessages  json.RawMessage
	CreatedBy    int64
}

func (d *Database) CreateSampleResponse(ctx context.Context, args CreateSampleResponseProps) (*SampleResponse, error) {
	tracer := otel.Tracer("postgres/CreateSampleResponse")
	ctx, span := tracer.Start(ctx, "CreateSampleResponse")
	defer span.End()

	var questionExists bool
	err := d.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`,
		args.QuestionID,
	).Scan(&questionExists)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not verify question: %w", err)
	}
	if !questionExists {
		return nil, fmt.Errorf("question %d: %w", args.QuestionID, ErrNotInCatalog)
	}

	responseType := args.ResponseType
	if responseType == "" {
		responseType = "model_answer"
	}
	var keyMessages interface{}
	if len(args.KeyMessages) > 0 {
		keyMessages = string(args.KeyMessages)
	}

	response := SampleResponse{
		QuestionID:   args.QuestionID,
		ResponseText: args.ResponseText,
		ResponseType: responseType,
		KeyMessages:  args.KeyMessages,
		CreatedBy:    &args.CreatedBy,
		IsActive:     true,
	}
	err = d.conn.QueryRowContext(ctx,
		`INSERT INTO sample_responses (question_id, response_text, response_type, key_messages, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		args.QuestionID, args.ResponseText, responseType, keyMessages, args.CreatedBy,
	).Scan(&response.ID, &response.CreatedAt)
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not create sample response",
			zap.Error(err),
			zap.Int64("question_id", args.QuestionID),
		)
		return nil, fmt.Errorf("could not create sample response: %w", err)
	}

	return &response, nil
}

type UpdateSampleResponseProps struct {
	ResponseID   int64
	ResponseText *string
	ResponseType *string
	KeyMessages  json.RawMessage
	IsActive     *bool
}

// UpdateSampleResponse patches the supplied fields; deactivation goes through
// IsActive rather than deletion so existing links keep resolving.
func (d *Database) UpdateSampleResponse(ctx context.Context, args UpdateSampleResponseProps) (*SampleResponse, error) {
	tracer := otel.Tracer("postgres/UpdateSampleResponse")
	ctx, span := tracer.Start(ctx, "UpdateSampleResponse")
	defer span.End()

	var keyMessages interface{}
	if len(args.KeyMessages) > 0 {
		keyMessages = string(args.KeyMessages)
	}

	var (
		r           SampleResponse
		rawMessages sql.NullString
		createdBy   sql.NullInt64
	)
	err := d.conn.QueryRowContext(ctx,
		`UPDATE sample_responses
		 SET response_text = COALESCE($1, response_text),
		     response_type = COALESCE($2, response_type),
		     key_messages = COALESCE($3, key_messages),
		     is_active = COALESCE($4, is_active)
		 WHERE id = $5
		 RETURNING id, question_id, response_text, response_type, key_messages, created_by, is_active, created_at`,
		args.ResponseText, args.ResponseType, keyMessages, args.IsActive, args.ResponseID,
	).Scan(
		&r.ID, &r.QuestionID, &r.ResponseText, &r.ResponseType,
		&rawMessages, &createdBy, &r.IsActive, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSampleResponseNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not update sample response: %w", err)
	}

	if rawMessages.Valid {
		r.KeyMessages = json.RawMessage(rawMessages.String)
	}
	if createdBy.Valid {
		r.CreatedBy = &createdBy.Int64
	}

	return &r, nil
}

func (d *Database) DeleteSampleResponse(ctx context.Context, responseID int64) error {
	tracer := otel.Tracer("postgres/DeleteSampleResponse")
	ctx, span := tracer.Start(ctx, "DeleteSampleResponse")
	defer span.End()

	var deletedID int64
	err := d.conn.QueryRowContext(ctx,
		`DELETE FROM sample_responses WHERE id = $1 RETURNING id`,
		responseID,
	).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSampleResponseNotFound
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not delete sample response: %w", err)
	}

	return nil
}
