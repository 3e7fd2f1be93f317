package coach

import (
	"context"
	"errors"
	"fmt"
	"mslcoach/logger"
	"mslcoach/modelapi"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	SpeakerUser    = "user"
	SpeakerPersona = "persona"
)

const (
	replyMaxTokens    = 1000
	feedbackMaxTokens = 1500
	modelCallTimeout  = 90 * time.Second
)

// Failure taxonomy. Callers branch on these with errors.Is to map client
// errors (bad input, wrong owner) apart from server-side ones (model down,
// write failed).
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrEmptyMessage     = errors.New("message must not be empty")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrPersistence      = errors.New("persistence failure")
	ErrAlreadyCompleted = errors.New("session already completed")
)

// Terminal non-error outcomes of feedback generation.
const (
	FeedbackAlreadyCompleted = "Feedback has already been generated for this session."
	FeedbackEmptyTranscript  = "No conversation to analyze yet."
)

type Question struct {
	Text       string
	Context    string
	Category   string
	Difficulty string
}

// Persona is the read-only profile of the simulated physician. The structured
// fields hold the JSON text exactly as the catalog stores it; the prompt
// composer interpolates them verbatim so the rendered prompt stays
// byte-stable for a given persona.
type Persona struct {
	Name               string
	Specialty          string
	Quote              string
	CommunicationStyle string
	Priorities         string
	CommonChallenges   string
}

// SessionContext is the joined (session, question, persona) record for one
// practice attempt, scoped to its owning user.
type SessionContext struct {
	SessionID   int64
	UserID      int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Feedback    string
	Question    Question
	Persona     Persona
}

type Turn struct {
	TurnNumber int32     `json:"turnNumber"`
	Speaker    string    `json:"speaker"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

type TurnResult struct {
	Message    string `json:"message"`
	TurnNumber int32  `json:"turnNumber"`
}

type ConversationSummary struct {
	SessionID  int64  `json:"sessionId"`
	Turns      []Turn `json:"turns"`
	TotalTurns int    `json:"totalTurns"`
}

// Store is the persistence surface the coach needs. AppendExchange must write
// both rows of one exchange atomically and assign turn numbers under
// per-session serialization; SetFeedback must refuse a session whose
// completed_at is already set.
type Store interface {
	ResolveSession(ctx context.Context, sessionID int64, userID int64) (*SessionContext, error)
	ListTurns(ctx context.Context, sessionID int64) ([]Turn, error)
	AppendExchange(ctx context.Context, sessionID int64, userMessage string, replyText string) (int32, error)
	SetFeedback(ctx context.Context, sessionID int64, userID int64, feedback string) error
}

// ModelClient is one chat-completion provider. anthropicapi and geminiapi
// both satisfy it.
type ModelClient interface {
	Complete(ctx context.Context, input modelapi.CompletionInput) (string, error)
}

type CoachConnectProps struct {
	Logger *logger.LogMiddleware
	Store  Store
	Model  ModelClient
}

type Coach struct {
	logger *logger.LogMiddleware
	store  Store
	model  ModelClient
}

func Connect(ctx context.Context, args CoachConnectProps) *Coach {
	tracer := otel.Tracer("coach/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Coach] Conversation coach started")

	return &Coach{logger: args.Logger, store: args.Store, model: args.Model}
}

// AdvanceTurn runs one user<->persona exchange: it replays the stored
// transcript into the model call, gets the persona's reply, and records both
// turns. Nothing is persisted when the model call fails, so the caller can
// resubmit the same message.
func (c *Coach) AdvanceTurn(ctx context.Context, sessionID int64, userID int64, userMessage string) (*TurnResult, error) {
	tracer := otel.Tracer("coach/AdvanceTurn")
	ctx, span := tracer.Start(ctx, "AdvanceTurn")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("session.id", sessionID),
		attribute.Int64("user.id", userID),
	)

	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := c.store.ResolveSession(ctx, sessionID, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	history, err := c.store.ListTurns(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	span.SetAttributes(attribute.Int("history.length", len(history)))

	messages := make([]modelapi.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := modelapi.ASSISTANT
		if turn.Speaker == SpeakerUser {
			role = modelapi.USER
		}
		messages = append(messages, modelapi.ChatMessage{Role: role, Content: turn.Message})
	}
	messages = append(messages, modelapi.ChatMessage{Role: modelapi.USER, Content: userMessage})

	modelCtx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	replyText, err := c.model.Complete(modelCtx, modelapi.CompletionInput{
		System:    BuildPersonaSystemPrompt(session),
		Messages:  messages,
		MaxTokens: replyMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error(
			"[Coach] Model call failed, exchange not persisted",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	replyTurn, err := c.store.AppendExchange(ctx, sessionID, userMessage, replyText)
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error(
			"[Coach] Could not persist exchange after successful model call",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.logger.Logger(ctx).Info(
		"[Coach] Exchange recorded",
		zap.Int64("session_id", sessionID),
		zap.Int32("turn_number", replyTurn),
	)

	return &TurnResult{Message: replyText, TurnNumber: replyTurn}, nil
}

// GetConversationSummary returns the ordered transcript for a session the
// caller owns.
func (c *Coach) GetConversationSummary(ctx context.Context, sessionID int64, userID int64) (*ConversationSummary, error) {
	tracer := otel.Tracer("coach/GetConversationSummary")
	ctx, span := tracer.Start(ctx, "GetConversationSummary")
	defer span.End()

	if _, err := c.store.ResolveSession(ctx, sessionID, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	turns, err := c.store.ListTurns(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &ConversationSummary{
		SessionID:  sessionID,
		Turns:      turns,
		TotalTurns: len(turns),
	}, nil
}

// GenerateFeedback produces the one-shot structured critique for a session
// and freezes it as complete. Calling it again, or calling it on an empty
// transcript, is a defined terminal outcome rather than an error, and neither
// reaches the model.
func (c *Coach) GenerateFeedback(ctx context.Context, sessionID int64, userID int64) (string, error) {
	tracer := otel.Tracer("coach/GenerateFeedback")
	ctx, span := tracer.Start(ctx, "GenerateFeedback")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("session.id", sessionID),
		attribute.Int64("user.id", userID),
	)

	session, err := c.store.ResolveSession(ctx, sessionID, userID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if session.CompletedAt != nil {
		span.AddEvent("Session already completed")
		c.logger.Logger(ctx).Info(
			"[Coach] Feedback requested for completed session, skipping model call",
			zap.Int64("session_id", sessionID),
		)
		return FeedbackAlreadyCompleted, nil
	}

	turns, err := c.store.ListTurns(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if len(turns) == 0 {
		span.AddEvent("Empty transcript")
		return FeedbackEmptyTranscript, nil
	}

	transcript := RenderTranscript(turns)

	modelCtx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	feedback, err := c.model.Complete(modelCtx, modelapi.CompletionInput{
		System: FeedbackSystemPrompt,
		Messages: []modelapi.ChatMessage{
			{Role: modelapi.USER, Content: BuildFeedbackRequest(session, transcript)},
		},
		MaxTokens: feedbackMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Logger(ctx).Error(
			"[Coach] Feedback model call failed",
			zap.Error(err),
			zap.Int64("session_id", sessionID),
		)
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if err := c.store.SetFeedback(ctx, sessionID, userID, feedback); err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			// A concurrent request won the completion race; its feedback stands.
			span.AddEvent("Lost completion race")
			return FeedbackAlreadyCompleted, nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.logger.Logger(ctx).Info(
		"[Coach] Feedback generated and session completed",
		zap.Int64("session_id", sessionID),
		zap.Int("feedback_length", len(feedback)),
	)

	return feedback, nil
}
