package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mslcoach/coach"
	"mslcoach/database/postgres"
	"mslcoach/logger"
	"mslcoach/modelapi/deepgramapi"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// CoachService is the conversation core the handlers call. *coach.Coach
// satisfies it; tests substitute a fake.
type CoachService interface {
	AdvanceTurn(ctx context.Context, sessionID int64, userID int64, message string) (*coach.TurnResult, error)
	GetConversationSummary(ctx context.Context, sessionID int64, userID int64) (*coach.ConversationSummary, error)
	GenerateFeedback(ctx context.Context, sessionID int64, userID int64) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte) (*deepgramapi.Transcription, error)
}

type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, inputText string) ([]byte, error)
}

type WebServerConnectProps struct {
	Logger     *logger.LogMiddleware
	DB         *postgres.Database
	Coach      CoachService
	Transcribe Transcriber
	Speech     SpeechGenerator
}

type WebServer struct {
	logger     *logger.LogMiddleware
	db         *postgres.Database
	coach      CoachService
	transcribe Transcriber
	speech     SpeechGenerator
}

func Connect(args WebServerConnectProps) *WebServer {
	return &WebServer{
		logger:     args.Logger,
		db:         args.DB,
		coach:      args.Coach,
		transcribe: args.Transcribe,
		speech:     args.Speech,
	}
}

type contextKey string

const userIDKey contextKey = "userID"

// requireUser pulls the caller identity the auth proxy injects upstream.
func (s *WebServer) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusUnauthorized, "Unauthorized (no userId)")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) int64 {
	userID, _ := ctx.Value(userIDKey).(int64)
	return userID
}

func (s *WebServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logger.RequestLogger())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/start", s.handleAdvanceTurn)
			r.Post("/continue", s.handleAdvanceTurn)
			r.Get("/{sessionID}", s.handleGetConversation)
			r.Post("/{sessionID}/feedback", s.handleGenerateFeedback)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Get("/stats", s.handleUserStats)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Patch("/{sessionID}/complete", s.handleSelfAssessment)
			r.Delete("/{sessionID}", s.handleDeleteSession)
		})

		r.Route("/data", func(r chi.Router) {
			r.Get("/questions", s.handleListQuestions)
			r.Get("/questions/{questionID}", s.handleGetQuestion)
			r.Get("/personas", s.handleListPersonas)
			r.Get("/personas/{personaID}", s.handleGetPersona)
			r.Get("/categories", s.handleListCategories)
		})

		r.Route("/responses", func(r chi.Router) {
			r.Get("/question/{questionID}", s.handleListSampleResponses)
			r.Post("/", s.handleCreateSampleResponse)
			r.Patch("/{responseID}", s.handleUpdateSampleResponse)
			r.Delete("/{responseID}", s.handleDeleteSampleResponse)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Get("/today", s.handleTodayGoal)
			r.Post("/today", s.handleSetTodayGoal)
			r.Get("/history", s.handleGoalHistory)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/link-telegram", s.handleLinkTelegram)
		})

		r.Route("/speech", func(r chi.Router) {
			r.Post("/transcribe", s.handleTranscribe)
			r.Post("/speak", s.handleSpeak)
		})
	})

	return otelhttp.NewHandler(r, "webserver")
}

type advanceTurnRequest struct {
	SessionID int64  `json:"sessionId"`
	Message   string `json:"message"`
}

func (s *WebServer) handleAdvanceTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req advanceTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == 0 || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Session ID and message are required")
		return
	}

	result, err := s.coach.AdvanceTurn(ctx, req.SessionID, userID, req.Message)
	if err != nil {
		s.writeCoachError(w, r, err, "Error advancing conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"aiResponse": result.Message,
		"turnNumber": result.TurnNumber,
	})
}

func (s *WebServer) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	summary, err := s.coach.GetConversationSummary(ctx, sessionID, userID)
	if err != nil {
		s.writeCoachError(w, r, err, "Error fetching conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"conversation": summary,
	})
}

func (s *WebServer) handleGenerateFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	feedback, err := s.coach.GenerateFeedback(ctx, sessionID, userID)
	if err != nil {
		s.writeCoachError(w, r, err, "Error generating feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"feedback": feedback,
	})
}

type createSessionRequest struct {
	QuestionID int64 `json:"questionId"`
	PersonaID  int64 `json:"personaId"`
}

func (s *WebServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == 0 || req.PersonaID == 0 {
		writeError(w, http.StatusBadRequest, "Question ID and Persona ID required")
		return
	}

	session, err := s.db.CreateSession(ctx, postgres.CreateSessionProps{
		UserID:     userID,
		QuestionID: req.QuestionID,
		PersonaID:  req.PersonaID,
	})
	if errors.Is(err, postgres.ErrNotInCatalog) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error creating session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Practice session created",
		"session": session,
	})
}

func (s *WebServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessions, err := s.db.ListSessions(ctx, userID)
	if err != nil {
		s.logger.Logger(ctx).Error("List sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *WebServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	session, err := s.db.GetSession(ctx, sessionID, userID)
	if errors.Is(err, coach.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

type selfAssessmentRequest struct {
	ConfidenceRating         *int    `json:"confidenceRating"`
	ResponseQualityRating    *int    `json:"responseQualityRating"`
	ClarityScore             *int    `json:"clarityScore"`
	VariabilityScore         *int    `json:"variabilityScore"`
	PolarityScore            *int    `json:"polarityScore"`
	UserNotes                *string `json:"userNotes"`
	RecordingText            *string `json:"recordingText"`
	RecordingDurationSeconds *int    `json:"recordingDurationSeconds"`
}

func (s *WebServer) handleSelfAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	var req selfAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for _, score := range []*int{req.ClarityScore, req.VariabilityScore, req.PolarityScore} {
		if score != nil && (*score < 0 || *score > 10) {
			writeError(w, http.StatusBadRequest, "Self-assessment scores must be between 0 and 10")
			return
		}
	}
	for _, rating := range []*int{req.ConfidenceRating, req.ResponseQualityRating} {
		if rating != nil && (*rating < 1 || *rating > 10) {
			writeError(w, http.StatusBadRequest, "Ratings must be between 1 and 10")
			return
		}
	}

	session, err := s.db.SaveSelfAssessment(ctx, postgres.SelfAssessmentProps{
		SessionID:                sessionID,
		UserID:                   userID,
		ConfidenceRating:         req.ConfidenceRating,
		ResponseQualityRating:    req.ResponseQualityRating,
		ClarityScore:             req.ClarityScore,
		VariabilityScore:         req.VariabilityScore,
		PolarityScore:            req.PolarityScore,
		UserNotes:                req.UserNotes,
		RecordingText:            req.RecordingText,
		RecordingDurationSeconds: req.RecordingDurationSeconds,
	})
	if errors.Is(err, coach.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Save self assessment failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error saving self assessment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Session updated successfully",
		"session": session,
	})
}

func (s *WebServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	err = s.db.DeleteSession(ctx, sessionID, userID)
	if errors.Is(err, coach.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Delete session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error deleting session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func (s *WebServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	stats, err := s.db.UserStats(ctx, userID)
	if err != nil {
		s.logger.Logger(ctx).Error("User stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *WebServer) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	personaID, _ := strconv.ParseInt(r.URL.Query().Get("persona_id"), 10, 64)
	questions, err := s.db.ListQuestions(ctx, postgres.ListQuestionsProps{
		Category:   r.URL.Query().Get("category"),
		Difficulty: r.URL.Query().Get("difficulty"),
		PersonaID:  personaID,
	})
	if err != nil {
		s.logger.Logger(ctx).Error("List questions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     len(questions),
	})
}

func (s *WebServer) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid question id")
		return
	}

	question, err := s.db.GetQuestion(ctx, questionID)
	if errors.Is(err, postgres.ErrCatalogEntryNotFound) {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Get question failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching question")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"question": question})
}

func (s *WebServer) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	personas, err := s.db.ListPersonas(ctx)
	if err != nil {
		s.logger.Logger(ctx).Error("List personas failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching personas")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"personas": personas,
		"total":    len(personas),
	})
}

func (s *WebServer) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	personaID, err := strconv.ParseInt(chi.URLParam(r, "personaID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid persona id")
		return
	}

	persona, err := s.db.GetPersona(ctx, personaID)
	if errors.Is(err, postgres.ErrCatalogEntryNotFound) {
		writeError(w, http.StatusNotFound, "Persona not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Get persona failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching persona")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"persona": persona})
}

func (s *WebServer) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := s.db.ListCategories(ctx)
	if err != nil {
		s.logger.Logger(ctx).Error("List categories failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching categories")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"total":      len(categories),
	})
}

func (s *WebServer) handleListSampleResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid question id")
		return
	}

	responses, err := s.db.ListSampleResponses(ctx, questionID)
	if err != nil {
		s.logger.Logger(ctx).Error("List sample responses failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching sample responses")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responses": responses,
		"total":     len(responses),
	})
}

type createSampleResponseRequest struct {
	QuestionID   int64           `json:"questionId"`
	ResponseText string          `json:"responseText"`
	ResponseType string          `json:"responseType"`
	KeyMessages  json.RawMessage `json:"keyMessages"`
}

func (s *WebServer) handleCreateSampleResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req createSampleResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == 0 || req.ResponseText == "" {
		writeError(w, http.StatusBadRequest, "Question ID and response text are required")
		return
	}

	response, err := s.db.CreateSampleResponse(ctx, postgres.CreateSampleResponseProps{
		QuestionID:   req.QuestionID,
		ResponseText: req.ResponseText,
		ResponseType: req.ResponseType,
		KeyMessages:  req.KeyMessages,
		CreatedBy:    userID,
	})
	if errors.Is(err, postgres.ErrNotInCatalog) {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Create sample response failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error creating sample response")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Sample response created successfully",
		"response": response,
	})
}

type updateSampleResponseRequest struct {
	ResponseText *string         `json:"responseText"`
	ResponseType *string         `json:"responseType"`
	KeyMessages  json.RawMessage `json:"keyMessages"`
	IsActive     *bool           `json:"isActive"`
}

func (s *WebServer) handleUpdateSampleResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := strconv.ParseInt(chi.URLParam(r, "responseID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid response id")
		return
	}

	var req updateSampleResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	response, err := s.db.UpdateSampleResponse(ctx, postgres.UpdateSampleResponseProps{
		ResponseID:   responseID,
		ResponseText: req.ResponseText,
		ResponseType: req.ResponseType,
		KeyMessages:  req.KeyMessages,
		IsActive:     req.IsActive,
	})
	if errors.Is(err, postgres.ErrSampleResponseNotFound) {
		writeError(w, http.StatusNotFound, "Sample response not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Update sample response failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error updating sample response")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Sample response updated successfully",
		"response": response,
	})
}

func (s *WebServer) handleDeleteSampleResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := strconv.ParseInt(chi.URLParam(r, "responseID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid response id")
		return
	}

	err = s.db.DeleteSampleResponse(ctx, responseID)
	if errors.Is(err, postgres.ErrSampleResponseNotFound) {
		writeError(w, http.StatusNotFound, "Sample response not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Delete sample response failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error deleting sample response")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Sample response deleted successfully"})
}

func (s *WebServer) handleTodayGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	goal, err := s.db.TodayGoal(ctx, userID)
	if err != nil {
		s.logger.Logger(ctx).Error("Get today goal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching goal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"goal": goal})
}

type setGoalRequest struct {
	TargetSessions int `json:"targetSessions"`
}

func (s *WebServer) handleSetTodayGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req setGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetSessions < 0 {
		writeError(w, http.StatusBadRequest, "Invalid goal request")
		return
	}

	goal, err := s.db.SetTodayGoal(ctx, userID, req.TargetSessions)
	if err != nil {
		s.logger.Logger(ctx).Error("Set goal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error setting goal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"goal": goal})
}

func (s *WebServer) handleGoalHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	goals, err := s.db.GoalHistory(ctx, userID)
	if err != nil {
		s.logger.Logger(ctx).Error("Get goal history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching goal history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"goals": goals,
		"total": len(goals),
	})
}

type linkTelegramRequest struct {
	TelegramUserID int64 `json:"telegramUserId"`
}

func (s *WebServer) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req linkTelegramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TelegramUserID == 0 {
		writeError(w, http.StatusBadRequest, "Telegram user ID required")
		return
	}

	err := s.db.LinkTelegram(ctx, postgres.LinkTelegramProps{
		UserID:         userID,
		TelegramUserID: req.TelegramUserID,
	})
	if errors.Is(err, postgres.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.logger.Logger(ctx).Error("Link Telegram failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error linking Telegram account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Telegram account linked"})
}

func (s *WebServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.transcribe == nil {
		writeError(w, http.StatusServiceUnavailable, "Transcription not configured")
		return
	}

	audioData, err := io.ReadAll(r.Body)
	if err != nil || len(audioData) == 0 {
		writeError(w, http.StatusBadRequest, "Audio body required")
		return
	}

	transcription, err := s.transcribe.Transcribe(ctx, audioData)
	if err != nil {
		s.logger.Logger(ctx).Error("Transcription failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Error transcribing audio")
		return
	}

	writeJSON(w, http.StatusOK, transcription)
}

type speakRequest struct {
	Text string `json:"text"`
}

func (s *WebServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.speech == nil {
		writeError(w, http.StatusServiceUnavailable, "Speech synthesis not configured")
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	audio, err := s.speech.GenerateSpeech(ctx, req.Text)
	if err != nil {
		s.logger.Logger(ctx).Error("Speech generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Error generating speech")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// writeCoachError maps the coach failure taxonomy onto HTTP statuses so
// clients can tell bad input from transient backend failures.
func (s *WebServer) writeCoachError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	ctx := r.Context()

	switch {
	case errors.Is(err, coach.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, coach.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message must not be empty")
	case errors.Is(err, coach.ErrModelUnavailable):
		s.logger.Logger(ctx).Error("Model call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "The coaching model is temporarily unavailable, please retry")
	default:
		s.logger.Logger(ctx).Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
