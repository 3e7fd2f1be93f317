package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mslcoach/coach"
	"mslcoach/logger"
	"mslcoach/modelapi/deepgramapi"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoach struct {
	turnResult *coach.TurnResult
	summary    *coach.ConversationSummary
	feedback   string
	err        error

	lastSessionID int64
	lastUserID    int64
	lastMessage   string
}

func (f *fakeCoach) AdvanceTurn(ctx context.Context, sessionID int64, userID int64, message string) (*coach.TurnResult, error) {
	f.lastSessionID = sessionID
	f.lastUserID = userID
	f.lastMessage = message
	if f.err != nil {
		return nil, f.err
	}
	return f.turnResult, nil
}

func (f *fakeCoach) GetConversationSummary(ctx context.Context, sessionID int64, userID int64) (*coach.ConversationSummary, error) {
	f.lastSessionID = sessionID
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeCoach) GenerateFeedback(ctx context.Context, sessionID int64, userID int64) (string, error) {
	f.lastSessionID = sessionID
	f.lastUserID = userID
	if f.err != nil {
		return "", f.err
	}
	return f.feedback, nil
}

type fakeTranscriber struct {
	result *deepgramapi.Transcription
	err    error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioData []byte) (*deepgramapi.Transcription, error) {
	return f.result, f.err
}

type fakeSpeech struct {
	audio []byte
	err   error
}

func (f *fakeSpeech) GenerateSpeech(ctx context.Context, inputText string) ([]byte, error) {
	return f.audio, f.err
}

func newTestServer(c CoachService) *WebServer {
	return Connect(WebServerConnectProps{
		Logger:     logger.Connect(logger.LoggerConnectProps{Production: false}),
		Coach:      c,
		Transcribe: &fakeTranscriber{result: &deepgramapi.Transcription{Text: "hello from audio", DurationSeconds: 42}},
		Speech:     &fakeSpeech{audio: []byte("mp3-bytes")},
	})
}

func doRequest(t *testing.T, server *WebServer, method, path, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	return body
}

func TestHealthNeedsNoAuth(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestApiRejectsMissingUserHeader(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/continue", "", `{"sessionId":1,"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestApiRejectsMalformedUserHeader(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/continue", "not-a-number", `{"sessionId":1,"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAdvanceTurnHappyPath(t *testing.T) {
	fake := &fakeCoach{turnResult: &coach.TurnResult{Message: "Which endpoints specifically?", TurnNumber: 2}}
	server := newTestServer(fake)

	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/continue", "7", `{"sessionId":42,"message":"What about cost?"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Which endpoints specifically?", body["aiResponse"])
	assert.Equal(t, float64(2), body["turnNumber"])

	assert.Equal(t, int64(42), fake.lastSessionID)
	assert.Equal(t, int64(7), fake.lastUserID)
	assert.Equal(t, "What about cost?", fake.lastMessage)
}

func TestAdvanceTurnRequiresSessionAndMessage(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	for _, body := range []string{
		`{}`,
		`{"sessionId":42}`,
		`{"message":"hi"}`,
		`not json`,
	} {
		recorder := doRequest(t, server, http.MethodPost, "/api/conversations/start", "7", body)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, "body: %s", body)
	}
}

func TestAdvanceTurnErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"session not found", coach.ErrSessionNotFound, http.StatusNotFound},
		{"empty message", coach.ErrEmptyMessage, http.StatusBadRequest},
		{"model unavailable", coach.ErrModelUnavailable, http.StatusBadGateway},
		{"persistence failure", coach.ErrPersistence, http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(&fakeCoach{err: tc.err})
			recorder := doRequest(t, server, http.MethodPost, "/api/conversations/continue", "7", `{"sessionId":42,"message":"hi"}`)
			assert.Equal(t, tc.wantStatus, recorder.Code)
		})
	}
}

func TestGetConversation(t *testing.T) {
	fake := &fakeCoach{summary: &coach.ConversationSummary{
		SessionID: 42,
		Turns: []coach.Turn{
			{TurnNumber: 1, Speaker: coach.SpeakerUser, Message: "Hello"},
			{TurnNumber: 2, Speaker: coach.SpeakerPersona, Message: "What specifically?"},
		},
		TotalTurns: 2,
	}}
	server := newTestServer(fake)

	recorder := doRequest(t, server, http.MethodGet, "/api/conversations/42", "7", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	conversation := body["conversation"].(map[string]interface{})
	assert.Equal(t, float64(42), conversation["sessionId"])
	assert.Equal(t, float64(2), conversation["totalTurns"])
	assert.Equal(t, int64(42), fake.lastSessionID)
	assert.Equal(t, int64(7), fake.lastUserID)
}

func TestGetConversationInvalidID(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodGet, "/api/conversations/abc", "7", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGenerateFeedback(t *testing.T) {
	fake := &fakeCoach{feedback: "**Overall Score:** 7/10"}
	server := newTestServer(fake)

	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/42/feedback", "7", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "**Overall Score:** 7/10", body["feedback"])
}

func TestGenerateFeedbackUnknownSession(t *testing.T) {
	server := newTestServer(&fakeCoach{err: coach.ErrSessionNotFound})
	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/42/feedback", "7", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSelfAssessmentValidation(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	cases := []struct {
		name string
		body string
	}{
		{"clarity above range", `{"clarityScore":11}`},
		{"polarity below range", `{"polarityScore":-1}`},
		{"confidence below range", `{"confidenceRating":0}`},
		{"quality above range", `{"responseQualityRating":11}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doRequest(t, server, http.MethodPatch, "/api/sessions/42/complete", "7", tc.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestCreateSampleResponseValidation(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	for _, body := range []string{
		`{}`,
		`{"questionId":1}`,
		`{"responseText":"Lead with the endpoint data."}`,
		`not json`,
	} {
		recorder := doRequest(t, server, http.MethodPost, "/api/responses/", "7", body)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, "body: %s", body)
	}
}

func TestSampleResponseInvalidIDs(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	recorder := doRequest(t, server, http.MethodGet, "/api/responses/question/abc", "7", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doRequest(t, server, http.MethodPatch, "/api/responses/abc", "7", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doRequest(t, server, http.MethodDelete, "/api/responses/abc", "7", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSetTodayGoalValidation(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	for _, body := range []string{
		`not json`,
		`{"targetSessions":-1}`,
	} {
		recorder := doRequest(t, server, http.MethodPost, "/api/goals/today", "7", body)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, "body: %s", body)
	}
}

func TestTranscribe(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	recorder := doRequest(t, server, http.MethodPost, "/api/speech/transcribe", "7", "fake-audio-bytes")
	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, "hello from audio", body["text"])
	assert.Equal(t, float64(42), body["durationSeconds"])
}

func TestTranscribeRequiresBody(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodPost, "/api/speech/transcribe", "7", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSpeak(t *testing.T) {
	server := newTestServer(&fakeCoach{})

	recorder := doRequest(t, server, http.MethodPost, "/api/speech/speak", "7", `{"text":"Which endpoints specifically?"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/mpeg", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "mp3-bytes", recorder.Body.String())
}

func TestSpeakRequiresText(t *testing.T) {
	server := newTestServer(&fakeCoach{})
	recorder := doRequest(t, server, http.MethodPost, "/api/speech/speak", "7", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSpeechUnconfigured(t *testing.T) {
	server := Connect(WebServerConnectProps{
		Logger: logger.Connect(logger.LoggerConnectProps{Production: false}),
		Coach:  &fakeCoach{},
	})

	recorder := doRequest(t, server, http.MethodPost, "/api/speech/transcribe", "7", "audio")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	recorder = doRequest(t, server, http.MethodPost, "/api/speech/speak", "7", `{"text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestResponsesAreJSON(t *testing.T) {
	server := newTestServer(&fakeCoach{turnResult: &coach.TurnResult{Message: "ok", TurnNumber: 2}})
	recorder := doRequest(t, server, http.MethodPost, "/api/conversations/continue", "7", `{"sessionId":1,"message":"hi"}`)
	assert.True(t, strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/json"))
}
