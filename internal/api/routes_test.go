package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/adapters"
	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/auth"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/screener"
	"github.com/satriahrh/peacepal/server/internal/triage"
	"github.com/satriahrh/peacepal/server/internal/trigger"
	"github.com/satriahrh/peacepal/server/internal/voice"
	"github.com/satriahrh/peacepal/server/internal/websocket"
	"github.com/satriahrh/peacepal/server/usecase"
)

const botReply = "I'm here with you."

type stubCompletion struct{}

func (stubCompletion) Complete(ctx context.Context, userText string, history []entities.HistoryEntry, mode repositories.CompletionMode) string {
	return botReply
}

type nopTransport struct{}

func (nopTransport) Connect(ctx context.Context, callbacks repositories.LiveCallbacks) (repositories.LiveConnection, error) {
	return nil, context.Canceled
}

type testAPI struct {
	echo  *echo.Echo
	token string
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	tables, err := trigger.DefaultTables()
	require.NoError(t, err)
	machine := conversation.NewMachine(trigger.NewClassifier(tables), triage.Reference())
	chat := usecase.NewChatService(stubCompletion{}, logger)
	registry := usecase.NewRegistry(machine, chat, adapters.NewMemoryMessageRepository(), nopTransport{}, voice.Config{}, logger)
	t.Cleanup(registry.Close)

	jwt, err := auth.NewJWT("test-secret", time.Hour)
	require.NoError(t, err)
	token, err := jwt.GenerateUserToken("user-1")
	require.NoError(t, err)

	hub := websocket.NewHub(registry, logger)
	e := echo.New()
	InitRoutes(e, hub, registry, jwt, logger)
	return &testAPI{echo: e, token: token}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func prompt(body map[string]interface{}) map[string]interface{} {
	p, _ := body["prompt"].(map[string]interface{})
	return p
}

func messageTexts(body map[string]interface{}) []string {
	raw, _ := body["messages"].([]interface{})
	texts := make([]string, 0, len(raw))
	for _, m := range raw {
		texts = append(texts, m.(map[string]interface{})["text"].(string))
	}
	return texts
}

func TestHealth(t *testing.T) {
	api := setupTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "peacepal-server")
}

func TestUnauthorized(t *testing.T) {
	api := setupTestAPI(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing token", ""},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversation", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			api.echo.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "unauthorized")
		})
	}
}

func TestGetConversation(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodGet, "/api/v1/conversation", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chat", body["mode"])
	assert.Equal(t, "idle", body["voice"])
	assert.Equal(t, conversation.PromptFreeText, prompt(body)["kind"])
}

func TestSendMessage(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/messages", `{"text": "hello"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"hello", botReply}, messageTexts(body))

	code, body = api.do(t, http.MethodPost, "/api/v1/messages", `{"text": "   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", body["error"])

	code, body = api.do(t, http.MethodPost, "/api/v1/messages", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestScreenerFlow(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/messages", `{"text": "I've been so anxious"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "gad7", body["mode"])
	assert.Equal(t, conversation.PromptConsent, prompt(body)["kind"])

	code, body = api.do(t, http.MethodPost, "/api/v1/messages", `{"text": "what now?"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "sub_flow_active", body["error"])

	code, body = api.do(t, http.MethodPost, "/api/v1/screener/answers", `{"question_id": "gad1", "value": 1}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "screener_not_opted_in", body["error"])

	code, body = api.do(t, http.MethodPost, "/api/v1/screener/consent", `{"accept": true}`)
	require.Equal(t, http.StatusOK, code)
	p := prompt(body)
	assert.Equal(t, conversation.PromptQuestion, p["kind"])
	assert.Equal(t, screener.GAD7.Questions[0].ID, p["question_id"])

	code, body = api.do(t, http.MethodPost, "/api/v1/screener/answers", `{"question_id": "gad2", "value": 1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "wrong_question", body["error"])

	code, _ = api.do(t, http.MethodPost, "/api/v1/screener/answers", `{"question_id": "gad1", "value": 4}`)
	assert.Equal(t, http.StatusBadRequest, code)

	for _, q := range screener.GAD7.Questions {
		code, body = api.do(t, http.MethodPost, "/api/v1/screener/answers", `{"question_id": "`+q.ID+`", "value": 0}`)
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, "chat", body["mode"])
	assert.Equal(t, conversation.PromptFreeText, prompt(body)["kind"])
}

func TestScreenerConsentValidation(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/screener/consent", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", body["error"])

	code, body = api.do(t, http.MethodPost, "/api/v1/screener/consent", `{"accept": false}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_screener", body["error"])
}

func TestTriageFlow(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/messages", `{"text": "I want to die"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cssrs", body["mode"])
	p := prompt(body)
	assert.Equal(t, conversation.PromptYesNo, p["kind"])
	assert.Equal(t, triage.EntryNode, p["question_id"])

	code, body = api.do(t, http.MethodPost, "/api/v1/triage/responses", `{"answer": "maybe"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", body["error"])

	code, body = api.do(t, http.MethodPut, "/api/v1/preferences/thinking-mode", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["thinking_mode"])
	assert.Equal(t, "cssrs", body["mode"])
}

func TestTriageWithoutFlow(t *testing.T) {
	api := setupTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/triage/responses", `{"answer": "yes"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_triage", body["error"])
}
