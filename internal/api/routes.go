package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/screener"
	"github.com/satriahrh/peacepal/server/internal/triage"
	"github.com/satriahrh/peacepal/server/internal/websocket"
	"github.com/satriahrh/peacepal/server/usecase"
)

const userIDKey = "userID"

// Handler serves the conversation API of the authenticated user
type Handler struct {
	sessions websocket.SessionProvider
	logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, sessions websocket.SessionProvider, identity repositories.IdentityProvider, logger *zap.Logger) {
	e.Validator = NewValidator()
	h := &Handler{sessions: sessions, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "peacepal-server",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authenticated := requireUser(identity, logger)

	// API v1 routes
	v1 := e.Group("/api/v1", authenticated)
	v1.GET("/conversation", h.getConversation)
	v1.POST("/messages", h.sendMessage)
	v1.POST("/screener/consent", h.screenerConsent)
	v1.POST("/screener/answers", h.screenerAnswer)
	v1.POST("/triage/responses", h.triageResponse)
	v1.PUT("/preferences/thinking-mode", h.setThinkingMode)

	// WebSocket endpoint for the voice device
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocketWithAuth(hub, c, c.Get(userIDKey).(string), logger)
	}, authenticated)
}

// requireUser resolves the caller's identity or rejects the request
func requireUser(identity repositories.IdentityProvider, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := identity.UserID(c.Request())
			if err != nil || userID == "" {
				logger.Warn("Request rejected: identity not ready",
					zap.String("path", c.Path()),
					zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "A valid bearer token is required",
				})
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func (h *Handler) session(c echo.Context) (*usecase.Session, error) {
	return h.sessions.Get(c.Request().Context(), c.Get(userIDKey).(string))
}

func (h *Handler) getConversation(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) sendMessage(c echo.Context) error {
	var req SendMessageRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}

	// The reply is persisted even if the caller goes away while the model is thinking
	ctx := context.WithoutCancel(c.Request().Context())
	if err := session.Conversation.SendText(ctx, req.Text); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) screenerConsent(c echo.Context) error {
	var req ScreenerConsentRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := session.Conversation.ScreenerConsent(*req.Accept); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) screenerAnswer(c echo.Context) error {
	var req ScreenerAnswerRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := session.Conversation.ScreenerAnswer(req.QuestionID, *req.Value); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) triageResponse(c echo.Context) error {
	var req TriageResponseRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := session.Conversation.TriageRespond(triage.Response(req.Answer)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

func (h *Handler) setThinkingMode(c echo.Context) error {
	var req ThinkingModeRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}
	session, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := session.Conversation.SetThinkingMode(*req.Enabled); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(session))
}

// bind decodes and validates the body. A non-nil result is the 400 response to send.
func (h *Handler) bind(c echo.Context, req interface{}) *ErrorResponse {
	if err := c.Bind(req); err != nil {
		h.logger.Warn("Failed to bind request", zap.String("path", c.Path()), zap.Error(err))
		return &ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		}
	}
	if err := c.Validate(req); err != nil {
		return &ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		}
	}
	return nil
}

func toResponse(session *usecase.Session) ConversationResponse {
	view := session.Conversation.View()
	return ConversationResponse{
		Mode:         view.State.Mode,
		ThinkingMode: view.State.ThinkingMode,
		Voice:        string(session.Voice.State()),
		Prompt:       view.Prompt,
		Messages:     view.Messages,
	}
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{usecase.ErrNotReady, http.StatusUnauthorized, "not_ready"},
	{usecase.ErrTurnInProgress, http.StatusConflict, "turn_in_progress"},
	{usecase.ErrVoiceActive, http.StatusConflict, "voice_active"},
	{usecase.ErrClosed, http.StatusServiceUnavailable, "session_closed"},
	{usecase.ErrEmptyText, http.StatusBadRequest, "empty_text"},
	{conversation.ErrSubFlowActive, http.StatusConflict, "sub_flow_active"},
	{conversation.ErrAlreadyOptedIn, http.StatusConflict, "already_opted_in"},
	{conversation.ErrNoScreener, http.StatusConflict, "no_screener"},
	{conversation.ErrNoTriage, http.StatusConflict, "no_triage"},
	{conversation.ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer"},
	{screener.ErrAlreadyComplete, http.StatusConflict, "screener_complete"},
	{screener.ErrNotOptedIn, http.StatusConflict, "screener_not_opted_in"},
	{screener.ErrWrongQuestion, http.StatusBadRequest, "wrong_question"},
	{screener.ErrValueOutOfRange, http.StatusBadRequest, "value_out_of_range"},
	{screener.ErrInstrument, http.StatusBadRequest, "wrong_instrument"},
}

// fail maps domain errors onto HTTP responses
func (h *Handler) fail(c echo.Context, err error) error {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return c.JSON(e.status, ErrorResponse{Error: e.code, Message: err.Error()})
		}
	}

	h.logger.Error("Request failed",
		zap.String("path", c.Path()),
		zap.String("userID", c.Get(userIDKey).(string)),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong",
	})
}
