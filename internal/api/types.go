package api

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/internal/conversation"
)

// SendMessageRequest represents a free-text turn
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,notblank,max=4000"`
}

// ScreenerConsentRequest answers the screener opt-in prompt
type ScreenerConsentRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// ScreenerAnswerRequest answers the current screener question
type ScreenerAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Value      *int   `json:"value" validate:"required,min=0,max=3"`
}

// TriageResponseRequest answers the current triage prompt
type TriageResponseRequest struct {
	Answer string `json:"answer" validate:"required,oneof=yes no"`
}

// ThinkingModeRequest toggles deep completions
type ThinkingModeRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ConversationResponse is the client view of a conversation
type ConversationResponse struct {
	Mode         entities.SessionMode `json:"mode"`
	ThinkingMode bool                 `json:"thinking_mode"`
	Voice        string               `json:"voice"`
	Prompt       conversation.Prompt  `json:"prompt"`
	Messages     []entities.Message   `json:"messages"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CustomValidator adapts go-playground/validator to echo
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates the request validator with the custom rules registered
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validateNotBlank)
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// validateNotBlank rejects strings made only of whitespace
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
