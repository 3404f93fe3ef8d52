package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/internal/conversation"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the device
const (
	MessageTypeVoiceStart    MessageType = "voice_start"
	MessageTypeVoiceStop     MessageType = "voice_stop"
	MessageTypeCaptureReady  MessageType = "capture_ready"
	MessageTypeCaptureDenied MessageType = "capture_denied"
	MessageTypePlaybackEnded MessageType = "playback_ended"
	MessageTypePing          MessageType = "ping"
)

// Messages sent by the server
const (
	MessageTypeState        MessageType = "state"
	MessageTypeMessages     MessageType = "messages"
	MessageTypeCaptureStart MessageType = "capture_start"
	MessageTypeCaptureStop  MessageType = "capture_stop"
	MessageTypePlay         MessageType = "play"
	MessageTypeStop         MessageType = "stop"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
}

// ClientMessage is any control message sent by the device
type ClientMessage struct {
	BaseMessage
	ClipID string `json:"clip_id,omitempty" validate:"omitempty,max=64"`
	Data   string `json:"data,omitempty" validate:"max=256"`
}

// StateMessage reports the voice lifecycle state
type StateMessage struct {
	BaseMessage
	Voice string `json:"voice"`
}

// MessagesMessage carries the visible conversation after every change
type MessagesMessage struct {
	BaseMessage
	Mode         entities.SessionMode `json:"mode"`
	ThinkingMode bool                 `json:"thinking_mode"`
	Prompt       conversation.Prompt  `json:"prompt"`
	Messages     []entities.Message   `json:"messages"`
}

// CaptureStartMessage asks the device to open its microphone
type CaptureStartMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"`
	FrameSize  int `json:"frame_size"`
}

// PlayMessage schedules a clip on the device playback clock
type PlayMessage struct {
	BaseMessage
	ClipID     string `json:"clip_id"`
	SampleRate int    `json:"sample_rate"`
	StartMs    int64  `json:"start_ms"`
	Audio      string `json:"audio"` // base64 PCM16 LE mono
}

// StopMessage cancels a scheduled clip
type StopMessage struct {
	BaseMessage
	ClipID string `json:"clip_id"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct {
	validate *validator.Validate
}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{validate: validator.New()}
}

// ValidateMessage parses and validates an incoming control message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeVoiceStart, MessageTypeVoiceStop, MessageTypeCaptureReady,
		MessageTypeCaptureDenied, MessageTypePlaybackEnded, MessageTypePing:
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	if err := v.validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", msg.Type, err)
	}
	if msg.Type == MessageTypePlaybackEnded && msg.ClipID == "" {
		return nil, fmt.Errorf("clip_id is required")
	}

	if msg.Timestamp == "" {
		msg.Timestamp = now()
	}
	return &msg, nil
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

func base(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: now()}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: base(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{BaseMessage: base(MessageTypePong), Data: data}
}

// CreateStateMessage creates a voice state message
func CreateStateMessage(voice string) *StateMessage {
	return &StateMessage{BaseMessage: base(MessageTypeState), Voice: voice}
}
