package entities

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// HistoryRole is the role of a history entry handed to the language model
type HistoryRole string

const (
	HistoryRoleUser  HistoryRole = "user"
	HistoryRoleModel HistoryRole = "model"
)

// LiveMessagePrefix marks provisional voice transcript messages that are not persisted yet
const LiveMessagePrefix = "live-"

// Message represents a single line in the conversation
type Message struct {
	ID        string    `json:"id" bson:"-"`
	Text      string    `json:"text" bson:"text"`
	Sender    Sender    `json:"sender" bson:"sender"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// HistoryEntry is a projection of Message used as model context
type HistoryEntry struct {
	Role HistoryRole `json:"role"`
	Text string      `json:"text"`
}

// IsLive reports whether the message is a provisional voice transcript
func (m Message) IsLive() bool {
	return strings.HasPrefix(m.ID, LiveMessagePrefix)
}

// Validate validates the message data
func (m Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("text is required")
	}
	if m.Sender != SenderUser && m.Sender != SenderBot {
		return errors.New("invalid sender")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	return nil
}

// SortMessages orders messages by creation time. Delivery order from the store is not
// guaranteed to match causal order.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// ToHistory projects messages into model context entries
func ToHistory(messages []Message) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		role := HistoryRoleUser
		if msg.Sender == SenderBot {
			role = HistoryRoleModel
		}
		history = append(history, HistoryEntry{Role: role, Text: msg.Text})
	}
	return history
}
