package entities

import (
	"errors"
	"time"
)

// SessionMode represents which flow currently owns the conversation
type SessionMode string

const (
	SessionModeChat  SessionMode = "chat"
	SessionModePHQ9  SessionMode = "phq9"
	SessionModeGAD7  SessionMode = "gad7"
	SessionModeCSSRS SessionMode = "cssrs"
)

// IsScreener reports whether the mode is one of the questionnaire modes
func (m SessionMode) IsScreener() bool {
	return m == SessionModePHQ9 || m == SessionModeGAD7
}

// Valid reports whether the mode is known
func (m SessionMode) Valid() bool {
	switch m {
	case SessionModeChat, SessionModePHQ9, SessionModeGAD7, SessionModeCSSRS:
		return true
	}
	return false
}

// idleTimeout is how long a conversation session stays in memory without activity
const idleTimeout = 30 * time.Minute

// ScreenerState holds the progress of a questionnaire while its mode is active
type ScreenerState struct {
	Instrument string         `json:"instrument"`
	Index      int            `json:"index"`
	OptedIn    bool           `json:"opted_in"`
	Answers    map[string]int `json:"answers"`
}

// Clone returns a deep copy so transitions never share the answers map
func (s *ScreenerState) Clone() *ScreenerState {
	if s == nil {
		return nil
	}
	answers := make(map[string]int, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	return &ScreenerState{
		Instrument: s.Instrument,
		Index:      s.Index,
		OptedIn:    s.OptedIn,
		Answers:    answers,
	}
}

// ConversationState is the single owned session context of one user's conversation
type ConversationState struct {
	Mode         SessionMode    `json:"mode"`
	Screener     *ScreenerState `json:"screener,omitempty"`
	TriageCursor string         `json:"triage_cursor,omitempty"`
	ThinkingMode bool           `json:"thinking_mode"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// NewConversationState creates the initial chat state
func NewConversationState() ConversationState {
	return ConversationState{
		Mode:         SessionModeChat,
		LastActiveAt: time.Now(),
	}
}

// Clone returns a copy that shares no mutable data with the receiver
func (s ConversationState) Clone() ConversationState {
	s.Screener = s.Screener.Clone()
	return s
}

// UpdateLastActive updates the last active timestamp
func (s *ConversationState) UpdateLastActive() {
	s.LastActiveAt = time.Now()
}

// IsIdle checks whether the session has been inactive for longer than the idle timeout
func (s ConversationState) IsIdle() bool {
	return time.Since(s.LastActiveAt) > idleTimeout
}

// Validate enforces that at most one sub-flow is active
func (s ConversationState) Validate() error {
	if !s.Mode.Valid() {
		return errors.New("invalid session mode")
	}

	if s.Mode.IsScreener() {
		if s.Screener == nil {
			return errors.New("screener mode requires screener state")
		}
		if s.Screener.Instrument != string(s.Mode) {
			return errors.New("screener state does not match mode")
		}
	} else if s.Screener != nil {
		return errors.New("screener state outside screener mode")
	}

	if s.Mode == SessionModeCSSRS {
		if s.TriageCursor == "" {
			return errors.New("triage mode requires a cursor")
		}
	} else if s.TriageCursor != "" {
		return errors.New("triage cursor outside triage mode")
	}

	return nil
}
