package conversation

import (
	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/internal/screener"
)

// Prompt describes what input the client should offer next
type Prompt struct {
	Kind       string            `json:"kind"`
	QuestionID string            `json:"question_id,omitempty"`
	Text       string            `json:"text,omitempty"`
	Index      int               `json:"index,omitempty"`
	Total      int               `json:"total,omitempty"`
	Options    []screener.Option `json:"options,omitempty"`
}

const (
	PromptFreeText = "free_text"
	PromptConsent  = "consent"
	PromptQuestion = "question"
	PromptYesNo    = "yes_no"
)

// CurrentPrompt returns the input the session is waiting for
func (m *Machine) CurrentPrompt(state entities.ConversationState) Prompt {
	switch {
	case state.Mode == entities.SessionModeCSSRS:
		node, ok := m.flow.Node(state.TriageCursor)
		if !ok {
			return Prompt{Kind: PromptFreeText}
		}
		return Prompt{Kind: PromptYesNo, QuestionID: node.ID, Text: node.Prompt}
	case state.Mode.IsScreener() && state.Screener != nil:
		instrument, ok := screener.ForMode(state.Mode)
		if !ok {
			return Prompt{Kind: PromptFreeText}
		}
		if !state.Screener.OptedIn {
			return Prompt{Kind: PromptConsent}
		}
		q, ok := instrument.Current(state.Screener)
		if !ok {
			return Prompt{Kind: PromptFreeText}
		}
		return Prompt{
			Kind:       PromptQuestion,
			QuestionID: q.ID,
			Text:       q.Text,
			Index:      state.Screener.Index,
			Total:      len(instrument.Questions),
			Options:    screener.Options,
		}
	}
	return Prompt{Kind: PromptFreeText}
}
