package repositories

import (
	"context"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

// CompletionMode selects how much reasoning the text model spends on a reply
type CompletionMode string

const (
	CompletionModeStandard CompletionMode = "standard"
	CompletionModeDeep     CompletionMode = "deep"
)

// TextCompletion abstracts the chat model used for free-text turns
type TextCompletion interface {
	// Complete returns the model's reply. It never fails: provider errors and missing
	// configuration degrade into a fixed apology string.
	Complete(ctx context.Context, userText string, history []entities.HistoryEntry, mode CompletionMode) string
}
