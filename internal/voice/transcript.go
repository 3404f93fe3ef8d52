package voice

import (
	"strings"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

// TranscriptSink receives transcript updates. ShowPartial is called with the running text of
// the current sender-turn: the first call of a turn adds a provisional message, later calls
// replace it. CommitPartial finalizes that message through the normal append path.
type TranscriptSink interface {
	ShowPartial(sender entities.Sender, text string)
	CommitPartial(sender entities.Sender, text string)
	DiscardPartials()
}

// Line is a finished transcript line
type Line struct {
	Sender entities.Sender
	Text   string
}

// Transcript accumulates fragments per sender until the turn completes
type Transcript struct {
	user strings.Builder
	bot  strings.Builder
}

// Add appends a fragment and returns the running text for that sender
func (t *Transcript) Add(sender entities.Sender, fragment string) string {
	b := t.buffer(sender)
	b.WriteString(fragment)
	return b.String()
}

// Flush returns the non-empty buffers, user first, and clears them
func (t *Transcript) Flush() []Line {
	var lines []Line
	if text := strings.TrimSpace(t.user.String()); text != "" {
		lines = append(lines, Line{Sender: entities.SenderUser, Text: text})
	}
	if text := strings.TrimSpace(t.bot.String()); text != "" {
		lines = append(lines, Line{Sender: entities.SenderBot, Text: text})
	}
	t.Reset()
	return lines
}

// Reset drops any buffered text
func (t *Transcript) Reset() {
	t.user.Reset()
	t.bot.Reset()
}

func (t *Transcript) buffer(sender entities.Sender) *strings.Builder {
	if sender == entities.SenderBot {
		return &t.bot
	}
	return &t.user
}
