// Package screener runs the PHQ-9 and GAD-7 questionnaires.
package screener

import (
	"errors"
	"fmt"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

var (
	ErrNotOptedIn      = errors.New("screener has not been opted into")
	ErrWrongQuestion   = errors.New("answer does not belong to the current question")
	ErrValueOutOfRange = errors.New("answer value out of range")
	ErrAlreadyComplete = errors.New("screener is already complete")
	ErrInstrument      = errors.New("state does not belong to this instrument")
)

const (
	// OptInPrompt is emitted when the user accepts the screener
	OptInPrompt = "Great. Over the last 2 weeks, how often have you been bothered by any of the following problems?"
	// DeclinePrompt is emitted when the user declines the screener
	DeclinePrompt = "That's perfectly okay. We can just talk."

	selfHarmNotice = "\n\nI also see you noted having some thoughts of self-harm. Because your safety is the priority, I need to ask a few more specific questions."
	closingNotice  = "\n\nThank you for sharing that. This is just a screener, not a diagnosis, but it gives us a better sense of what you're going through. We can talk more about these feelings."
)

// Result is the outcome of a completed screener
type Result struct {
	Total    int
	Band     Band
	Escalate bool
	Summary  string
}

// NewState returns the pre-consent pseudo-state with no recorded answers
func (in *Instrument) NewState() *entities.ScreenerState {
	return &entities.ScreenerState{
		Instrument: in.ID,
		Answers:    map[string]int{},
	}
}

// OptIn opens question 0
func (in *Instrument) OptIn(state *entities.ScreenerState) (*entities.ScreenerState, error) {
	if state == nil || state.Instrument != in.ID {
		return nil, ErrInstrument
	}
	next := state.Clone()
	next.OptedIn = true
	next.Index = 0
	return next, nil
}

// Current returns the question awaiting an answer
func (in *Instrument) Current(state *entities.ScreenerState) (Question, bool) {
	if state == nil || !state.OptedIn || state.Index < 0 || state.Index >= len(in.Questions) {
		return Question{}, false
	}
	return in.Questions[state.Index], true
}

// Advance records an answer for the current question. When the last question is answered
// complete is true and the returned state holds every answer.
func (in *Instrument) Advance(state *entities.ScreenerState, questionID string, value int) (*entities.ScreenerState, bool, error) {
	if state == nil || state.Instrument != in.ID {
		return nil, false, ErrInstrument
	}
	if !state.OptedIn {
		return nil, false, ErrNotOptedIn
	}
	if state.Index >= len(in.Questions) {
		return nil, false, ErrAlreadyComplete
	}
	if in.Questions[state.Index].ID != questionID {
		return nil, false, fmt.Errorf("%w: expected %s, got %s", ErrWrongQuestion, in.Questions[state.Index].ID, questionID)
	}
	if value < MinValue || value > MaxValue {
		return nil, false, fmt.Errorf("%w: %d", ErrValueOutOfRange, value)
	}

	next := state.Clone()
	next.Answers[questionID] = value
	next.Index++
	return next, next.Index == len(in.Questions), nil
}

// Complete scores a finished screener. The self-harm gate runs after scoring and decides
// which closing text accompanies the summary.
func (in *Instrument) Complete(answers map[string]int) Result {
	total, band := in.Score(answers)
	escalate := in.RequiresEscalation(answers)

	summary := fmt.Sprintf("Your score suggests %s %s.", band, in.Condition)
	if escalate {
		summary += selfHarmNotice
	} else {
		summary += closingNotice
	}

	return Result{
		Total:    total,
		Band:     band,
		Escalate: escalate,
		Summary:  summary,
	}
}
