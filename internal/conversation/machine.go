// Package conversation holds the transition functions that move a session between chat,
// the screeners and triage. Every transition takes the current state and returns the next
// state together with the bot lines to emit, without touching storage or the model.
package conversation

import (
	"errors"
	"fmt"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/internal/screener"
	"github.com/satriahrh/peacepal/server/internal/triage"
	"github.com/satriahrh/peacepal/server/internal/trigger"
)

var (
	ErrSubFlowActive  = errors.New("a screener or triage flow is in progress")
	ErrNoScreener     = errors.New("no screener is active")
	ErrAlreadyOptedIn = errors.New("screener already opted into")
	ErrNoTriage       = errors.New("no triage flow is active")
	ErrInvalidAnswer  = errors.New("invalid triage answer")
)

// Outcome is the result of a transition. Handled is false when text was not claimed by any
// sub-flow and should go to the language model instead.
type Outcome struct {
	State   entities.ConversationState
	Lines   []string
	Handled bool
	// FailedClosed is set when triage could not resolve a transition and the session was
	// returned to chat without a further prompt.
	FailedClosed error
}

// Machine applies transitions using a classifier and a triage flow
type Machine struct {
	classifier *trigger.Classifier
	flow       *triage.Flow
}

// NewMachine creates a new conversation machine
func NewMachine(classifier *trigger.Classifier, flow *triage.Flow) *Machine {
	return &Machine{
		classifier: classifier,
		flow:       flow,
	}
}

// Flow returns the triage flow used by the machine
func (m *Machine) Flow() *triage.Flow {
	return m.flow
}

// OnText routes free text. In chat a trigger enters its sub-flow. Inside a screener only a
// crisis phrase preempts, discarding the screener. Inside triage all text is rejected.
func (m *Machine) OnText(state entities.ConversationState, text string) (Outcome, error) {
	state = state.Clone()

	switch {
	case state.Mode == entities.SessionModeCSSRS:
		return Outcome{}, ErrSubFlowActive
	case state.Mode.IsScreener():
		match, ok := m.classifier.Classify(text)
		if !ok || match.Mode != entities.SessionModeCSSRS {
			return Outcome{}, ErrSubFlowActive
		}
		state.Screener = nil
		return m.enterTriage(state, match.Priming), nil
	}

	match, ok := m.classifier.Classify(text)
	if !ok {
		return Outcome{State: state}, nil
	}

	if match.Mode == entities.SessionModeCSSRS {
		return m.enterTriage(state, match.Priming), nil
	}

	instrument, ok := screener.ForMode(match.Mode)
	if !ok {
		return Outcome{}, fmt.Errorf("no instrument for mode %s", match.Mode)
	}
	state.Mode = match.Mode
	state.Screener = instrument.NewState()
	return Outcome{State: state, Lines: []string{match.Priming}, Handled: true}, nil
}

// OnScreenerConsent answers the "would you like to try this?" gate
func (m *Machine) OnScreenerConsent(state entities.ConversationState, accept bool) (Outcome, error) {
	instrument, err := m.activeInstrument(state)
	if err != nil {
		return Outcome{}, err
	}
	if state.Screener.OptedIn {
		return Outcome{}, ErrAlreadyOptedIn
	}

	state = state.Clone()
	if !accept {
		state.Mode = entities.SessionModeChat
		state.Screener = nil
		return Outcome{State: state, Lines: []string{screener.DeclinePrompt}, Handled: true}, nil
	}

	next, err := instrument.OptIn(state.Screener)
	if err != nil {
		return Outcome{}, err
	}
	state.Screener = next
	return Outcome{State: state, Lines: []string{screener.OptInPrompt}, Handled: true}, nil
}

// OnScreenerAnswer records an answer. Completion emits the summary and returns to chat, or
// moves into triage when the self-harm gate fires.
func (m *Machine) OnScreenerAnswer(state entities.ConversationState, questionID string, value int) (Outcome, error) {
	instrument, err := m.activeInstrument(state)
	if err != nil {
		return Outcome{}, err
	}

	next, complete, err := instrument.Advance(state.Screener, questionID, value)
	if err != nil {
		return Outcome{}, err
	}

	state = state.Clone()
	if !complete {
		state.Screener = next
		return Outcome{State: state, Handled: true}, nil
	}

	result := instrument.Complete(next.Answers)
	state.Screener = nil
	if result.Escalate {
		entry, _ := m.flow.Node(m.flow.Entry())
		state.Mode = entities.SessionModeCSSRS
		state.TriageCursor = entry.ID
		return Outcome{State: state, Lines: []string{result.Summary, entry.Prompt}, Handled: true}, nil
	}

	state.Mode = entities.SessionModeChat
	return Outcome{State: state, Lines: []string{result.Summary}, Handled: true}, nil
}

// OnTriageResponse steps the triage flow. Terminal nodes return to chat with the cursor
// cleared; an unresolvable edge fails closed to chat with no line.
func (m *Machine) OnTriageResponse(state entities.ConversationState, response triage.Response) (Outcome, error) {
	if state.Mode != entities.SessionModeCSSRS {
		return Outcome{}, ErrNoTriage
	}
	if !response.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidAnswer, response)
	}

	state = state.Clone()
	result, err := m.flow.Step(state.TriageCursor, response)
	if err != nil {
		state.Mode = entities.SessionModeChat
		state.TriageCursor = ""
		return Outcome{State: state, Handled: true, FailedClosed: err}, nil
	}

	if result.Terminal {
		state.Mode = entities.SessionModeChat
		state.TriageCursor = ""
	} else {
		state.TriageCursor = result.NextID
	}
	return Outcome{State: state, Lines: []string{result.Prompt}, Handled: true}, nil
}

func (m *Machine) enterTriage(state entities.ConversationState, priming string) Outcome {
	entry, _ := m.flow.Node(m.flow.Entry())
	state.Mode = entities.SessionModeCSSRS
	state.TriageCursor = entry.ID
	return Outcome{State: state, Lines: []string{priming, entry.Prompt}, Handled: true}
}

func (m *Machine) activeInstrument(state entities.ConversationState) (*screener.Instrument, error) {
	if !state.Mode.IsScreener() || state.Screener == nil {
		return nil, ErrNoScreener
	}
	instrument, ok := screener.ForMode(state.Mode)
	if !ok {
		return nil, ErrNoScreener
	}
	return instrument, nil
}
