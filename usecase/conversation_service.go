package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/triage"
)

var (
	ErrNotReady       = errors.New("identity is not ready")
	ErrTurnInProgress = errors.New("a reply is still being generated")
	ErrVoiceActive    = errors.New("voice session is active")
	ErrEmptyText      = errors.New("text is required")
	ErrClosed         = errors.New("conversation is closed")
)

const (
	appendTimeout  = 10 * time.Second
	writeQueueSize = 256
)

// VoiceStatus reports whether a voice session is connecting or active
type VoiceStatus interface {
	Busy() bool
}

// View is a consistent snapshot of a conversation
type View struct {
	State    entities.ConversationState
	Prompt   conversation.Prompt
	Messages []entities.Message
}

// ConversationService owns one user's conversation state. Every bot line produced by a
// transition is queued on the single ordered write path before the next input is accepted.
type ConversationService struct {
	userID  string
	machine *conversation.Machine
	chat    *ChatService
	store   repositories.MessageStore
	logger  *zap.Logger

	mu          sync.Mutex
	state       entities.ConversationState
	turnPending bool
	closed      bool
	voice       VoiceStatus
	persisted   []entities.Message
	pending     []entities.Message
	partials    map[entities.Sender]*entities.Message
	lastCreated time.Time
	listeners   map[uint64]func([]entities.Message)
	listenerSeq uint64

	writes    chan entities.Message
	writerEnd chan struct{}
	stopWatch func()
}

// NewConversationService creates a conversation for userID. Start must be called before use.
func NewConversationService(
	userID string,
	machine *conversation.Machine,
	chat *ChatService,
	store repositories.MessageStore,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		userID:    userID,
		machine:   machine,
		chat:      chat,
		store:     store,
		logger:    logger.With(zap.String("userID", userID)),
		state:     entities.NewConversationState(),
		partials:  make(map[entities.Sender]*entities.Message),
		listeners: make(map[uint64]func([]entities.Message)),
		writes:    make(chan entities.Message, writeQueueSize),
		writerEnd: make(chan struct{}),
	}
}

// Start subscribes to the user's message history and starts the write path
func (s *ConversationService) Start(ctx context.Context) error {
	if strings.TrimSpace(s.userID) == "" {
		return ErrNotReady
	}

	stop, err := s.store.Watch(ctx, s.userID, s.onSnapshot, func(err error) {
		s.logger.Error("Message subscription error", zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed to watch messages: %w", err)
	}
	s.stopWatch = stop

	go s.writeLoop()
	s.logger.Info("Conversation started")
	return nil
}

// Close stops the subscription and drains queued writes
func (s *ConversationService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.writes)
	s.listeners = make(map[uint64]func([]entities.Message))
	s.mu.Unlock()

	if s.stopWatch != nil {
		s.stopWatch()
	}
	<-s.writerEnd
	s.logger.Info("Conversation closed")
}

// AttachVoice links the voice session whose activity blocks text input
func (s *ConversationService) AttachVoice(voice VoiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = voice
}

// UserID returns the owner of the conversation
func (s *ConversationService) UserID() string {
	return s.userID
}

// SendText handles a free-text turn. Triggered text enters a sub-flow; anything else is
// answered by the model with the history as it was before this line.
func (s *ConversationService) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	if err := s.acceptInputLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.voiceBusyLocked() {
		s.mu.Unlock()
		return ErrVoiceActive
	}

	outcome, err := s.machine.OnText(s.state, text)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	history := entities.ToHistory(s.historyLocked())
	s.appendLocked(entities.SenderUser, text)

	if outcome.Handled {
		s.applyLocked(outcome)
		s.mu.Unlock()
		s.notify()
		return nil
	}

	s.turnPending = true
	s.state.UpdateLastActive()
	thinking := s.state.ThinkingMode
	s.mu.Unlock()
	s.notify()

	reply := s.chat.Reply(ctx, text, history, thinking)

	s.mu.Lock()
	s.turnPending = false
	s.appendLocked(entities.SenderBot, reply)
	s.mu.Unlock()
	s.notify()
	return nil
}

// ScreenerConsent answers the screener opt-in gate
func (s *ConversationService) ScreenerConsent(accept bool) error {
	return s.transition(func(state entities.ConversationState) (conversation.Outcome, error) {
		return s.machine.OnScreenerConsent(state, accept)
	})
}

// ScreenerAnswer records an answer to the current screener question
func (s *ConversationService) ScreenerAnswer(questionID string, value int) error {
	return s.transition(func(state entities.ConversationState) (conversation.Outcome, error) {
		return s.machine.OnScreenerAnswer(state, questionID, value)
	})
}

// TriageRespond answers the current triage prompt
func (s *ConversationService) TriageRespond(response triage.Response) error {
	return s.transition(func(state entities.ConversationState) (conversation.Outcome, error) {
		return s.machine.OnTriageResponse(state, response)
	})
}

// SetThinkingMode toggles deep completions. The toggle is locked while voice is active.
func (s *ConversationService) SetThinkingMode(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voiceBusyLocked() {
		return ErrVoiceActive
	}
	s.state.ThinkingMode = enabled
	s.state.UpdateLastActive()
	return nil
}

// State returns a copy of the conversation state
func (s *ConversationService) State() entities.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View returns the state, the expected input and the visible messages
func (s *ConversationService) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:    s.state.Clone(),
		Prompt:   s.machine.CurrentPrompt(s.state),
		Messages: s.visibleLocked(),
	}
}

// Messages returns the visible messages in display order
func (s *ConversationService) Messages() []entities.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// Subscribe registers fn to receive the visible messages after every change
func (s *ConversationService) Subscribe(fn func([]entities.Message)) func() {
	s.mu.Lock()
	s.listenerSeq++
	id := s.listenerSeq
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Idle reports whether the conversation can be evicted from memory
func (s *ConversationService) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsIdle() && !s.turnPending && len(s.listeners) == 0 && !s.voiceBusyLocked()
}

// ShowPartial updates the provisional voice message of sender
func (s *ConversationService) ShowPartial(sender entities.Sender, text string) {
	s.mu.Lock()
	p, ok := s.partials[sender]
	if !ok {
		p = &entities.Message{
			ID:        entities.LiveMessagePrefix + uuid.NewString(),
			Sender:    sender,
			CreatedAt: time.Now(),
		}
		s.partials[sender] = p
	}
	p.Text = text
	s.state.UpdateLastActive()
	s.mu.Unlock()
	s.notify()
}

// CommitPartial replaces the provisional voice message of sender with a persisted one
func (s *ConversationService) CommitPartial(sender entities.Sender, text string) {
	s.mu.Lock()
	delete(s.partials, sender)
	s.appendLocked(sender, text)
	s.mu.Unlock()
	s.notify()
}

// DiscardPartials drops every provisional voice message
func (s *ConversationService) DiscardPartials() {
	s.mu.Lock()
	s.partials = make(map[entities.Sender]*entities.Message)
	s.mu.Unlock()
	s.notify()
}

func (s *ConversationService) transition(fn func(entities.ConversationState) (conversation.Outcome, error)) error {
	s.mu.Lock()
	if err := s.acceptInputLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	outcome, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyLocked(outcome)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *ConversationService) acceptInputLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.userID == "":
		return ErrNotReady
	case s.turnPending:
		return ErrTurnInProgress
	}
	return nil
}

func (s *ConversationService) applyLocked(outcome conversation.Outcome) {
	if outcome.FailedClosed != nil {
		triageFailClosed.Inc()
		s.logger.Error("Triage flow could not resolve a transition, returning to chat",
			zap.String("cursor", s.state.TriageCursor),
			zap.Error(outcome.FailedClosed))
	}

	from := s.state.Mode
	next := outcome.State
	if err := next.Validate(); err != nil {
		invalidStates.Inc()
		s.logger.Error("Rejected inconsistent conversation state, returning to chat",
			zap.String("mode", string(next.Mode)),
			zap.Error(err))
		thinking := s.state.ThinkingMode
		next = entities.NewConversationState()
		next.ThinkingMode = thinking
		outcome.Lines = nil
	}
	s.state = next
	s.state.UpdateLastActive()
	if from != s.state.Mode {
		modeTransitions.WithLabelValues(string(from), string(s.state.Mode)).Inc()
		s.logger.Info("Conversation mode changed",
			zap.String("from", string(from)),
			zap.String("to", string(s.state.Mode)))
	}

	for _, line := range outcome.Lines {
		s.appendLocked(entities.SenderBot, line)
	}
}

// appendLocked queues a finalized message on the write path. CreatedAt is strictly
// increasing at millisecond precision so store order matches causal order.
func (s *ConversationService) appendLocked(sender entities.Sender, text string) {
	if s.closed {
		return
	}

	now := time.Now().Truncate(time.Millisecond)
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Millisecond)
	}
	s.lastCreated = now

	msg := entities.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		CreatedAt: now,
	}
	s.pending = append(s.pending, msg)
	s.writes <- msg
}

func (s *ConversationService) writeLoop() {
	defer close(s.writerEnd)

	for msg := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := s.store.Append(ctx, s.userID, msg)
		cancel()
		if err != nil {
			appendFailures.Inc()
			s.logger.Error("Failed to append message",
				zap.String("messageID", msg.ID),
				zap.String("sender", string(msg.Sender)),
				zap.Error(err))
		}
	}
}

func (s *ConversationService) onSnapshot(messages []entities.Message) {
	sorted := append([]entities.Message(nil), messages...)
	entities.SortMessages(sorted)

	s.mu.Lock()
	seen := make(map[string]struct{}, len(sorted))
	for _, m := range sorted {
		seen[m.ID] = struct{}{}
		if m.CreatedAt.After(s.lastCreated) {
			s.lastCreated = m.CreatedAt
		}
	}
	remaining := s.pending[:0]
	for _, m := range s.pending {
		if _, ok := seen[m.ID]; !ok {
			remaining = append(remaining, m)
		}
	}
	s.pending = remaining
	s.persisted = sorted
	s.mu.Unlock()
	s.notify()
}

// historyLocked is every finalized message, persisted or still queued
func (s *ConversationService) historyLocked() []entities.Message {
	out := make([]entities.Message, 0, len(s.persisted)+len(s.pending))
	out = append(out, s.persisted...)
	out = append(out, s.pending...)
	entities.SortMessages(out)
	return out
}

func (s *ConversationService) visibleLocked() []entities.Message {
	out := s.historyLocked()
	var live []entities.Message
	for _, p := range s.partials {
		live = append(live, *p)
	}
	entities.SortMessages(live)
	return append(out, live...)
}

func (s *ConversationService) voiceBusyLocked() bool {
	return s.voice != nil && s.voice.Busy()
}

func (s *ConversationService) notify() {
	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	messages := s.visibleLocked()
	listeners := make([]func([]entities.Message), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(messages)
	}
}
