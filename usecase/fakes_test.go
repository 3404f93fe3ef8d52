package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/triage"
	"github.com/satriahrh/peacepal/server/internal/trigger"
)

type fakeStore struct {
	mu        sync.Mutex
	messages  []entities.Message
	watchers  map[int]func([]entities.Message)
	nextID    int
	appendErr error
	reverse   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{watchers: make(map[int]func([]entities.Message))}
}

func (s *fakeStore) Append(ctx context.Context, userID string, message entities.Message) error {
	s.mu.Lock()
	if s.appendErr != nil {
		s.mu.Unlock()
		return s.appendErr
	}
	s.messages = append(s.messages, message)
	snapshot := s.snapshotLocked()
	watchers := make([]func([]entities.Message), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(snapshot)
	}
	return nil
}

func (s *fakeStore) Watch(ctx context.Context, userID string, onSnapshot func([]entities.Message), onError func(error)) (func(), error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = onSnapshot
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	onSnapshot(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

func (s *fakeStore) snapshotLocked() []entities.Message {
	out := make([]entities.Message, len(s.messages))
	for i, m := range s.messages {
		if s.reverse {
			out[len(s.messages)-1-i] = m
		} else {
			out[i] = m
		}
	}
	return out
}

func (s *fakeStore) Messages() []entities.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Message(nil), s.messages...)
}

type completionCall struct {
	text    string
	history []entities.HistoryEntry
	mode    repositories.CompletionMode
}

type fakeCompletion struct {
	mu    sync.Mutex
	reply string
	calls []completionCall
	gate  chan struct{}
}

func (c *fakeCompletion) Complete(ctx context.Context, userText string, history []entities.HistoryEntry, mode repositories.CompletionMode) string {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completionCall{text: userText, history: history, mode: mode})
	return c.reply
}

func (c *fakeCompletion) Calls() []completionCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]completionCall(nil), c.calls...)
}

type fakeVoice struct {
	mu   sync.Mutex
	busy bool
}

func (v *fakeVoice) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.busy
}

func (v *fakeVoice) Set(busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = busy
}

func newTestMachine(t *testing.T) *conversation.Machine {
	t.Helper()
	tables, err := trigger.DefaultTables()
	require.NoError(t, err)
	return conversation.NewMachine(trigger.NewClassifier(tables), triage.Reference())
}

func newTestService(t *testing.T, store *fakeStore, completion *fakeCompletion) *ConversationService {
	t.Helper()
	logger := zaptest.NewLogger(t)
	svc := NewConversationService("user-1", newTestMachine(t), NewChatService(completion, logger), store, logger)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Close)
	return svc
}
