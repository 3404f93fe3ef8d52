package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
)

// MemoryMessageRepository is an in-memory implementation of MessageStore.
// It is suitable for development and single-instance deployments.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]entities.Message  // user_id -> messages in insertion order
	watchers map[string]map[uint64]*watcher // user_id -> subscriptions
	nextID   uint64
}

var _ repositories.MessageStore = (*MemoryMessageRepository)(nil)

// watcher coalesces change notifications so a slow subscriber only ever sees the latest
// snapshot
type watcher struct {
	notify     chan struct{}
	done       chan struct{}
	onSnapshot func([]entities.Message)
}

// NewMemoryMessageRepository creates a new in-memory message repository
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[string][]entities.Message),
		watchers: make(map[string]map[uint64]*watcher),
	}
}

// Append implements MessageStore interface
func (m *MemoryMessageRepository) Append(ctx context.Context, userID string, message entities.Message) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if err := message.Validate(); err != nil {
		return err
	}
	if message.IsLive() {
		return errors.New("provisional messages cannot be persisted")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Generate ID if not provided
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.messages[userID] {
		if existing.ID == message.ID {
			return errors.New("message with this ID already exists")
		}
	}
	m.messages[userID] = append(m.messages[userID], message)

	for _, w := range m.watchers[userID] {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// List returns a copy of the user's messages in insertion order
func (m *MemoryMessageRepository) List(userID string) []entities.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entities.Message(nil), m.messages[userID]...)
}

// Watch implements MessageStore interface. The initial snapshot is delivered before Watch
// returns; later snapshots arrive on a separate goroutine.
func (m *MemoryMessageRepository) Watch(ctx context.Context, userID string, onSnapshot func([]entities.Message), onError func(error)) (func(), error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &watcher{
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		onSnapshot: onSnapshot,
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.watchers[userID] == nil {
		m.watchers[userID] = make(map[uint64]*watcher)
	}
	m.watchers[userID][id] = w
	m.mu.Unlock()

	onSnapshot(m.List(userID))
	go m.deliver(userID, w)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers[userID], id)
			if len(m.watchers[userID]) == 0 {
				delete(m.watchers, userID)
			}
			m.mu.Unlock()
			close(w.done)
		})
	}
	return stop, nil
}

func (m *MemoryMessageRepository) deliver(userID string, w *watcher) {
	for {
		select {
		case <-w.done:
			return
		case <-w.notify:
			w.onSnapshot(m.List(userID))
		}
	}
}
