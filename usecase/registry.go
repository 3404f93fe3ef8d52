package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/voice"
)

// Session is the single logical session of one user
type Session struct {
	Conversation *ConversationService
	Voice        *voice.Manager
}

// Registry holds one session per user
type Registry struct {
	machine     *conversation.Machine
	chat        *ChatService
	store       repositories.MessageStore
	transport   repositories.LiveTransport
	voiceConfig voice.Config
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a new session registry
func NewRegistry(
	machine *conversation.Machine,
	chat *ChatService,
	store repositories.MessageStore,
	transport repositories.LiveTransport,
	voiceConfig voice.Config,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		machine:     machine,
		chat:        chat,
		store:       store,
		transport:   transport,
		voiceConfig: voiceConfig,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Get returns the user's session, creating and starting it on first use
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrNotReady
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[userID]; ok {
		return session, nil
	}

	conv := NewConversationService(userID, r.machine, r.chat, r.store, r.logger)
	if err := conv.Start(ctx); err != nil {
		return nil, err
	}
	manager := voice.NewManager(r.transport, conv, r.voiceConfig, r.logger.With(zap.String("userID", userID)))
	conv.AttachVoice(manager)

	session := &Session{Conversation: conv, Voice: manager}
	r.sessions[userID] = session
	activeSessions.Inc()
	r.logger.Info("Session created", zap.String("userID", userID))
	return session, nil
}

// Len returns the number of sessions in memory
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes sessions with no recent activity, no subscribers and no voice session
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	var evicted []*Session
	for userID, session := range r.sessions {
		if session.Conversation.Idle() {
			delete(r.sessions, userID)
			evicted = append(evicted, session)
		}
	}
	r.mu.Unlock()

	for _, session := range evicted {
		session.Voice.Stop()
		session.Conversation.Close()
		activeSessions.Dec()
	}
	return len(evicted)
}

// Close stops every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Voice.Stop()
		session.Conversation.Close()
		activeSessions.Dec()
	}
	r.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
}
