package usecase

import (
	"time"

	"go.uber.org/zap"
)

// Evictor removes idle sessions and reports how many were removed
type Evictor interface {
	EvictIdle() int
}

// SessionCleanupService periodically evicts idle sessions from memory
type SessionCleanupService struct {
	evictor  Evictor
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(evictor Evictor, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionCleanupService{
		evictor:  evictor,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup performs the actual eviction of idle sessions
func (s *SessionCleanupService) runCleanup() {
	evicted := s.evictor.EvictIdle()
	if evicted > 0 {
		s.logger.Info("Evicted idle sessions", zap.Int("count", evicted))
	}
}
