package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
)

// ChatService produces model replies for free-text turns
type ChatService struct {
	completion repositories.TextCompletion
	logger     *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(completion repositories.TextCompletion, logger *zap.Logger) *ChatService {
	return &ChatService{
		completion: completion,
		logger:     logger,
	}
}

// Reply asks the model for the next bot line. Thinking mode selects deep completions.
func (s *ChatService) Reply(ctx context.Context, userText string, history []entities.HistoryEntry, thinking bool) string {
	mode := repositories.CompletionModeStandard
	if thinking {
		mode = repositories.CompletionModeDeep
	}

	start := time.Now()
	reply := s.completion.Complete(ctx, userText, history, mode)
	completionDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	s.logger.Info("Completion finished",
		zap.String("mode", string(mode)),
		zap.Int("historySize", len(history)),
		zap.Duration("took", time.Since(start)))
	return reply
}
