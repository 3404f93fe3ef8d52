package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultDeepModel      = "gemini-2.5-pro"
	defaultThinkingBudget = 32768
	defaultTimeoutSeconds = 60
)

// ErrMissingAPIKey is returned when a feature needs the model but no key is configured
var ErrMissingAPIKey = errors.New("Gemini API key is not configured")

// GeminiConfig holds text completion settings
type GeminiConfig struct {
	APIKey         string
	Model          string
	DeepModel      string
	ThinkingBudget int32
	TimeoutSeconds int
	SystemPrompt   string
}

// ValidateGeminiConfig validates the config and applies defaults
func ValidateGeminiConfig(config *GeminiConfig, logger *zap.Logger) error {
	if config.ThinkingBudget < 0 {
		return fmt.Errorf("thinking budget must be positive, got %d", config.ThinkingBudget)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	if config.Model == "" {
		config.Model = defaultModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.DeepModel == "" {
		config.DeepModel = defaultDeepModel
		logger.Info("Using default deep model", zap.String("model", config.DeepModel))
	}
	if config.ThinkingBudget == 0 {
		config.ThinkingBudget = defaultThinkingBudget
		logger.Info("Using default thinking budget", zap.Int32("thinkingBudget", config.ThinkingBudget))
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = SystemPrompt
	}
	return nil
}

// NewClient creates a genai client, or nil when no key is configured
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*genai.Client, error) {
	if apiKey == "" {
		logger.Warn("Gemini API key is not configured, model features will degrade")
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiCompletion implements repositories.TextCompletion with Gemini
type GeminiCompletion struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.TextCompletion = (*GeminiCompletion)(nil)

// NewGeminiCompletion creates a text completion service. A nil client is allowed and makes
// every completion return the configuration apology.
func NewGeminiCompletion(client *genai.Client, config GeminiConfig, logger *zap.Logger) (*GeminiCompletion, error) {
	if err := ValidateGeminiConfig(&config, logger); err != nil {
		return nil, err
	}
	return &GeminiCompletion{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Complete implements repositories.TextCompletion
func (g *GeminiCompletion) Complete(ctx context.Context, userText string, history []entities.HistoryEntry, mode repositories.CompletionMode) string {
	if g.client == nil {
		g.logger.Error("Completion requested without API key")
		return apologyNoKey
	}

	model, config := g.requestConfig(mode)
	contents := toContents(history, userText)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	response, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		g.logger.Error("Failed to generate content", zap.String("model", model), zap.Error(err))
		return apologyError
	}

	text := response.Text()
	if text == "" {
		g.logger.Warn("Empty response from model", zap.String("model", model))
		return apologyEmpty
	}

	g.logger.Debug("Completion generated",
		zap.String("model", model),
		zap.String("response_preview", preview(text, 50)))
	return text
}

func (g *GeminiCompletion) requestConfig(mode repositories.CompletionMode) (string, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.config.SystemPrompt, genai.RoleUser),
	}
	if mode == repositories.CompletionModeDeep {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(g.config.ThinkingBudget),
		}
		return g.config.DeepModel, config
	}
	return g.config.Model, config
}

// preview returns at most n runes of text
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// toContents converts history plus the current user line into Gemini contents
func toContents(history []entities.HistoryEntry, userText string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		role := genai.Role(genai.RoleUser)
		if entry.Role == entities.HistoryRoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Text, role))
	}
	return append(contents, genai.NewContentFromText(userText, genai.RoleUser))
}
