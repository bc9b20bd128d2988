package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/config"
	"github.com/RichardoC/compi/internal/models"
)

// ErrNoProvider is returned when neither Gemini nor OpenAI is enabled.
var ErrNoProvider = errors.New("no chat provider enabled")

// Provider streams a completion for a conversation. onChunk is called for
// every non-empty piece of text in arrival order; an error from onChunk
// aborts the stream.
type Provider interface {
	Name() string
	Stream(ctx context.Context, system string, messages []models.ChatMessage, onChunk func(string) error) error
}

type Service struct {
	provider Provider
	logger   *zap.Logger
}

// New selects the provider from configuration: Gemini first, then OpenAI.
// With nothing enabled the service is still usable but every call fails
// with ErrNoProvider.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	var (
		provider Provider
		err      error
	)
	switch {
	case cfg.GeminiEnabled():
		provider, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case cfg.OpenAIEnabled():
		provider, err = NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	if err != nil {
		return nil, err
	}
	if provider == nil {
		logger.Warn("no chat provider enabled; chat requests will fail")
	} else {
		logger.Info("chat provider selected", zap.String("provider", provider.Name()))
	}
	return NewWithProvider(provider, logger), nil
}

func NewWithProvider(provider Provider, logger *zap.Logger) *Service {
	return &Service{provider: provider, logger: logger}
}

func (s *Service) Available() bool {
	return s.provider != nil
}

// Stream forwards messages with the system prompt and relays the reply.
func (s *Service) Stream(ctx context.Context, messages []models.ChatMessage, onChunk func(string) error) error {
	if s.provider == nil {
		return ErrNoProvider
	}
	if err := s.provider.Stream(ctx, SystemPrompt, messages, onChunk); err != nil {
		return fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	return nil
}

// Complete is Stream collected into a single string.
func (s *Service) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	var reply strings.Builder
	err := s.Stream(ctx, messages, func(chunk string) error {
		reply.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.String()), nil
}
