package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/models"
)

// ErrorReply is appended in place of the assistant's answer when the
// provider call fails.
const ErrorReply = "Lo siento, algo ha fallado. Inténtalo de nuevo."

const replyTimeout = 60 * time.Second

// Store persists the history of one or more keys. Implementations cap the
// number of messages they retain.
type Store interface {
	LoadHistory(ctx context.Context, key string) ([]models.ChatMessage, error)
	AppendHistory(ctx context.Context, key string, msgs ...models.ChatMessage) error
	ClearHistory(ctx context.Context, key string) error
}

// Completer produces the assistant's reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Session is the chatbot widget state for one history key.
type Session struct {
	key    string
	store  Store
	llm    Completer
	logger *zap.Logger
	newID  func() string
}

func NewSession(key string, store Store, llm Completer, logger *zap.Logger) *Session {
	return &Session{
		key:    key,
		store:  store,
		llm:    llm,
		logger: logger,
		newID:  uuid.NewString,
	}
}

func (s *Session) History(ctx context.Context) ([]models.ChatMessage, error) {
	return s.store.LoadHistory(ctx, s.key)
}

// Send appends the user's message, asks the provider for a reply and appends
// it. Whitespace-only text is ignored. A provider failure is not returned: it
// becomes a single assistant message carrying ErrorReply. The returned
// history is the stored history after the turn.
func (s *Session) Send(ctx context.Context, text string) ([]models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.History(ctx)
	}

	// Once the user's message is stored the turn must finish with exactly one
	// assistant message, even if the caller goes away mid-reply.
	storeCtx := context.WithoutCancel(ctx)

	user := models.ChatMessage{ID: s.newID(), Role: models.RoleUser, Text: text}
	if err := s.store.AppendHistory(ctx, s.key, user); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.History(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	replyCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	reply, err := s.llm.Complete(replyCtx, withoutErrorReplies(history))
	if err != nil {
		s.logger.Error("chat reply failed", zap.String("key", s.key), zap.Error(err))
		reply = ErrorReply
	}
	if reply == "" {
		reply = ErrorReply
	}

	assistant := models.ChatMessage{ID: s.newID(), Role: models.RoleAssistant, Text: reply}
	if err := s.store.AppendHistory(storeCtx, s.key, assistant); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	return s.History(storeCtx)
}

// withoutErrorReplies drops the canned failure messages so the model never
// sees them as its own output.
func withoutErrorReplies(history []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleAssistant && m.Text == ErrorReply {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Session) Clear(ctx context.Context) error {
	return s.store.ClearHistory(ctx, s.key)
}
