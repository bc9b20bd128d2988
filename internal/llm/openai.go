package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/RichardoC/compi/internal/models"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	llm llms.Model
}

func NewOpenAI(baseURL, token, model string) (*OpenAIProvider, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{llm: llm}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Stream(ctx context.Context, system string, messages []models.ChatMessage, onChunk func(string) error) error {
	_, err := p.llm.GenerateContent(ctx, toMessageContent(system, messages),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onChunk(string(chunk))
		}),
	)
	return err
}

func toMessageContent(system string, messages []models.ChatMessage) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, msg := range messages {
		if msg.Text == "" {
			continue
		}
		role := llms.ChatMessageTypeHuman
		if msg.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Text))
	}
	return content
}
