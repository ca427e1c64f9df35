package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

// OpenAIGenerator implements TextGenerator using the OpenAI chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIGenerator creates a generator for the given API key. An empty
// model selects GPT-4o mini, which is fast and cheap enough for per-turn
// answering.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    logger.WithComponent("llm-openai"),
	}
}

// Generate runs one chat completion with the instruction as the sole user
// message.
func (g *OpenAIGenerator) Generate(ctx context.Context, instruction string, maxTokens int, temperature float32) (string, error) {
	const op = "Generate"

	g.log.Debug().
		Str("model", g.model).
		Int("max_tokens", maxTokens).
		Float32("temperature", temperature).
		Int("instruction_chars", len(instruction)).
		Msg("Sending generation request")

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: instruction,
			},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", &GenerationError{Op: op, Model: g.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Op: op, Model: g.model, Err: ErrGeneration}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.log.Debug().
		Str("model", g.model).
		Int("response_chars", len(text)).
		Msg("Received generation response")
	return text, nil
}
