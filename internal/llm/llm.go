// Package llm generates joke text with a hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// MaxTopicLength bounds the optional topic, in characters.
const MaxTopicLength = 200

const (
	defaultPrompt = "You are a funny comedian. Generate a short, clean, and family-friendly joke."
	topicPrompt   = "Generate a funny joke about %s. Keep it clean and family-friendly."
)

// ErrEmptyCompletion is returned when the model answers with no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Generator produces the text of one joke. topic may be empty.
type Generator interface {
	GenerateJoke(ctx context.Context, topic string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, topic string) (string, error)

func (f GeneratorFunc) GenerateJoke(ctx context.Context, topic string) (string, error) {
	return f(ctx, topic)
}

// Prompt builds the instruction sent to the model.
func Prompt(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return defaultPrompt
	}
	return fmt.Sprintf(topicPrompt, topic)
}

// ValidTopic reports whether topic fits within MaxTopicLength.
func ValidTopic(topic string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(topic)) <= MaxTopicLength
}

// OpenAIGenerator talks to the OpenAI chat completions API, or to any
// compatible server when a base URL is given.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(apiKey, model, baseURL string, logger *slog.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// GenerateJoke asks the model for one joke. The caller bounds the call with
// ctx; a cancelled context surfaces as an error like any other failure.
func (g *OpenAIGenerator) GenerateJoke(ctx context.Context, topic string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: Prompt(topic)},
		},
		MaxTokens:   150,
		Temperature: 1,
		TopP:        1,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	g.logger.Debug("joke generated",
		slog.String("model", resp.Model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return text, nil
}
