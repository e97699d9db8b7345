package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const summaryPrompt = "Summarize the user's support issue in one short sentence. Do not add commentary."

type openAISummarizer struct {
	client *openai.Client
}

// NewOpenAI creates a summarizer backed by the OpenAI chat completion API.
func NewOpenAI(apiKey string) Summarizer {
	return &openAISummarizer{
		client: openai.NewClient(apiKey),
	}
}

func (s *openAISummarizer) Summarize(ctx context.Context, messages []string) (string, error) {
	text := strings.TrimSpace(strings.Join(messages, "\n"))
	if text == "" {
		return "", errors.New("no messages to summarize")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     openai.GPT3Dot5Turbo,
		MaxTokens: 80,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: summaryPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("error requesting summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no summary returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
