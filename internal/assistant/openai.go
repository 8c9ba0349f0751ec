package assistant

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/prompt"
	openai "github.com/sashabaranov/go-openai"
)

// Completion is one chat-completion request.
type Completion struct {
	Messages    []prompt.Message
	Temperature float32
	MaxTokens   int
}

// Reply is the first choice's text plus the token counts the API reported.
type Reply struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Completer performs a single chat completion.
type Completer interface {
	Complete(ctx context.Context, req Completion) (Reply, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter builds a completer from the AI config. The HTTP client timeout bounds hung upstream calls.
func NewOpenAICompleter(cfg config.AIConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(clientCfg), model: model}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Completion) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	temperature := req.Temperature
	if temperature == 0 {
		// A zero temperature is dropped from the request body, so send the nearest non-zero value.
		temperature = math.SmallestNonzeroFloat32
	}
	resp, errCreate := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if errCreate != nil {
		return Reply{}, errCreate
	}
	reply := Reply{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	if len(resp.Choices) > 0 {
		reply.Content = resp.Choices[0].Message.Content
	}
	return reply, nil
}
