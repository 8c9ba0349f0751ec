// Package assistant runs chat and text generation requests against the completion API.
package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/prompt"
	"github.com/inkwell-app/inkwell/internal/validation"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// ErrMissingCredential indicates the completion API key is not configured.
var ErrMissingCredential = errors.New("assistant: completion api key is not configured")

// Failure kinds reported in Result.Kind.
const (
	KindAuth      = "auth"
	KindRateLimit = "rate_limit"
	KindTooLong   = "too_long"
	KindGeneric   = "generic"
	KindEmpty     = "empty"
)

// User-facing failure messages.
const (
	MessageAuth      = "The AI service rejected the request. Please check your API key configuration."
	MessageRateLimit = "Too many AI requests right now. Please wait a moment and try again."
	MessageTooLong   = "The request is too long for the AI model. Try shortening the document or removing some references."
	MessageGeneric   = "Sorry, I encountered an error. Please try again."
	MessageEmpty     = "I couldn't generate a response."
)

// Result is the structured reply for chat and generate calls.
type Result struct {
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"-"`
}

// Endpoints reported in Usage.
const (
	EndpointChat     = "chat"
	EndpointGenerate = "generate"
)

// Usage describes one completion attempt for accounting.
type Usage struct {
	UserID           string
	Endpoint         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Success          bool
	Kind             string
}

// UsageRecorder persists completion attempts.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage)
}

// ChatInput is one chat turn with its context.
type ChatInput struct {
	UserID  string
	Message string
	Context prompt.Context
	History []prompt.Turn
}

// GenerateInput is one insertion-oriented generation request.
type GenerateInput struct {
	UserID  string
	Prompt  string
	Context prompt.Context
}

// Service validates requests, assembles prompts, and calls the completer once.
type Service struct {
	completer Completer
	cfg       config.AIConfig
	usage     UsageRecorder
}

// NewService constructs a Service. A nil completer uses the OpenAI client built from cfg.
func NewService(cfg config.AIConfig, completer Completer) *Service {
	if completer == nil {
		completer = NewOpenAICompleter(cfg)
	}
	return &Service{completer: completer, cfg: cfg}
}

// SetUsageRecorder registers where completion attempts are recorded.
func (s *Service) SetUsageRecorder(recorder UsageRecorder) {
	s.usage = recorder
}

// Chat answers a message in the context of the document, knowledge, and history.
// Precondition failures are returned as errors; upstream failures are reported in Result.
func (s *Service) Chat(ctx context.Context, in ChatInput) (Result, error) {
	if errCheck := s.precheck(in.Message, "Message is required"); errCheck != nil {
		return Result{}, errCheck
	}
	messages := prompt.Chat(in.Context, in.History, in.Message)
	return s.complete(ctx, in.UserID, EndpointChat, messages, s.cfg.ChatMaxTokens)
}

// GenerateText produces text to insert into the document, with no preamble.
func (s *Service) GenerateText(ctx context.Context, in GenerateInput) (Result, error) {
	if errCheck := s.precheck(in.Prompt, "Prompt is required"); errCheck != nil {
		return Result{}, errCheck
	}
	messages := prompt.Generate(in.Context, in.Prompt)
	return s.complete(ctx, in.UserID, EndpointGenerate, messages, s.cfg.GenerateMaxTokens)
}

func (s *Service) precheck(text, requiredMessage string) error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return ErrMissingCredential
	}
	if validation.Blank(text) {
		return validation.New(requiredMessage)
	}
	return nil
}

func (s *Service) complete(ctx context.Context, userID, endpoint string, messages []prompt.Message, maxTokens int) (Result, error) {
	fields := log.Fields{"endpoint": endpoint, "messages": len(messages)}
	estimated, errCount := prompt.CountTokens(messages)
	if errCount == nil {
		fields["prompt_tokens"] = estimated
	} else {
		log.WithError(errCount).Debug("assistant: token count unavailable")
	}
	usage := Usage{UserID: userID, Endpoint: endpoint, Model: s.cfg.Model, PromptTokens: estimated}

	reply, errComplete := s.completer.Complete(ctx, Completion{
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		MaxTokens:   maxTokens,
	})
	if reply.PromptTokens > 0 {
		usage.PromptTokens = reply.PromptTokens
	}
	usage.CompletionTokens = reply.CompletionTokens

	var result Result
	switch {
	case errComplete != nil:
		kind := Classify(errComplete)
		log.WithFields(fields).WithField("kind", kind).WithError(errComplete).Error("assistant: completion failed")
		result = Result{Success: false, Error: userMessage(kind), Kind: kind, Content: userMessage(kind)}
	case strings.TrimSpace(reply.Content) == "":
		log.WithFields(fields).Warn("assistant: empty completion")
		result = Result{Success: false, Error: MessageEmpty, Kind: KindEmpty, Content: MessageEmpty}
	default:
		log.WithFields(fields).Debug("assistant: completion succeeded")
		result = Result{Content: reply.Content, Success: true}
	}

	if s.usage != nil {
		usage.Success = result.Success
		usage.Kind = result.Kind
		s.usage.RecordUsage(ctx, usage)
	}
	return result, nil
}

// Classify buckets a completion error into auth, rate-limit, too-long, or generic.
// HTTP status codes are used when available, then the error text.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return KindTooLong
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusRequestEntityTooLarge:
		return KindTooLong
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "api key", "api_key", "unauthorized", "authentication", "401"):
		return KindAuth
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429", "quota"):
		return KindRateLimit
	case containsAny(msg, "context length", "context_length", "maximum context", "too long", "too many tokens"):
		return KindTooLong
	default:
		return KindGeneric
	}
}

func userMessage(kind string) string {
	switch kind {
	case KindAuth:
		return MessageAuth
	case KindRateLimit:
		return MessageRateLimit
	case KindTooLong:
		return MessageTooLong
	default:
		return MessageGeneric
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
