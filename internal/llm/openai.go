package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig selects an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	opts   Options
}

// NewOpenAI creates an OpenAI client. BaseURL may point at any compatible server.
func NewOpenAI(cfg OpenAIConfig, opts Options) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(reqOpts...)
	return &OpenAI{client: &client, model: cfg.Model, opts: opts}, nil
}

// Name returns the provider identifier.
func (o *OpenAI) Name() string { return "openai" }

// Complete sends the conversation and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	temperature, maxTokens := o.opts.resolve(req)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		if turn.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
