// Package llm wraps the chat completion APIs that phrase assistant replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/pricechat/internal/config"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message handed to the model as context.
type Turn struct {
	Role    Role
	Content string
}

// Request is a single completion call.
type Request struct {
	System      string
	History     []Turn
	Prompt      string
	Temperature float64 // 0 uses the client default
	MaxTokens   int     // 0 uses the client default
}

// Client completes a prompt into free text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Options are the generation defaults shared by all providers.
type Options struct {
	Temperature float64
	MaxTokens   int
	MaxRetries  int
}

func (o Options) resolve(req Request) (float64, int) {
	temperature, maxTokens := o.Temperature, o.MaxTokens
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return temperature, maxTokens
}

// New builds the client selected by cfg.LLMProvider.
// It returns a nil Client and no error when no provider is configured.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	opts := Options{
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		MaxRetries:  2,
	}

	switch cfg.LLMProvider {
	case "", "none":
		return nil, nil
	case "gemini":
		return NewGemini(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, opts)
	case "openai":
		return NewOpenAI(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel}, opts)
	case "anthropic":
		return NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}, opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// ExtractJSON returns the first complete JSON object in text, or the body of a
// ```json fenced block. Models often wrap structured answers in prose.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = !inString
				continue
			}
			if inString {
				continue
			}
			switch c {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	return "", false
}
