package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig selects a Gemini model.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the API endpoint, used by tests
}

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	opts    Options
	backoff time.Duration
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig, opts Options) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model, opts: opts, backoff: time.Second}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string { return "gemini" }

// Complete sends the conversation and returns the reply text.
// Overload, quota and timeout errors are retried with exponential backoff.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	temperature, maxTokens := g.opts.resolve(req)

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			// 1s, 2s, 4s...
			wait := g.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return "", ErrEmptyResponse
			}
			return text, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return "", fmt.Errorf("gemini generate: %w", err)
		}
	}
	return "", fmt.Errorf("gemini generate failed after %d attempts: %w", g.opts.MaxRetries+1, lastErr)
}

func retryable(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"429", "quota", "RESOURCE_EXHAUSTED", "503", "UNAVAILABLE", "overloaded", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
