// Package llm turns a user message into model text through one or more completion providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable means no provider produced a completion.
var ErrUnavailable = errors.New("completion provider unavailable")

// Role of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized completion request.
type Request struct {
	SystemPrompt string `json:"system_prompt"`
	UserText     string `json:"user_text"`
	History      []Turn `json:"history,omitempty"`
}

// Provider produces the model's reply text for a request.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Config controls provider construction.
type Config struct {
	Mode         string
	HTTPURL      string
	HTTPAPIKey   string
	HTTPModel    string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// New builds the provider chain for cfg.Mode.
//
//	auto:   HTTP (if keyed) then Gemini (if keyed); mock when neither is configured
//	http:   HTTP only
//	gemini: Gemini only
//	mock:   deterministic local replies
func New(ctx context.Context, cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAuto(ctx, cfg)
	case "http":
		if strings.TrimSpace(cfg.HTTPAPIKey) == "" {
			return nil, errors.New("llm http api key is required for http mode")
		}
		return NewHTTPProvider(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.HTTPModel, cfg.Timeout), nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("gemini api key is required for gemini mode")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Timeout)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

func newAuto(ctx context.Context, cfg Config) (Provider, error) {
	var chain []Provider
	if strings.TrimSpace(cfg.HTTPAPIKey) != "" {
		chain = append(chain, NewHTTPProvider(cfg.HTTPURL, cfg.HTTPAPIKey, cfg.HTTPModel, cfg.Timeout))
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		g, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
	}

	switch len(chain) {
	case 0:
		return NewMockProvider(), nil
	case 1:
		return NewFallbackProvider(chain[0], nil), nil
	default:
		return NewFallbackProvider(chain[0], chain[1]), nil
	}
}

// withCallTimeout bounds one provider call; d <= 0 leaves ctx as is.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
