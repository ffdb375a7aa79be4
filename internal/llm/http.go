package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/taskpal/internal/reliability"
)

const (
	httpMaxAttempts = 2
	httpRetryBase   = 500 * time.Millisecond
	httpRetryCap    = 4 * time.Second
)

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

// HTTPProvider talks to an OpenAI-compatible /chat/completions endpoint.
type HTTPProvider struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration
}

func NewHTTPProvider(url, apiKey, model string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{Timeout: timeout},
		backoff: func(attempt int) time.Duration {
			return reliability.ExponentialBackoff(attempt, httpRetryBase, httpRetryCap)
		},
	}
}

func (*HTTPProvider) Name() string { return "http" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *HTTPProvider) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(buildChatRequest(p.model, req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < httpMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}
		text, err := p.do(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		se, ok := err.(*StatusError)
		if !ok || !se.Retryable() {
			break
		}
	}
	return "", lastErr
}

func (p *HTTPProvider) do(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out chatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm http: response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func buildChatRequest(model string, req Request) chatRequest {
	msgs := make([]chatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, t := range req.History {
		msgs = append(msgs, chatMessage{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.UserText})
	return chatRequest{Model: model, Messages: msgs}
}
