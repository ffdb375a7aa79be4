package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider gives deterministic local replies so the bot runs without any model credentials.
// It understands a handful of bare commands and echoes everything else.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (*MockProvider) Name() string { return "mock" }

func (*MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	text := strings.TrimSpace(req.UserText)
	lower := strings.ToLower(text)

	switch {
	case lower == "list" || strings.Contains(lower, "my tasks"):
		return "Action: list\nTask: null\nDue date: null\nTime: null\nNote: null"
	case lower == "done" || lower == "update" || lower == "delete":
		return fmt.Sprintf("Action: %s\nTask: null\nDue date: null\nTime: null\nNote: null", lower)
	case strings.HasPrefix(lower, "add "):
		return fmt.Sprintf("Action: add\nTask: %s\nDue date: null\nTime: null\nNote: null", strings.TrimSpace(text[4:]))
	}

	if text == "" {
		text = "..."
	}
	if len(req.History) == 0 {
		return fmt.Sprintf("I heard you: %s", text)
	}
	last := strings.TrimSpace(req.History[len(req.History)-1].Content)
	if last == "" {
		return fmt.Sprintf("I heard you: %s", text)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s", text, last)
}
