package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ent0n29/taskpal/internal/logging"
)

const defaultTemperature = 0.2

// GeminiProvider calls Google's Gemini API with the system prompt as a system instruction.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{client: client, model: model, timeout: timeout, log: logging.Component("gemini")}, nil
}

func (*GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(defaultTemperature)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	chat := model.StartChat()
	chat.History = geminiHistory(req.History)

	ctx, cancel := withCallTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := chat.SendMessage(ctx, genai.Text(req.UserText))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return p.extractText(resp)
}

func (p *GeminiProvider) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}
	candidate := resp.Candidates[0]
	p.log.Debug("gemini response", "finish_reason", candidate.FinishReason, "parts", len(candidate.Content.Parts))

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini response has no text (finish reason %v)", candidate.FinishReason)
	}
	return out, nil
}

// geminiHistory maps stored turns onto Gemini chat history. Gemini requires the history to open
// with a user turn and alternate user/model, so leading model turns are dropped and consecutive
// turns of one role are merged into a single Content.
func geminiHistory(turns []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		if len(out) == 0 && role == "model" {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].Role == role {
			out[last].Parts = append(out[last].Parts, genai.Text(t.Content))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	// SendMessage appends the new user turn, so the history must end on a model turn.
	if last := len(out) - 1; last >= 0 && out[last].Role == "user" {
		out = out[:last]
	}
	return out
}
