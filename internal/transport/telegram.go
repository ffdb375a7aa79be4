package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/taskpal/internal/logging"
	"github.com/ent0n29/taskpal/internal/reliability"
)

const (
	telegramMaxMessageLen = 4096
	pollRetryBase         = time.Second
	pollRetryCap          = 30 * time.Second
)

// MessageHandler answers one inbound message. Non-text messages arrive with empty text.
type MessageHandler func(ctx context.Context, ownerID int64, text string) (string, error)

// TelegramBot long-polls the Bot API for messages and sends replies. The owner of a message is
// its chat id.
type TelegramBot struct {
	apiURL      string
	token       string
	pollTimeout time.Duration
	client      *http.Client
	log         *slog.Logger
	// wait is swapped out in tests.
	wait func(ctx context.Context, d time.Duration) bool
}

type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

func NewTelegramBot(apiURL, token string, pollTimeout time.Duration) *TelegramBot {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &TelegramBot{
		apiURL:      apiURL,
		token:       strings.TrimSpace(token),
		pollTimeout: pollTimeout,
		// Long polls hold the request open for pollTimeout.
		client: &http.Client{Timeout: pollTimeout + 10*time.Second},
		log:    logging.Component("telegram"),
		wait:   sleepCtx,
	}
}

// Send delivers text to the chat, split into several messages if it exceeds Telegram's limit.
func (b *TelegramBot) Send(ctx context.Context, ownerID int64, text string) error {
	for _, part := range splitMessage(text, telegramMaxMessageLen) {
		payload := map[string]any{"chat_id": ownerID, "text": part}
		if err := b.call(ctx, "sendMessage", payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// Poll fetches updates until ctx is cancelled, answering each message on its own goroutine.
// It waits for in-flight handlers before returning.
func (b *TelegramBot) Poll(ctx context.Context, handle MessageHandler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	var offset int64
	attempt := 0
	b.log.Info("telegram polling started", "poll_timeout", b.pollTimeout)
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := reliability.ExponentialBackoff(attempt, pollRetryBase, pollRetryCap)
			attempt++
			b.log.Warn("getUpdates failed", "err", err, "retry_in", delay)
			if !b.wait(ctx, delay) {
				return nil
			}
			continue
		}
		attempt = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			msg := *u.Message
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.dispatch(ctx, msg, handle)
			}()
		}
	}
}

func (b *TelegramBot) dispatch(ctx context.Context, msg tgMessage, handle MessageHandler) {
	reply, err := handle(ctx, msg.Chat.ID, msg.Text)
	if err != nil {
		if ctx.Err() == nil {
			b.log.Error("handle message", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "err", err)
		}
		return
	}
	if reply == "" {
		return
	}
	if err := b.Send(ctx, msg.Chat.ID, reply); err != nil {
		b.log.Error("send reply", "chat_id", msg.Chat.ID, "err", err)
	}
}

func (b *TelegramBot) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(b.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	var updates []tgUpdate
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (b *TelegramBot) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	endpoint := b.apiURL + "/bot" + url.PathEscape(b.token) + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		// The URL carries the token; do not let it reach the logs.
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var env tgResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, Code: res.StatusCode, Description: "non-JSON response: " + strconv.Quote(truncate(string(raw), 200))}
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = res.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
