package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserText       MessageType = "user_text"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeNotification   MessageType = "notification"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

// maxUserTextLen matches Telegram's message size limit.
const maxUserTextLen = 4096

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserText is a chat message from the client.
type UserText struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id,omitempty"`
	Text string      `json:"text"`
}

// AssistantReply answers one UserText; ReplyTo echoes its id.
type AssistantReply struct {
	Type    MessageType `json:"type"`
	ReplyTo string      `json:"reply_to,omitempty"`
	Text    string      `json:"text"`
	Kind    string      `json:"kind"`
}

// Notification is pushed without a prompting message: alerts and digests.
type Notification struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
	TSMs int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserText:
		var msg UserText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Text) > maxUserTextLen {
			return nil, fmt.Errorf("invalid user_text: longer than %d bytes", maxUserTextLen)
		}
		msg.Text = strings.TrimSpace(msg.Text)
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf returns the type tag of a known message value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case UserText:
		return m.Type, true
	case AssistantReply:
		return m.Type, true
	case Notification:
		return m.Type, true
	case SystemEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
