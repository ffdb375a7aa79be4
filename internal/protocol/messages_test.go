package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessageUserText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"user_text","id":"m1","text":"  add milk  "}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	ut, ok := msg.(UserText)
	if !ok {
		t.Fatalf("message type = %T, want UserText", msg)
	}
	if ut.ID != "m1" || ut.Text != "add milk" {
		t.Fatalf("unexpected user text: %+v", ut)
	}
}

func TestParseClientMessageAllowsEmptyText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"user_text"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(UserText).Text != "" {
		t.Fatalf("text = %q, want empty", msg.(UserText).Text)
	}
}

func TestParseClientMessageRejectsOversizedText(t *testing.T) {
	raw := `{"type":"user_text","text":"` + strings.Repeat("a", maxUserTextLen+1) + `"}`
	if _, err := ParseClientMessage([]byte(raw)); err == nil {
		t.Fatalf("ParseClientMessage() expected error for oversized text")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseClientMessage([]byte(`{"type":"assistant_reply","text":"x"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("server-only type accepted from client: %v", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatalf("ParseClientMessage() expected error")
	}
}

func TestTypeOf(t *testing.T) {
	if got, ok := TypeOf(Notification{Type: TypeNotification}); !ok || got != TypeNotification {
		t.Fatalf("TypeOf(Notification) = %q, %v", got, ok)
	}
	if _, ok := TypeOf("nope"); ok {
		t.Fatalf("TypeOf(string) reported ok")
	}
}
