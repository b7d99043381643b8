// Package transport defines the chat-platform port used by the notifier and
// the command router. Platform adapters live in subpackages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDestinationRejected is wrapped by adapters when the platform reports the
// destination as permanently unusable (unknown chat, bot blocked or removed).
var ErrDestinationRejected = errors.New("destination rejected")

// ChatTarget identifies a destination chat. ChatID is opaque: a numeric id
// ("-1001234567890") or a public username ("@shop_orders").
type ChatTarget struct {
	ChatID   string
	ThreadID int // forum topic thread id (0 if none)
}

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return t.ChatID + ":" + strconv.Itoa(t.ThreadID)
	}
	return t.ChatID
}

// ParseChatTarget parses "<chat>" or "<chat>:<thread>".
func ParseChatTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, errors.New("empty chat id")
	}
	chat, thread, hasThread := strings.Cut(s, ":")
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", raw)
	}
	if !strings.HasPrefix(chat, "@") {
		if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
			return ChatTarget{}, fmt.Errorf("invalid chat id %q: want integer or @username", raw)
		}
	}
	t := ChatTarget{ChatID: chat}
	if hasThread {
		n, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || n < 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id in %q", raw)
		}
		t.ThreadID = n
	}
	return t, nil
}

type MessageRef struct {
	Chat      ChatTarget
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Message is an inbound chat message addressed to the bot.
type Message struct {
	ID            int
	Chat          ChatTarget
	FromID        int64
	FromUsername  string
	FromFirstName string
	Text          string
}

// Sender delivers text to a single destination.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a running chat-platform connection.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}
