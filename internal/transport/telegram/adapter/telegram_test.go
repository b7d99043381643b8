package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"ordercast/internal/order"
	kit "ordercast/internal/transport"
	logx "ordercast/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 6)
	s := strings.Join([]string{line, line, line, line}, "\n")
	chunks := splitText(s, 15)
	for _, c := range chunks {
		if len([]rune(c)) > 15 {
			t.Fatalf("chunk too long: %q", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk has dangling newline: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != s {
		t.Fatalf("chunks do not reassemble: %q", chunks)
	}
}

func TestSplitTextKeepsEscapesTogether(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 9) + `\.` + strings.Repeat("y", 9)
	for _, c := range splitText(s, 10) {
		if strings.HasSuffix(c, `\`) {
			t.Fatalf("chunk ends with dangling escape: %q", c)
		}
	}
}

func TestSplitTextKeepsEntitiesBalanced(t *testing.T) {
	t.Parallel()
	o := order.Order{ID: 9001, Status: "processing", Total: "1234.50", Currency: "EUR", FirstName: "Ada"}
	for i := 0; i < 300; i++ {
		o.Items = append(o.Items, order.Item{Name: fmt.Sprintf("Widget (size L) #%d", i), Quantity: i + 1})
	}
	text := order.Format(o)

	chunks := splitText(text, telegramTextLimit)
	if len(chunks) < 2 {
		t.Fatalf("expected the order to be split, got %d chunk(s)", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > telegramTextLimit {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		for _, mark := range []rune{'*', '`'} {
			if n := countUnescaped(c, mark); n%2 != 0 {
				t.Fatalf("chunk %d has %d unescaped %q:\n%s", i, n, mark, c)
			}
		}
	}
	if strings.Join(chunks, "\n") != text {
		t.Fatal("chunks do not reassemble into the message")
	}
}

func countUnescaped(s string, mark rune) int {
	n := 0
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == mark:
			n++
		}
	}
	return n
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{name: "chat not found", err: tele.ErrChatNotFound, rejected: true},
		{name: "blocked", err: tele.ErrBlockedByUser, rejected: true},
		{name: "generic", err: errors.New("dial tcp: timeout"), rejected: false},
		{name: "server", err: tele.NewError(500, "Internal Server Error"), rejected: false},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		if errors.Is(got, kit.ErrDestinationRejected) != tt.rejected {
			t.Fatalf("%s: classify(%v) rejected=%v, want %v", tt.name, tt.err, !tt.rejected, tt.rejected)
		}
		if !errors.Is(got, tt.err) {
			t.Fatalf("%s: classify lost the cause: %v", tt.name, got)
		}
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: " "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func newOfflineAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:abc", URL: srv.URL, Offline: true, SendTimeout: 5 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSendTextHonorsDeadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	a := newOfflineAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`)
	})
	// Registered after srv.Close, so it runs first and unblocks the handler.
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: "1"}, "hi", nil)
	took := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
	if errors.Is(err, kit.ErrDestinationRejected) {
		t.Fatalf("timeout classified as rejection: %v", err)
	}
	if took > time.Second {
		t.Fatalf("SendText took %v, want it bounded by the ctx deadline", took)
	}
}

func TestSendTextResponses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		body     string
		wantID   int
		wantErr  bool
		rejected bool
	}{
		{
			name:   "sent",
			status: http.StatusOK,
			body:   `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`,
			wantID: 7,
		},
		{
			name:     "blocked",
			status:   http.StatusForbidden,
			body:     `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
			wantErr:  true,
			rejected: true,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"ok":false,"error_code":500,"description":"Internal Server Error"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			paths := make(chan string, 1)
			a := newOfflineAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				select {
				case paths <- r.URL.Path:
				default:
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "-100"}, "hi", nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if errors.Is(err, kit.ErrDestinationRejected) != tt.rejected {
				t.Fatalf("rejected=%v, want %v (err=%v)", !tt.rejected, tt.rejected, err)
			}
			if ref.MessageID != tt.wantID {
				t.Fatalf("message id=%d want %d", ref.MessageID, tt.wantID)
			}
			if path := <-paths; !strings.HasSuffix(path, "/sendMessage") {
				t.Fatalf("path=%q, want sendMessage call", path)
			}
		})
	}
}
