package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	kit "ordercast/internal/transport"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent map[string]string
}

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[to.ChatID] = text
	return kit.MessageRef{Chat: to, MessageID: 1}, nil
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Message) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) get(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[id]
}

func TestWebhookModeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := `
mode: webhook
telegram:
  token: "123:abc"
  chat_ids: "-100,200"
webhook:
  addr: 127.0.0.1:0
metrics:
  enabled: true
logging:
  level: error
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	ad := &fakeAdapter{}
	a, err := New(cfgPath, Options{Adapter: ad})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = a.Stop(sctx)
	}()

	base := "http://" + a.HTTPAddr()
	body := `{"id": 42, "total": "19.99", "currency": "USD", "status": "processing", ` +
		`"billing": {"first_name": "Ada", "last_name": "Lovelace"}, ` +
		`"line_items": [{"name": "Widget.", "quantity": 2}]}`
	resp, err := http.Post(base+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%q", resp.StatusCode, b)
	}

	for _, id := range []string{"-100", "200"} {
		msg := ad.get(id)
		for _, want := range []string{"*Order ID:* `42`", "*Status:* processing", "*Customer:* Ada Lovelace", "`19.99 USD`", "• 2x Widget\\."} {
			if !strings.Contains(msg, want) {
				t.Fatalf("%s: message missing %q:\n%s", id, want, msg)
			}
		}
	}

	resp, err = http.Post(base+"/webhook", "application/json", strings.NewReader("definitely not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || string(b) != "Failed to parse JSON body" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, b)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(b), `ordercast_webhook_requests_total{status="400"} 1`) {
		t.Fatalf("metrics missing webhook counter:\n%s", b)
	}
}

func TestNewFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("WC_URL", "")
	t.Setenv("WC_KEY", "")
	t.Setenv("WC_SECRET", "")
	t.Setenv("TELEGRAM_CHAT_IDS", "")
	t.Setenv("POLL_INTERVAL", "")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("mode: poll\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := New(cfgPath, Options{Adapter: &fakeAdapter{}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"telegram.token", "store.url", "store.key", "store.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q: %v", want, err)
		}
	}
}
