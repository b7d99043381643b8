package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ordercast/internal/metrics"
	"ordercast/internal/notifier"
	"ordercast/internal/order"
	kit "ordercast/internal/transport"
	"ordercast/pkg/logx"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string]string
}

func (s *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[string]string{}
	}
	s.sent[to.ChatID] = text
	return kit.MessageRef{Chat: to, MessageID: 1}, nil
}

type countingProc struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProc) Process(ctx context.Context, raw order.RawOrder) (order.Order, notifier.Report) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return order.Normalize(raw), notifier.Report{}
}

func newPipeline(s kit.Sender, ids ...string) *notifier.Pipeline {
	var dests []kit.ChatTarget
	for _, id := range ids {
		dests = append(dests, kit.ChatTarget{ChatID: id})
	}
	d := notifier.NewDispatcher(notifier.Config{Destinations: dests}, s, logx.Nop(), nil)
	return notifier.NewPipeline(d, logx.Nop(), nil)
}

func TestWebhook_EndToEnd(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	h := Instrument("webhook", NewHandler(newPipeline(sender, "-100", "200"), 0, logx.Nop(), metrics.New()), logx.Nop(), nil)

	body := `{"id":7,"status":"on-hold","total":"5.00","currency":"EUR",` +
		`"billing":{"first_name":"Jo","last_name":"O'Neil-Smith"},` +
		`"line_items":[{"name":"A","quantity":1},{"name":"B","quantity":3}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "Webhook received successfully" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
	for _, id := range []string{"-100", "200"} {
		msg := sender.sent[id]
		for _, want := range []string{"*Status:* on\\-hold", "Jo O'Neil\\-Smith", "• 1x A\n• 3x B", "`5.00 EUR`"} {
			if !strings.Contains(msg, want) {
				t.Fatalf("%s: message missing %q:\n%s", id, want, msg)
			}
		}
	}
}

func TestWebhook_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantCode    int
		wantBody    string
	}{
		{name: "wrong method", method: http.MethodGet, wantCode: http.StatusMethodNotAllowed},
		{name: "woocommerce ping", method: http.MethodPost, contentType: "application/x-www-form-urlencoded", body: "webhook_id=12", wantCode: 400, wantBody: msgNotJSON},
		{name: "missing content type", method: http.MethodPost, body: `{"id":1}`, wantCode: 400, wantBody: msgNotJSON},
		{name: "invalid json", method: http.MethodPost, contentType: "application/json", body: "not json", wantCode: 400, wantBody: msgBadJSON},
		{name: "empty body", method: http.MethodPost, contentType: "application/json", body: "", wantCode: 400, wantBody: msgBadJSON},
		{name: "empty object", method: http.MethodPost, contentType: "application/json", body: "{}", wantCode: 400, wantBody: msgBadJSON},
		{name: "array", method: http.MethodPost, contentType: "application/json", body: `[{"id":1}]`, wantCode: 400, wantBody: msgBadJSON},
		{name: "trailing data", method: http.MethodPost, contentType: "application/json", body: `{"id":1} {"id":2}`, wantCode: 400, wantBody: msgBadJSON},
		{name: "stray closing brace", method: http.MethodPost, contentType: "application/json", body: `{"id":1}}`, wantCode: 400, wantBody: msgBadJSON},
		{name: "stray closing bracket", method: http.MethodPost, contentType: "application/json", body: `{"id":1}]`, wantCode: 400, wantBody: msgBadJSON},
		{name: "trailing garbage", method: http.MethodPost, contentType: "application/json", body: `{"id":1} x`, wantCode: 400, wantBody: msgBadJSON},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			proc := &countingProc{}
			h := NewHandler(proc, 0, logx.Nop(), nil)

			req := httptest.NewRequest(tt.method, "/webhook", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status=%d want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Fatalf("body=%q want %q", rec.Body.String(), tt.wantBody)
			}
			if proc.calls != 0 {
				t.Fatalf("pipeline ran %d times, want 0", proc.calls)
			}
		})
	}
}

func TestWebhook_BodyLimit(t *testing.T) {
	t.Parallel()

	proc := &countingProc{}
	h := NewHandler(proc, 16, logx.Nop(), nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"id":1,"status":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || proc.calls != 0 {
		t.Fatalf("status=%d calls=%d", rec.Code, proc.calls)
	}
}

func TestIsJSON(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"application/json":                  true,
		"application/json; charset=UTF-8":   true,
		"Application/JSON":                  true,
		"application/vnd.api+json":          true,
		"text/plain":                        false,
		"application/x-www-form-urlencoded": false,
		"":                                  false,
		"json":                              false,
	}
	for ct, want := range tests {
		if got := isJSON(ct); got != want {
			t.Fatalf("isJSON(%q)=%v want %v", ct, got, want)
		}
	}
}

func TestInstrument_KeepsIncomingRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := Instrument("x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}), logx.Nop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}
}
