package transport

import (
	"strings"
	"testing"
)

func TestParseChatTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    ChatTarget
		wantErr bool
	}{
		{raw: "123456", want: ChatTarget{ChatID: "123456"}},
		{raw: " -1001234567890 ", want: ChatTarget{ChatID: "-1001234567890"}},
		{raw: "@shop_orders", want: ChatTarget{ChatID: "@shop_orders"}},
		{raw: "-100123:45", want: ChatTarget{ChatID: "-100123", ThreadID: 45}},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "123:x", wantErr: true},
		{raw: ":5", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseChatTarget(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseChatTarget(%q) expected error, got %+v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseChatTarget(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseChatTarget(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
		if got.String() != strings.TrimSpace(tt.raw) {
			t.Fatalf("String() = %q, want %q", got.String(), strings.TrimSpace(tt.raw))
		}
	}
}
