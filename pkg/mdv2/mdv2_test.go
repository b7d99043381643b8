package mdv2

import (
	"strings"
	"testing"
)

func TestEscEveryReservedChar(t *testing.T) {
	t.Parallel()
	for _, r := range Reserved {
		in := "a" + string(r) + "b"
		got := Esc(in).String()
		want := "a\\" + string(r) + "b"
		if got != want {
			t.Fatalf("Esc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscPlainUnchanged(t *testing.T) {
	t.Parallel()
	tests := []string{"", "processing", "Ada Lovelace", "Ünïcödé 🎉", "12345"}
	for _, in := range tests {
		if got := Esc(in).String(); got != in {
			t.Fatalf("Esc(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestEscLengthNeverShrinks(t *testing.T) {
	t.Parallel()
	tests := []string{"Widget.", "a_b*c", "[link](url)", "x-y=z|w", "!!!", "\\"}
	for _, in := range tests {
		got := Esc(in).String()
		if len(got) < len(in) {
			t.Fatalf("Esc(%q) shrank to %q", in, got)
		}
		if strings.Count(got, "\\") < strings.Count(in, "\\") {
			t.Fatalf("Esc(%q) lost backslashes: %q", in, got)
		}
	}
	if got := Esc("Widget.").String(); got != `Widget\.` {
		t.Fatalf("Esc(Widget.) = %q", got)
	}
}

func TestEscIsNotIdempotent(t *testing.T) {
	t.Parallel()
	once := Esc("a.b").String()
	twice := Esc(once).String()
	if once == twice {
		t.Fatalf("expected double escape to differ, got %q", twice)
	}
}

func TestEscAny(t *testing.T) {
	t.Parallel()
	if got := EscAny(19.5).String(); got != `19\.5` {
		t.Fatalf("EscAny(19.5) = %q", got)
	}
	if got := EscAny(nil).String(); got != "" {
		t.Fatalf("EscAny(nil) = %q", got)
	}
	if got := EscAny(42).String(); got != "42" {
		t.Fatalf("EscAny(42) = %q", got)
	}
}

func TestCodeSpan(t *testing.T) {
	t.Parallel()
	if got := Code("19.99 USD").String(); got != "`19.99 USD`" {
		t.Fatalf("Code = %q", got)
	}
	if got := Code("a`b\\c").String(); got != "`a\\`b\\\\c`" {
		t.Fatalf("Code = %q", got)
	}
}

func TestBoldAndJoin(t *testing.T) {
	t.Parallel()
	got := Join(" ", B("Order ID:"), Code("42")).String()
	if got != "*Order ID:* `42`" {
		t.Fatalf("Join = %q", got)
	}
}
