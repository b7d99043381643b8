package mdv2

import (
	"fmt"
	"strings"
)

// ParseMode is the value Telegram expects in sendMessage.parse_mode.
const ParseMode = "MarkdownV2"

// Reserved lists every character MarkdownV2 requires to be escaped outside
// code entities. The backslash itself is included so literal backslashes
// survive.
const Reserved = "_*[]()~`>#+-=|{}.!\\"

// M is MarkdownV2 text that is safe to send as-is.
type M string

func (m M) String() string { return string(m) }

// Esc escapes s for use anywhere in a MarkdownV2 message.
func Esc(s string) M {
	if !strings.ContainsAny(s, Reserved) {
		return M(s)
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if r < 128 && strings.ContainsRune(Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return M(b.String())
}

// EscAny coerces v to its textual form and escapes it.
func EscAny(v any) M {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return Esc(s)
	}
	return Esc(fmt.Sprint(v))
}

// Raw marks s as already-safe MarkdownV2.
func Raw(s string) M { return M(s) }

// B renders bold text.
func B(s string) M { return M("*") + Esc(s) + M("*") }

// Code renders an inline code span. Inside code entities only '`' and '\'
// are significant, so numeric content passes through unchanged.
func Code(s string) M {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('`')
	for _, r := range s {
		if r == '`' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('`')
	return M(b.String())
}

// Join concatenates safe parts with a raw separator.
func Join(sep string, parts ...M) M {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		ss = append(ss, string(p))
	}
	return M(strings.Join(ss, sep))
}
