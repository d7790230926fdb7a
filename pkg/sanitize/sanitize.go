// Package sanitize strips terminal control sequences from attacker
// controlled strings before they are rendered by the dashboard or logged
// on a console.
package sanitize

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

const DefaultMaxDisplayLength = 256

// Terminal replaces control bytes and ANSI escape sequences with visible
// markers and truncates the result to maxLen bytes (no limit when <= 0).
func Terminal(s string, maxLen int) string {
	out := s
	if hasControl(s) {
		out = rewrite(s)
	}
	return truncate(out, maxLen)
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7F {
			return true
		}
	}
	return false
}

func rewrite(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x1B:
			// Skip a CSI sequence: ESC [ params final
			if i+1 < len(s) && s[i+1] == '[' {
				i += 2
				for i < len(s) && !csiFinal(s[i]) {
					i++
				}
			}
			b.WriteString("[ESC]")
		case c == '\t' || c == '\n':
			b.WriteByte(' ')
		case c == '\r':
			b.WriteString("[CR]")
		case c == 0x7F:
			b.WriteString("[DEL]")
		case c < 0x20:
			b.WriteString("[CTRL]")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func csiFinal(c byte) bool {
	return c >= 0x40 && c <= 0x7E
}

// truncate cuts at maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// IP renders an address for display, "[INVALID]" when it is unset.
func IP(addr netip.Addr) string {
	if !addr.IsValid() {
		return "[INVALID]"
	}
	return addr.String()
}

// Field is Terminal with the default display length.
func Field(s string) string {
	return Terminal(s, DefaultMaxDisplayLength)
}
