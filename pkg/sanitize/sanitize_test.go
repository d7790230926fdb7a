package sanitize

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminal(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"plain", "GET /index.html", 0, "GET /index.html"},
		{"csi color", "\x1b[31mred\x1b[0m", 0, "[ESC]red[ESC]"},
		{"bare escape", "a\x1bb", 0, "a[ESC]b"},
		{"newline and tab", "a\nb\tc", 0, "a b c"},
		{"carriage return", "a\rb", 0, "a[CR]b"},
		{"bell", "a\x07b", 0, "a[CTRL]b"},
		{"delete", "a\x7fb", 0, "a[DEL]b"},
		{"truncated", "abcdefghij", 6, "abc..."},
		{"tiny limit", "abcdefghij", 2, "ab"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Terminal(tc.input, tc.maxLen))
		})
	}
}

func TestTerminalKeepsRunesWhole(t *testing.T) {
	got := Terminal(strings.Repeat("é", 10), 8)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 8)
	assert.NotContains(t, got, "�")
}

func TestIP(t *testing.T) {
	assert.Equal(t, "10.0.0.5", IP(netip.MustParseAddr("10.0.0.5")))
	assert.Equal(t, "[INVALID]", IP(netip.Addr{}))
}

func TestField(t *testing.T) {
	long := strings.Repeat("x", 1000)
	assert.Len(t, Field(long), DefaultMaxDisplayLength)
}
