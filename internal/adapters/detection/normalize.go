package detection

import "strings"

const maxDecodePasses = 5

// normalizeForDetection undoes the encodings attackers use to slip past
// signatures: NUL bytes, nested percent-encoding, '+' as space in query
// strings and full-width unicode look-alikes.
func normalizeForDetection(s string, isQueryString bool) string {
	if s == "" {
		return s
	}
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	for i := 0; i < maxDecodePasses && strings.IndexByte(s, '%') >= 0; i++ {
		decoded := percentDecode(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	if isQueryString && strings.IndexByte(s, '+') >= 0 {
		s = strings.ReplaceAll(s, "+", " ")
	}
	return foldLookalikes(s)
}

// percentDecode decodes valid %XX escapes and leaves malformed ones as is.
// Decoded NUL bytes are dropped.
func percentDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, lo := unhex(s[i+1]), unhex(s[i+2])
			if hi >= 0 && lo >= 0 {
				if c := byte(hi<<4 | lo); c != 0 {
					b.WriteByte(c)
				}
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

var lookalikeReplacer = strings.NewReplacer(
	"＜", "<", "＞", ">", "＆", "&", "＂", "\"", "＇", "'",
	"（", "(", "）", ")", "／", "/", "＼", "\\", "；", ";", "｜", "|",
	"ʼ", "'", "ʻ", "'", "′", "'", "‵", "'",
	"‹", "<", "›", ">", "«", "<", "»", ">",
)

// foldLookalikes maps full-width punctuation and latin letters to ASCII.
func foldLookalikes(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	s = lookalikeReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'ａ' && r <= 'ｚ':
			return r - 'ａ' + 'a'
		case r >= 'Ａ' && r <= 'Ｚ':
			return r - 'Ａ' + 'A'
		}
		return r
	}, s)
}
