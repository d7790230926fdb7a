package detection

import (
	"strings"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// TokenKind is the class of a SQL token. Its value is the byte used for the
// token in a fingerprint.
type TokenKind byte

const (
	TokenString     TokenKind = 's'
	TokenNumber     TokenKind = 'n'
	TokenKeyword    TokenKind = 'k'
	TokenOperator   TokenKind = 'o'
	TokenComment    TokenKind = 'c'
	TokenFunction   TokenKind = 'f'
	TokenDelimiter  TokenKind = 'd'
	TokenIdentifier TokenKind = 'i'
)

type Token struct {
	Kind  TokenKind
	Value string
}

const maxFingerprintTokens = 8

var sqlKeywords = map[string]bool{
	"select": true, "union": true, "insert": true, "update": true,
	"delete": true, "drop": true, "truncate": true, "alter": true,
	"from": true, "where": true, "and": true, "or": true, "xor": true,
	"not": true, "null": true, "like": true, "having": true,
	"exec": true, "execute": true, "into": true, "values": true,
	"waitfor": true, "delay": true, "information_schema": true,
}

// sqlFunctions are only classed as functions when a '(' follows.
var sqlFunctions = map[string]bool{
	"sleep": true, "pg_sleep": true, "benchmark": true, "load_file": true,
	"extractvalue": true, "updatexml": true, "concat": true, "concat_ws": true,
	"group_concat": true, "version": true, "database": true, "current_user": true,
}

// sqlFingerprints are matched against the start of a value's fingerprint.
// A leading 's' means the value closed a quote the application opened.
var sqlFingerprints = map[string]string{
	"sksos": "quoted boolean string comparison",
	"sknon": "quoted boolean numeric comparison",
	"sknos": "quoted boolean mixed comparison",
	"skf":   "quoted boolean with function call",
	"skk":   "quoted UNION or statement",
	"sdk":   "statement chained after string",
	"nknon": "numeric boolean comparison",
	"nkf":   "numeric boolean with function call",
	"nkk":   "numeric UNION or statement",
	"ndk":   "statement chained after number",
	"kkn":   "UNION SELECT literal",
	"kkk":   "UNION SELECT keyword",
	"kkf":   "UNION SELECT function",
	"fdn":   "bare time delay call",
	"fdd":   "bare information function call",
}

// quoteContexts are the prefixes a value is tokenized under: as a bare
// literal, and as the inside of a single or double quoted string.
var quoteContexts = []string{"", "'", `"`}

// SQLTokenizer fingerprints request values by SQL token structure. It
// catches injections whose spelling evades the regex table but whose shape
// does not.
//
// Thread Safety: Stateless; safe for concurrent use.
type SQLTokenizer struct{}

func NewSQLTokenizer() *SQLTokenizer {
	return &SQLTokenizer{}
}

// Tokenize splits decoded text into at most maxFingerprintTokens tokens.
func (t *SQLTokenizer) Tokenize(s string) []Token {
	var tokens []Token
	n := len(s)
	for i := 0; i < n && len(tokens) < maxFingerprintTokens; {
		c := s[i]
		switch {
		case isSpace(c):
			i++

		case c == '-' && i+1 < n && s[i+1] == '-':
			tokens = append(tokens, Token{Kind: TokenComment, Value: "--"})
			i = n

		case c == '#':
			tokens = append(tokens, Token{Kind: TokenComment, Value: "#"})
			i = n

		case c == '/' && i+1 < n && s[i+1] == '*':
			// a closed inline comment separates tokens like whitespace
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				tokens = append(tokens, Token{Kind: TokenComment, Value: "/*"})
				i = n
			} else {
				i += end + 4
			}

		case c == '\'' || c == '"':
			j := i + 1
			for j < n && s[j] != c {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			if j > n {
				j = n
			}
			tokens = append(tokens, Token{Kind: TokenString, Value: s[i+1 : j]})
			i = j + 1

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(s[i+1])):
			j := i
			for j < n && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Value: s[i:j]})
			i = j

		case strings.IndexByte("=<>!|&^+-*/", c) >= 0:
			j := i + 1
			if j < n && strings.IndexByte("=<>|&", s[j]) >= 0 {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenOperator, Value: s[i:j]})
			i = j

		case strings.IndexByte("(),;", c) >= 0:
			tokens = append(tokens, Token{Kind: TokenDelimiter, Value: string(c)})
			i++

		case isWordByte(c):
			j := i
			for j < n && (isWordByte(s[j]) || isDigit(s[j])) {
				j++
			}
			word := strings.ToLower(s[i:j])
			tokens = append(tokens, Token{Kind: classifyWord(word, s[j:]), Value: word})
			i = j

		default:
			i++
		}
	}
	return tokens
}

func classifyWord(word, rest string) TokenKind {
	if sqlFunctions[word] && strings.HasPrefix(strings.TrimLeft(rest, " \t"), "(") {
		return TokenFunction
	}
	if sqlKeywords[word] {
		return TokenKeyword
	}
	return TokenIdentifier
}

func Fingerprint(tokens []Token) string {
	fp := make([]byte, len(tokens))
	for i, tok := range tokens {
		fp[i] = byte(tok.Kind)
	}
	return string(fp)
}

// Classify reports whether value, in any quoting context, starts with a
// known injection shape. It returns the fingerprint and its description.
func (t *SQLTokenizer) Classify(value string) (string, string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", "", false
	}
	for _, quote := range quoteContexts {
		fp := Fingerprint(t.Tokenize(quote + value))
		for n := len(fp); n >= 3; n-- {
			if desc, ok := sqlFingerprints[fp[:n]]; ok {
				return fp, desc, true
			}
		}
	}
	return "", "", false
}

// MatchQuery classifies each parameter value of a decoded query string
// ("?a=1&b=2") and returns the first value that matches.
func (t *SQLTokenizer) MatchQuery(query string) (value, fingerprint, desc string, ok bool) {
	for _, param := range strings.Split(strings.TrimPrefix(query, "?"), "&") {
		if _, v, found := strings.Cut(param, "="); found {
			param = v
		}
		if fp, d, hit := t.Classify(param); hit {
			return param, fp, d, true
		}
	}
	return "", "", "", false
}

// tokenFingerprintPattern stands in the hit list for a tokenizer match.
var tokenFingerprintPattern = &Pattern{
	Name:      "SQL Injection - Token Fingerprint",
	MatchType: "token_fingerprint",
	Severity:  domain.SeverityHigh,
	Fields:    []string{"path"},
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '@' || c == '$' || c >= 0x80
}
