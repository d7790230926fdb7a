// Package ahocorasick implements a byte-oriented Aho-Corasick automaton used
// as a keyword prefilter in front of signature regexes.
//
// Patterns and input are folded to ASCII lower case, which is enough for
// attack keywords (SQL verbs, HTML tags, shell separators). Multi-byte
// UTF-8 input is scanned byte by byte and simply never matches an ASCII
// keyword by accident.
//
// Thread Safety: a Matcher is immutable after New returns and can be used
// from any number of goroutines.
package ahocorasick

type state struct {
	next   map[byte]int32
	fail   int32
	output []int
}

// Matcher finds every keyword occurring in a text in a single pass.
type Matcher struct {
	states   []state
	patterns []string
}

// New builds the automaton for patterns. Empty patterns are ignored.
func New(patterns []string) *Matcher {
	m := &Matcher{
		states:   []state{{next: make(map[byte]int32)}},
		patterns: patterns,
	}
	for i, p := range patterns {
		if p == "" {
			continue
		}
		m.insert(p, i)
	}
	m.link()
	return m
}

func (m *Matcher) insert(pattern string, index int) {
	cur := int32(0)
	for i := 0; i < len(pattern); i++ {
		b := fold(pattern[i])
		nxt, ok := m.states[cur].next[b]
		if !ok {
			m.states = append(m.states, state{next: make(map[byte]int32)})
			nxt = int32(len(m.states) - 1)
			m.states[cur].next[b] = nxt
		}
		cur = nxt
	}
	m.states[cur].output = append(m.states[cur].output, index)
}

// link computes failure transitions breadth first and merges outputs so
// that each state reports every keyword ending at it.
func (m *Matcher) link() {
	queue := make([]int32, 0, len(m.states))
	for _, child := range m.states[0].next {
		m.states[child].fail = 0
		queue = append(queue, child)
	}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for b, child := range m.states[cur].next {
			queue = append(queue, child)
			f := m.states[cur].fail
			for {
				if nxt, ok := m.states[f].next[b]; ok && nxt != child {
					m.states[child].fail = nxt
					break
				}
				if f == 0 {
					m.states[child].fail = 0
					break
				}
				f = m.states[f].fail
			}
			fo := m.states[m.states[child].fail].output
			if len(fo) > 0 {
				m.states[child].output = append(m.states[child].output, fo...)
			}
		}
	}
}

func (m *Matcher) step(cur int32, b byte) int32 {
	for {
		if nxt, ok := m.states[cur].next[b]; ok {
			return nxt
		}
		if cur == 0 {
			return 0
		}
		cur = m.states[cur].fail
	}
}

// Scan walks text and calls fn with the index of each keyword occurrence.
// Scanning stops when fn returns false.
func (m *Matcher) Scan(text string, fn func(pattern int) bool) {
	if len(m.states) == 1 {
		return
	}
	cur := int32(0)
	for i := 0; i < len(text); i++ {
		cur = m.step(cur, fold(text[i]))
		for _, idx := range m.states[cur].output {
			if !fn(idx) {
				return
			}
		}
	}
}

// Match reports whether any keyword occurs in text.
func (m *Matcher) Match(text string) bool {
	found := false
	m.Scan(text, func(int) bool {
		found = true
		return false
	})
	return found
}

// MatchAll returns the distinct keyword indices found in text, in order
// of first occurrence.
func (m *Matcher) MatchAll(text string) []int {
	var out []int
	var seen map[int]struct{}
	m.Scan(text, func(idx int) bool {
		if seen == nil {
			seen = make(map[int]struct{}, 4)
		}
		if _, dup := seen[idx]; !dup {
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
		return true
	})
	return out
}

func (m *Matcher) PatternCount() int {
	return len(m.patterns)
}

func (m *Matcher) Pattern(i int) string {
	if i < 0 || i >= len(m.patterns) {
		return ""
	}
	return m.patterns[i]
}

func fold(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
