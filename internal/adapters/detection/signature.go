package detection

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/ahocorasick"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/sanitize"
)

const maxEvidenceSample = 128

// SignatureDetector matches one signature family against the text fields
// of an event. It emits at most one Finding per event: the highest
// severity pattern that matched, with every matched pattern listed in the
// evidence.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type SignatureDetector struct {
	family    Family
	patterns  []*Pattern
	preFilter *ahocorasick.Matcher
	tokenizer *SQLTokenizer // sqli only
}

// NewSignatureDetector builds a detector for family. When patterns is
// empty the family's built-in table is used.
func NewSignatureDetector(family Family, patterns []*Pattern) (*SignatureDetector, error) {
	if family == FamilyPortScan || family == FamilySYNFlood {
		return nil, fmt.Errorf("%s is not a signature family", family)
	}
	if _, ok := ParseFamily(string(family)); !ok {
		return nil, fmt.Errorf("unknown signature family %q", family)
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns(family)
	}
	d := &SignatureDetector{family: family, patterns: patterns}
	d.preFilter = buildPreFilter(patterns)
	if family == FamilySQLi {
		d.tokenizer = NewSQLTokenizer()
	}
	return d, nil
}

// buildPreFilter returns nil when any pattern lacks keywords, since the
// prefilter could otherwise skip a text that pattern would match.
func buildPreFilter(patterns []*Pattern) *ahocorasick.Matcher {
	var keywords []string
	seen := make(map[string]struct{})
	for _, p := range patterns {
		if len(p.Keywords) == 0 {
			return nil
		}
		for _, k := range p.Keywords {
			k = strings.ToLower(k)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keywords = append(keywords, k)
		}
	}
	return ahocorasick.New(keywords)
}

func (d *SignatureDetector) ID() string                  { return string(d.family) }
func (d *SignatureDetector) Signature() domain.Signature { return d.family.Signature() }
func (d *SignatureDetector) PatternCount() int           { return len(d.patterns) }

type patternHit struct {
	pattern     *Pattern
	field       string
	sample      string
	fingerprint string
}

func (d *SignatureDetector) Inspect(ctx context.Context, ev *domain.Event) []domain.Finding {
	if ev == nil || !ev.SourceIP.IsValid() {
		return nil
	}
	fields := ev.InspectableText()
	if len(fields) == 0 {
		return nil
	}

	var hits []patternHit
	for _, field := range fieldOrder {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		hits = d.matchField(field, raw, hits)
	}
	if len(hits) == 0 {
		return nil
	}

	best := hits[0]
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.pattern.Severity > best.pattern.Severity {
			best = h
		}
		names = append(names, h.pattern.MatchType)
	}

	evidence := map[string]string{
		"pattern":  best.pattern.Name,
		"field":    best.field,
		"sample":   sanitize.Terminal(best.sample, maxEvidenceSample),
		"matched":  strings.Join(names, ","),
		"patterns": strconv.Itoa(len(hits)),
	}
	for _, h := range hits {
		if h.fingerprint != "" {
			evidence["fingerprint"] = h.fingerprint
		}
	}
	return []domain.Finding{
		domain.NewFinding(d.ID(), ev, d.Signature(), best.pattern.MatchType, best.pattern.Severity, evidence),
	}
}

var fieldOrder = []string{"path", "user_agent", "payload"}

// matchField appends one hit per pattern that matches text. A pattern
// already hit on an earlier field is not repeated. Query string values are
// also fingerprinted when the detector has a tokenizer; the prefilter does
// not gate that check.
func (d *SignatureDetector) matchField(field, raw string, hits []patternHit) []patternHit {
	isPath := field == "path"
	hasQuery := isPath && strings.Contains(raw, "?")
	text := normalizeForDetection(raw, hasQuery)

	query := ""
	if hasQuery {
		if idx := strings.IndexByte(text, '?'); idx >= 0 {
			query = text[idx:]
		}
	}

	if d.preFilter == nil || d.preFilter.Match(text) {
		hits = d.matchPatterns(field, text, query, hits)
	}
	if d.tokenizer != nil && query != "" && !alreadyHit(hits, tokenFingerprintPattern) {
		if value, fp, _, ok := d.tokenizer.MatchQuery(query); ok {
			hits = append(hits, patternHit{pattern: tokenFingerprintPattern, field: field, sample: value, fingerprint: fp})
		}
	}
	return hits
}

func (d *SignatureDetector) matchPatterns(field, text, query string, hits []patternHit) []patternHit {
	isPath := field == "path"
	for _, p := range d.patterns {
		if !p.appliesTo(field) || alreadyHit(hits, p) {
			continue
		}
		target := text
		if p.RequiresQueryString && isPath {
			if query == "" {
				continue
			}
			target = query
		}
		if m := p.Regex.FindString(target); m != "" {
			hits = append(hits, patternHit{pattern: p, field: field, sample: m})
		}
	}
	return hits
}

func alreadyHit(hits []patternHit, p *Pattern) bool {
	for _, h := range hits {
		if h.pattern == p {
			return true
		}
	}
	return false
}

// AddPattern appends a compiled rule. It is only safe before the detector
// is shared with the pipeline.
func (d *SignatureDetector) AddPattern(name, matchType, expr string, sev domain.Severity, keywords []string) error {
	regex, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	d.patterns = append(d.patterns, &Pattern{
		Name:      name,
		MatchType: matchType,
		Regex:     regex,
		Severity:  sev,
		Keywords:  keywords,
	})
	d.preFilter = buildPreFilter(d.patterns)
	return nil
}
