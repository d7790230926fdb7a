package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordered impact level attached to findings, alerts and
// block decisions. The zero value is SeverityLow.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// Escalate raises the severity by one level, saturating at CRITICAL.
func (s Severity) Escalate() Severity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LOW", "INFO":
		return SeverityLow, nil
	case "MEDIUM", "WARNING":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Color returns the ANSI escape used by console outputs.
func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "\033[31m"
	case SeverityHigh:
		return "\033[35m"
	case SeverityMedium:
		return "\033[33m"
	case SeverityLow:
		return "\033[36m"
	default:
		return "\033[0m"
	}
}
