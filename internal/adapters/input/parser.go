package input

import (
	"errors"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var (
	ErrInvalidLogFormat = errors.New("invalid log format")
	clfTimeLayout       = "02/Jan/2006:15:04:05 -0700"
	dashboardTimeLayout = "2006-01-02 15:04:05,000"
)

// LineParser turns one record line into an Event. Parsers leave Timestamp
// zero when the line carries none; the Adapter fills it in.
type LineParser interface {
	Parse(line string) (*domain.Event, error)
	Format() string
	// Validate is a cheap structural check used for auto-detection.
	Validate(line string) bool
}

// CombinedLogParser reads Apache/nginx combined access log lines.
type CombinedLogParser struct{}

func NewCombinedLogParser() *CombinedLogParser {
	return &CombinedLogParser{}
}

func (p *CombinedLogParser) Parse(line string) (*domain.Event, error) {
	pos := 0
	lineLen := len(line)

	ipEnd := skipUntil(line, pos, ' ')
	if ipEnd == -1 || ipEnd == pos {
		return nil, domain.NewMalformedInput("missing source address", line)
	}
	addr, err := netip.ParseAddr(line[pos:ipEnd])
	if err != nil {
		return nil, domain.NewMalformedInput("invalid source address", line)
	}
	ev := &domain.Event{
		SourceIP: addr.Unmap(),
		Kind:     domain.EventKindHTTPRequest,
		Protocol: "HTTP",
	}
	pos = ipEnd + 1

	// ident and authuser
	for i := 0; i < 2; i++ {
		end := skipUntil(line, pos, ' ')
		if end == -1 {
			return nil, domain.NewMalformedInput("truncated access log line", line)
		}
		pos = end + 1
	}

	if pos >= lineLen || line[pos] != '[' {
		return nil, domain.NewMalformedInput("missing timestamp", line)
	}
	pos++
	tsEnd := skipUntil(line, pos, ']')
	if tsEnd == -1 {
		return nil, domain.NewMalformedInput("unterminated timestamp", line)
	}
	ts, err := time.Parse(clfTimeLayout, line[pos:tsEnd])
	if err != nil {
		return nil, domain.NewMalformedInput("invalid timestamp", line)
	}
	ev.Timestamp = ts
	pos = tsEnd + 2

	if pos >= lineLen || line[pos] != '"' {
		return nil, domain.NewMalformedInput("missing request", line)
	}
	pos++
	reqEnd := findClosingQuote(line, pos)
	if reqEnd == -1 {
		return nil, domain.NewMalformedInput("unterminated request", line)
	}
	request := line[pos:reqEnd]
	pos = reqEnd + 2

	method, path, proto, err := parseRequest(request)
	if err != nil {
		return nil, domain.NewMalformedInput("invalid request line", line)
	}
	ev.Method = strings.Clone(method)
	ev.Path = strings.Clone(path)
	if proto != "" {
		ev.Protocol = strings.Clone(proto)
	}

	if pos >= lineLen {
		return nil, domain.NewMalformedInput("missing status", line)
	}
	statusEnd := skipUntil(line, pos, ' ')
	if statusEnd == -1 {
		statusEnd = lineLen
	}
	status, err := strconv.Atoi(line[pos:statusEnd])
	if err != nil || status < 100 || status > 599 {
		return nil, domain.NewMalformedInput("invalid status code", line)
	}
	ev.StatusCode = status
	pos = statusEnd + 1

	// bytes sent is not used downstream
	if pos < lineLen {
		if end := skipUntil(line, pos, ' '); end != -1 {
			pos = end + 1
		} else {
			pos = lineLen
		}
	}

	if pos < lineLen && line[pos] == '"' {
		pos++
		if refEnd := findClosingQuote(line, pos); refEnd != -1 {
			pos = refEnd + 2
		}
	}

	if pos < lineLen && line[pos] == '"' {
		pos++
		if uaEnd := findClosingQuote(line, pos); uaEnd != -1 {
			ev.UserAgent = strings.Clone(unescapeQuotes(line[pos:uaEnd]))
		}
	}

	return ev, nil
}

func (p *CombinedLogParser) Format() string {
	return "combined"
}

func (p *CombinedLogParser) Validate(line string) bool {
	return len(line) > 30 &&
		containsByte(line, '[') &&
		containsByte(line, ']') &&
		containsByte(line, '"')
}

// DashboardParser reads the access log written by the monitored web
// dashboard:
//
//	2024-05-01 12:00:00,123 - IP: 10.0.0.9 - Request: /login?u=x | User-Agent: curl/8.4.0
type DashboardParser struct {
	Location *time.Location
}

func NewDashboardParser() *DashboardParser {
	return &DashboardParser{Location: time.Local}
}

const (
	dashboardIPMarker      = " - IP: "
	dashboardRequestMarker = " - Request: "
	dashboardUAMarker      = " | User-Agent: "
)

func (p *DashboardParser) Parse(line string) (*domain.Event, error) {
	ipAt := strings.Index(line, dashboardIPMarker)
	if ipAt < 0 {
		return nil, domain.NewMalformedInput("missing IP marker", line)
	}
	rest := line[ipAt+len(dashboardIPMarker):]
	reqAt := strings.Index(rest, dashboardRequestMarker)
	if reqAt < 0 {
		return nil, domain.NewMalformedInput("missing request marker", line)
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(rest[:reqAt]))
	if err != nil {
		return nil, domain.NewMalformedInput("invalid source address", line)
	}

	ev := &domain.Event{
		SourceIP: addr.Unmap(),
		Kind:     domain.EventKindHTTPRequest,
		Protocol: "HTTP",
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	if ts, err := time.ParseInLocation(dashboardTimeLayout, strings.TrimSpace(line[:ipAt]), loc); err == nil {
		ev.Timestamp = ts
	}

	request := rest[reqAt+len(dashboardRequestMarker):]
	if uaAt := strings.LastIndex(request, dashboardUAMarker); uaAt >= 0 {
		ev.UserAgent = strings.Clone(request[uaAt+len(dashboardUAMarker):])
		request = request[:uaAt]
	}
	ev.Path = strings.Clone(strings.TrimSpace(request))
	if ev.Path == "" {
		return nil, domain.NewMalformedInput("empty request path", line)
	}
	return ev, nil
}

func (p *DashboardParser) Format() string {
	return "dashboard"
}

func (p *DashboardParser) Validate(line string) bool {
	return strings.Contains(line, dashboardIPMarker) && strings.Contains(line, dashboardRequestMarker)
}

var ipMarkerRegex = regexp.MustCompile(`IP:\s*(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)

// GenericLineParser accepts any line that names a source address, either
// as "IP: a.b.c.d" or as the first token. The whole line becomes the
// payload of a log_line event.
type GenericLineParser struct{}

func NewGenericLineParser() *GenericLineParser {
	return &GenericLineParser{}
}

func (p *GenericLineParser) Parse(line string) (*domain.Event, error) {
	addr, ok := genericSourceAddr(line)
	if !ok {
		return nil, domain.NewMalformedInput("no source address", line)
	}
	ev := &domain.Event{
		SourceIP: addr,
		Kind:     domain.EventKindLogLine,
	}
	ev.SetPayload(strings.Clone(line))
	return ev, nil
}

func genericSourceAddr(line string) (netip.Addr, bool) {
	if m := ipMarkerRegex.FindStringSubmatch(line); m != nil {
		if addr, err := netip.ParseAddr(m[1]); err == nil {
			return addr, true
		}
	}
	first := line
	if end := strings.IndexAny(line, " \t"); end >= 0 {
		first = line[:end]
	}
	addr, err := netip.ParseAddr(strings.TrimRight(first, ",;:"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func (p *GenericLineParser) Format() string {
	return "generic"
}

func (p *GenericLineParser) Validate(line string) bool {
	_, ok := genericSourceAddr(line)
	return ok
}

func findClosingQuote(s string, start int) int {
	i := start
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == '"' {
			return i
		}
		i++
	}
	return -1
}

func skipUntil(s string, pos int, char byte) int {
	for i := pos; i < len(s); i++ {
		if s[i] == char {
			return i
		}
	}
	return -1
}

func parseRequest(s string) (method, path, proto string, err error) {
	firstSpace := skipUntil(s, 0, ' ')
	if firstSpace == -1 || firstSpace == 0 {
		return "", "", "", ErrInvalidLogFormat
	}
	method = s[:firstSpace]

	lastSpace := -1
	for i := len(s) - 1; i > firstSpace; i-- {
		if s[i] == ' ' {
			lastSpace = i
			break
		}
	}

	if lastSpace == -1 || lastSpace <= firstSpace+1 || !strings.HasPrefix(s[lastSpace+1:], "HTTP/") {
		path = s[firstSpace+1:]
	} else {
		path = s[firstSpace+1 : lastSpace]
		proto = s[lastSpace+1:]
	}

	if len(method) < 3 || len(method) > 10 || path == "" {
		return "", "", "", ErrInvalidLogFormat
	}

	return method, path, proto, nil
}

func unescapeQuotes(s string) string {
	if !strings.Contains(s, `\"`) {
		return s
	}
	return strings.ReplaceAll(s, `\"`, `"`)
}

func containsByte(s string, c byte) bool {
	return strings.IndexByte(s, c) >= 0
}
