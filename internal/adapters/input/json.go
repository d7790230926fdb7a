package input

import (
	"encoding/json"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// JSONRecord is the union of the native event record and the nginx JSON
// access log fields the parser understands.
type JSONRecord struct {
	Kind            string      `json:"kind"`
	SourceIP        string      `json:"source_ip"`
	DestinationIP   string      `json:"destination_ip"`
	DestinationPort int         `json:"destination_port"`
	Protocol        string      `json:"protocol"`
	Flags           string      `json:"flags"`
	Timestamp       interface{} `json:"timestamp"`
	Payload         string      `json:"payload"`
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	UserAgent       string      `json:"user_agent"`
	StatusCode      int         `json:"status_code"`

	RemoteAddr     string `json:"remote_addr"`
	RequestMethod  string `json:"request_method"`
	RequestURI     string `json:"request_uri"`
	HTTPUserAgent  string `json:"http_user_agent"`
	RequestBody    string `json:"request_body,omitempty"`
	ServerProtocol string `json:"server_protocol,omitempty"`
	Status         int    `json:"status"`
}

type JSONParser struct {
	validator *SchemaValidator
}

// NewJSONParser builds a parser that validates every record against the
// embedded event schema.
func NewJSONParser() (*JSONParser, error) {
	v, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &JSONParser{validator: v}, nil
}

func (p *JSONParser) Parse(line string) (*domain.Event, error) {
	if len(line) < 2 || line[0] != '{' {
		return nil, domain.NewMalformedInput("not a json object", line)
	}
	if err := p.validator.Validate(line); err != nil {
		log.Debug().Err(err).Msg("JSON record failed schema validation")
		return nil, domain.NewMalformedInput("schema validation failed", line)
	}

	var rec JSONRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, domain.NewMalformedInput("invalid json", line)
	}

	src := rec.SourceIP
	if src == "" {
		src = rec.RemoteAddr
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(src))
	if err != nil {
		return nil, domain.NewMalformedInput("invalid source address", line)
	}

	ev := &domain.Event{
		SourceIP:  addr.Unmap(),
		Timestamp: parseJSONTimestamp(rec.Timestamp),
		Protocol:  rec.Protocol,
		Flags:     strings.ToUpper(rec.Flags),
	}
	if rec.DestinationIP != "" {
		if dst, err := netip.ParseAddr(rec.DestinationIP); err == nil {
			ev.DestinationIP = dst.Unmap()
		}
	}
	ev.DestinationPort = uint16(rec.DestinationPort)

	kind := domain.EventKind(rec.Kind)
	if rec.Kind == "" {
		kind = inferJSONKind(&rec)
	}
	ev.Kind = kind

	switch kind {
	case domain.EventKindConnection:
		if ev.Protocol == "" {
			ev.Protocol = "TCP"
		}
		ev.Protocol = strings.ToUpper(ev.Protocol)
		ev.SetPayload(rec.Payload)
	case domain.EventKindHTTPRequest:
		ev.Method = firstNonEmpty(rec.Method, rec.RequestMethod)
		ev.Path = firstNonEmpty(rec.Path, rec.RequestURI)
		ev.UserAgent = firstNonEmpty(rec.UserAgent, rec.HTTPUserAgent)
		ev.StatusCode = rec.StatusCode
		if ev.StatusCode == 0 {
			ev.StatusCode = rec.Status
		}
		if ev.Protocol == "" {
			ev.Protocol = firstNonEmpty(rec.ServerProtocol, "HTTP")
		}
		ev.SetPayload(firstNonEmpty(rec.Payload, rec.RequestBody))
		if ev.Path == "" && ev.Payload == "" {
			return nil, domain.NewMalformedInput("http request without path", line)
		}
	default:
		ev.SetPayload(rec.Payload)
	}
	return ev, nil
}

func inferJSONKind(rec *JSONRecord) domain.EventKind {
	switch {
	case rec.RequestURI != "" || rec.Path != "" || rec.RemoteAddr != "":
		return domain.EventKindHTTPRequest
	case rec.DestinationPort != 0:
		return domain.EventKindConnection
	}
	return domain.EventKindLogLine
}

// parseJSONTimestamp accepts RFC3339 strings and unix seconds, either as a
// number or a numeric string. Anything else yields the zero time.
func parseJSONTimestamp(v interface{}) time.Time {
	switch ts := v.(type) {
	case string:
		if ts == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t
		}
		if f, err := strconv.ParseFloat(ts, 64); err == nil {
			return unixFloat(f)
		}
	case float64:
		return unixFloat(ts)
	}
	return time.Time{}
}

func unixFloat(f float64) time.Time {
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) || f > 1e11 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *JSONParser) Format() string {
	return "json"
}

func (p *JSONParser) Validate(line string) bool {
	return len(line) > 1 && line[0] == '{' && line[len(line)-1] == '}'
}
