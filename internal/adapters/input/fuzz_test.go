package input_test

import (
	"strings"
	"testing"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/input"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

func FuzzAdapterNormalize(f *testing.F) {
	adapter, err := input.NewAdapter(input.AdapterConfig{})
	if err != nil {
		f.Fatal(err)
	}

	seeds := []string{
		`{"kind":"connection","source_ip":"10.0.0.5","destination_port":22,"flags":"SYN"}`,
		`{"timestamp":"2024-01-01T00:00:00Z","remote_addr":"::1","request_method":"POST","request_uri":"/api/data","status":201}`,
		`{}`,
		`{"status":9999999999999999999999999999999999999999999999999999}`,
		`{"a":{"b":{"c":{"d":{"e":{"f":{"g":{"h":{"i":{"j":{}}}}}}}}}}}`,
		`{"remote_addr":"1.2.3.4","request_uri":"\xff\xfe"}`,
		`{"incomplete": `,
		`null`,
		"SRC=10.0.0.5 DST=10.0.0.1 PROTO=TCP SPT=1 DPT=22 SYN",
		"SRC= DST= PROTO= DPT=",
		"SRC=10.0.0.5 PROTO=TCP DPT=-1",
		`192.168.1.10 - - [28/Dec/2025:10:00:00 +0000] "GET / HTTP/1.1" 200 1 "-" "Mozilla/5.0"`,
		`1.1.1.1 - - [ "`,
		"2024-05-01 12:00:00,000 - IP: 10.0.0.9 - Request: /x | User-Agent: y",
		" - IP:  - Request: ",
		"IP: 300.1.1.1",
		strings.Repeat("A", 20000),
		"\x00\x00\x00",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, line string) {
		ev, err := adapter.Normalize(domain.RawRecord{Data: line})
		if err != nil {
			if !domain.IsMalformed(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			return
		}
		if !ev.SourceIP.IsValid() {
			t.Fatal("accepted event without a valid source address")
		}
		if !ev.Kind.Valid() {
			t.Fatalf("accepted event with kind %q", ev.Kind)
		}
		if len(ev.Payload) > domain.MaxPayloadLength {
			t.Fatalf("payload length %d exceeds cap", len(ev.Payload))
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("accepted event without a timestamp")
		}
	})
}
