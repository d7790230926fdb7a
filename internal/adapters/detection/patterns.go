package detection

import (
	"regexp"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// Pattern is one entry of a signature family's table.
type Pattern struct {
	Name                string
	MatchType           string
	Regex               *regexp.Regexp
	Severity            domain.Severity
	Keywords            []string // prefilter keywords; empty disables the family prefilter
	Fields              []string // restrict to these event fields; empty means all
	RequiresQueryString bool     // on the path field, only the query string is matched
}

func (p *Pattern) appliesTo(field string) bool {
	if len(p.Fields) == 0 {
		return true
	}
	for _, f := range p.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Family is the fixed set of signature families.
type Family string

const (
	FamilySQLi         Family = "sqli"
	FamilyXSS          Family = "xss"
	FamilyCmdInjection Family = "cmd_injection"
	FamilyDirTraversal Family = "dir_traversal"
	FamilyRecon        Family = "recon"
	FamilyPortScan     Family = "port_scan"
	FamilySYNFlood     Family = "syn_flood"
)

var familySignatures = map[Family]domain.Signature{
	FamilySQLi:         domain.SignatureSQLInjection,
	FamilyXSS:          domain.SignatureXSS,
	FamilyCmdInjection: domain.SignatureCommandInjection,
	FamilyDirTraversal: domain.SignatureDirTraversal,
	FamilyRecon:        domain.SignatureRecon,
	FamilyPortScan:     domain.SignaturePortScan,
	FamilySYNFlood:     domain.SignatureSYNFlood,
}

// AllFamilies lists every detector kind in pipeline order.
func AllFamilies() []Family {
	return []Family{FamilySQLi, FamilyXSS, FamilyCmdInjection, FamilyDirTraversal, FamilyRecon, FamilyPortScan, FamilySYNFlood}
}

func ParseFamily(s string) (Family, bool) {
	f := Family(s)
	_, ok := familySignatures[f]
	return f, ok
}

func (f Family) Signature() domain.Signature {
	return familySignatures[f]
}

// DefaultPatterns returns the built-in table for a signature family.
func DefaultPatterns(f Family) []*Pattern {
	switch f {
	case FamilySQLi:
		return sqliPatterns()
	case FamilyXSS:
		return xssPatterns()
	case FamilyCmdInjection:
		return cmdPatterns()
	case FamilyDirTraversal:
		return traversalPatterns()
	case FamilyRecon:
		return reconPatterns()
	}
	return nil
}

func sqliPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:                "SQL Injection - Stacked Query",
			MatchType:           "stacked_query",
			Regex:               regexp.MustCompile(`(?i)(;\s*(drop|truncate|alter)\s+table|;\s*delete\s+from|\bdrop\s+table\b)`),
			Severity:            domain.SeverityCritical,
			Keywords:            []string{"drop", "truncate", "alter", "delete"},
			RequiresQueryString: true,
		},
		{
			Name:                "SQL Injection - UNION",
			MatchType:           "union_based",
			Regex:               regexp.MustCompile(`(?i)union\s+(all\s+)?select`),
			Severity:            domain.SeverityHigh,
			Keywords:            []string{"union"},
			RequiresQueryString: true,
		},
		{
			Name:                "SQL Injection - Tautology",
			MatchType:           "tautology",
			Regex:               regexp.MustCompile(`(?i)(\bor\b\s+'?\d+'?\s*=\s*'?\d+|\bor\b\s*'[^']*'\s*=\s*'[^']*'|\bor\b\s+true\b)`),
			Severity:            domain.SeverityHigh,
			Keywords:            []string{"or"},
			RequiresQueryString: true,
		},
		{
			Name:                "SQL Injection - Time Based",
			MatchType:           "time_based",
			Regex:               regexp.MustCompile(`(?i)(sleep\s*\(\s*\d+|benchmark\s*\(|waitfor\s+delay|pg_sleep\s*\()`),
			Severity:            domain.SeverityHigh,
			Keywords:            []string{"sleep", "benchmark", "waitfor"},
			RequiresQueryString: true,
		},
		{
			Name:      "SQL Injection - Path Parameter Quote",
			MatchType: "path_quote",
			Regex:     regexp.MustCompile(`(?i)/[^?]*'\s*(or|and|union|select)\b`),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{"'"},
			Fields:    []string{"path"},
		},
		{
			Name:                "SQL Injection - Comment",
			MatchType:           "comment",
			Regex:               regexp.MustCompile(`(?i)('|")\s*(--|#)|(\d|\))\s*(--|#)\s*$|/\*.*\*/`),
			Severity:            domain.SeverityMedium,
			Keywords:            []string{"--", "#", "/*"},
			RequiresQueryString: true,
		},
	}
}

func xssPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:      "XSS - Script Tag",
			MatchType: "script_tag",
			Regex:     regexp.MustCompile(`(?i)(<script[^>]*>|</script>)`),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{"<script", "</script"},
		},
		{
			Name:      "XSS - Embedded Frame",
			MatchType: "embedded_frame",
			Regex:     regexp.MustCompile(`(?i)<(iframe|object|embed|svg)\b`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"<iframe", "<object", "<embed", "<svg"},
		},
		{
			Name:      "XSS - Event Handler",
			MatchType: "event_handler",
			Regex:     regexp.MustCompile(`(?i)\bon(error|load|click|mouse\w*|key\w*|focus|blur|change|submit)\s*=`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"onerror", "onload", "onclick", "onmouse", "onkey", "onfocus", "onblur", "onchange", "onsubmit"},
		},
		{
			Name:      "XSS - JavaScript Protocol",
			MatchType: "js_protocol",
			Regex:     regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"javascript", "vbscript"},
		},
		{
			Name:      "XSS - DOM Sink",
			MatchType: "dom_sink",
			Regex:     regexp.MustCompile(`(?i)(alert\s*\(|eval\s*\(|document\.cookie|document\.write\s*\()`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"alert", "eval", "document."},
		},
	}
}

// commandChainingExpr needs the command word to be followed by end of
// text, a shell metacharacter or an argument. "; id=42" is not a command.
const commandChainingExpr = `(?i)(;|\|\|?|&&)\s*(cat|ls|id|whoami|uname|pwd|curl|wget|nc|netcat|bash|sh|python[23]?|perl|ruby|php|rm|chmod)` +
	`(\s*$|\s*[;|&>)\x60]|\s+(-|/|\./|~|\$|'|"|\w+://|\d+\.\d+))`

func cmdPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:      "Command Injection - Shellshock",
			MatchType: "shellshock",
			Regex:     regexp.MustCompile(`\(\)\s*\{\s*:?\s*;?\s*\}`),
			Severity:  domain.SeverityCritical,
			Keywords:  []string{"()"},
		},
		{
			Name:      "Command Injection - JNDI Lookup",
			MatchType: "jndi_lookup",
			Regex:     regexp.MustCompile(`(?i)\$\{jndi:(ldap|rmi|dns|iiop|corba|nds|http)s?://`),
			Severity:  domain.SeverityCritical,
			Keywords:  []string{"jndi"},
		},
		{
			Name:      "Command Injection - Reverse Shell",
			MatchType: "reverse_shell",
			Regex:     regexp.MustCompile(`(?i)(\b(nc|ncat|netcat)\s+(-\w+\s+)*-e\s|/dev/tcp/\d)`),
			Severity:  domain.SeverityCritical,
			Keywords:  []string{"nc ", "ncat", "netcat", "/dev/tcp/"},
		},
		{
			Name:      "Command Injection - Command Chaining",
			MatchType: "command_chaining",
			Regex:     regexp.MustCompile(commandChainingExpr),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{";", "|", "&&"},
		},
		{
			Name:      "Command Injection - Subshell",
			MatchType: "subshell",
			Regex:     regexp.MustCompile("`[^`]+`|\\$\\([^)]+\\)"),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{"`", "$("},
		},
	}
}

func traversalPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:      "Directory Traversal - Sensitive File",
			MatchType: "sensitive_file",
			Regex:     regexp.MustCompile(`(?i)(/etc/(passwd|shadow|hosts|group)\b|c:\\windows|boot\.ini|win\.ini|/proc/self/environ)`),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{"/etc/", "windows", "boot.ini", "win.ini", "/proc/"},
		},
		{
			Name:      "Directory Traversal - Stream Wrapper",
			MatchType: "stream_wrapper",
			Regex:     regexp.MustCompile(`(?i)(php|file|data|expect|zip|phar)://`),
			Severity:  domain.SeverityHigh,
			Keywords:  []string{"://"},
			Fields:    []string{"path", "payload"},
		},
		{
			Name:      "Directory Traversal - Dot-Dot-Slash",
			MatchType: "dot_dot_slash",
			Regex:     regexp.MustCompile(`(\.\./){2,}|(\.\.\\){2,}|/\.\./`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"../", "..\\"},
		},
	}
}

func reconPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:      "Recon - Exposed Configuration",
			MatchType: "config_exposure",
			Regex:     regexp.MustCompile(`(?i)(/\.(env|git|svn|htaccess|htpasswd|ds_store)\b|wp-config\.php|/config\.php)`),
			Severity:  domain.SeverityMedium,
			Keywords:  []string{"/.", "config.php"},
			Fields:    []string{"path"},
		},
		{
			Name:      "Recon - Scanner User-Agent",
			MatchType: "scanner_agent",
			Regex:     regexp.MustCompile(`(?i)\b(nmap|sqlmap|nikto|masscan|zgrab|gobuster|dirbuster|wpscan|nuclei|acunetix|hydra|wfuzz)\b`),
			Severity:  domain.SeverityLow,
			Keywords:  []string{"nmap", "sqlmap", "nikto", "masscan", "zgrab", "gobuster", "dirbuster", "wpscan", "nuclei", "acunetix", "hydra", "wfuzz"},
			Fields:    []string{"user_agent", "payload"},
		},
		{
			Name:      "Recon - Admin Probe",
			MatchType: "admin_probe",
			Regex:     regexp.MustCompile(`(?i)/(wp-admin|wp-login\.php|phpmyadmin|administrator|manager/html|cgi-bin/)`),
			Severity:  domain.SeverityLow,
			Keywords:  []string{"wp-", "phpmyadmin", "administrator", "manager", "cgi-bin"},
			Fields:    []string{"path"},
		},
	}
}
