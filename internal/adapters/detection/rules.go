package detection

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// RuleFile is the on-disk format for extra signature patterns:
//
//	rules:
//	  - name: "SQL Injection - INFORMATION_SCHEMA"
//	    family: sqli
//	    match_type: schema_probe
//	    regex: '(?i)information_schema'
//	    severity: HIGH
//	    keywords: [information_schema]
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

type Rule struct {
	Name                string          `yaml:"name"`
	Family              string          `yaml:"family"`
	MatchType           string          `yaml:"match_type"`
	Regex               string          `yaml:"regex"`
	Severity            domain.Severity `yaml:"severity"`
	Keywords            []string        `yaml:"keywords"`
	Fields              []string        `yaml:"fields"`
	RequiresQueryString bool            `yaml:"requires_query_string"`
	Disabled            bool            `yaml:"disabled"`
}

func (r Rule) compile() (Family, *Pattern, error) {
	fam, ok := ParseFamily(strings.ToLower(r.Family))
	if !ok || fam == FamilyPortScan || fam == FamilySYNFlood {
		return "", nil, fmt.Errorf("rule %q: unknown signature family %q", r.Name, r.Family)
	}
	if r.Regex == "" {
		return "", nil, fmt.Errorf("rule %q: empty regex", r.Name)
	}
	re, err := regexp.Compile(r.Regex)
	if err != nil {
		return "", nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	for _, f := range r.Fields {
		switch f {
		case "path", "user_agent", "payload":
		default:
			return "", nil, fmt.Errorf("rule %q: unknown field %q", r.Name, f)
		}
	}
	matchType := r.MatchType
	if matchType == "" {
		matchType = strings.ReplaceAll(strings.ToLower(r.Name), " ", "_")
	}
	return fam, &Pattern{
		Name:                r.Name,
		MatchType:           matchType,
		Regex:               re,
		Severity:            r.Severity,
		Keywords:            r.Keywords,
		Fields:              r.Fields,
		RequiresQueryString: r.RequiresQueryString,
	}, nil
}

// ParseRules decodes a rule file and groups the compiled patterns by
// family. Invalid rules are skipped with a warning; disabled rules are
// ignored.
func ParseRules(data []byte) (map[Family][]*Pattern, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	out := make(map[Family][]*Pattern)
	for _, r := range file.Rules {
		if r.Disabled {
			continue
		}
		fam, p, err := r.compile()
		if err != nil {
			log.Warn().Err(err).Msg("Invalid signature rule skipped")
			continue
		}
		out[fam] = append(out[fam], p)
	}
	return out, nil
}

// LoadRules reads and parses a rule file from disk.
func LoadRules(path string) (map[Family][]*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, ps := range rules {
		total += len(ps)
	}
	log.Info().Str("path", path).Int("rules", total).Msg("Signature rules loaded")
	return rules, nil
}
