// Package classifier scores prompt complexity and detects specialist
// domains with cheap lexical heuristics. Classification is pure and
// deterministic so the router can be tested without fixtures.
package classifier

import (
	"regexp"
	"unicode/utf8"
)

// Complexity is bimodal. Prompts are either trivially simple or
// assumed hard; the router's thresholds do the rest.
const (
	LowComplexity  = 0.1
	HighComplexity = 0.9

	// LongPromptLimit is the character count above which a prompt is
	// considered complex regardless of wording.
	LongPromptLimit = 2000
)

// Domain labels produced by Classify.
const (
	DomainSafetyCritical = "safety_critical"
	DomainMedical        = "medical"
)

// Classification is the routing signal extracted from a prompt. Domain
// is empty when no specialist domain was detected.
type Classification struct {
	Complexity float64
	Domain     string
}

// Keywords match whole words only, so "analyzed" or "breathalyze" do
// not trigger. \b treats underscores as word characters, which keeps
// identifiers like "analyze_data" from matching too.
var complexityPattern = regexp.MustCompile(`(?i)\b(analyze|critique|reason)\b`)

// domainRules are ordered by priority: the first match wins, so a
// prompt that is both safety-critical and medical routes as
// safety-critical.
var domainRules = []struct {
	domain  string
	pattern *regexp.Regexp
}{
	{DomainSafetyCritical, regexp.MustCompile(`(?i)\b(hazard|emergency|danger|immediate|adverse event)\b`)},
	{DomainMedical, regexp.MustCompile(`(?i)\b(clinical|dose)\b`)},
}

// Classify scores one prompt. The empty prompt classifies as simple
// with no domain.
func Classify(text string) Classification {
	c := Classification{Complexity: LowComplexity}

	if utf8.RuneCountInString(text) > LongPromptLimit || complexityPattern.MatchString(text) {
		c.Complexity = HighComplexity
	}

	for _, rule := range domainRules {
		if rule.pattern.MatchString(text) {
			c.Domain = rule.domain
			break
		}
	}
	return c
}
