// Package guardrail provides input-side PII detection, masking, and
// rejection classification for user messages before they reach the model.
package guardrail

import (
	"regexp"
	"sort"
	"strings"
)

// Severity classifies how a detected category is handled: low-severity
// matches are masked in place, critical matches reject the whole message.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityCritical Severity = "critical"
)

// pattern pairs a compiled regex with its category metadata.
type pattern struct {
	category    string
	regex       *regexp.Regexp
	severity    Severity
	replacement string
}

// Built-in patterns, compiled once at package init. The set is fixed;
// ordering determines match collection order but not masking precedence
// (masking is applied by descending start offset).
var patterns = []pattern{
	// Low severity: maskable
	{
		category:    "email",
		regex:       regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`),
		severity:    SeverityLow,
		replacement: "[EMAIL]",
	},
	{
		category:    "phone",
		regex:       regexp.MustCompile(`(?:\+?\d{1,3}[\s\-]?)?(?:\(?\d{2,4}\)?[\s\-]?)?\d{3,4}[\s\-]?\d{2,4}[\s\-]?\d{2,4}`),
		severity:    SeverityLow,
		replacement: "[PHONE]",
	},
	{
		category:    "credit_card",
		regex:       regexp.MustCompile(`(?:\d{4}[\s\-]?){3}\d{4}`),
		severity:    SeverityLow,
		replacement: "[CARD]",
	},
	{
		category:    "ip_address",
		regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		severity:    SeverityLow,
		replacement: "[IP]",
	},
	// Critical severity: reject the message
	{
		category:    "passport_ru",
		regex:       regexp.MustCompile(`\b\d{2}\s?\d{2}\s?\d{6}\b`),
		severity:    SeverityCritical,
		replacement: "[PASSPORT]",
	},
	{
		category:    "ssn",
		regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		severity:    SeverityCritical,
		replacement: "[SSN]",
	},
	{
		category:    "api_key",
		regex:       regexp.MustCompile(`(?i)(?:sk-[a-zA-Z0-9]{20,})|(?:ghp_[a-zA-Z0-9]{36,})|(?:AKIA[0-9A-Z]{16})|(?:-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----)`),
		severity:    SeverityCritical,
		replacement: "[SECRET_KEY]",
	},
	{
		category:    "jwt_token",
		regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{10,}\.eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}`),
		severity:    SeverityCritical,
		replacement: "[JWT]",
	},
}

// Match is a single detected PII occurrence.
type Match struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Replacement string   `json:"replacement"`
}

// Result is the outcome of scanning one text.
type Result struct {
	HasCritical     bool
	HasLow          bool
	Matches         []Match
	MaskedText      string
	RejectionReason string
}

// Detect scans text for the built-in PII patterns and returns the
// classification plus the masked text. The function is pure: identical
// input always yields an identical result.
//
// MaskedText is computed even when a critical match is present; callers
// deciding to reject simply do not consume it.
func Detect(text string) Result {
	var matches []Match
	for _, p := range patterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Category:    p.category,
				Severity:    p.severity,
				Start:       loc[0],
				End:         loc[1],
				Replacement: p.replacement,
			})
		}
	}

	if len(matches) == 0 {
		return Result{MaskedText: text}
	}

	hasCritical := false
	hasLow := false
	criticalSet := make(map[string]bool)
	for _, m := range matches {
		switch m.Severity {
		case SeverityCritical:
			hasCritical = true
			criticalSet[m.Category] = true
		case SeverityLow:
			hasLow = true
		}
	}

	reason := ""
	if hasCritical {
		categories := make([]string, 0, len(criticalSet))
		for c := range criticalSet {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		reason = "Detected critical sensitive data: " + strings.Join(categories, ", ")
	}

	return Result{
		HasCritical:     hasCritical,
		HasLow:          hasLow,
		Matches:         matches,
		MaskedText:      mask(text, matches),
		RejectionReason: reason,
	}
}

// mask splices replacements into text from the last match backwards so
// earlier offsets stay valid. Unmatched regions are preserved verbatim.
func mask(text string, matches []Match) string {
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	masked := text
	for _, m := range sorted {
		if m.Start < 0 || m.Start > len(masked) {
			continue
		}
		// Overlapping matches may extend past an already-spliced region;
		// clamp the end instead of skipping so the replacement still lands.
		end := m.End
		if end > len(masked) {
			end = len(masked)
		}
		masked = masked[:m.Start] + m.Replacement + masked[end:]
	}
	return masked
}
