package nlu

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultRuleConfidence = 0.9

// Rule maps a phrase pattern to a capability. Patterns are matched against
// the lower-cased, accent-stripped utterance; named groups become arguments
// and keep the original spelling of the utterance.
type Rule struct {
	// Capability is the capability name the rule selects.
	Capability string
	// Pattern is a regular expression over folded text.
	Pattern string
	// Confidence is reported on match; zero means 0.9.
	Confidence float64
	// Arguments are fixed arguments added on match.
	Arguments map[string]any
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Rules is the local, deterministic interpreter. The first matching rule in
// declaration order wins.
type Rules struct {
	rules []compiledRule
}

// NewRules compiles the rule set.
func NewRules(rules []Rule) (*Rules, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.Capability) == "" {
			return nil, fmt.Errorf("rule %d: capability is required", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): invalid pattern: %w", i, rule.Capability, err)
		}
		if rule.Confidence <= 0 {
			rule.Confidence = defaultRuleConfidence
		}
		compiled = append(compiled, compiledRule{Rule: rule, re: re})
	}
	return &Rules{rules: compiled}, nil
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	return len(r.rules)
}

// Interpret implements Interpreter.
func (r *Rules) Interpret(_ context.Context, rawText string) (Interpretation, error) {
	folded, offsets := fold(rawText)
	for _, rule := range r.rules {
		loc := rule.re.FindStringSubmatchIndex(folded)
		if loc == nil {
			continue
		}
		args := make(map[string]any, len(rule.Arguments))
		for key, value := range rule.Arguments {
			args[key] = value
		}
		for i, name := range rule.re.SubexpNames() {
			if name == "" || loc[2*i] < 0 {
				continue
			}
			value := strings.TrimSpace(rawText[offsets[loc[2*i]]:offsets[loc[2*i+1]]])
			if value != "" {
				args[name] = value
			}
		}
		return Interpretation{
			RawText:    rawText,
			Candidate:  rule.Capability,
			Arguments:  args,
			Confidence: rule.Confidence,
		}, nil
	}
	return Interpretation{RawText: rawText, Arguments: map[string]any{}}, nil
}

// fold lower-cases text and strips diacritics rune by rune. offsets maps every
// byte offset of the folded string (plus its end) to the matching offset in text.
func fold(text string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(text)+1)
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	for i, r := range text {
		piece := string(r)
		if r >= utf8.RuneSelf {
			if out, _, err := transform.String(strip, piece); err == nil && out != "" {
				piece = out
			}
		}
		piece = strings.ToLower(piece)
		for j := 0; j < len(piece); j++ {
			offsets = append(offsets, i)
		}
		b.WriteString(piece)
	}
	offsets = append(offsets, len(text))
	return b.String(), offsets
}

// Fold exposes the folding applied before rule matching.
func Fold(text string) string {
	folded, _ := fold(text)
	return folded
}
