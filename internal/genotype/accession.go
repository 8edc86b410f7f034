package genotype

import (
	"fmt"
	"strings"

	"crossgeno/internal/failure"
)

// PrefixRule abbreviates accessions starting with Prefix to Code followed by
// the rest of the identifier, e.g. "Paragon x Watkins 1190" -> "ParW".
type PrefixRule struct {
	Prefix string `json:"prefix"`
	Code   string `json:"code"`
}

// MatchPolicy decides what happens when several prefixes match one accession.
type MatchPolicy string

const (
	// MatchLast applies every matching rule in order; the last one wins.
	MatchLast MatchPolicy = "last_match"
	// MatchFirst stops at the first matching rule.
	MatchFirst MatchPolicy = "first_match"
	// MatchLongest uses the longest matching prefix; ties go to the earlier rule.
	MatchLongest MatchPolicy = "longest_prefix"
	// MatchErrorOnAmbiguous rejects accessions matched by more than one rule.
	MatchErrorOnAmbiguous MatchPolicy = "error_on_ambiguous"
)

// ParseMatchPolicy validates a configured policy name. Empty selects MatchLast.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(strings.TrimSpace(s)); p {
	case "":
		return MatchLast, nil
	case MatchLast, MatchFirst, MatchLongest, MatchErrorOnAmbiguous:
		return p, nil
	default:
		return "", fmt.Errorf("unknown accession match policy %q", s)
	}
}

// Normalizer maps raw accession identifiers to canonical short names.
type Normalizer struct {
	Rules  []PrefixRule
	Policy MatchPolicy
}

// Normalize returns the canonical accession name for raw. Identifiers matched
// by no rule are returned unchanged.
func (n Normalizer) Normalize(raw string) (string, error) {
	var (
		result  string
		matched []PrefixRule
	)
	for _, rule := range n.Rules {
		if !strings.HasPrefix(raw, rule.Prefix) {
			continue
		}
		matched = append(matched, rule)
	}
	if len(matched) == 0 {
		return raw, nil
	}

	switch n.Policy {
	case MatchFirst:
		result = substitute(raw, matched[0])
	case MatchLongest:
		best := matched[0]
		for _, rule := range matched[1:] {
			if len(rule.Prefix) > len(best.Prefix) {
				best = rule
			}
		}
		result = substitute(raw, best)
	case MatchErrorOnAmbiguous:
		if len(matched) > 1 {
			return "", failure.New(failure.NormalizationFailed, "accession %q matches %d prefixes", raw, len(matched))
		}
		result = substitute(raw, matched[0])
	default:
		for _, rule := range matched {
			result = substitute(raw, rule)
		}
	}
	if result == "" {
		return "", failure.New(failure.NormalizationFailed, "accession %q normalizes to an empty name", raw)
	}
	return result, nil
}

func substitute(raw string, rule PrefixRule) string {
	return rule.Code + raw[len(rule.Prefix):]
}
