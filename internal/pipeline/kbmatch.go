package pipeline

import (
	"regexp"
	"strings"
)

// Key-behavior canonicalization. Models paraphrase the dictionary's key
// behavior text, prepend numbering ("1. Listens actively"), or change case.
// Evidence rows must carry the dictionary's official wording so the UI can
// group them, so every returned string is matched back tolerantly.
//
// Tie-break rules: an exact normalized match always wins; otherwise
// containment in either direction is accepted, and among containment
// candidates the longest official text wins.

var leadingNumbering = regexp.MustCompile(`^[\s\d.)\](•*–-]+`)

// normalizeKB lowers case, strips leading numbering/bullets, and collapses
// internal whitespace.
func normalizeKB(s string) string {
	s = leadingNumbering.ReplaceAllString(s, "")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// canonicalizeKB maps a model-returned key-behavior string onto the official
// dictionary text. Returns the official text and true on a match, or the
// raw input and false when nothing matches.
func canonicalizeKB(raw string, official []string) (string, bool) {
	norm := normalizeKB(raw)
	if norm == "" {
		return raw, false
	}

	for _, o := range official {
		if normalizeKB(o) == norm {
			return o, true
		}
	}

	best := ""
	for _, o := range official {
		no := normalizeKB(o)
		if no == "" {
			continue
		}
		if strings.Contains(no, norm) || strings.Contains(norm, no) {
			if len(o) > len(best) {
				best = o
			}
		}
	}
	if best != "" {
		return best, true
	}
	return raw, false
}
