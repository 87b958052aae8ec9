package session

import (
	"slices"
	"strings"
)

const (
	MatchSubstring = "substring"
	MatchExact     = "exact"
)

// ExitMatcher recognizes the phrases that end a conversation.
//
// In substring mode any transcript containing a phrase matches, so
// "さようならない" ends the session as well. Exact mode compares the
// transcript with surrounding whitespace and trailing punctuation removed.
type ExitMatcher struct {
	phrases []string
	exact   bool
}

func NewExitMatcher(phrases []string, mode string) *ExitMatcher {
	var ps []string
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, p)
		}
	}
	return &ExitMatcher{phrases: ps, exact: mode == MatchExact}
}

func (m *ExitMatcher) Match(text string) bool {
	if m.exact {
		t := strings.TrimRight(strings.TrimSpace(text), "。．.！!？?、， ")
		return slices.Contains(m.phrases, t)
	}
	for _, p := range m.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
