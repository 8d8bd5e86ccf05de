// Package guard applies the static input policy that runs before any agent
// sees a message.
package guard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the longest accepted message, in runes.
const DefaultMaxLength = 2000

// Rejection reasons.
const (
	ReasonTooLong       = "message too long"
	ReasonSensitiveData = "sensitive data detected"
	reasonBlockedPrefix = "blocked keyword: "
)

// DefaultBlockedKeywords is the denylist checked case-insensitively.
var DefaultBlockedKeywords = []string{
	"hack",
	"exploit",
	"bypass",
	"unauthorized access",
	"illegal",
	"harmful",
	"dangerous",
}

var sensitiveAssignment = regexp.MustCompile(`(?i)(password|api[_-]?key|secret)\s*=\s*\w+`)

// Result is the outcome of a policy check.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Guard holds an immutable policy. The zero value is not usable; use New.
type Guard struct {
	maxLength int
	keywords  []string // lowercased
}

// New returns a Guard. A non-positive maxLength falls back to DefaultMaxLength
// and a nil keyword list to DefaultBlockedKeywords.
func New(maxLength int, keywords []string) *Guard {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if keywords == nil {
		keywords = DefaultBlockedKeywords
	}

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}

	return &Guard{maxLength: maxLength, keywords: lowered}
}

// Check runs the length, denylist and sensitive-data rules in that order and
// reports the first violation.
func (g *Guard) Check(text string) Result {
	if utf8.RuneCountInString(text) > g.maxLength {
		return Result{Reason: ReasonTooLong}
	}

	lower := strings.ToLower(text)
	for _, k := range g.keywords {
		if strings.Contains(lower, k) {
			return Result{Reason: reasonBlockedPrefix + k}
		}
	}

	if sensitiveAssignment.MatchString(text) {
		return Result{Reason: ReasonSensitiveData}
	}

	return Result{Allowed: true}
}
