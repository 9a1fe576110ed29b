package prompt

import (
	"strings"
	"unicode"
)

// transforms is the fixed paraphrase set. Index 0 is the identity so
// paraphrase count 1 means "the template as written".
var transforms = []func(string) string{
	func(s string) string { return s },
	func(s string) string { return "Quick question: " + lowerFirst(s) },
	func(s string) string { return ensurePeriod(s) + " Keep the answer short." },
	func(s string) string { return "In your honest opinion, " + lowerFirst(s) },
	func(s string) string { return ensurePeriod(s) + " Please name specific companies or products." },
}

// ParaphraseCount returns the number of distinct paraphrase transforms.
func ParaphraseCount() int {
	return len(transforms)
}

// Paraphrase applies the deterministic transform for index to text.
// The same index always yields the same rewrite; indexes past the set
// wrap around, negative indexes mean identity.
func Paraphrase(text string, index int) string {
	if index < 0 {
		index = 0
	}
	return transforms[index%len(transforms)](text)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func ensurePeriod(s string) string {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '?', '!':
		return s
	}
	return s + "."
}
