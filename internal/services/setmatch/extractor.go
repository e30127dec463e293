package setmatch

import (
	"regexp"
	"strconv"
	"strings"
)

// Plausible LEGO set number range. Anything outside is treated as a piece
// count, model number or other unrelated digits.
const (
	minSetNumber = 1000
	maxSetNumber = 99999
)

// Titles containing any of these substrings are clone-brand or custom
// builds, never genuine sets. Checked before any pattern matching.
var excludedTerms = []string{
	"compatible",
	"custom",
	"moc",
	"lepin",
	"cada",
	"cobi",
	"sluban",
	"mould king",
	"mega bloks",
	"kre-o",
	"not lego",
}

// Ordered most-specific first: the dash-suffix and prefixed forms are far
// less likely to be a piece count than a bare number.
var setNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{4,6}-\d)\b`),
	regexp.MustCompile(`#\s?(\d{4,6})\b`),
	regexp.MustCompile(`(?i)\bset\s+#?(\d{4,6})\b`),
	regexp.MustCompile(`\b(\d{4,5})\b`),
}

// ExtractSetNumber pulls a candidate BrickLink set number out of a free-text
// listing title. Pure and deterministic; returns "" when the title is
// excluded, nothing matches, or the matched number is out of range.
// A dash-suffix match (e.g. "75192-1") is returned verbatim; other matches
// return the bare number and are canonicalised by the mapper.
func ExtractSetNumber(title string) string {
	lower := strings.ToLower(title)
	for _, term := range excludedTerms {
		if strings.Contains(lower, term) {
			return ""
		}
	}

	for _, pattern := range setNumberPatterns {
		match := pattern.FindStringSubmatch(title)
		if match == nil {
			continue
		}
		candidate := match[1]
		numPart := candidate
		if idx := strings.IndexByte(candidate, '-'); idx >= 0 {
			numPart = candidate[:idx]
		}
		n, err := strconv.Atoi(numPart)
		if err != nil || n < minSetNumber || n > maxSetNumber {
			continue
		}
		return candidate
	}
	return ""
}

// Canonicalize normalises a candidate to BrickLink's "number-suffix" form.
// Bare numbers get the default "-1" suffix; dash-suffix forms pass through.
func Canonicalize(candidate string) string {
	if candidate == "" {
		return ""
	}
	if strings.ContainsRune(candidate, '-') {
		return candidate
	}
	return candidate + "-1"
}

// HasDashSuffix reports whether the candidate came in the explicit
// "number-dash-suffix" form, which carries higher matching confidence.
func HasDashSuffix(candidate string) bool {
	return strings.ContainsRune(candidate, '-')
}
