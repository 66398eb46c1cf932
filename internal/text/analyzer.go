// Package text is the pure analysis layer: tokenization, stemming,
// keyword extraction, content compression, and string similarity
// primitives. Nothing in this package performs I/O.
package text

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// stopWords is the small English stop list applied at both ingest and
// query time.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"have": {}, "has": {}, "had": {}, "will": {}, "would": {}, "can": {},
	"that": {}, "this": {}, "it": {}, "its": {}, "as": {}, "be": {},
	"from": {}, "he": {}, "during": {}, "including": {},
}

// IsStopWord reports whether the lowercase term is in the stop list.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

var nonLetterRun = regexp.MustCompile(`[^a-z]+`)

// Tokenize lowercases, splits on non-letter runs, and drops short terms
// and stop words.
func Tokenize(text string) []string {
	parts := nonLetterRun.Split(strings.ToLower(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) <= 2 || IsStopWord(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

var termSplit = regexp.MustCompile(`[\s\-_,./]+`)

// PrepareTerms normalizes a search query into deduplicated terms:
// lowercase, split on whitespace and common separators, drop single
// characters and stop words.
func PrepareTerms(query string) []string {
	parts := termSplit.Split(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) <= 1 || IsStopWord(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Stem applies a lightweight Porter-style reduction. It is deterministic
// and intentionally shallow: plural and participle suffixes plus a few
// common derivational endings.
func Stem(term string) string {
	t := term

	switch {
	case strings.HasSuffix(t, "sses"):
		t = strings.TrimSuffix(t, "es")
	case strings.HasSuffix(t, "ies"):
		t = strings.TrimSuffix(t, "ies") + "i"
	case strings.HasSuffix(t, "ss"):
		// keep
	case strings.HasSuffix(t, "s") && len(t) > 3:
		t = strings.TrimSuffix(t, "s")
	}

	if strings.HasSuffix(t, "ing") && len(t) > 5 && hasVowel(t[:len(t)-3]) {
		t = strings.TrimSuffix(t, "ing")
	} else if strings.HasSuffix(t, "ed") && len(t) > 4 && hasVowel(t[:len(t)-2]) {
		t = strings.TrimSuffix(t, "ed")
	}

	for _, d := range derivSuffixes {
		if strings.HasSuffix(t, d.suffix) && len(t) > len(d.suffix)+2 {
			t = strings.TrimSuffix(t, d.suffix) + d.repl
			break
		}
	}
	return t
}

// derivSuffixes is ordered longest first so a word matching two entries
// ("operational" ends in both -ational and -tional) always takes the
// longer one.
var derivSuffixes = []struct{ suffix, repl string }{
	{"ational", "ate"},
	{"iveness", "ive"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"tional", "tion"},
	{"izer", "ize"},
}

func hasVowel(s string) bool {
	return strings.ContainsAny(s, "aeiouy")
}

// ScoredKeyword is a keyword with its extraction score.
type ScoredKeyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Patterns recognised by ExtractKeywords and weighted 3x: file paths,
// URLs, scoped package names, env-style assignments, and calls.
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:[A-Za-z0-9_.-]+/)+[A-Za-z0-9_.-]+\.[A-Za-z0-9]+`), // file paths
	regexp.MustCompile(`https?://[^\s]+`),                                    // URLs
	regexp.MustCompile(`@[A-Za-z0-9_-]+/[A-Za-z0-9_.-]+`),                    // @namespace/pkg
	regexp.MustCompile(`[A-Z][A-Z0-9_]+=\S+`),                                // UPPER_SNAKE=value
	regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*\([^)]*\)`),                   // call(args)
}

var (
	camelCase      = regexp.MustCompile(`^[a-z]+[A-Z]`)
	pascalCase     = regexp.MustCompile(`^[A-Z][a-z]+[A-Z]`)
	capitalizedRun = regexp.MustCompile(`(?:[A-Z][a-z]+ )+[A-Z][a-z]+`)
)

// ExtractKeywords scores terms by frequency with additive bonuses for
// technical-looking tokens and recognised patterns, returning the top
// maxK by score descending, ties broken lexicographically.
func ExtractKeywords(text string, maxK int) []ScoredKeyword {
	scores := make(map[string]float64)

	for _, term := range Tokenize(text) {
		scores[term]++
	}

	for _, raw := range strings.Fields(text) {
		trimmed := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) <= 2 {
			continue
		}
		if camelCase.MatchString(trimmed) || pascalCase.MatchString(trimmed) ||
			strings.ContainsAny(trimmed, "0123456789") {
			scores[strings.ToLower(trimmed)] += 2
		}
	}

	for _, re := range keywordPatterns {
		for _, match := range re.FindAllString(text, -1) {
			scores[match] += 3
		}
	}

	for _, run := range capitalizedRun.FindAllString(text, -1) {
		scores[strings.ToLower(run)] += 2
	}

	keywords := make([]ScoredKeyword, 0, len(scores))
	for term, score := range scores {
		keywords = append(keywords, ScoredKeyword{Term: term, Score: score})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Score != keywords[j].Score {
			return keywords[i].Score > keywords[j].Score
		}
		return keywords[i].Term < keywords[j].Term
	})
	if maxK > 0 && len(keywords) > maxK {
		keywords = keywords[:maxK]
	}
	return keywords
}

// Entities extracts capitalized multi-word runs, used as candidate
// entity mentions by the optimizer.
func Entities(text string) []string {
	return capitalizedRun.FindAllString(text, -1)
}
