package text

import (
	"strings"
)

// Level selects how aggressively Optimize compresses content.
type Level string

const (
	LevelMinimal    Level = "minimal"
	LevelBalanced   Level = "balanced"
	LevelAggressive Level = "aggressive"
)

// abbreviations maps long technical words to their compressed forms.
var abbreviations = map[string]string{
	"configuration":  "config",
	"implementation": "impl",
	"application":    "app",
	"environment":    "env",
	"development":    "dev",
	"production":     "prod",
	"repository":     "repo",
	"documentation":  "docs",
	"requirements":   "reqs",
	"specification":  "spec",
	"performance":    "perf",
	"optimization":   "opt",
	"management":     "mgmt",
	"information":    "info",
	"technology":     "tech",
	"framework":      "fw",
	"library":        "lib",
	"service":        "svc",
	"server":         "srv",
	"client":         "cli",
	"request":        "req",
	"response":       "resp",
	"message":        "msg",
	"session":        "sess",
	"transaction":    "txn",
	"operation":      "op",
	"process":        "proc",
	"system":         "sys",
	"network":        "net",
	"security":       "sec",
	"encryption":     "enc",
	"validation":     "val",
}

// fillerWords are short connective words dropped at the balanced level
// when not adjacent to an important word.
var fillerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "at": {}, "is": {}, "are": {}, "and": {}, "or": {},
	"but": {}, "it": {}, "its": {}, "as": {}, "be": {},
}

// connectives replace common verbs with symbol shorthand at the
// aggressive level. Applied before stop-word removal so the verbs are
// still present.
var connectives = [][2]string{
	{"is", "="},
	{"has", ">"},
	{"with", "+"},
	{"and", "&"},
	{"that", ":"},
	{"which", ":"},
}

// OptimizeResult is the outcome of compressing a piece of content.
type OptimizeResult struct {
	Optimized          string   `json:"optimized"`
	Keywords           []string `json:"keywords"`
	Entities           []string `json:"entities"`
	TokenCount         int      `json:"token_count"`
	OriginalTokenCount int      `json:"original_token_count"`
	CompressionRatio   float64  `json:"compression_ratio"`
}

// Optimize compresses text at the given level. Each level is idempotent:
// optimizing already-optimized text at the same level is a no-op.
func Optimize(text string, level Level) OptimizeResult {
	optimized := collapseWhitespace(text)

	if level == LevelBalanced || level == LevelAggressive {
		optimized = abbreviate(optimized)
		if level == LevelAggressive {
			optimized = replaceConnectives(optimized)
			optimized = dropWords(optimized, func(word string, _, _ bool) bool {
				lower := strings.ToLower(word)
				_, stop := stopWords[lower]
				_, filler := fillerWords[lower]
				return stop || filler
			})
		} else {
			optimized = dropWords(optimized, func(word string, prevImportant, nextImportant bool) bool {
				_, filler := fillerWords[strings.ToLower(word)]
				return filler && !prevImportant && !nextImportant
			})
		}
	}

	originalTokens := CountTokens(text)
	optimizedTokens := CountTokens(optimized)
	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(optimizedTokens) / float64(originalTokens)
	}

	keywords := ExtractKeywords(optimized, 10)
	terms := make([]string, len(keywords))
	for i, kw := range keywords {
		terms[i] = kw.Term
	}

	return OptimizeResult{
		Optimized:          optimized,
		Keywords:           terms,
		Entities:           Entities(text),
		TokenCount:         optimizedTokens,
		OriginalTokenCount: originalTokens,
		CompressionRatio:   ratio,
	}
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func abbreviate(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		core, prefix, suffix := splitPunct(word)
		if abbrev, ok := abbreviations[strings.ToLower(core)]; ok {
			words[i] = prefix + abbrev + suffix
		}
	}
	return strings.Join(words, " ")
}

func replaceConnectives(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		for _, c := range connectives {
			if strings.ToLower(word) == c[0] {
				words[i] = c[1]
				break
			}
		}
	}
	return strings.Join(words, " ")
}

// dropWords removes words the predicate rejects. The predicate sees
// whether the neighbouring input words are important (contain a digit,
// an uppercase letter, or exceed three characters).
func dropWords(text string, drop func(word string, prevImportant, nextImportant bool) bool) string {
	words := strings.Fields(text)
	kept := words[:0]
	for i, word := range words {
		prevImp := i > 0 && isImportant(words[i-1])
		nextImp := i < len(words)-1 && isImportant(words[i+1])
		if drop(word, prevImp, nextImp) {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func isImportant(word string) bool {
	if len(word) > 3 {
		return true
	}
	for _, r := range word {
		if r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// splitPunct separates leading and trailing punctuation from a word so
// abbreviation can match the core token.
func splitPunct(word string) (core, prefix, suffix string) {
	start := 0
	for start < len(word) && !isWordRune(word[start]) {
		start++
	}
	end := len(word)
	for end > start && !isWordRune(word[end-1]) {
		end--
	}
	return word[start:end], word[:start], word[end:]
}

func isWordRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
