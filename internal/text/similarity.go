package text

import "strings"

// Jaccard computes set overlap between two term slices: |A∩B| / |A∪B|.
// Identical non-empty sets score 1; disjoint or empty-vs-nonempty score 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// NormalizedLevenshtein maps edit distance into [0, 1], where 1 means
// identical strings.
func NormalizedLevenshtein(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

// SentenceSimilarity compares two phrases: the better of character-level
// edit similarity and a damped Jaccard over meaningful words.
func SentenceSimilarity(a, b string) float64 {
	lev := NormalizedLevenshtein(strings.ToLower(a), strings.ToLower(b))
	jac := Jaccard(Tokenize(a), Tokenize(b)) * 0.8
	if jac > lev {
		return jac
	}
	return lev
}

// NamePatternScore scores structural overlap between two names: shared
// words at 0.25 each, matching first or last words at 0.1 each, clamped
// to 1.
func NamePatternScore(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}
	score := 0.0
	seen := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := setB[w]; ok {
			score += 0.25
		}
	}

	if wordsA[0] == wordsB[0] {
		score += 0.1
	}
	if wordsA[len(wordsA)-1] == wordsB[len(wordsB)-1] {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}
