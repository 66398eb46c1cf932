package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("The quick-brown Fox jumped!")
	assert.Equal(t, []string{"quick", "brown", "fox", "jumped"}, got)
}

func TestTokenizeDropsShortAndStopWords(t *testing.T) {
	assert.Empty(t, Tokenize("it is a to be or"))
	assert.Empty(t, Tokenize("a b cd"))
}

func TestPrepareTerms(t *testing.T) {
	got := PrepareTerms("User-Auth, user.auth/Form")
	assert.Equal(t, []string{"user", "auth", "form"}, got)
}

func TestPrepareTermsDropsSingleChars(t *testing.T) {
	got := PrepareTerms("a x database")
	assert.Equal(t, []string{"database"}, got)
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"services": "service",
		"caresses": "caress",
		"ponies":   "poni",
		"testing":  "test",
		"jumped":   "jump",
		"class":    "class",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), "Stem(%q)", in)
	}
}

func TestStemDerivationalSuffixes(t *testing.T) {
	// "operational" ends in both -ational and -tional; the longer
	// suffix must win, on every call.
	for i := 0; i < 200; i++ {
		assert.Equal(t, "operate", Stem("operational"))
	}
	assert.Equal(t, "condition", Stem("conditional"))
	assert.Equal(t, "organize", Stem("organizer"))
	assert.Equal(t, "effective", Stem("effectiveness"))
}

func TestExtractKeywordsFrequencyAndBonuses(t *testing.T) {
	keywords := ExtractKeywords("The getUserData helper wraps getUserData for callers", 5)
	assert.NotEmpty(t, keywords)
	assert.Equal(t, "getuserdata", keywords[0].Term)
	assert.Greater(t, keywords[0].Score, 2.0)
}

func TestExtractKeywordsPatterns(t *testing.T) {
	keywords := ExtractKeywords("See https://example.com/docs and src/main/app.go for details", 10)
	terms := make(map[string]bool)
	for _, kw := range keywords {
		terms[kw.Term] = true
	}
	assert.True(t, terms["https://example.com/docs"], "URL pattern should be extracted")
	assert.True(t, terms["src/main/app.go"], "file path pattern should be extracted")
}

func TestExtractKeywordsDeterministicOrder(t *testing.T) {
	a := ExtractKeywords("alpha beta gamma alpha", 10)
	b := ExtractKeywords("alpha beta gamma alpha", 10)
	assert.Equal(t, a, b)
	assert.Equal(t, "alpha", a[0].Term)
	// Ties break lexicographically.
	assert.Equal(t, "beta", a[1].Term)
	assert.Equal(t, "gamma", a[2].Term)
}

func TestEntitiesFindsCapitalizedRuns(t *testing.T) {
	got := Entities("the Dashboard Grid talks to the Billing Service daily")
	assert.Contains(t, got, "Dashboard Grid")
	assert.Contains(t, got, "Billing Service")
}
