// Package similarity scores entity pairs over name, type, content,
// name-pattern, and structural features, and proposes typed relations
// for sufficiently similar pairs.
package similarity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/text"
)

const (
	// Threshold is the minimum combined score for a candidate match.
	Threshold = 0.5
	// AutoRelationThreshold marks a suggestion auto-creatable.
	AutoRelationThreshold = 0.78
	// MaxResults caps the candidates returned per target.
	MaxResults = 8
)

// Confidence bands over the combined score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Component weights of the combined score.
const (
	nameWeight       = 0.35
	typeWeight       = 0.20
	contentWeight    = 0.25
	patternWeight    = 0.15
	structuralWeight = 0.05
)

// Match is a scored candidate with the inferred relation type.
type Match struct {
	Entity          models.Entity `json:"entity"`
	Similarity      float64       `json:"similarity"`
	Confidence      string        `json:"confidence"`
	RelationType    string        `json:"suggested_relation_type"`
	Reasoning       string        `json:"reasoning"`
	IsAutoCreatable bool          `json:"is_auto_creatable"`
}

// Engine is stateless; a single instance is shared by the orchestrator
// and the indexer.
type Engine struct{}

// New returns a similarity engine.
func New() *Engine {
	return &Engine{}
}

// Detect scores every candidate against the target and returns matches
// at or above Threshold, best first, capped at MaxResults.
func (e *Engine) Detect(target models.Entity, candidates []models.Entity) []Match {
	var matches []Match
	for _, c := range candidates {
		if c.ID == target.ID && c.BranchID == target.BranchID {
			continue
		}
		score, reasoning := e.score(target, c)
		if score < Threshold {
			continue
		}
		matches = append(matches, Match{
			Entity:          c,
			Similarity:      score,
			Confidence:      Confidence(score),
			RelationType:    suggestRelationType(target, c, score),
			Reasoning:       reasoning,
			IsAutoCreatable: score >= AutoRelationThreshold,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches
}

// Confidence maps a score into its band.
func Confidence(score float64) string {
	switch {
	case score >= 0.85:
		return ConfidenceHigh
	case score >= 0.75:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (e *Engine) score(a, b models.Entity) (float64, string) {
	name := text.SentenceSimilarity(a.Name, b.Name)

	typeScore := 0.0
	if a.EntityType == b.EntityType {
		typeScore = 1
	} else {
		typeScore = text.SentenceSimilarity(a.EntityType, b.EntityType)
	}

	content := contentSimilarity(a, b)
	pattern := text.NamePatternScore(a.Name, b.Name)
	structural := structuralSimilarity(a, b)

	total := nameWeight*name + typeWeight*typeScore + contentWeight*content +
		patternWeight*pattern + structuralWeight*structural

	reasoning := fmt.Sprintf("name=%.2f type=%.2f content=%.2f pattern=%.2f structural=%.2f",
		name, typeScore, content, pattern, structural)
	return total, reasoning
}

// contentSimilarity compares joined observation text: 0.6 sentence-level
// plus 0.4 keyword-set overlap, or a 0.3 neutral score when either side
// has no content.
func contentSimilarity(a, b models.Entity) float64 {
	contentA := strings.Join(a.ObservationContents(), " ")
	contentB := strings.Join(b.ObservationContents(), " ")
	if strings.TrimSpace(contentA) == "" || strings.TrimSpace(contentB) == "" {
		return 0.3
	}
	sentence := text.SentenceSimilarity(contentA, contentB)
	keywords := text.Jaccard(text.Tokenize(contentA), text.Tokenize(contentB))
	return 0.6*sentence + 0.4*keywords
}

// structuralSimilarity compares observation counts and status, clamped
// to 1.
func structuralSimilarity(a, b models.Entity) float64 {
	countA, countB := len(a.Observations), len(b.Observations)
	score := 0.0
	maxCount := countA
	if countB > maxCount {
		maxCount = countB
	}
	if maxCount == 0 {
		score += 0.4
	} else {
		diff := countA - countB
		if diff < 0 {
			diff = -diff
		}
		score += 0.4 * (1 - float64(diff)/float64(maxCount))
	}
	if a.Status == b.Status {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

// suggestRelationType picks the relation type for a matched pair:
// containment first, then same-type similarity, then score-based
// closeness, defaulting to related_to.
func suggestRelationType(target, candidate models.Entity, score float64) string {
	lowerTarget := strings.ToLower(target.Name)
	lowerCandidate := strings.ToLower(candidate.Name)
	if lowerTarget != lowerCandidate {
		if strings.Contains(lowerTarget, lowerCandidate) {
			return "contains"
		}
		if strings.Contains(lowerCandidate, lowerTarget) {
			return "part_of"
		}
	}
	if target.EntityType == candidate.EntityType {
		return "similar_to"
	}
	if score > 0.9 {
		return "closely_related"
	}
	return "related_to"
}
