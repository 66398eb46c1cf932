package memory

import (
	"context"
	"strings"

	"github.com/branchmem/branchmem/internal/indexer"
	"github.com/branchmem/branchmem/internal/similarity"
	"github.com/branchmem/branchmem/internal/storage"
	"github.com/branchmem/branchmem/internal/text"
)

// branchRules maps content tokens to the branch-name fragment they
// suggest.
var branchRules = map[string]string{
	"doc":           "doc",
	"documentation": "doc",
	"spec":          "doc",
	"guide":         "doc",
	"demo":          "demo",
	"example":       "demo",
	"sample":        "demo",
	"test":          "demo",
}

// SuggestBranch scores every non-main branch by token overlap with its
// name and purpose, plus the rule table, and returns the best scorer.
// When nothing scores, main is suggested.
func (m *Manager) SuggestBranch(ctx context.Context, entityType, content string) (string, error) {
	branches, err := m.store.ListBranches(ctx)
	if err != nil {
		return "", err
	}
	tokens := text.Tokenize(entityType + " " + content)
	if len(tokens) == 0 {
		return storage.MainBranch, nil
	}

	best := storage.MainBranch
	bestScore := 0
	for _, b := range branches {
		if b.Name == storage.MainBranch {
			continue
		}
		name := strings.ToLower(b.Name)
		purpose := strings.ToLower(b.Purpose)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				score += 2
			}
			if purpose != "" && strings.Contains(purpose, tok) {
				score++
			}
			if fragment, ok := branchRules[tok]; ok && strings.Contains(name, fragment) {
				score += 2
			}
		}
		if score > bestScore {
			best, bestScore = b.Name, score
		}
	}
	return best, nil
}

// RelationshipSuggestions returns the indexer's retained suggestions for
// an entity. When the entity has not been indexed yet the detection runs
// inline against a window of branch peers.
func (m *Manager) RelationshipSuggestions(ctx context.Context, branch, name string) ([]similarity.Match, error) {
	branch = normalizeBranch(branch)
	if matches := m.idx.Suggestions(branch, name); matches != nil {
		return matches, nil
	}

	entity, err := m.store.GetEntityByName(ctx, branch, name)
	if err != nil {
		return nil, err
	}
	peers, err := m.store.ListEntities(ctx, branch, nil, 0)
	if err != nil {
		return nil, err
	}
	var retained []similarity.Match
	for _, match := range m.engine.Detect(entity, peers) {
		if match.Confidence != similarity.ConfidenceHigh && match.Confidence != similarity.ConfidenceMedium {
			continue
		}
		retained = append(retained, match)
	}
	m.idx.Enqueue(indexer.TaskIndexEntity, name, branch, indexer.PriorityNormal)
	return retained, nil
}
