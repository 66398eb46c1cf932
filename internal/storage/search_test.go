package storage

import (
	"context"
	"testing"

	"github.com/branchmem/branchmem/internal/models"
)

func TestSearchRanking(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Dashboard Grid", EntityType: "component",
		Observations: []string{"renders the dashboard layout"},
	})
	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Dashboard Component Manager", EntityType: "component",
		Observations: []string{"manages dashboard widgets"},
	})
	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Database Connection Pool", EntityType: "infrastructure",
		Observations: []string{"feeds the dashboard with data"},
	})

	main, err := s.GetBranch(ctx, MainBranch)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}

	results, _, err := s.Search(ctx, []string{"dashboard"}, SearchFilter{BranchID: main.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	// Name matches outrank content-only matches.
	for _, r := range results[:2] {
		if r.Entity.Name == "Database Connection Pool" {
			t.Errorf("content-only match ranked in top 2: %+v", results)
		}
	}
	if results[2].Entity.Name != "Database Connection Pool" {
		t.Errorf("last result = %q, want Database Connection Pool", results[2].Entity.Name)
	}
	if results[0].RelevanceScore < results[2].RelevanceScore {
		t.Errorf("ranking not descending: %f < %f",
			results[0].RelevanceScore, results[2].RelevanceScore)
	}
}

func TestSearchStatusFilter(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Dashboard Grid", EntityType: "component",
	})
	main, err := s.GetBranch(ctx, MainBranch)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}

	results, _, err := s.Search(ctx, []string{"dashboard"}, SearchFilter{
		BranchID: main.ID,
		Statuses: []models.EntityStatus{models.StatusDeprecated},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deprecated-only search over active entities = %d results, want 0", len(results))
	}
}

func TestSearchBranchScope(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mustCreateEntity(t, s, "frontend", models.EntityInput{
		Name: "UserAuthForm", EntityType: "component",
		Observations: []string{"authentication form with validation"},
	})
	mustCreateEntity(t, s, "backend", models.EntityInput{
		Name: "AuthenticationAPI", EntityType: "service",
		Observations: []string{"issues authentication tokens"},
	})
	mustCreateEntity(t, s, "database", models.EntityInput{
		Name: "UserSchema", EntityType: "schema",
		Observations: []string{"stores user authentication data"},
	})

	all, _, err := s.Search(ctx, []string{"authentication"}, SearchFilter{AllBranches: true})
	if err != nil {
		t.Fatalf("Search all branches: %v", err)
	}
	if len(all) < 3 {
		t.Errorf("all-branches results = %d, want at least 3", len(all))
	}

	frontend, err := s.GetBranch(ctx, "frontend")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	scoped, _, err := s.Search(ctx, []string{"authentication"}, SearchFilter{BranchID: frontend.ID})
	if err != nil {
		t.Fatalf("Search frontend: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Entity.Name != "UserAuthForm" {
		t.Errorf("frontend-scoped results = %+v, want only UserAuthForm", scoped)
	}
}

func TestSearchRelationsWithinResultSet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Dashboard Grid", EntityType: "component",
	})
	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Dashboard Store", EntityType: "component",
	})
	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Billing Service", EntityType: "service",
	})
	if _, err := s.CreateRelations(ctx, MainBranch, []models.RelationInput{
		{From: "Dashboard Grid", To: "Dashboard Store", RelationType: "uses"},
		{From: "Dashboard Grid", To: "Billing Service", RelationType: "calls"},
	}); err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}

	main, err := s.GetBranch(ctx, MainBranch)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	results, rels, err := s.Search(ctx, []string{"dashboard"}, SearchFilter{BranchID: main.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(rels) != 1 || rels[0].To != "Dashboard Store" {
		t.Errorf("relations = %+v, want only the in-set edge", rels)
	}
}

func TestSearchEmptyTerms(t *testing.T) {
	s := setupStore(t)

	results, rels, err := s.Search(context.Background(), nil, SearchFilter{AllBranches: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil || rels != nil {
		t.Errorf("empty-term search = %v / %v, want nil", results, rels)
	}
}

func TestKeywordStrategyWeights(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mustCreateEntity(t, s, MainBranch, models.EntityInput{
		Name: "Payment Gateway", EntityType: "service",
		Keywords: []models.Keyword{
			{Keyword: "stripe", Weight: 4},
			{Keyword: "stripe-webhooks", Weight: 2},
		},
	})
	main, err := s.GetBranch(ctx, MainBranch)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}

	results, _, err := s.Search(ctx, []string{"stripe"}, SearchFilter{BranchID: main.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	// Two matched keyword rows times the highest weight.
	if results[0].KeywordScore != 8 {
		t.Errorf("keyword score = %f, want 8", results[0].KeywordScore)
	}
}
