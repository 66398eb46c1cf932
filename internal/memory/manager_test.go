package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/branchmem/branchmem/internal/config"
	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/storage"
)

// setupManager opens a manager over a temp directory. The indexer
// interval is long so background work never races the assertions.
func setupManager(t *testing.T) *Manager {
	t.Helper()
	return setupManagerAt(t, t.TempDir())
}

func setupManagerAt(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := New(context.Background(), config.Config{
		MemoryPath:     dir,
		LogLevel:       "error",
		AutoRelations:  true,
		BackupKeep:     5,
		IndexInterval:  time.Hour,
		IndexCacheSize: 64,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateEntitiesWritePath(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	result, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{
			Name:         "Auth",
			EntityType:   "Service",
			Observations: []string{"JWT tokens with one hour expiry", "bcrypt password hashing"},
		},
	}, false)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if len(result.Created) != 1 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v, want one created", result)
	}

	e := result.Created[0]
	if e.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", e.Status)
	}
	if e.TokenCount == 0 {
		t.Error("TokenCount should be derived from the content")
	}
	if e.CompressionRatio <= 0 || e.CompressionRatio > 1 {
		t.Errorf("CompressionRatio = %f, want in (0, 1]", e.CompressionRatio)
	}
	if len(e.Observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(e.Observations))
	}
	if e.Observations[0].OptimizedContent == "" {
		t.Error("observations should carry compressed content")
	}

	if result.BackupPath == "" {
		t.Fatal("a branch snapshot should be written")
	}
	if _, err := os.Stat(result.BackupPath); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
}

func TestCreateEntitiesPartialFailure(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	result, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Auth", EntityType: "Service"},
		{Name: "Auth", EntityType: "Service"}, // duplicate in batch
		{Name: "Gateway", EntityType: "Service"},
	}, false)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if len(result.Created) != 2 {
		t.Errorf("created = %d, want 2", len(result.Created))
	}
	if len(result.Failed) != 1 || result.Failed[0].Name != "Auth" {
		t.Errorf("failed = %+v, want the duplicate Auth", result.Failed)
	}
}

func TestCreateEntitiesAutoRelations(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Dashboard Grid", EntityType: "component"},
	}, false); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	result, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Dashboard Grid Layout", EntityType: "component"},
	}, true)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if len(result.AutoRelations) == 0 {
		t.Fatalf("expected auto-created relations, got %+v", result)
	}
	rel := result.AutoRelations[0]
	if rel.From != "Dashboard Grid Layout" || rel.To != "Dashboard Grid" {
		t.Errorf("relation = %s -> %s, want layout -> grid", rel.From, rel.To)
	}
	if rel.RelationType == "" {
		t.Error("auto relation should carry a suggested type")
	}
}

func TestAddObservationsPerItemFailures(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Auth", EntityType: "Service"},
	}, false); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	results := m.AddObservations(ctx, "", []models.ObservationInput{
		{EntityName: "Auth", Contents: []string{"rate limiting enabled"}},
		{EntityName: "Ghost", Contents: []string{"never lands"}},
	})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Error != "" || len(results[0].Added) != 1 {
		t.Errorf("Auth result = %+v, want one added", results[0])
	}
	if results[1].Error == "" {
		t.Errorf("Ghost result should carry an error, got %+v", results[1])
	}
}

func TestUpdateEntityStatusPreservesObservations(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Auth", EntityType: "Service", Observations: []string{"JWT tokens", "bcrypt"}},
	}, false); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	e, err := m.UpdateEntityStatus(ctx, "", "Auth", models.StatusDeprecated, "replaced by OAuth")
	if err != nil {
		t.Fatalf("UpdateEntityStatus: %v", err)
	}
	if e.Status != models.StatusDeprecated || e.StatusReason != "replaced by OAuth" {
		t.Errorf("status = %q/%q, want deprecated/replaced by OAuth", e.Status, e.StatusReason)
	}
	got := e.ObservationContents()
	if len(got) != 2 || got[0] != "JWT tokens" {
		t.Errorf("observations = %v, want preserved", got)
	}
}

func TestSearchBranchScopes(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	seed := func(branch, name, entityType, obs string) {
		t.Helper()
		if _, err := m.CreateEntities(ctx, branch, []models.EntityInput{
			{Name: name, EntityType: entityType, Observations: []string{obs}},
		}, false); err != nil {
			t.Fatalf("seed %q: %v", name, err)
		}
	}
	seed("frontend", "UserAuthForm", "component", "authentication form with validation")
	seed("backend", "AuthenticationAPI", "service", "issues authentication tokens")
	seed("database", "UserSchema", "schema", "stores user authentication data")

	all, err := m.Search(ctx, "authentication", AllBranches, nil, 1)
	if err != nil {
		t.Fatalf("Search all: %v", err)
	}
	if len(all.Results) < 3 {
		t.Errorf("all-branches results = %d, want at least 3", len(all.Results))
	}

	scoped, err := m.Search(ctx, "authentication", "frontend", nil, 2)
	if err != nil {
		t.Fatalf("Search frontend: %v", err)
	}
	if len(scoped.Results) != 1 || scoped.Results[0].Entity.Name != "UserAuthForm" {
		t.Errorf("frontend results = %+v, want only UserAuthForm", scoped.Results)
	}
}

func TestSearchUnknownBranch(t *testing.T) {
	m := setupManager(t)

	if _, err := m.Search(context.Background(), "anything", "ghost", nil, 1); err == nil {
		t.Error("searching an unknown branch should fail")
	}
}

func TestOpenEntitiesAttachesIncidentRelations(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "A", EntityType: "service"},
		{Name: "B", EntityType: "service"},
		{Name: "C", EntityType: "service"},
	}, false); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	if _, err := m.CreateRelations(ctx, "", []models.RelationInput{
		{From: "A", To: "B", RelationType: "uses"},
		{From: "C", To: "A", RelationType: "monitors"},
		{From: "B", To: "C", RelationType: "calls"},
	}); err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}

	graph, err := m.OpenEntities(ctx, "", []string{"A"}, nil)
	if err != nil {
		t.Fatalf("OpenEntities: %v", err)
	}
	if len(graph.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(graph.Entities))
	}
	// Both edges touching A, and nothing else.
	if len(graph.Relations) != 2 {
		t.Errorf("relations = %+v, want the two edges touching A", graph.Relations)
	}
}

func TestReadBranchStatusFilterAndCrossContext(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Auth", EntityType: "service"},
		{Name: "Old Gateway", EntityType: "service", Status: models.StatusDeprecated},
	}, false); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	if _, err := m.CreateRelations(ctx, "", []models.RelationInput{
		{From: "Auth", To: "Old Gateway", RelationType: "replaces"},
	}); err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}
	if _, err := m.CreateEntities(ctx, "docs", []models.EntityInput{
		{Name: "Auth Guide", EntityType: "doc"},
	}, false); err != nil {
		t.Fatalf("seed docs entity: %v", err)
	}
	if _, err := m.CreateCrossReference(ctx, "", "Auth", "docs", []string{"Auth Guide"}); err != nil {
		t.Fatalf("CreateCrossReference: %v", err)
	}

	full, err := m.ReadBranch(ctx, "", nil, false)
	if err != nil {
		t.Fatalf("ReadBranch: %v", err)
	}
	if len(full.Entities) != 2 || len(full.Relations) != 1 {
		t.Fatalf("full graph = %d entities / %d relations, want 2/1",
			len(full.Entities), len(full.Relations))
	}
	for _, e := range full.Entities {
		if len(e.CrossReferences) != 0 {
			t.Errorf("cross-references should not be attached by default: %+v", e)
		}
	}

	// Status filter drops the deprecated entity and the edge to it.
	active, err := m.ReadBranch(ctx, "", []models.EntityStatus{models.StatusActive}, false)
	if err != nil {
		t.Fatalf("ReadBranch active: %v", err)
	}
	if len(active.Entities) != 1 || active.Entities[0].Name != "Auth" {
		t.Fatalf("active entities = %+v, want only Auth", active.Entities)
	}
	if len(active.Relations) != 0 {
		t.Errorf("relations = %+v, want none with the deprecated endpoint filtered", active.Relations)
	}

	withRefs, err := m.ReadBranch(ctx, "", nil, true)
	if err != nil {
		t.Fatalf("ReadBranch with cross context: %v", err)
	}
	var auth models.Entity
	for _, e := range withRefs.Entities {
		if e.Name == "Auth" {
			auth = e
		}
	}
	if len(auth.CrossReferences) != 1 {
		t.Fatalf("cross-references = %+v, want one group", auth.CrossReferences)
	}
	if auth.CrossReferences[0].TargetBranch != "docs" ||
		len(auth.CrossReferences[0].EntityNames) != 1 ||
		auth.CrossReferences[0].EntityNames[0] != "Auth Guide" {
		t.Errorf("cross-reference group = %+v, want docs/Auth Guide", auth.CrossReferences[0])
	}
}

func TestSuggestBranch(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateBranch(ctx, "api-docs", "reference documentation"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := m.CreateBranch(ctx, "demo-apps", "sample applications"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	got, err := m.SuggestBranch(ctx, "documentation", "API usage guide")
	if err != nil {
		t.Fatalf("SuggestBranch: %v", err)
	}
	if got != "api-docs" {
		t.Errorf("suggestion = %q, want api-docs", got)
	}

	got, err = m.SuggestBranch(ctx, "example", "demo walkthrough")
	if err != nil {
		t.Fatalf("SuggestBranch: %v", err)
	}
	if got != "demo-apps" {
		t.Errorf("suggestion = %q, want demo-apps", got)
	}

	got, err = m.SuggestBranch(ctx, "", "completely unrelated zzz")
	if err != nil {
		t.Fatalf("SuggestBranch: %v", err)
	}
	if got != storage.MainBranch {
		t.Errorf("fallback suggestion = %q, want main", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if _, err := m.CreateEntities(ctx, "", []models.EntityInput{
		{Name: "Auth", EntityType: "Service", Observations: []string{"JWT tokens"}},
		{Name: "Gateway", EntityType: "Service"},
	}, false); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	if _, err := m.CreateRelations(ctx, "", []models.RelationInput{
		{From: "Gateway", To: "Auth", RelationType: "uses"},
	}); err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}

	graph, path, err := m.Export(ctx, "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(graph.Entities) != 2 || len(graph.Relations) != 1 {
		t.Fatalf("exported graph = %d entities / %d relations, want 2/1",
			len(graph.Entities), len(graph.Relations))
	}
	if !strings.Contains(filepath.Base(path), "export_main_") {
		t.Errorf("export file = %q, want export_main_ prefix", path)
	}

	// Import the same graph into a fresh store.
	other := setupManager(t)
	result, err := other.Import(ctx, "restored", graph)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.EntitiesCreated != 2 || result.RelationsCreated != 1 {
		t.Errorf("import result = %+v, want 2 entities and 1 relation", result)
	}

	restored, err := other.ReadBranch(ctx, "restored", nil, false)
	if err != nil {
		t.Fatalf("ReadBranch: %v", err)
	}
	if len(restored.Entities) != 2 || len(restored.Relations) != 1 {
		t.Errorf("restored graph = %d entities / %d relations, want 2/1",
			len(restored.Entities), len(restored.Relations))
	}
}

func TestLegacyMigrationOnStartup(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"type":"entity","name":"Legacy Service","entityType":"service","observations":["from the old store"]}
{"type":"entity","name":"Legacy Client","entityType":"client"}
{"type":"relation","from":"Legacy Client","to":"Legacy Service","relationType":"uses"}
`
	if err := os.WriteFile(filepath.Join(dir, "memory.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	m := setupManagerAt(t, dir)
	ctx := context.Background()

	graph, err := m.ReadBranch(ctx, storage.MainBranch, nil, false)
	if err != nil {
		t.Fatalf("ReadBranch: %v", err)
	}
	if len(graph.Entities) != 2 || len(graph.Relations) != 1 {
		t.Fatalf("migrated graph = %d entities / %d relations, want 2/1",
			len(graph.Entities), len(graph.Relations))
	}

	if _, err := os.Stat(filepath.Join(dir, "memory.json")); !os.IsNotExist(err) {
		t.Error("legacy file should be renamed after migration")
	}
	if _, err := os.Stat(filepath.Join(dir, "memory.json.migrated")); err != nil {
		t.Errorf("renamed legacy file missing: %v", err)
	}

	// A migration backup lands next to the snapshots.
	entries, err := os.ReadDir(filepath.Join(dir, storage.MemoryDirName, storage.BackupsDirName))
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "migration_main_") {
			found = true
		}
	}
	if !found {
		t.Error("expected a migration_main_ backup file")
	}
}
