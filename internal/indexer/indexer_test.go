package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/similarity"
	"github.com/branchmem/branchmem/internal/storage"
)

func setupIndexer(t *testing.T) (*Indexer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ix, err := New(store, similarity.New(), time.Second, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix, store
}

func TestEnqueueDedupes(t *testing.T) {
	ix, _ := setupIndexer(t)

	ix.Enqueue(TaskIndexEntity, "Auth", "main", PriorityNormal)
	ix.Enqueue(TaskIndexEntity, "Auth", "main", PriorityNormal)
	ix.Enqueue(TaskIndexEntity, "Auth", "main", PriorityHigh) // same key, still a dup

	if _, ok := ix.pop(); !ok {
		t.Fatal("expected one task")
	}
	if task, ok := ix.pop(); ok {
		t.Errorf("expected empty queue, got %+v", task)
	}
}

func TestPopPriorityOrder(t *testing.T) {
	ix, _ := setupIndexer(t)

	ix.Enqueue(TaskCleanupStale, "", "", PriorityLow)
	ix.Enqueue(TaskIndexEntity, "B", "main", PriorityNormal)
	ix.Enqueue(TaskIndexEntity, "A", "main", PriorityHigh)
	ix.Enqueue(TaskIndexEntity, "C", "main", PriorityNormal)

	want := []struct {
		kind   TaskKind
		entity string
	}{
		{TaskIndexEntity, "A"},
		{TaskIndexEntity, "B"}, // FIFO within a priority
		{TaskIndexEntity, "C"},
		{TaskCleanupStale, ""},
	}
	for i, w := range want {
		task, ok := ix.pop()
		if !ok {
			t.Fatalf("pop %d: queue exhausted early", i)
		}
		if task.Kind != w.kind || task.Entity != w.entity {
			t.Errorf("pop %d = (%s, %q), want (%s, %q)", i, task.Kind, task.Entity, w.kind, w.entity)
		}
		if task.ID == "" {
			t.Error("task ID should not be empty")
		}
	}
}

func TestIndexEntityBuildsEntry(t *testing.T) {
	ix, store := setupIndexer(t)
	ctx := context.Background()

	if _, err := store.CreateEntity(ctx, "main", models.EntityInput{
		Name:         "Payment Gateway",
		EntityType:   "service",
		Observations: []string{"handles stripe webhooks"},
	}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	if err := ix.indexEntity(ctx, "main", "Payment Gateway"); err != nil {
		t.Fatalf("indexEntity: %v", err)
	}

	entry, ok := ix.Entry("main", "Payment Gateway")
	if !ok {
		t.Fatal("entry should exist after indexing")
	}
	keywords := make(map[string]bool)
	for _, kw := range entry.Keywords {
		keywords[kw] = true
	}
	for _, want := range []string{"service", "payment", "gateway", "stripe", "webhooks"} {
		if !keywords[want] {
			t.Errorf("keywords missing %q: %v", want, entry.Keywords)
		}
	}
	if entry.LastIndexed.IsZero() {
		t.Error("LastIndexed should be set")
	}

	// Indexing schedules a detection pass for the same entity.
	task, ok := ix.pop()
	if !ok || task.Kind != TaskDetectRelationships || task.Entity != "Payment Gateway" {
		t.Errorf("expected queued detect_relationships task, got %+v", task)
	}
}

func TestDetectRelationshipsRetainsStrongMatches(t *testing.T) {
	ix, store := setupIndexer(t)
	ctx := context.Background()

	for _, name := range []string{"Dashboard Grid", "Dashboard Grid Layout", "Unrelated Billing Ledger"} {
		if _, err := store.CreateEntity(ctx, "main", models.EntityInput{
			Name: name, EntityType: "component",
		}); err != nil {
			t.Fatalf("CreateEntity(%q): %v", name, err)
		}
	}

	if err := ix.detectRelationships(ctx, "main", "Dashboard Grid"); err != nil {
		t.Fatalf("detectRelationships: %v", err)
	}

	entry, ok := ix.Entry("main", "Dashboard Grid")
	if !ok {
		t.Fatal("entry should exist after detection")
	}
	for _, match := range entry.SuggestedRelations {
		if match.Confidence != similarity.ConfidenceHigh && match.Confidence != similarity.ConfidenceMedium {
			t.Errorf("retained a %s confidence suggestion: %+v", match.Confidence, match)
		}
	}
}

func TestSuggestionsOrderAndCap(t *testing.T) {
	ix, _ := setupIndexer(t)

	var matches []similarity.Match
	for i := 0; i < 12; i++ {
		confidence := similarity.ConfidenceMedium
		score := 0.76 + float64(i)*0.001
		if i%3 == 0 {
			confidence = similarity.ConfidenceHigh
			score = 0.86 + float64(i)*0.001
		}
		matches = append(matches, similarity.Match{
			Entity:     models.Entity{ID: int64(i), Name: fmt.Sprintf("peer-%d", i)},
			Similarity: score,
			Confidence: confidence,
		})
	}
	ix.index.Add(entryKey("main", "Auth"), &Entry{SuggestedRelations: matches})

	got := ix.Suggestions("main", "Auth")
	if len(got) != maxSuggestions {
		t.Fatalf("suggestions = %d, want %d", len(got), maxSuggestions)
	}
	for i := 1; i < len(got); i++ {
		prev, curr := confidenceRank(got[i-1].Confidence), confidenceRank(got[i].Confidence)
		if prev > curr {
			t.Errorf("suggestion %d out of confidence order", i)
		}
		if prev == curr && got[i-1].Similarity < got[i].Similarity {
			t.Errorf("suggestion %d out of similarity order", i)
		}
	}

	if ix.Suggestions("main", "Unknown") != nil {
		t.Error("unknown entity should yield nil suggestions")
	}
}

func TestStartStop(t *testing.T) {
	ix, _ := setupIndexer(t)

	ix.Start()
	done := make(chan struct{})
	go func() {
		ix.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
