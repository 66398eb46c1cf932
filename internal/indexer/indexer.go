// Package indexer maintains per-entity relationship suggestions in the
// background: a single worker drains a priority task queue on a fixed
// polling interval and keeps a bounded in-memory index.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/branchmem/branchmem/internal/similarity"
	"github.com/branchmem/branchmem/internal/storage"
	"github.com/branchmem/branchmem/internal/text"
)

// TaskKind identifies the work a queued task performs.
type TaskKind string

const (
	TaskIndexEntity         TaskKind = "index_entity"
	TaskDetectRelationships TaskKind = "detect_relationships"
	TaskCleanupStale        TaskKind = "cleanup_stale"
)

// Priority orders the queue; within a priority the queue is FIFO.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

const (
	// candidateWindow bounds how many branch entities a detection pass
	// compares against.
	candidateWindow = 20
	// initialBuildLimit bounds how many entities per branch the initial
	// build enqueues.
	initialBuildLimit = 50
	// maxSuggestions caps Suggestions output.
	maxSuggestions = 10
)

// Task is one unit of background work.
type Task struct {
	ID       string
	Kind     TaskKind
	Entity   string
	Branch   string
	Priority Priority
}

// Entry is the in-memory index record for one entity.
type Entry struct {
	Keywords           []string
	SimilarityScores   map[string]float64
	SuggestedRelations []similarity.Match
	LastIndexed        time.Time
}

// Indexer drains the task queue on a fixed interval. Task failures are
// logged and never propagate to foreground callers.
type Indexer struct {
	store    *storage.Store
	engine   *similarity.Engine
	interval time.Duration

	mu      sync.Mutex
	queues  [3][]Task
	pending map[string]struct{}
	index   *lru.Cache[string, *Entry]

	stop chan struct{}
	done chan struct{}
}

// New builds an indexer over the store with a bounded index cache.
func New(store *storage.Store, engine *similarity.Engine, interval time.Duration, cacheSize int) (*Indexer, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, *Entry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	return &Indexer{
		store:    store,
		engine:   engine,
		interval: interval,
		pending:  make(map[string]struct{}),
		index:    cache,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background worker and enqueues the initial build.
func (ix *Indexer) Start() {
	ix.Enqueue(TaskCleanupStale, "", "", PriorityLow)
	go ix.run()
}

// Stop signals shutdown and waits for the worker to finish its current
// task.
func (ix *Indexer) Stop() {
	close(ix.stop)
	<-ix.done
}

// Enqueue adds a task unless an identical (kind, entity, branch) task is
// already queued.
func (ix *Indexer) Enqueue(kind TaskKind, entity, branch string, priority Priority) {
	key := string(kind) + "|" + branch + "|" + entity
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, dup := ix.pending[key]; dup {
		return
	}
	ix.pending[key] = struct{}{}
	ix.queues[priority] = append(ix.queues[priority], Task{
		ID:       uuid.New().String(),
		Kind:     kind,
		Entity:   entity,
		Branch:   branch,
		Priority: priority,
	})
}

// Suggestions returns the strongest retained suggestions for an entity,
// best confidence first, capped at ten.
func (ix *Indexer) Suggestions(branch, entity string) []similarity.Match {
	entry, ok := ix.index.Get(entryKey(branch, entity))
	if !ok {
		return nil
	}
	out := make([]similarity.Match, len(entry.SuggestedRelations))
	copy(out, entry.SuggestedRelations)
	sort.Slice(out, func(i, j int) bool {
		ri, rj := confidenceRank(out[i].Confidence), confidenceRank(out[j].Confidence)
		if ri != rj {
			return ri < rj
		}
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// Entry returns the current index entry for an entity, if present.
func (ix *Indexer) Entry(branch, entity string) (*Entry, bool) {
	return ix.index.Get(entryKey(branch, entity))
}

func (ix *Indexer) run() {
	defer close(ix.done)
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ix.stop:
			return
		case <-ticker.C:
			ix.drain()
		}
	}
}

// drain processes every queued task, highest priority first, checking
// for shutdown between tasks.
func (ix *Indexer) drain() {
	for {
		select {
		case <-ix.stop:
			return
		default:
		}
		task, ok := ix.pop()
		if !ok {
			return
		}
		if err := ix.handle(task); err != nil {
			log.Error("indexer task failed", "kind", task.Kind, "entity", task.Entity, "branch", task.Branch, "error", err)
		}
	}
}

func (ix *Indexer) pop() (Task, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for p := range ix.queues {
		if len(ix.queues[p]) == 0 {
			continue
		}
		task := ix.queues[p][0]
		ix.queues[p] = ix.queues[p][1:]
		delete(ix.pending, string(task.Kind)+"|"+task.Branch+"|"+task.Entity)
		return task, true
	}
	return Task{}, false
}

func (ix *Indexer) handle(task Task) error {
	ctx := context.Background()
	switch task.Kind {
	case TaskIndexEntity:
		return ix.indexEntity(ctx, task.Branch, task.Entity)
	case TaskDetectRelationships:
		return ix.detectRelationships(ctx, task.Branch, task.Entity)
	case TaskCleanupStale:
		return ix.initialBuild(ctx)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// indexEntity extracts the keyword set for one entity and schedules a
// relationship detection pass.
func (ix *Indexer) indexEntity(ctx context.Context, branch, name string) error {
	entity, err := ix.store.GetEntityByName(ctx, branch, name)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	var keywords []string
	add := func(terms []string) {
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			keywords = append(keywords, t)
		}
	}
	add(text.Tokenize(entity.EntityType))
	add(text.Tokenize(entity.Name))
	for _, obs := range entity.Observations {
		add(text.Tokenize(obs.Content))
	}

	key := entryKey(branch, name)
	entry, ok := ix.index.Get(key)
	if !ok {
		entry = &Entry{SimilarityScores: make(map[string]float64)}
	}
	entry.Keywords = keywords
	entry.LastIndexed = time.Now()
	ix.index.Add(key, entry)

	ix.Enqueue(TaskDetectRelationships, name, branch, PriorityNormal)
	return nil
}

// detectRelationships compares an entity against a window of its branch
// peers and retains only high and medium confidence suggestions.
func (ix *Indexer) detectRelationships(ctx context.Context, branch, name string) error {
	entity, err := ix.store.GetEntityByName(ctx, branch, name)
	if err != nil {
		return err
	}
	peers, err := ix.store.ListEntities(ctx, branch, nil, candidateWindow+1)
	if err != nil {
		return err
	}
	candidates := peers[:0]
	for _, p := range peers {
		if p.ID == entity.ID {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) > candidateWindow {
		candidates = candidates[:candidateWindow]
	}

	matches := ix.engine.Detect(entity, candidates)
	scores := make(map[string]float64, len(matches))
	retained := matches[:0]
	for _, m := range matches {
		scores[m.Entity.Name] = m.Similarity
		if m.Confidence == similarity.ConfidenceHigh || m.Confidence == similarity.ConfidenceMedium {
			retained = append(retained, m)
		}
	}

	key := entryKey(branch, name)
	entry, ok := ix.index.Get(key)
	if !ok {
		entry = &Entry{}
	}
	entry.SimilarityScores = scores
	entry.SuggestedRelations = retained
	entry.LastIndexed = time.Now()
	ix.index.Add(key, entry)
	return nil
}

// initialBuild walks every branch and schedules indexing for a bounded
// slice of its entities.
func (ix *Indexer) initialBuild(ctx context.Context) error {
	branches, err := ix.store.ListBranches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		entities, err := ix.store.ListEntities(ctx, b.Name, nil, initialBuildLimit)
		if err != nil {
			log.Warn("initial build skipping branch", "branch", b.Name, "error", err)
			continue
		}
		for _, e := range entities {
			ix.Enqueue(TaskIndexEntity, e.Name, b.Name, PriorityNormal)
		}
	}
	return nil
}

func entryKey(branch, entity string) string {
	return branch + "/" + entity
}

func confidenceRank(confidence string) int {
	switch confidence {
	case similarity.ConfidenceHigh:
		return 0
	case similarity.ConfidenceMedium:
		return 1
	default:
		return 2
	}
}
