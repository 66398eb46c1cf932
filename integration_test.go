package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/config"
	"github.com/branchmem/branchmem/internal/memory"
	"github.com/branchmem/branchmem/internal/models"
	"github.com/branchmem/branchmem/internal/server"
)

// setupIntegration creates a real MCP server with in-memory transport and returns a connected client session.
func setupIntegration(t *testing.T) *mcp.ClientSession {
	t.Helper()

	mem, err := memory.New(context.Background(), config.Config{
		MemoryPath:     t.TempDir(),
		LogLevel:       "error",
		AutoRelations:  false,
		BackupKeep:     5,
		IndexInterval:  time.Hour,
		IndexCacheSize: 64,
	})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	srv := server.New(mem)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool is a helper that calls a tool and returns the text content.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
	}
	return tc.Text
}

// callToolExpectError calls a tool and expects an error response (IsError=true).
func callToolExpectError(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): protocol error: %v", name, err)
	}
	tc := result.Content[0].(*mcp.TextContent)
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected error but got success: %s", name, tc.Text)
	}
	return tc.Text
}

func TestIntegration_ListTools(t *testing.T) {
	session := setupIntegration(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	expectedTools := []string{
		"list_branches", "create_branch", "delete_branch", "read_branch", "suggest_branch",
		"create_entities", "add_observations", "update_entity_status",
		"delete_entities", "delete_observations",
		"create_relations", "delete_relations", "create_cross_reference",
		"smart_search", "open_entities", "get_relationship_suggestions",
		"export_branch", "import_branch",
	}

	toolNames := make(map[string]bool)
	for _, tool := range result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range expectedTools {
		if !toolNames[name] {
			t.Errorf("Missing tool: %s", name)
		}
	}
	if len(result.Tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(result.Tools))
	}
}

func TestIntegration_FullWorkflow(t *testing.T) {
	session := setupIntegration(t)

	// Step 1: create a branch for the work.
	text := callTool(t, session, "create_branch", map[string]any{
		"name":    "backend",
		"purpose": "Server-side services",
	})
	var branch models.Branch
	if err := json.Unmarshal([]byte(text), &branch); err != nil {
		t.Fatalf("parse create_branch: %v", err)
	}
	if branch.Name != "backend" {
		t.Errorf("branch name = %q, want backend", branch.Name)
	}

	// Step 2: list_branches starts with main.
	text = callTool(t, session, "list_branches", nil)
	var branches []models.BranchInfo
	if err := json.Unmarshal([]byte(text), &branches); err != nil {
		t.Fatalf("parse list_branches: %v", err)
	}
	if len(branches) < 2 || branches[0].Name != "main" {
		t.Errorf("list_branches should start with main, got %+v", branches)
	}

	// Step 3: create entities in the branch.
	text = callTool(t, session, "create_entities", map[string]any{
		"branch": "backend",
		"entities": []any{
			map[string]any{
				"name":         "Auth Service",
				"entity_type":  "service",
				"observations": []any{"Issues JWT tokens", "Uses bcrypt for passwords"},
			},
			map[string]any{
				"name":        "API Gateway",
				"entity_type": "service",
			},
		},
	})
	var createResult memory.CreateResult
	if err := json.Unmarshal([]byte(text), &createResult); err != nil {
		t.Fatalf("parse create_entities: %v", err)
	}
	if len(createResult.Created) != 2 || len(createResult.Failed) != 0 {
		t.Fatalf("create result = %+v, want 2 created", createResult)
	}
	if createResult.Created[0].Status != models.StatusActive {
		t.Errorf("status = %q, want active", createResult.Created[0].Status)
	}

	// Step 4: add observations, blanks dropped.
	text = callTool(t, session, "add_observations", map[string]any{
		"branch": "backend",
		"observations": []any{
			map[string]any{
				"entity_name": "Auth Service",
				"contents":    []any{"Rate limiting enabled", ""},
			},
		},
	})
	if !strings.Contains(text, "Rate limiting enabled") {
		t.Error("add_observations should return the new observation")
	}

	// Step 5: create a relation.
	text = callTool(t, session, "create_relations", map[string]any{
		"branch": "backend",
		"relations": []any{
			map[string]any{"from": "API Gateway", "to": "Auth Service", "relation_type": "routes_to"},
		},
	})
	var rels []models.Relation
	if err := json.Unmarshal([]byte(text), &rels); err != nil {
		t.Fatalf("parse create_relations: %v", err)
	}
	if len(rels) != 1 || rels[0].RelationType != "routes_to" {
		t.Errorf("relations = %+v, want one routes_to edge", rels)
	}

	// Duplicates are silent no-ops.
	text = callTool(t, session, "create_relations", map[string]any{
		"branch": "backend",
		"relations": []any{
			map[string]any{"from": "API Gateway", "to": "Auth Service", "relation_type": "routes_to"},
		},
	})
	if err := json.Unmarshal([]byte(text), &rels); err != nil {
		t.Fatalf("parse duplicate create_relations: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("duplicate relation batch = %+v, want empty", rels)
	}

	// Step 6: smart_search scoped to the branch.
	text = callTool(t, session, "smart_search", map[string]any{
		"query":  "auth tokens",
		"branch": "backend",
	})
	var search memory.SearchResponse
	if err := json.Unmarshal([]byte(text), &search); err != nil {
		t.Fatalf("parse smart_search: %v", err)
	}
	if len(search.Results) == 0 {
		t.Fatal("smart_search returned no results")
	}
	if search.Results[0].Entity.Name != "Auth Service" {
		t.Errorf("top result = %q, want Auth Service", search.Results[0].Entity.Name)
	}

	// Step 7: open_entities attaches incident relations.
	text = callTool(t, session, "open_entities", map[string]any{
		"branch": "backend",
		"names":  []any{"Auth Service"},
	})
	var graph models.Graph
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		t.Fatalf("parse open_entities: %v", err)
	}
	if len(graph.Entities) != 1 || len(graph.Relations) != 1 {
		t.Errorf("open_entities = %d entities / %d relations, want 1/1",
			len(graph.Entities), len(graph.Relations))
	}

	// Step 8: status update.
	text = callTool(t, session, "update_entity_status", map[string]any{
		"branch": "backend",
		"name":   "API Gateway",
		"status": "deprecated",
		"reason": "replaced by mesh routing",
	})
	var updated models.Entity
	if err := json.Unmarshal([]byte(text), &updated); err != nil {
		t.Fatalf("parse update_entity_status: %v", err)
	}
	if updated.Status != models.StatusDeprecated {
		t.Errorf("status = %q, want deprecated", updated.Status)
	}

	// Step 9: export the branch.
	text = callTool(t, session, "export_branch", map[string]any{"branch": "backend"})
	if !strings.Contains(text, "export_backend_") {
		t.Errorf("export should name the file, got %q", text)
	}

	// Step 10: delete observations, entities, and finally the branch.
	text = callTool(t, session, "delete_observations", map[string]any{
		"branch": "backend",
		"deletions": []any{
			map[string]any{
				"entity_name":  "Auth Service",
				"observations": []any{"Uses bcrypt for passwords"},
			},
		},
	})
	if !strings.Contains(text, "Deleted 1") {
		t.Errorf("expected 'Deleted 1', got %q", text)
	}

	text = callTool(t, session, "delete_entities", map[string]any{
		"branch": "backend",
		"names":  []any{"API Gateway"},
	})
	if !strings.Contains(text, "Deleted 1") {
		t.Errorf("expected 'Deleted 1', got %q", text)
	}

	text = callTool(t, session, "read_branch", map[string]any{"branch": "backend"})
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		t.Fatalf("parse read_branch: %v", err)
	}
	if len(graph.Entities) != 1 || len(graph.Relations) != 0 {
		t.Errorf("post-delete graph = %d entities / %d relations, want 1/0",
			len(graph.Entities), len(graph.Relations))
	}

	callTool(t, session, "delete_branch", map[string]any{"name": "backend"})
}

func TestIntegration_CrossBranchIsolation(t *testing.T) {
	session := setupIntegration(t)

	callTool(t, session, "create_entities", map[string]any{
		"branch": "frontend",
		"entities": []any{
			map[string]any{
				"name": "UserAuthForm", "entity_type": "component",
				"observations": []any{"authentication form with validation"},
			},
		},
	})
	callTool(t, session, "create_entities", map[string]any{
		"branch": "backend",
		"entities": []any{
			map[string]any{
				"name": "AuthenticationAPI", "entity_type": "service",
				"observations": []any{"issues authentication tokens"},
			},
		},
	})

	// Branch-scoped search sees only its own branch.
	text := callTool(t, session, "smart_search", map[string]any{
		"query":  "authentication",
		"branch": "frontend",
	})
	var search memory.SearchResponse
	if err := json.Unmarshal([]byte(text), &search); err != nil {
		t.Fatalf("parse smart_search: %v", err)
	}
	if len(search.Results) != 1 || search.Results[0].Entity.Name != "UserAuthForm" {
		t.Errorf("frontend search = %+v, want only UserAuthForm", search.Results)
	}

	// The wildcard branch sees both.
	text = callTool(t, session, "smart_search", map[string]any{
		"query":  "authentication",
		"branch": "*",
	})
	if err := json.Unmarshal([]byte(text), &search); err != nil {
		t.Fatalf("parse wildcard smart_search: %v", err)
	}
	if len(search.Results) < 2 {
		t.Errorf("wildcard search = %d results, want at least 2", len(search.Results))
	}

	// Cross-references link across branches.
	text = callTool(t, session, "create_cross_reference", map[string]any{
		"branch":        "frontend",
		"entity_name":   "UserAuthForm",
		"target_branch": "backend",
		"target_names":  []any{"AuthenticationAPI"},
	})
	if !strings.Contains(text, "AuthenticationAPI") {
		t.Errorf("cross-reference should list linked names, got %q", text)
	}

	// read_branch with cross context attaches the reference groups.
	text = callTool(t, session, "read_branch", map[string]any{
		"branch":                "frontend",
		"statuses":              []any{"active"},
		"include_cross_context": true,
	})
	var graph models.Graph
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		t.Fatalf("parse read_branch: %v", err)
	}
	if len(graph.Entities) != 1 || len(graph.Entities[0].CrossReferences) != 1 {
		t.Fatalf("cross-references = %+v, want one group on UserAuthForm", graph.Entities)
	}
	if graph.Entities[0].CrossReferences[0].TargetBranch != "backend" {
		t.Errorf("target branch = %q, want backend", graph.Entities[0].CrossReferences[0].TargetBranch)
	}
}

func TestIntegration_ErrorCases(t *testing.T) {
	session := setupIntegration(t)

	errText := callToolExpectError(t, session, "delete_branch", map[string]any{"name": "main"})
	if !strings.Contains(errText, "main") {
		t.Errorf("expected mention of main, got %q", errText)
	}

	errText = callToolExpectError(t, session, "delete_branch", map[string]any{"name": "ghost"})
	if !strings.Contains(errText, "not found") {
		t.Errorf("expected 'not found', got %q", errText)
	}

	callTool(t, session, "create_branch", map[string]any{"name": "docs"})
	errText = callToolExpectError(t, session, "create_branch", map[string]any{"name": "docs"})
	if !strings.Contains(errText, "already exists") {
		t.Errorf("expected 'already exists', got %q", errText)
	}

	errText = callToolExpectError(t, session, "update_entity_status", map[string]any{
		"name": "Ghost", "status": "active",
	})
	if !strings.Contains(errText, "not found") {
		t.Errorf("expected 'not found', got %q", errText)
	}

	errText = callToolExpectError(t, session, "smart_search", map[string]any{
		"query": "anything", "statuses": []any{"bogus"},
	})
	if !strings.Contains(errText, "bogus") {
		t.Errorf("expected the bad status echoed, got %q", errText)
	}

	errText = callToolExpectError(t, session, "create_entities", map[string]any{
		"entities": []any{},
	})
	if !strings.Contains(errText, "required") {
		t.Errorf("expected 'required', got %q", errText)
	}
}
