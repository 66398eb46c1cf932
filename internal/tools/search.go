package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/memory"
)

// SearchTools holds references needed by search and suggestion handlers.
type SearchTools struct {
	Mem *memory.Manager
}

// --- Input types ---

type SmartSearchInput struct {
	Query        string   `json:"query" jsonschema:"Search query"`
	Branch       string   `json:"branch,omitempty" jsonschema:"Branch to search, or * for all branches; defaults to main"`
	Statuses     []string `json:"statuses,omitempty" jsonschema:"Status filter; defaults to active"`
	ContextDepth int      `json:"context_depth,omitempty" jsonschema:"Similarity expansion depth 1-3; defaults to 2"`
}

type OpenEntitiesInput struct {
	Names    []string `json:"names" jsonschema:"Exact entity names to retrieve"`
	Branch   string   `json:"branch,omitempty" jsonschema:"Branch to read from; defaults to main"`
	Statuses []string `json:"statuses,omitempty" jsonschema:"Status filter; empty matches any status"`
}

type RelationshipSuggestionsInput struct {
	Name   string `json:"name" jsonschema:"Entity to fetch suggestions for"`
	Branch string `json:"branch,omitempty" jsonschema:"Branch of the entity; defaults to main"`
}

// --- Handlers ---

func (t *SearchTools) SmartSearch(ctx context.Context, _ *mcp.CallToolRequest, input SmartSearchInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Search query is required"), nil, nil
	}
	statuses, err := parseStatuses(input.Statuses)
	if err != nil {
		return toolError("Invalid status filter: %v", err), nil, nil
	}

	resp, err := t.Mem.Search(ctx, input.Query, input.Branch, statuses, input.ContextDepth)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	return toolJSON(resp)
}

func (t *SearchTools) OpenEntities(ctx context.Context, _ *mcp.CallToolRequest, input OpenEntitiesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Names) == 0 {
		return toolError("At least one entity name is required"), nil, nil
	}
	statuses, err := parseStatuses(input.Statuses)
	if err != nil {
		return toolError("Invalid status filter: %v", err), nil, nil
	}

	graph, err := t.Mem.OpenEntities(ctx, input.Branch, input.Names, statuses)
	if err != nil {
		return toolError("Failed to open entities: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *SearchTools) RelationshipSuggestions(ctx context.Context, _ *mcp.CallToolRequest, input RelationshipSuggestionsInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Entity name is required"), nil, nil
	}
	suggestions, err := t.Mem.RelationshipSuggestions(ctx, input.Branch, input.Name)
	if err != nil {
		return toolError("Failed to get suggestions: %v", err), nil, nil
	}
	return toolJSON(suggestions)
}
