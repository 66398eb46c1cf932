package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/memory"
	"github.com/branchmem/branchmem/internal/models"
)

// BranchTools holds references needed by branch management tool handlers.
type BranchTools struct {
	Mem *memory.Manager
}

// --- Input types ---

type CreateBranchInput struct {
	Name    string `json:"name" jsonschema:"Unique branch name"`
	Purpose string `json:"purpose,omitempty" jsonschema:"Optional description of what the branch holds"`
}

type DeleteBranchInput struct {
	Name string `json:"name" jsonschema:"Name of the branch to delete (main is protected)"`
}

type ReadBranchInput struct {
	Branch              string   `json:"branch,omitempty" jsonschema:"Branch to read; defaults to main"`
	Statuses            []string `json:"statuses,omitempty" jsonschema:"Status filter; empty matches any status"`
	IncludeCrossContext bool     `json:"include_cross_context,omitempty" jsonschema:"Attach each entity's cross-branch references"`
}

type SuggestBranchInput struct {
	EntityType string `json:"entity_type,omitempty" jsonschema:"Type of the entity being placed"`
	Content    string `json:"content,omitempty" jsonschema:"Content of the entity being placed"`
}

type ExportBranchInput struct {
	Branch string `json:"branch,omitempty" jsonschema:"Branch to export; defaults to main"`
}

type ImportBranchInput struct {
	Branch    string          `json:"branch,omitempty" jsonschema:"Branch to import into; defaults to main"`
	Entities  []EntityInput   `json:"entities,omitempty" jsonschema:"Entities to import"`
	Relations []RelationInput `json:"relations,omitempty" jsonschema:"Relations to import"`
	FilePath  string          `json:"file_path,omitempty" jsonschema:"Line-delimited JSON file to import instead of inline data"`
}

// --- Handlers ---

func (t *BranchTools) ListBranches(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	branches, err := t.Mem.ListBranches(ctx)
	if err != nil {
		return toolError("Failed to list branches: %v", err), nil, nil
	}
	if branches == nil {
		branches = []models.BranchInfo{}
	}
	return toolJSON(branches)
}

func (t *BranchTools) CreateBranch(ctx context.Context, _ *mcp.CallToolRequest, input CreateBranchInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Branch name is required"), nil, nil
	}
	branch, err := t.Mem.CreateBranch(ctx, input.Name, input.Purpose)
	if err != nil {
		return toolError("Failed to create branch: %v", err), nil, nil
	}
	return toolJSON(branch)
}

func (t *BranchTools) DeleteBranch(ctx context.Context, _ *mcp.CallToolRequest, input DeleteBranchInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Branch name is required"), nil, nil
	}
	if err := t.Mem.DeleteBranch(ctx, input.Name); err != nil {
		return toolError("Failed to delete branch: %v", err), nil, nil
	}
	return toolText("Deleted branch " + input.Name + "."), nil, nil
}

func (t *BranchTools) ReadBranch(ctx context.Context, _ *mcp.CallToolRequest, input ReadBranchInput) (*mcp.CallToolResult, any, error) {
	statuses, err := parseStatuses(input.Statuses)
	if err != nil {
		return toolError("Invalid status filter: %v", err), nil, nil
	}
	graph, err := t.Mem.ReadBranch(ctx, input.Branch, statuses, input.IncludeCrossContext)
	if err != nil {
		return toolError("Failed to read branch: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *BranchTools) SuggestBranch(ctx context.Context, _ *mcp.CallToolRequest, input SuggestBranchInput) (*mcp.CallToolResult, any, error) {
	suggestion, err := t.Mem.SuggestBranch(ctx, input.EntityType, input.Content)
	if err != nil {
		return toolError("Failed to suggest branch: %v", err), nil, nil
	}
	return toolJSON(map[string]string{"branch": suggestion})
}

func (t *BranchTools) ExportBranch(ctx context.Context, _ *mcp.CallToolRequest, input ExportBranchInput) (*mcp.CallToolResult, any, error) {
	graph, path, err := t.Mem.Export(ctx, input.Branch)
	if err != nil {
		return toolError("Failed to export branch: %v", err), nil, nil
	}
	return toolJSON(map[string]any{
		"file":      path,
		"entities":  len(graph.Entities),
		"relations": len(graph.Relations),
	})
}

func (t *BranchTools) ImportBranch(ctx context.Context, _ *mcp.CallToolRequest, input ImportBranchInput) (*mcp.CallToolResult, any, error) {
	if input.FilePath != "" {
		result, err := t.Mem.ImportFile(ctx, input.Branch, input.FilePath)
		if err != nil {
			return toolError("Failed to import file: %v", err), nil, nil
		}
		return toolJSON(result)
	}

	graph := models.Graph{}
	for _, e := range input.Entities {
		entity := models.Entity{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Status:       models.EntityStatus(e.Status),
			StatusReason: e.StatusReason,
		}
		for i, content := range e.Observations {
			entity.Observations = append(entity.Observations, models.Observation{
				Content:       content,
				SequenceOrder: i + 1,
			})
		}
		graph.Entities = append(graph.Entities, entity)
	}
	for _, r := range input.Relations {
		graph.Relations = append(graph.Relations, models.Relation{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}

	result, err := t.Mem.Import(ctx, input.Branch, graph)
	if err != nil {
		return toolError("Failed to import graph: %v", err), nil, nil
	}
	return toolJSON(result)
}
