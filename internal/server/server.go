// Package server assembles the MCP server from the orchestrator and the
// tool handlers.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/memory"
	"github.com/branchmem/branchmem/internal/tools"
)

// New creates a fully configured MCP server with all tools registered.
func New(mem *memory.Manager) *mcp.Server {
	bt := &tools.BranchTools{Mem: mem}
	kt := &tools.KnowledgeTools{Mem: mem}
	st := &tools.SearchTools{Mem: mem}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "branchmem",
		Version: "0.1.0",
	}, nil)

	// Branch management tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_branches",
		Description: "List all memory branches with entity and relation counts",
	}, bt.ListBranches)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_branch",
		Description: "Create a new memory branch with an optional purpose",
	}, bt.CreateBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_branch",
		Description: "Delete a branch and everything it contains (main is protected)",
	}, bt.DeleteBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_branch",
		Description: "Read the full graph of a branch: entities and relations",
	}, bt.ReadBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "suggest_branch",
		Description: "Suggest the best branch for new content based on branch names and purposes",
	}, bt.SuggestBranch)

	// Knowledge graph tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create entities with compressed content and derived keywords; optionally auto-create high-confidence relations",
	}, kt.CreateEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Append observations to existing entities",
	}, kt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_entity_status",
		Description: "Change an entity's lifecycle status (active, deprecated, archived, draft)",
	}, kt.UpdateEntityStatus)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Delete entities and cascade to their observations, keywords, and relations",
	}, kt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_observations",
		Description: "Delete specific observations from entities by exact content match",
	}, kt.DeleteObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relations",
		Description: "Create directed, typed relations between entities in the same branch",
	}, kt.CreateRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Delete relations identified by source, target, and type",
	}, kt.DeleteRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_cross_reference",
		Description: "Link an entity to entities in another branch by name",
	}, kt.CreateCrossReference)

	// Search and suggestion tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "smart_search",
		Description: "Multi-strategy ranked search across keywords, full-text, and substrings; use branch * to search everywhere",
	}, st.SmartSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_entities",
		Description: "Retrieve entities by exact name with all relations involving them",
	}, st.OpenEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_relationship_suggestions",
		Description: "Get the strongest relationship suggestions the background indexer holds for an entity",
	}, st.RelationshipSuggestions)

	// Maintenance tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "export_branch",
		Description: "Export a branch to a pretty JSON file next to the database",
	}, bt.ExportBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "import_branch",
		Description: "Import entities and relations into a branch, inline or from a line-delimited JSON file",
	}, bt.ImportBranch)

	return srv
}
