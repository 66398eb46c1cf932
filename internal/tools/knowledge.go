package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/memory"
	"github.com/branchmem/branchmem/internal/models"
)

// KnowledgeTools holds references needed by knowledge graph tool handlers.
type KnowledgeTools struct {
	Mem *memory.Manager
}

// --- Input types ---

type CreateEntitiesInput struct {
	Entities            []EntityInput `json:"entities" jsonschema:"Array of entities to create"`
	Branch              string        `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
	AutoCreateRelations *bool         `json:"auto_create_relations,omitempty" jsonschema:"Auto-create high-confidence relations (default true)"`
}

type EntityInput struct {
	Name         string          `json:"name" jsonschema:"Entity name (unique per branch)"`
	EntityType   string          `json:"entity_type" jsonschema:"Entity type (e.g., service, component, concept)"`
	Observations []string        `json:"observations,omitempty" jsonschema:"Initial observations about the entity"`
	Status       string          `json:"status,omitempty" jsonschema:"Lifecycle status: active, deprecated, archived, or draft"`
	StatusReason string          `json:"status_reason,omitempty" jsonschema:"Optional reason for the status"`
	CrossRefs    []CrossRefInput `json:"cross_references,omitempty" jsonschema:"Cross-references to entities in other branches"`
}

type CrossRefInput struct {
	MemoryBranch string   `json:"memoryBranch" jsonschema:"Target branch name"`
	EntityNames  []string `json:"entityNames" jsonschema:"Entity names in the target branch"`
}

type AddObservationsInput struct {
	Observations []ObservationInput `json:"observations" jsonschema:"Array of observations to add"`
	Branch       string             `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type ObservationInput struct {
	EntityName string   `json:"entity_name" jsonschema:"Name of the entity"`
	Contents   []string `json:"contents" jsonschema:"Observation texts to add"`
}

type UpdateEntityStatusInput struct {
	Name   string `json:"name" jsonschema:"Entity name"`
	Status string `json:"status" jsonschema:"New status: active, deprecated, archived, or draft"`
	Reason string `json:"reason,omitempty" jsonschema:"Optional reason for the change"`
	Branch string `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type DeleteEntitiesInput struct {
	Names  []string `json:"names" jsonschema:"Entity names to delete"`
	Branch string   `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type DeleteObservationsInput struct {
	Deletions []DeleteObservationItem `json:"deletions" jsonschema:"Array of observations to delete"`
	Branch    string                  `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type DeleteObservationItem struct {
	EntityName   string   `json:"entity_name" jsonschema:"Name of the entity"`
	Observations []string `json:"observations" jsonschema:"Observation content strings to match and delete"`
}

type CreateRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Array of relations to create"`
	Branch    string          `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type RelationInput struct {
	From         string `json:"from" jsonschema:"Source entity name"`
	To           string `json:"to" jsonschema:"Target entity name"`
	RelationType string `json:"relation_type" jsonschema:"Relation type in active voice (e.g., uses, depends_on, contains)"`
}

type DeleteRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Array of relations to delete"`
	Branch    string          `json:"branch,omitempty" jsonschema:"Target branch; defaults to main"`
}

type CreateCrossReferenceInput struct {
	EntityName   string   `json:"entity_name" jsonschema:"Source entity name"`
	Branch       string   `json:"branch,omitempty" jsonschema:"Source branch; defaults to main"`
	TargetBranch string   `json:"target_branch" jsonschema:"Branch holding the target entities"`
	TargetNames  []string `json:"target_names" jsonschema:"Entity names in the target branch"`
}

// --- Handlers ---

func (t *KnowledgeTools) CreateEntities(ctx context.Context, _ *mcp.CallToolRequest, input CreateEntitiesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Entities) == 0 {
		return toolError("At least one entity is required"), nil, nil
	}

	inputs := make([]models.EntityInput, 0, len(input.Entities))
	for _, e := range input.Entities {
		in := models.EntityInput{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
			Status:       models.EntityStatus(e.Status),
			StatusReason: e.StatusReason,
		}
		for _, xr := range e.CrossRefs {
			in.CrossRefs = append(in.CrossRefs, models.CrossRefGroup{
				TargetBranch: xr.MemoryBranch,
				EntityNames:  xr.EntityNames,
			})
		}
		inputs = append(inputs, in)
	}

	autoRelations := true
	if input.AutoCreateRelations != nil {
		autoRelations = *input.AutoCreateRelations
	}

	result, err := t.Mem.CreateEntities(ctx, input.Branch, inputs, autoRelations)
	if err != nil {
		return toolError("Failed to create entities: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *KnowledgeTools) AddObservations(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	if len(input.Observations) == 0 {
		return toolError("At least one observation is required"), nil, nil
	}

	inputs := make([]models.ObservationInput, 0, len(input.Observations))
	for _, obs := range input.Observations {
		inputs = append(inputs, models.ObservationInput{
			EntityName: obs.EntityName,
			Contents:   obs.Contents,
		})
	}
	results := t.Mem.AddObservations(ctx, input.Branch, inputs)
	return toolJSON(results)
}

func (t *KnowledgeTools) UpdateEntityStatus(ctx context.Context, _ *mcp.CallToolRequest, input UpdateEntityStatusInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" || input.Status == "" {
		return toolError("Entity name and status are required"), nil, nil
	}
	entity, err := t.Mem.UpdateEntityStatus(ctx, input.Branch, input.Name,
		models.EntityStatus(input.Status), input.Reason)
	if err != nil {
		return toolError("Failed to update status: %v", err), nil, nil
	}
	return toolJSON(entity)
}

func (t *KnowledgeTools) DeleteEntities(ctx context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Mem.DeleteEntities(ctx, input.Branch, input.Names)
	if err != nil {
		return toolError("Failed to delete entities: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d entities.", count)), nil, nil
}

func (t *KnowledgeTools) DeleteObservations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteObservationsInput) (*mcp.CallToolResult, any, error) {
	total := 0
	for _, d := range input.Deletions {
		count, err := t.Mem.DeleteObservations(ctx, input.Branch, d.EntityName, d.Observations)
		if err != nil {
			return toolError("Failed to delete observations for %q: %v", d.EntityName, err), nil, nil
		}
		total += count
	}
	return toolText(fmt.Sprintf("Deleted %d observations.", total)), nil, nil
}

func (t *KnowledgeTools) CreateRelations(ctx context.Context, _ *mcp.CallToolRequest, input CreateRelationsInput) (*mcp.CallToolResult, any, error) {
	relations, err := t.Mem.CreateRelations(ctx, input.Branch, toRelationInputs(input.Relations))
	if err != nil {
		return toolError("Failed to create relations: %v", err), nil, nil
	}
	if relations == nil {
		relations = []models.Relation{}
	}
	return toolJSON(relations)
}

func (t *KnowledgeTools) DeleteRelations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Mem.DeleteRelations(ctx, input.Branch, toRelationInputs(input.Relations))
	if err != nil {
		return toolError("Failed to delete relations: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}

func (t *KnowledgeTools) CreateCrossReference(ctx context.Context, _ *mcp.CallToolRequest, input CreateCrossReferenceInput) (*mcp.CallToolResult, any, error) {
	if input.EntityName == "" || input.TargetBranch == "" {
		return toolError("Entity name and target branch are required"), nil, nil
	}
	linked, err := t.Mem.CreateCrossReference(ctx, input.Branch, input.EntityName,
		input.TargetBranch, input.TargetNames)
	if err != nil {
		return toolError("Failed to create cross-reference: %v", err), nil, nil
	}
	return toolJSON(map[string]any{
		"entity":        input.EntityName,
		"target_branch": input.TargetBranch,
		"linked":        linked,
	})
}

func toRelationInputs(relations []RelationInput) []models.RelationInput {
	out := make([]models.RelationInput, 0, len(relations))
	for _, r := range relations {
		out = append(out, models.RelationInput{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}
	return out
}
