// Package tools contains the MCP tool handlers. Handlers translate tool
// inputs into orchestrator calls and render results as JSON text
// content; domain failures come back as tool errors, not protocol
// errors.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/branchmem/branchmem/internal/models"
)

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// parseStatuses converts status strings into the typed filter, rejecting
// unknown values.
func parseStatuses(raw []string) ([]models.EntityStatus, error) {
	statuses := make([]models.EntityStatus, 0, len(raw))
	for _, s := range raw {
		status := models.EntityStatus(s)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
