package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/outing/internal/tools"
)

const preferencesURIPrefix = "user://preferences/"

// MCPTools is the tool surface exposed over MCP. Implemented by
// *tools.Registry.
type MCPTools interface {
	Specs() []tools.Spec
	Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (json.RawMessage, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Tools       MCPTools
	Preferences PreferenceService

	// UserID is used by preference tools when the client omits user_id.
	UserID string
}

// NewMCPServer creates an MCP server exposing every registered tool and the
// preference resources.
func NewMCPServer(deps MCPDeps) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		"outing",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("outing: finds activities and date ideas for saved user preferences."),
		server.WithRecovery(),
	)

	for _, spec := range deps.Tools.Specs() {
		tool, err := mcpTool(spec)
		if err != nil {
			return nil, err
		}
		s.AddTool(tool, mcpInvoke(deps, spec.Name))
	}

	s.AddResource(
		mcp.NewResource(
			"user://users",
			"Users",
			mcp.WithResourceDescription("User ids that have saved preferences"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceUsers(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			preferencesURIPrefix+"{user_id}",
			"User Preferences",
			mcp.WithTemplateDescription("Saved location, interests and budget of a user as JSON"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourcePreferences(deps),
	)

	return s, nil
}

func mcpTool(spec tools.Spec) (mcp.Tool, error) {
	params := spec.Parameters
	if params == nil {
		params = &tools.Schema{Type: "object", Properties: map[string]*tools.Schema{}}
	}
	schema, err := json.Marshal(params)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("encoding schema of %s: %w", spec.Name, err)
	}
	return mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema), nil
}

func mcpInvoke(deps MCPDeps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcpError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if deps.UserID != "" {
			ctx = tools.WithUserID(ctx, deps.UserID)
		}

		out, err := deps.Tools.Invoke(ctx, name, args)
		switch {
		case errors.Is(err, tools.ErrInvalidArguments):
			return mcpError(err.Error()), nil
		case err != nil:
			return mcpError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpResourceUsers(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := deps.Preferences.ListUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		return jsonResource(req.Params.URI, ids)
	}
}

func mcpResourcePreferences(deps MCPDeps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		userID := strings.TrimPrefix(req.Params.URI, preferencesURIPrefix)
		if userID == "" || userID == req.Params.URI {
			return nil, fmt.Errorf("invalid preferences uri %q", req.Params.URI)
		}

		p, err := deps.Preferences.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get preferences: %w", err)
		}
		return jsonResource(req.Params.URI, p)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
