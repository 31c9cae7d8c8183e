package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/abdidvp/layerfix/internal/bootstrap"
)

const rulesURI = "layerfix://rules"

func registerResources(s *server.MCPServer, app *bootstrap.App) {
	s.AddResource(
		mcplib.NewResource(
			rulesURI,
			"Rule Catalog",
			mcplib.WithResourceDescription("Active layering rules with their rationale"),
			mcplib.WithMIMEType("application/json"),
		),
		handleRulesResource(app),
	)

	s.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			rulesURI+"/{id}",
			"Rule",
			mcplib.WithTemplateDescription("A single rule of the catalog, e.g. layerfix://rules/BL001"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		handleRuleResource(app),
	)
}

func handleRulesResource(app *bootstrap.App) server.ResourceHandlerFunc {
	return func(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		return jsonContents(rulesURI, app.Service.Catalog().Rules())
	}
}

func handleRuleResource(app *bootstrap.App) server.ResourceTemplateHandlerFunc {
	return func(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		uri := request.Params.URI
		id := strings.ToUpper(strings.TrimPrefix(uri, rulesURI+"/"))
		rule, ok := app.Service.Catalog().Rule(id)
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
		return jsonContents(uri, rule)
	}
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
