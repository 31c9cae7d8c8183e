package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/output"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/scanner"
	"github.com/abdidvp/layerfix/internal/bootstrap"
	"github.com/abdidvp/layerfix/internal/domain"
)

// reserved arguments are never taken as source files.
var reserved = map[string]bool{"files": true, "dry_run": true, "rules": true, "project": true}

func registerTools(s *server.MCPServer, app *bootstrap.App) {
	s.AddTool(
		mcplib.NewTool("fix_from_json",
			mcplib.WithDescription("Fix layering violations in Java sources. Input: files, a map of path or logical name to source. "+
				"Output: the run report; its \"fixed\" member maps every changed or created file to its new source."),
			mcplib.WithObject("files", mcplib.Description("Map of path or logical name to Java source")),
			mcplib.WithBoolean("dry_run", mcplib.Description("Plan and generate without applying patches")),
			mcplib.WithString("rules", mcplib.Description("Comma-separated rule ids to fix, e.g. BL001,BL003")),
		),
		handleFixFromJSON(app),
	)

	s.AddTool(
		mcplib.NewTool("fix_from_zipbytes",
			mcplib.WithDescription("Fix layering violations in a zipped Java project. Input: base64-encoded zip bytes. "+
				"Output: base64-encoded zip of the fixed project with layerfix-report.json."),
			mcplib.WithString("zip_b64", mcplib.Required(), mcplib.Description("Base64-encoded zip archive")),
			mcplib.WithBoolean("dry_run", mcplib.Description("Plan and generate without applying patches")),
			mcplib.WithString("rules", mcplib.Description("Comma-separated rule ids to fix")),
		),
		handleFixFromZip(app),
	)

	s.AddTool(
		mcplib.NewTool("detect_from_json",
			mcplib.WithDescription("Classify Java sources by layer and report rule violations without changing anything"),
			mcplib.WithObject("files", mcplib.Required(), mcplib.Description("Map of path or logical name to Java source")),
		),
		handleDetectFromJSON(app),
	)

	s.AddTool(
		mcplib.NewTool("list_rules",
			mcplib.WithDescription("Returns the active rule catalog as JSON"),
		),
		handleListRules(app),
	)
}

func handleFixFromJSON(app *bootstrap.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		if _, err := app.Fixer(); err != nil {
			return errorResult(err.Error()), nil
		}
		args := request.GetArguments()
		sources := sourcesFrom(args)
		if len(sources) == 0 {
			return errorResult("Empty payload"), nil
		}
		project, err := scanner.FromSources(projectName(args), sources)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		rep, err := app.Run(ctx, project, fixOptions(args))
		if err != nil {
			return errorResult(fmt.Sprintf("fix failed: %v", err)), nil
		}
		return jsonResult(rep)
	}
}

func handleFixFromZip(app *bootstrap.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		if _, err := app.Fixer(); err != nil {
			return errorResult(err.Error()), nil
		}
		encoded, err := request.RequireString("zip_b64")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return errorResult(fmt.Sprintf("decoding zip_b64: %v", err)), nil
		}

		args := request.GetArguments()
		project, err := app.Loader.LoadZip(ctx, projectName(args)+".zip", data)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if len(project.Files) == 0 {
			return errorResult("No Java files found in zip"), nil
		}
		rep, err := app.Run(ctx, project, fixOptions(args))
		if err != nil {
			return errorResult(fmt.Sprintf("fix failed: %v", err)), nil
		}
		archive, err := output.ZipReport(ctx, output.Merge(project.Files, rep.Fixed), rep)
		if err != nil {
			app.Logger.Error("zipping fixed project", zap.Error(err))
			return errorResult(fmt.Sprintf("zipping fixed project: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"zip_b64": base64.StdEncoding.EncodeToString(archive),
			"success": rep.Success,
			"counts":  rep.Counts,
		})
	}
}

func handleDetectFromJSON(app *bootstrap.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		sources := sourcesFrom(args)
		if len(sources) == 0 {
			return errorResult("Empty payload"), nil
		}
		project, err := scanner.FromSources(projectName(args), sources)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		rep, err := app.Service.Detect(ctx, project)
		if err != nil {
			return errorResult(fmt.Sprintf("detect failed: %v", err)), nil
		}
		return jsonResult(rep)
	}
}

func handleListRules(app *bootstrap.App) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return jsonResult(app.Service.Catalog().Rules())
	}
}

// sourcesFrom reads the "files" object. Without it, every other string
// argument is taken as a source, which is the shape older clients send.
func sourcesFrom(args map[string]any) map[string]string {
	out := map[string]string{}
	if files, ok := args["files"].(map[string]any); ok {
		for name, v := range files {
			if src, ok := v.(string); ok {
				out[name] = src
			}
		}
		return out
	}
	for name, v := range args {
		if src, ok := v.(string); ok && !reserved[name] {
			out[name] = src
		}
	}
	return out
}

func projectName(args map[string]any) string {
	if name, ok := args["project"].(string); ok && name != "" {
		return name
	}
	return "mcp"
}

func fixOptions(args map[string]any) domain.FixOptions {
	var opts domain.FixOptions
	opts.DryRun, _ = args["dry_run"].(bool)
	if ids, ok := args["rules"].(string); ok {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.Rules = append(opts.Rules, strings.ToUpper(id))
			}
		}
	}
	return opts
}

// jsonResult marshals v to JSON and returns it as a text content result.
func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(string(data))},
	}, nil
}

// errorResult returns a tool result that indicates an error occurred.
func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(msg)},
		IsError: true,
	}
}
