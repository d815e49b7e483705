// Package mcpserver exposes the chat tools over the Model Context Protocol,
// so desktop MCP clients can call the same registry the orchestrator uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/version"
)

const implementationName = "littleapp"

// Registry is the tool surface served over MCP.
type Registry interface {
	List() []tool.Definition
	ExecuteSearch(ctx context.Context, name, argsJSON string) tool.Result
}

type Options struct {
	// IncludeSearch exposes search tools. MCP sessions carry no user, so
	// searches made here are not metered.
	IncludeSearch bool
	Logger        *zap.Logger
}

// New builds an MCP server with one MCP tool per registry definition.
func New(reg Registry, opts Options) (*mcp.Server, error) {
	logger := logging.OrNop(opts.Logger)
	server := mcp.NewServer(&mcp.Implementation{Name: implementationName, Version: version.Version}, nil)

	for _, def := range reg.List() {
		if def.Search && !opts.IncludeSearch {
			continue
		}
		var schema map[string]any
		if err := json.Unmarshal(def.Schema, &schema); err != nil {
			return nil, fmt.Errorf("mcpserver: schema of %s: %w", def.Name, err)
		}
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, handler(reg, def.Name, logger))
	}
	return server, nil
}

func handler(reg Registry, name string, logger *zap.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args string
		if req.Params != nil {
			args = string(req.Params.Arguments)
		}
		res := reg.ExecuteSearch(ctx, name, args)
		logger.Debug("mcp tool call", zap.String("tool", name), zap.Int("citations", len(res.Citations)))
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
		}, nil
	}
}

// ServeStdio runs the server over stdin/stdout until ctx is done or the
// client disconnects.
func ServeStdio(ctx context.Context, reg Registry, opts Options) error {
	server, err := New(reg, opts)
	if err != nil {
		return err
	}
	logging.OrNop(opts.Logger).Info("serving MCP over stdio", zap.Bool("search", opts.IncludeSearch))
	return server.Run(ctx, &mcp.StdioTransport{})
}
