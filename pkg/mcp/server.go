package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// Server lets an agent drive single traffic actions over the Model
// Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	catalog   *traffic.Catalog
	tracker   *traffic.Tracker
	recorders []traffic.Recorder
	logger    *zap.Logger

	mu          sync.Mutex
	invocations int
}

// NewServer creates a new MCP server instance. Every invocation is fed to
// tracker and to the extra recorders.
func NewServer(catalog *traffic.Catalog, tracker *traffic.Tracker, logger *zap.Logger, recorders ...traffic.Recorder) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"trafficgen",
			"1.0.0",
		),
		catalog:   catalog,
		tracker:   tracker,
		recorders: recorders,
		logger:    logger,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"trafficgen://registry",
		"Known Product IDs",
		mcp.WithResourceDescription("Ids of products created by the generator that are still believed to exist"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadRegistry)

	s.mcpServer.AddResource(mcp.NewResource(
		"trafficgen://summary",
		"Invocation Summary",
		mcp.WithResourceDescription("Per action counters for actions invoked through this server"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSummary)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"invoke_action",
		mcp.WithDescription("Run one synthetic traffic action against the target API and return its outcome."),
		mcp.WithString("name", mcp.Required(),
			mcp.Description("Action to run"),
			mcp.Enum(traffic.ActionNames()...),
		),
	), s.handleInvokeAction)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_actions",
		mcp.WithDescription("List the available traffic actions and their default weights."),
	), s.handleListActions)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"trafficgen-aware",
		mcp.WithPromptDescription("Explains the traffic actions and how their outcomes are classified"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadRegistry(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ids, err := s.catalog.Registry().IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return jsonResource(request.Params.URI, map[string]any{"count": len(ids), "ids": ids})
}

func (s *Server) handleReadSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sum := s.tracker.Snapshot()
	return jsonResource(request.Params.URI, map[string]any{"summary": sum, "totals": sum.Totals()})
}

func (s *Server) handleInvokeAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	if name == "" {
		return mcp.NewToolResultError("missing action name"), nil
	}

	out, err := s.catalog.Invoke(ctx, name)
	var cfgErr *traffic.ConfigurationError
	if errors.As(err, &cfgErr) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q, expected one of: %s", name, strings.Join(traffic.ActionNames(), ", "))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invoke failed: %v", err)), nil
	}

	s.mu.Lock()
	s.invocations++
	out.Iteration = s.invocations
	s.mu.Unlock()

	s.logger.Info("action_invoked",
		zap.String("action", out.Action),
		zap.Bool("succeeded", out.Succeeded),
		zap.String("class", string(out.Class)),
		zap.Int("status", out.HTTPStatus),
	)
	for _, r := range append([]traffic.Recorder{s.tracker}, s.recorders...) {
		if err := r.Record(ctx, out); err != nil {
			s.logger.Warn("recorder_failed", zap.String("action", out.Action), zap.Error(err))
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, w := range traffic.DefaultWeights() {
		fmt.Fprintf(&b, "%s (default weight %.2f)\n", w.Name, w.Weight)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "trafficgen-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are driving trafficgen, a synthetic traffic generator for a product catalog API.

Actions:
- create_product: creates a random product and remembers its id.
- query_products: lists all products or searches a term (some terms never match).
- delete_product: deletes a remembered product; does nothing when none are known.
- trigger_error: calls a route that always fails with a server error.
- trigger_slow: calls a deliberately slow query.
- trigger_db_error: provokes one kind of database error.

Outcomes:
- For trigger_error and trigger_db_error an HTTP error IS the success case.
- class "transport" means the target could not be reached.
- class "decode" means the target answered with an unexpected body.
- class "registry" means the product id store failed; nothing was sent.

Use 'invoke_action' to run one action and 'list_actions' to see them all.
`

	return mcp.NewGetPromptResult(
		"trafficgen-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
