// Package mcpserver exposes the automation service over the Model
// Context Protocol. It runs on stdio for a single local user: every
// registered app capability becomes an MCP tool, alongside tools for
// prompt analysis and workflow management. Logs must go to stderr so
// they do not corrupt the stdio framing.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/orchestrator"
	"github.com/jkaninda/blimp/internal/plan"
)

// Config configures the MCP server.
type Config struct {
	Name    string // Server name. Default: "blimp".
	Version string // Server version. Default: "dev".
	UserID  string // The user all tool calls run as. Default: "default".
}

// Server bridges MCP tool calls to the orchestrator service.
type Server struct {
	mcpServer *server.MCPServer
	service   *orchestrator.Service
	registry  *capability.Registry
	userID    string
	logger    *slog.Logger
}

// NewServer creates an MCP server and registers all tools.
func NewServer(cfg Config, svc *orchestrator.Service, registry *capability.Registry, logger *slog.Logger) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "blimp"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.UserID == "" {
		cfg.UserID = "default"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version),
		service:   svc,
		registry:  registry,
		userID:    cfg.UserID,
		logger:    logger,
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP over stdio until the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting",
		slog.String("user_id", s.userID),
		slog.Int("apps", len(s.registry.Apps())))
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) registerTools() error {
	// One tool per registered app capability.
	for _, app := range s.registry.Apps() {
		for _, c := range s.registry.ForApp(app) {
			schema, err := json.Marshal(c.InputSchema())
			if err != nil {
				return fmt.Errorf("capability %s.%s schema: %w", c.App(), c.Name(), err)
			}
			toolName := c.App() + "_" + c.Name()
			s.mcpServer.AddTool(
				mcp.NewToolWithRawSchema(toolName, c.Description(), schema),
				s.capabilityHandler(c.App(), c.Name(), c.Description()),
			)
		}
	}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "analyze_prompt",
		Description: "Turn a natural-language automation request into an executable plan and report which required apps are connected.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The automation request, e.g. \"email my unread Slack mentions to me every morning\".",
				},
			},
			Required: []string{"prompt"},
		},
	}, s.handleAnalyzePrompt)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_workflow",
		Description: "Run a previously analyzed workflow by ID and return the per-step results.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"workflow_id": map[string]any{
					"type":        "string",
					"description": "The workflow UUID returned by analyze_prompt.",
				},
			},
			Required: []string{"workflow_id"},
		},
	}, s.handleExecuteWorkflow)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_workflows",
		Description: "List saved workflows, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleListWorkflows)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_executions",
		Description: "List recent workflow executions with their status, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleListExecutions)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "connected_apps",
		Description: "List the apps with stored credentials for this user.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleConnectedApps)

	return nil
}

// capabilityHandler runs one capability as a single-step plan so token
// refresh, result persistence, and metrics behave exactly as they do
// for full workflows.
func (s *Server) capabilityHandler(app, function, description string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := request.GetArguments()
		if params == nil {
			params = map[string]any{}
		}

		p := &plan.Plan{
			WorkflowType: plan.WorkflowSimple,
			FunctionCalls: []plan.Step{{
				Step:        1,
				App:         app,
				Function:    function,
				Parameters:  params,
				Description: description,
			}},
			RequiredApps: []string{app},
		}

		ex, err := s.service.ExecutePlan(ctx, s.userID, p, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
		}
		if len(ex.Steps) == 0 {
			return mcp.NewToolResultError("execution produced no step result"), nil
		}

		step := ex.Steps[0]
		if !step.Success {
			msg := step.Error
			if step.RequiresReconnect {
				msg += " (reconnect " + app + " to continue)"
			}
			return mcp.NewToolResultError(msg), nil
		}
		return jsonResult(step.Data)
	}
}

func (s *Server) handleAnalyzePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'prompt' argument"), nil
	}

	a, err := s.service.AnalyzePrompt(ctx, s.userID, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	out := map[string]any{
		"workflow_type": a.Workflow.Plan.WorkflowType,
		"plan":          a.Workflow.Plan,
		"readiness":     a.Readiness,
	}
	if a.Workflow.ID != uuid.Nil {
		out["workflow_id"] = a.Workflow.ID.String()
	}
	return jsonResult(out)
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("missing or invalid 'workflow_id' argument"), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("workflow_id is not a valid UUID"), nil
	}

	ex, err := s.service.ExecuteWorkflow(ctx, s.userID, id, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
	}
	return jsonResult(ex)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := s.service.ListWorkflows(ctx, s.userID, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing workflows failed: %v", err)), nil
	}
	return jsonResult(workflows)
}

func (s *Server) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executions, err := s.service.ListExecutions(ctx, s.userID, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing executions failed: %v", err)), nil
	}
	return jsonResult(executions)
}

func (s *Server) handleConnectedApps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apps, err := s.service.ConnectedApps(ctx, s.userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing apps failed: %v", err)), nil
	}
	if apps == nil {
		apps = []string{}
	}
	return jsonResult(map[string]any{"apps": apps})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
