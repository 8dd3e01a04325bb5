// Package httpapi implements the HTTP API gateway for Blimp.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/observability"
	"github.com/jkaninda/blimp/internal/orchestrator"
	"github.com/jkaninda/blimp/internal/plan"
	"github.com/jkaninda/blimp/internal/ratelimit"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → user ID mapping.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config    Config
	service   *orchestrator.Service
	cronStore scheduler.CronJobStore // nil = cron endpoints disabled.
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	server    *http.Server
	okapi     *okapi.Okapi
	group     *okapi.Group
}

// NewGateway creates an HTTP API gateway over the orchestrator service.
func NewGateway(cfg Config, svc *orchestrator.Service, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		service: svc,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithCronJobs attaches cron job management endpoints to the gateway.
func (g *Gateway) WithCronJobs(store scheduler.CronJobStore) *Gateway {
	g.cronStore = store
	return g
}

// WithOpenAPIDocs enables the interactive OpenAPI documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Blimp",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	middlewares := []okapi.Middleware{g.authenticate}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append([]okapi.Middleware{
			observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer),
		}, middlewares...)
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/prompt", g.handlePrompt,
		okapi.DocSummary("Analyze a prompt into an executable workflow"),
		okapi.DocTags("Workflows"),
		okapi.DocRequestBody(PromptRequest{}),
		okapi.DocResponse(PromptResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/execute", g.handleExecute,
		okapi.DocSummary("Execute a saved workflow or an ad hoc plan"),
		okapi.DocTags("Executions"),
		okapi.DocRequestBody(ExecuteRequest{}),
		okapi.DocResponse(ExecutionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/executions", g.handleExecutionList,
		okapi.DocSummary("List recent executions"),
		okapi.DocTags("Executions"),
		okapi.DocResponse([]ExecutionResponse{}),
	)
	g.group.Get("/executions/{id}", g.handleExecutionGet,
		okapi.DocSummary("Get an execution by ID"),
		okapi.DocTags("Executions"),
		okapi.DocPathParam("id", "string", "Execution ID (UUID)"),
		okapi.DocResponse(ExecutionResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/workflows", g.handleWorkflowList,
		okapi.DocSummary("List saved workflows"),
		okapi.DocTags("Workflows"),
		okapi.DocResponse([]WorkflowResponse{}),
	)
	g.group.Get("/workflows/{id}", g.handleWorkflowGet,
		okapi.DocSummary("Get a saved workflow by ID"),
		okapi.DocTags("Workflows"),
		okapi.DocPathParam("id", "string", "Workflow ID (UUID)"),
		okapi.DocResponse(WorkflowResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// App connection endpoints.
	g.group.Post("/apps/connect", g.handleAppConnect,
		okapi.DocSummary("Store OAuth credentials for an app"),
		okapi.DocTags("Apps"),
		okapi.DocRequestBody(ConnectRequest{}),
		okapi.DocResponse(ConnectResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/apps", g.handleAppList,
		okapi.DocSummary("List connected apps"),
		okapi.DocTags("Apps"),
		okapi.DocResponse(AppsResponse{}),
	)
	g.group.Delete("/apps/{app}", g.handleAppDisconnect,
		okapi.DocSummary("Remove stored credentials for an app"),
		okapi.DocTags("Apps"),
		okapi.DocPathParam("app", "string", "App name (e.g. gmail)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	if g.cronStore != nil {
		g.registerCronJobRoutes()
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Prompt analysis ---

// PromptRequest is the JSON body for POST /v1/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// PromptResponse is the JSON response for POST /v1/prompt.
type PromptResponse struct {
	WorkflowID   string           `json:"workflow_id,omitempty"` // Empty for error-typed plans.
	WorkflowType string           `json:"workflow_type"`
	Plan         *plan.Plan       `json:"plan"`
	Readiness    *engineReadiness `json:"readiness"`
}

// engineReadiness mirrors engine.Readiness for documentation purposes.
type engineReadiness struct {
	Status      string   `json:"status"`
	MissingApps []string `json:"missing_apps,omitempty"`
}

func (g *Gateway) handlePrompt(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.AbortBadRequest("prompt is required")
	}

	a, err := g.service.AnalyzePrompt(c.Context(), userID, req.Prompt)
	if err != nil {
		g.logger.Error("prompt analysis failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return c.AbortInternalServerError("prompt analysis failed")
	}

	resp := PromptResponse{
		WorkflowType: string(a.Workflow.Plan.WorkflowType),
		Plan:         a.Workflow.Plan,
		Readiness: &engineReadiness{
			Status:      a.Readiness.Status,
			MissingApps: a.Readiness.MissingApps,
		},
	}
	if a.Workflow.ID != uuid.Nil {
		resp.WorkflowID = a.Workflow.ID.String()
	}
	return c.OK(resp)
}

// --- Execution ---

// ExecuteRequest is the JSON body for POST /v1/execute. Exactly one of
// WorkflowID or Plan must be set.
type ExecuteRequest struct {
	WorkflowID string         `json:"workflow_id,omitempty"`
	Plan       *plan.Plan     `json:"plan,omitempty"`
	Overrides  map[string]any `json:"overrides,omitempty"` // Merged into every step's parameters; an override always wins.
}

// ExecutionResponse is the JSON shape of one execution record.
type ExecutionResponse struct {
	ID         string              `json:"id"`
	WorkflowID string              `json:"workflow_id,omitempty"`
	Status     string              `json:"status"`
	Message    string              `json:"message,omitempty"`
	Steps      []engine.StepResult `json:"steps"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

func executionResponse(ex *workflow.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:         ex.ID.String(),
		Status:     ex.Status,
		Message:    ex.Message,
		Steps:      ex.Steps,
		StartedAt:  ex.StartedAt,
		FinishedAt: ex.FinishedAt,
	}
	if ex.WorkflowID != uuid.Nil {
		resp.WorkflowID = ex.WorkflowID.String()
	}
	return resp
}

func (g *Gateway) handleExecute(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	var (
		ex  *workflow.Execution
		err error
	)
	switch {
	case req.WorkflowID != "" && req.Plan != nil:
		return c.AbortBadRequest("provide workflow_id or plan, not both")
	case req.WorkflowID != "":
		id, parseErr := uuid.Parse(req.WorkflowID)
		if parseErr != nil {
			return c.AbortBadRequest("invalid workflow_id")
		}
		ex, err = g.service.ExecuteWorkflow(c.Context(), userID, id, req.Overrides)
	case req.Plan != nil:
		ex, err = g.service.ExecutePlan(c.Context(), userID, req.Plan, req.Overrides)
	default:
		return c.AbortBadRequest("workflow_id or plan is required")
	}
	if err != nil {
		return serviceError(c, err, "execution failed")
	}
	return c.OK(executionResponse(ex))
}

func (g *Gateway) handleExecutionGet(c *okapi.Context) error {
	userID := c.GetString("userID")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid execution ID")
	}
	ex, err := g.service.GetExecution(c.Context(), userID, id)
	if err != nil {
		return serviceError(c, err, "loading execution failed")
	}
	return c.OK(executionResponse(ex))
}

func (g *Gateway) handleExecutionList(c *okapi.Context) error {
	userID := c.GetString("userID")
	executions, err := g.service.ListExecutions(c.Context(), userID, queryLimit(c))
	if err != nil {
		return c.AbortInternalServerError("listing executions failed")
	}
	resp := make([]ExecutionResponse, len(executions))
	for i := range executions {
		resp[i] = executionResponse(&executions[i])
	}
	return c.OK(resp)
}

// --- Workflows ---

// WorkflowResponse is the JSON shape of one saved workflow.
type WorkflowResponse struct {
	ID        string     `json:"id"`
	Prompt    string     `json:"prompt"`
	Plan      *plan.Plan `json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
}

func (g *Gateway) handleWorkflowGet(c *okapi.Context) error {
	userID := c.GetString("userID")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid workflow ID")
	}
	wf, err := g.service.GetWorkflow(c.Context(), userID, id)
	if err != nil {
		return serviceError(c, err, "loading workflow failed")
	}
	return c.OK(WorkflowResponse{
		ID:        wf.ID.String(),
		Prompt:    wf.Prompt,
		Plan:      wf.Plan,
		CreatedAt: wf.CreatedAt,
	})
}

func (g *Gateway) handleWorkflowList(c *okapi.Context) error {
	userID := c.GetString("userID")
	workflows, err := g.service.ListWorkflows(c.Context(), userID, queryLimit(c))
	if err != nil {
		return c.AbortInternalServerError("listing workflows failed")
	}
	resp := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		resp[i] = WorkflowResponse{
			ID:        wf.ID.String(),
			Prompt:    wf.Prompt,
			Plan:      wf.Plan,
			CreatedAt: wf.CreatedAt,
		}
	}
	return c.OK(resp)
}

// --- Apps ---

// ConnectRequest is the JSON body for POST /v1/apps/connect.
type ConnectRequest struct {
	App     string         `json:"app"`
	Payload map[string]any `json:"payload"` // Raw OAuth callback payload.
}

// ConnectResponse confirms a stored connection.
type ConnectResponse struct {
	App    string `json:"app"`
	Status string `json:"status"`
}

// AppsResponse lists the user's connected apps.
type AppsResponse struct {
	Apps []string `json:"apps"`
}

func (g *Gateway) handleAppConnect(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.App == "" {
		return c.AbortBadRequest("app is required")
	}
	if err := g.service.ConnectApp(c.Context(), userID, req.App, req.Payload); err != nil {
		return c.AbortBadRequest(err.Error())
	}
	return c.OK(ConnectResponse{App: req.App, Status: "connected"})
}

func (g *Gateway) handleAppList(c *okapi.Context) error {
	userID := c.GetString("userID")
	apps, err := g.service.ConnectedApps(c.Context(), userID)
	if err != nil {
		return c.AbortInternalServerError("listing apps failed")
	}
	if apps == nil {
		apps = []string{}
	}
	return c.OK(AppsResponse{Apps: apps})
}

func (g *Gateway) handleAppDisconnect(c *okapi.Context) error {
	userID := c.GetString("userID")
	app := c.Param("app")
	if err := g.service.DisconnectApp(c.Context(), userID, app); err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "app not connected"})
	}
	return c.OK(map[string]string{"status": "disconnected"})
}

// --- Health ---

// HealthResponse is the JSON response for liveness probes.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on
// the request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// --- Helpers ---

func (g *Gateway) allow(userID string) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Allow(userID)
}

// serviceError maps orchestrator errors to HTTP responses.
func serviceError(c *okapi.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "not found"})
	case errors.Is(err, orchestrator.ErrForbidden):
		return c.JSON(http.StatusForbidden, okapi.M{"error": "forbidden"})
	default:
		return c.AbortInternalServerError(fallback)
	}
}

// queryLimit reads an optional ?limit= parameter, capped at 1000.
func queryLimit(c *okapi.Context) int {
	v := c.Request().URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	if n > 1000 {
		return 1000
	}
	return n
}
