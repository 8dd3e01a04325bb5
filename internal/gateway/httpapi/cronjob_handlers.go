package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/blimp/internal/scheduler"
)

// **** CronJob request/response types ****

// CronJobRequest is the JSON body for POST/PUT /v1/cronjobs.
type CronJobRequest struct {
	Name           string `json:"name"`
	WorkflowID     string `json:"workflow_id"`
	CronExpression string `json:"cron_expression"`
	Enabled        *bool  `json:"enabled,omitempty"` // Pointer to distinguish absent from false.
}

// CronJobResponse is the JSON response for cron job endpoints.
type CronJobResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	WorkflowID      string     `json:"workflow_id"`
	CronExpression  string     `json:"cron_expression"`
	Enabled         bool       `json:"enabled"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID string     `json:"last_execution_id,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toCronJobResponse(cj *scheduler.CronJob) CronJobResponse {
	resp := CronJobResponse{
		ID:             cj.ID.String(),
		Name:           cj.Name,
		WorkflowID:     cj.WorkflowID.String(),
		CronExpression: cj.CronExpression,
		Enabled:        cj.Enabled,
		NextRunAt:      cj.NextRunAt,
		LastRunAt:      cj.LastRunAt,
		LastError:      cj.LastError,
		CreatedAt:      cj.CreatedAt,
		UpdatedAt:      cj.UpdatedAt,
	}
	if cj.LastExecutionID != nil {
		resp.LastExecutionID = cj.LastExecutionID.String()
	}
	return resp
}

// registerCronJobRoutes attaches the cron job endpoints to the /v1 group.
func (g *Gateway) registerCronJobRoutes() {
	g.group.Post("/cronjobs", g.handleCronJobCreate,
		okapi.DocSummary("Create a cron job for a saved workflow"),
		okapi.DocTags("CronJobs"),
		okapi.DocRequestBody(CronJobRequest{}),
		okapi.DocResponse(CronJobResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/cronjobs", g.handleCronJobList,
		okapi.DocSummary("List the user's cron jobs"),
		okapi.DocTags("CronJobs"),
		okapi.DocResponse([]CronJobResponse{}),
	)
	g.group.Get("/cronjobs/{id}", g.handleCronJobGet,
		okapi.DocSummary("Get a cron job by ID"),
		okapi.DocTags("CronJobs"),
		okapi.DocPathParam("id", "string", "CronJob ID (UUID)"),
		okapi.DocResponse(CronJobResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/cronjobs/{id}", g.handleCronJobUpdate,
		okapi.DocSummary("Update a cron job"),
		okapi.DocTags("CronJobs"),
		okapi.DocPathParam("id", "string", "CronJob ID (UUID)"),
		okapi.DocRequestBody(CronJobRequest{}),
		okapi.DocResponse(CronJobResponse{}),
	)
	g.group.Delete("/cronjobs/{id}", g.handleCronJobDelete,
		okapi.DocSummary("Delete a cron job"),
		okapi.DocTags("CronJobs"),
		okapi.DocPathParam("id", "string", "CronJob ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
	)
	g.group.Post("/cronjobs/{id}/trigger", g.handleCronJobTrigger,
		okapi.DocSummary("Run a cron job's workflow immediately"),
		okapi.DocTags("CronJobs"),
		okapi.DocPathParam("id", "string", "CronJob ID (UUID)"),
		okapi.DocResponse(ExecutionResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
}

// **** Handlers ****

func (g *Gateway) handleCronJobCreate(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req CronJobRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Name == "" {
		return c.AbortBadRequest("name is required")
	}
	if req.CronExpression == "" {
		return c.AbortBadRequest("cron_expression is required")
	}
	workflowID, err := uuid.Parse(req.WorkflowID)
	if err != nil {
		return c.AbortBadRequest("invalid workflow_id")
	}

	// The workflow must exist and belong to the caller.
	if _, err := g.service.GetWorkflow(c.Context(), userID, workflowID); err != nil {
		return serviceError(c, err, "loading workflow failed")
	}

	now := time.Now().UTC()
	nextRun, err := scheduler.NextRun(req.CronExpression, now)
	if err != nil {
		return c.AbortBadRequest(fmt.Sprintf("invalid cron_expression: %v", err))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cj := &scheduler.CronJob{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           req.Name,
		WorkflowID:     workflowID,
		CronExpression: req.CronExpression,
		Enabled:        enabled,
		NextRunAt:      &nextRun,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := g.cronStore.Create(c.Context(), cj); err != nil {
		g.logger.Error("cron job creation failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to create cron job")
	}

	g.logger.Info("cron job created",
		slog.String("cronjob_id", cj.ID.String()),
		slog.String("user_id", userID),
		slog.String("cron_expression", cj.CronExpression),
	)

	return c.JSON(http.StatusCreated, toCronJobResponse(cj))
}

func (g *Gateway) handleCronJobList(c *okapi.Context) error {
	userID := c.GetString("userID")

	jobs, err := g.cronStore.ListByUser(c.Context(), userID)
	if err != nil {
		return c.AbortInternalServerError("failed to list cron jobs")
	}

	resp := make([]CronJobResponse, len(jobs))
	for i := range jobs {
		resp[i] = toCronJobResponse(&jobs[i])
	}
	return c.OK(resp)
}

// ownedCronJob loads a cron job and enforces that it belongs to userID.
func (g *Gateway) ownedCronJob(c *okapi.Context, userID string) (*scheduler.CronJob, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, c.AbortBadRequest("invalid cron job ID")
	}
	cj, err := g.cronStore.Get(c.Context(), id)
	if err != nil || cj.UserID != userID {
		// Ownership mismatch reads as not-found so IDs cannot be probed.
		return nil, c.JSON(http.StatusNotFound, okapi.M{"error": "cron job not found"})
	}
	return cj, nil
}

func (g *Gateway) handleCronJobGet(c *okapi.Context) error {
	userID := c.GetString("userID")
	cj, err := g.ownedCronJob(c, userID)
	if cj == nil {
		return err
	}
	return c.OK(toCronJobResponse(cj))
}

func (g *Gateway) handleCronJobUpdate(c *okapi.Context) error {
	userID := c.GetString("userID")
	cj, abort := g.ownedCronJob(c, userID)
	if cj == nil {
		return abort
	}

	var req CronJobRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	if req.Name != "" {
		cj.Name = req.Name
	}
	if req.CronExpression != "" {
		nextRun, cronErr := scheduler.NextRun(req.CronExpression, time.Now().UTC())
		if cronErr != nil {
			return c.AbortBadRequest(fmt.Sprintf("invalid cron_expression: %v", cronErr))
		}
		cj.CronExpression = req.CronExpression
		cj.NextRunAt = &nextRun
	}
	if req.Enabled != nil {
		cj.Enabled = *req.Enabled
	}

	// UserID and WorkflowID are not updatable. The job always runs as its
	// creator against the workflow it was created for.
	cj.UpdatedAt = time.Now().UTC()

	if err := g.cronStore.Update(c.Context(), cj); err != nil {
		return c.AbortInternalServerError("failed to update cron job")
	}

	g.logger.Info("cron job updated",
		slog.String("cronjob_id", cj.ID.String()),
		slog.String("user_id", userID),
	)

	return c.OK(toCronJobResponse(cj))
}

func (g *Gateway) handleCronJobDelete(c *okapi.Context) error {
	userID := c.GetString("userID")
	cj, abort := g.ownedCronJob(c, userID)
	if cj == nil {
		return abort
	}

	if err := g.cronStore.Delete(c.Context(), cj.ID); err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "cron job not found"})
	}

	g.logger.Info("cron job deleted",
		slog.String("cronjob_id", cj.ID.String()),
		slog.String("user_id", userID),
	)

	return c.OK(map[string]string{"status": "deleted"})
}

func (g *Gateway) handleCronJobTrigger(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	cj, abort := g.ownedCronJob(c, userID)
	if cj == nil {
		return abort
	}

	ex, err := g.service.ExecuteWorkflow(c.Context(), userID, cj.WorkflowID, nil)
	if err != nil {
		g.logger.Error("cron job manual trigger failed",
			slog.String("cronjob_id", cj.ID.String()),
			slog.String("error", err.Error()),
		)
		return serviceError(c, err, "execution failed")
	}

	g.logger.Info("cron job manually triggered",
		slog.String("cronjob_id", cj.ID.String()),
		slog.String("user_id", userID),
		slog.String("execution_id", ex.ID.String()),
	)

	return c.JSON(http.StatusAccepted, executionResponse(ex))
}
