package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/plan"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

func toWorkflowModel(wf *workflow.Workflow) (*WorkflowModel, error) {
	planJSON, err := json.Marshal(wf.Plan)
	if err != nil {
		return nil, fmt.Errorf("marshaling plan: %w", err)
	}
	return &WorkflowModel{
		ID:        wf.ID,
		UserID:    wf.UserID,
		Prompt:    wf.Prompt,
		Plan:      JSONB(planJSON),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}, nil
}

func toWorkflowDomain(m *WorkflowModel) (*workflow.Workflow, error) {
	wf := &workflow.Workflow{
		ID:        m.ID,
		UserID:    m.UserID,
		Prompt:    m.Prompt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Plan) > 0 {
		var p plan.Plan
		if err := json.Unmarshal(m.Plan, &p); err != nil {
			return nil, fmt.Errorf("unmarshaling plan for workflow %s: %w", m.ID, err)
		}
		wf.Plan = &p
	}
	return wf, nil
}

func toExecutionModel(ex *workflow.Execution) (*ExecutionModel, error) {
	steps := ex.Steps
	if steps == nil {
		steps = []engine.StepResult{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshaling steps: %w", err)
	}
	return &ExecutionModel{
		ID:         ex.ID,
		WorkflowID: ex.WorkflowID,
		UserID:     ex.UserID,
		Status:     ex.Status,
		Message:    ex.Message,
		Steps:      JSONB(stepsJSON),
		StartedAt:  ex.StartedAt,
		FinishedAt: ex.FinishedAt,
	}, nil
}

func toExecutionDomain(m *ExecutionModel) (*workflow.Execution, error) {
	ex := &workflow.Execution{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		UserID:     m.UserID,
		Status:     m.Status,
		Message:    m.Message,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	if len(m.Steps) > 0 {
		if err := json.Unmarshal(m.Steps, &ex.Steps); err != nil {
			return nil, fmt.Errorf("unmarshaling steps for execution %s: %w", m.ID, err)
		}
	}
	return ex, nil
}

func toCronJobModel(cj *scheduler.CronJob) *CronJobModel {
	return &CronJobModel{
		ID:              cj.ID,
		UserID:          cj.UserID,
		Name:            cj.Name,
		WorkflowID:      cj.WorkflowID,
		CronExpression:  cj.CronExpression,
		Enabled:         cj.Enabled,
		NextRunAt:       cj.NextRunAt,
		LastRunAt:       cj.LastRunAt,
		LastExecutionID: cj.LastExecutionID,
		LastError:       cj.LastError,
		CreatedAt:       cj.CreatedAt,
		UpdatedAt:       cj.UpdatedAt,
	}
}

func toCronJobDomain(m *CronJobModel) *scheduler.CronJob {
	return &scheduler.CronJob{
		ID:              m.ID,
		UserID:          m.UserID,
		Name:            m.Name,
		WorkflowID:      m.WorkflowID,
		CronExpression:  m.CronExpression,
		Enabled:         m.Enabled,
		NextRunAt:       m.NextRunAt,
		LastRunAt:       m.LastRunAt,
		LastExecutionID: m.LastExecutionID,
		LastError:       m.LastError,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
