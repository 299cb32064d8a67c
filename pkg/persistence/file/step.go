package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// StepRepository handles step file operations. Steps live under
// <root>/<tenant>/steps/<workflow_id>/<step_id>.json.
type StepRepository struct {
	root string
}

// NewStepRepository creates a new step repository.
func NewStepRepository(root string) *StepRepository {
	return &StepRepository{root: root}
}

func (sr *StepRepository) dir(tenantID, workflowID string) string {
	return filepath.Join(sr.root, tenantID, "steps", workflowID)
}

func (sr *StepRepository) path(step *models.WorkflowStep) string {
	return filepath.Join(sr.dir(step.TenantID, step.WorkflowID), step.ID+".json")
}

func (sr *StepRepository) Create(_ context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step id: %w", err)
		}

		step.ID = id.String()
	}

	return sr.write(step)
}

func (sr *StepRepository) Update(_ context.Context, step *models.WorkflowStep) error {
	current, err := sr.read(step)
	if err != nil {
		return err
	}

	err = persistence.ValidateStepTransition(current.Status, step.Status)
	if err != nil {
		return &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: err}
	}

	return sr.write(step)
}

func (sr *StepRepository) read(step *models.WorkflowStep) (*models.WorkflowStep, error) {
	data, err := os.ReadFile(sr.path(step))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: persistence.ErrStepNotFound}
		}

		return nil, fmt.Errorf("failed to read step file: %w", err)
	}

	var current models.WorkflowStep

	err = json.Unmarshal(data, &current)
	if err != nil {
		return nil, fmt.Errorf("failed to decode step %s: %w", step.ID, err)
	}

	return &current, nil
}

func (sr *StepRepository) ListByWorkflow(_ context.Context, tenantID, workflowID string) ([]*models.WorkflowStep, error) {
	entries, err := os.ReadDir(sr.dir(tenantID, workflowID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.WorkflowStep{}, nil
		}

		return nil, fmt.Errorf("failed to list step files: %w", err)
	}

	steps := make([]*models.WorkflowStep, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(sr.dir(tenantID, workflowID), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read step file: %w", err)
		}

		var step models.WorkflowStep

		err = json.Unmarshal(data, &step)
		if err != nil {
			return nil, fmt.Errorf("failed to decode step %s: %w", entry.Name(), err)
		}

		steps = append(steps, &step)
	}

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StartedAt != nil && steps[j].StartedAt != nil && !steps[i].StartedAt.Equal(*steps[j].StartedAt) {
			return steps[i].StartedAt.Before(*steps[j].StartedAt)
		}

		return steps[i].SequenceNumber < steps[j].SequenceNumber
	})

	return steps, nil
}

func (sr *StepRepository) write(step *models.WorkflowStep) error {
	err := os.MkdirAll(sr.dir(step.TenantID, step.WorkflowID), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create step directory: %w", err)
	}

	data, err := json.MarshalIndent(step, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode step %s: %w", step.ID, err)
	}

	err = os.WriteFile(sr.path(step), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write step file: %w", err)
	}

	return nil
}
