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
	"time"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// WorkflowRepository handles workflow file operations. Workflows live under
// <root>/<tenant>/workflows/<workflow_id>.json.
type WorkflowRepository struct {
	root string
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir(tenantID string) string {
	return filepath.Join(wr.root, tenantID, "workflows")
}

func (wr *WorkflowRepository) path(tenantID, workflowID string) string {
	return filepath.Join(wr.dir(tenantID), workflowID+".json")
}

func (wr *WorkflowRepository) Create(_ context.Context, workflow *models.Workflow) error {
	if _, err := os.Stat(wr.path(workflow.TenantID, workflow.WorkflowID)); err == nil {
		return persistence.NewWorkflowError("CreateWorkflow", workflow.TenantID, workflow.WorkflowID, persistence.ErrWorkflowExists)
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	return wr.write(workflow)
}

func (wr *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	current, err := wr.GetByID(ctx, workflow.TenantID, workflow.WorkflowID)
	if err != nil {
		return err
	}

	err = persistence.ValidateTransition(current.Status, workflow.Status)
	if err != nil {
		return persistence.NewWorkflowError("UpdateWorkflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	return wr.write(workflow)
}

func (wr *WorkflowRepository) GetByID(_ context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	data, err := os.ReadFile(wr.path(tenantID, workflowID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("WorkflowByID", tenantID, workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", workflowID, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) List(ctx context.Context, tenantID string, filter persistence.WorkflowFilter) ([]*models.Workflow, int64, error) {
	all, err := wr.loadAll(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if filter.Status != nil && workflow.Status != *filter.Status {
			continue
		}

		if filter.Type != nil && workflow.Type != *filter.Type {
			continue
		}

		matched = append(matched, workflow)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}

	matched = matched[offset:]

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, total, nil
}

func (wr *WorkflowRepository) Statistics(ctx context.Context, tenantID string) (*persistence.WorkflowStatistics, error) {
	all, err := wr.loadAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &persistence.WorkflowStatistics{
		TotalCount: int64(len(all)),
		ByStatus:   make(map[models.WorkflowStatus]int64),
		ByType:     make(map[models.WorkflowType]int64),
	}

	var (
		totalDuration time.Duration
		finished      int64
	)

	for _, workflow := range all {
		stats.ByStatus[workflow.Status]++
		stats.ByType[workflow.Type]++

		if workflow.StartedAt != nil && workflow.CompletedAt != nil {
			totalDuration += workflow.CompletedAt.Sub(*workflow.StartedAt)
			finished++
		}
	}

	if finished > 0 {
		stats.AverageDuration = totalDuration / time.Duration(finished)
	}

	return stats, nil
}

func (wr *WorkflowRepository) loadAll(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(wr.dir(tenantID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.Workflow{}, nil
		}

		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		workflowID := entry.Name()[:len(entry.Name())-len(".json")]

		workflow, err := wr.GetByID(ctx, tenantID, workflowID)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) write(workflow *models.Workflow) error {
	err := os.MkdirAll(wr.dir(workflow.TenantID), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", workflow.WorkflowID, err)
	}

	err = os.WriteFile(wr.path(workflow.TenantID, workflow.WorkflowID), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}

	return nil
}
