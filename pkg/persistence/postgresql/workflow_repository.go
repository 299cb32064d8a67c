package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , workflow_id
  , tenant_id
  , workflow_type
  , status
  , input_data
  , context
  , output_data
  , error_message
  , error_details
  , retry_count
  , max_retries
  , initiator_id
  , initiator_type
  , created_at
  , started_at
  , completed_at
`

func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow row ID: %w", err)
		}

		workflow.ID = id.String()
	}

	inputJSON, contextJSON, outputJSON, detailsJSON, err := marshalWorkflowJSON(workflow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.WorkflowID, workflow.TenantID, workflow.Type, workflow.Status,
		inputJSON, contextJSON, outputJSON,
		nullString(workflow.ErrorMessage), detailsJSON,
		workflow.RetryCount, workflow.MaxRetries,
		nullString(workflow.InitiatorID), nullString(string(workflow.InitiatorType)),
		workflow.CreatedAt, workflow.StartedAt, workflow.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("CreateWorkflow", workflow.TenantID, workflow.WorkflowID, persistence.ErrWorkflowExists)
		}

		return persistence.NewWorkflowError("CreateWorkflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	current, err := r.GetByID(ctx, workflow.TenantID, workflow.WorkflowID)
	if err != nil {
		return err
	}

	err = persistence.ValidateTransition(current.Status, workflow.Status)
	if err != nil {
		return persistence.NewWorkflowError("UpdateWorkflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	inputJSON, contextJSON, outputJSON, detailsJSON, err := marshalWorkflowJSON(workflow)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows SET
			status = $1
		  , input_data = $2
		  , context = $3
		  , output_data = $4
		  , error_message = $5
		  , error_details = $6
		  , retry_count = $7
		  , started_at = $8
		  , completed_at = $9
		WHERE tenant_id = $10 AND workflow_id = $11
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.Status, inputJSON, contextJSON, outputJSON,
		nullString(workflow.ErrorMessage), detailsJSON,
		workflow.RetryCount, workflow.StartedAt, workflow.CompletedAt,
		workflow.TenantID, workflow.WorkflowID,
	)
	if err != nil {
		return persistence.NewWorkflowError("UpdateWorkflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND workflow_id = $2
	`

	row := r.db.QueryRowContext(ctx, query, tenantID, workflowID)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", tenantID, workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, tenantID string, filter persistence.WorkflowFilter) ([]*models.Workflow, int64, error) {
	where := "WHERE tenant_id = $1"
	args := []any{tenantID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += " AND status = $" + strconv.Itoa(len(args))
	}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += " AND workflow_type = $" + strconv.Itoa(len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	query := "SELECT " + workflowColumns + " FROM workflows " + where + " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, total, nil
}

func (r *WorkflowRepository) Statistics(ctx context.Context, tenantID string) (*persistence.WorkflowStatistics, error) {
	stats := &persistence.WorkflowStatistics{
		ByStatus: make(map[models.WorkflowStatus]int64),
		ByType:   make(map[models.WorkflowType]int64),
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT status, workflow_type, COUNT(*) FROM workflows WHERE tenant_id = $1 GROUP BY status, workflow_type",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow statistics: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			status       models.WorkflowStatus
			workflowType models.WorkflowType
			count        int64
		)

		err = rows.Scan(&status, &workflowType, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistics row: %w", err)
		}

		stats.ByStatus[status] += count
		stats.ByType[workflowType] += count
		stats.TotalCount += count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating statistics: %w", err)
	}

	var avgSeconds sql.NullFloat64

	err = r.db.QueryRowContext(ctx,
		"SELECT AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) FROM workflows WHERE tenant_id = $1 AND started_at IS NOT NULL AND completed_at IS NOT NULL",
		tenantID).Scan(&avgSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query average duration: %w", err)
	}

	if avgSeconds.Valid {
		stats.AverageDuration = time.Duration(avgSeconds.Float64 * float64(time.Second))
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		inputJSON     []byte
		contextJSON   []byte
		outputJSON    []byte
		detailsJSON   []byte
		errorMessage  sql.NullString
		initiatorID   sql.NullString
		initiatorType sql.NullString
	)

	err := row.Scan(
		&workflow.ID, &workflow.WorkflowID, &workflow.TenantID, &workflow.Type, &workflow.Status,
		&inputJSON, &contextJSON, &outputJSON,
		&errorMessage, &detailsJSON,
		&workflow.RetryCount, &workflow.MaxRetries,
		&initiatorID, &initiatorType,
		&workflow.CreatedAt, &workflow.StartedAt, &workflow.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.ErrorMessage = errorMessage.String
	workflow.InitiatorID = initiatorID.String
	workflow.InitiatorType = models.InitiatorType(initiatorType.String)

	err = unmarshalJSONMap(inputJSON, &workflow.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input_data: %w", err)
	}

	err = unmarshalJSONMap(contextJSON, &workflow.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}

	err = unmarshalJSONMap(outputJSON, &workflow.OutputData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output_data: %w", err)
	}

	err = unmarshalJSONMap(detailsJSON, &workflow.ErrorDetails)
	if err != nil {
		return nil, fmt.Errorf("failed to decode error_details: %w", err)
	}

	return &workflow, nil
}

func marshalWorkflowJSON(workflow *models.Workflow) (input, wfContext, output, details []byte, err error) {
	input, err = json.Marshal(workflow.InputData)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal input_data: %w", err)
	}

	wfContext, err = json.Marshal(workflow.Context)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	output, err = json.Marshal(workflow.OutputData)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal output_data: %w", err)
	}

	details, err = json.Marshal(workflow.ErrorDetails)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal error_details: %w", err)
	}

	return input, wfContext, output, details, nil
}

func unmarshalJSONMap(data []byte, target *map[string]any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	return json.Unmarshal(data, target)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}
