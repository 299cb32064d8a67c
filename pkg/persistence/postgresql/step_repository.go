package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// StepRepository handles workflow step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

const stepColumns = `
	id
  , workflow_id
  , tenant_id
  , step_name
  , step_type
  , sequence_number
  , status
  , input_data
  , output_data
  , compensation_data
  , error_message
  , retry_count
  , started_at
  , completed_at
  , compensation_started_at
  , compensation_completed_at
`

func (r *StepRepository) Create(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step row ID: %w", err)
		}

		step.ID = id.String()
	}

	inputJSON, outputJSON, compensationJSON, err := marshalStepJSON(step)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID, step.WorkflowID, step.TenantID, step.StepName, nullString(step.StepType),
		step.SequenceNumber, step.Status,
		inputJSON, outputJSON, compensationJSON,
		nullString(step.ErrorMessage), step.RetryCount,
		step.StartedAt, step.CompletedAt, step.CompensationStartedAt, step.CompensationCompletedAt,
	)
	if err != nil {
		return &persistence.StepError{Op: "CreateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: err}
	}

	return nil
}

func (r *StepRepository) Update(ctx context.Context, step *models.WorkflowStep) error {
	var current models.StepStatus

	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM workflow_steps WHERE id = $1 AND tenant_id = $2`,
		step.ID, step.TenantID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: persistence.ErrStepNotFound}
		}

		return fmt.Errorf("failed to read current step status: %w", err)
	}

	err = persistence.ValidateStepTransition(current, step.Status)
	if err != nil {
		return &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: err}
	}

	inputJSON, outputJSON, compensationJSON, err := marshalStepJSON(step)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_steps SET
			status = $1
		  , input_data = $2
		  , output_data = $3
		  , compensation_data = $4
		  , error_message = $5
		  , retry_count = $6
		  , started_at = $7
		  , completed_at = $8
		  , compensation_started_at = $9
		  , compensation_completed_at = $10
		WHERE id = $11 AND tenant_id = $12
	`

	result, err := r.db.ExecContext(ctx, query,
		step.Status, inputJSON, outputJSON, compensationJSON,
		nullString(step.ErrorMessage), step.RetryCount,
		step.StartedAt, step.CompletedAt, step.CompensationStartedAt, step.CompensationCompletedAt,
		step.ID, step.TenantID,
	)
	if err != nil {
		return &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return &persistence.StepError{Op: "UpdateWorkflowStep", WorkflowID: step.WorkflowID, StepID: step.ID, Err: persistence.ErrStepNotFound}
	}

	return nil
}

func (r *StepRepository) ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY started_at NULLS LAST, sequence_number
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func scanStep(row rowScanner) (*models.WorkflowStep, error) {
	var (
		step             models.WorkflowStep
		stepType         sql.NullString
		inputJSON        []byte
		outputJSON       []byte
		compensationJSON []byte
		errorMessage     sql.NullString
	)

	err := row.Scan(
		&step.ID, &step.WorkflowID, &step.TenantID, &step.StepName, &stepType,
		&step.SequenceNumber, &step.Status,
		&inputJSON, &outputJSON, &compensationJSON,
		&errorMessage, &step.RetryCount,
		&step.StartedAt, &step.CompletedAt, &step.CompensationStartedAt, &step.CompensationCompletedAt,
	)
	if err != nil {
		return nil, err
	}

	step.StepType = stepType.String
	step.ErrorMessage = errorMessage.String

	err = unmarshalJSONMap(inputJSON, &step.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input_data: %w", err)
	}

	err = unmarshalJSONMap(outputJSON, &step.OutputData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output_data: %w", err)
	}

	err = unmarshalJSONMap(compensationJSON, &step.CompensationData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode compensation_data: %w", err)
	}

	return &step, nil
}

func marshalStepJSON(step *models.WorkflowStep) (input, output, compensation []byte, err error) {
	input, err = json.Marshal(step.InputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal input_data: %w", err)
	}

	output, err = json.Marshal(step.OutputData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal output_data: %w", err)
	}

	compensation, err = json.Marshal(step.CompensationData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal compensation_data: %w", err)
	}

	return input, output, compensation, nil
}
