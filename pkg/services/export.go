package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// Exporter dumps terminal workflows with their step timelines for operator
// audit. Read-only projection over the repository, not part of the execution
// path.
type Exporter struct {
	persistence persistence.Persistence
}

// NewExporter creates an export service over the given persistence layer.
func NewExporter(store persistence.Persistence) *Exporter {
	return &Exporter{persistence: store}
}

// exportRecord is one workflow with its step timeline, as written to JSON
// output.
type exportRecord struct {
	WorkflowID    string                `json:"workflow_id"`
	TenantID      string                `json:"tenant_id"`
	WorkflowType  models.WorkflowType   `json:"workflow_type"`
	Status        models.WorkflowStatus `json:"status"`
	InitiatorID   string                `json:"initiator_id,omitempty"`
	InitiatorType models.InitiatorType  `json:"initiator_type,omitempty"`
	RetryCount    int                   `json:"retry_count"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	OutputData    map[string]any        `json:"output_data,omitempty"`
	Steps         []exportStep          `json:"steps"`
}

type exportStep struct {
	StepName                string            `json:"step_name"`
	SequenceNumber          int               `json:"sequence_number"`
	Status                  models.StepStatus `json:"status"`
	ErrorMessage            string            `json:"error_message,omitempty"`
	StartedAt               *time.Time        `json:"started_at,omitempty"`
	CompletedAt             *time.Time        `json:"completed_at,omitempty"`
	CompensationStartedAt   *time.Time        `json:"compensation_started_at,omitempty"`
	CompensationCompletedAt *time.Time        `json:"compensation_completed_at,omitempty"`
}

// Export writes every workflow matching the filter, with step timelines, to w.
func (e *Exporter) Export(ctx context.Context, tenantID string, filter persistence.WorkflowFilter, format ExportFormat, w io.Writer) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	records, err := e.collect(ctx, tenantID, filter)
	if err != nil {
		return err
	}

	switch format {
	case ExportFormatJSON:
		return e.writeJSON(w, records)
	case ExportFormatCSV:
		return e.writeCSV(w, records)
	default:
		return fmt.Errorf("export format %q: %w", format, ErrInvalidFormat)
	}
}

// collect pages through the repository so exports are not capped by the list
// limit.
func (e *Exporter) collect(ctx context.Context, tenantID string, filter persistence.WorkflowFilter) ([]exportRecord, error) {
	const pageSize = 100

	var records []exportRecord

	filter.Limit = pageSize
	filter.Offset = 0

	for {
		workflows, total, err := e.persistence.ListWorkflows(ctx, tenantID, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows for export: %w", err)
		}

		for _, workflow := range workflows {
			steps, err := e.persistence.WorkflowSteps(ctx, tenantID, workflow.WorkflowID)
			if err != nil {
				return nil, fmt.Errorf("failed to load steps of workflow %s: %w", workflow.WorkflowID, err)
			}

			records = append(records, newExportRecord(workflow, steps))
		}

		filter.Offset += len(workflows)
		if len(workflows) == 0 || int64(filter.Offset) >= total {
			break
		}
	}

	return records, nil
}

func newExportRecord(workflow *models.Workflow, steps []*models.WorkflowStep) exportRecord {
	record := exportRecord{
		WorkflowID:    workflow.WorkflowID,
		TenantID:      workflow.TenantID,
		WorkflowType:  workflow.Type,
		Status:        workflow.Status,
		InitiatorID:   workflow.InitiatorID,
		InitiatorType: workflow.InitiatorType,
		RetryCount:    workflow.RetryCount,
		ErrorMessage:  workflow.ErrorMessage,
		CreatedAt:     workflow.CreatedAt,
		StartedAt:     workflow.StartedAt,
		CompletedAt:   workflow.CompletedAt,
		OutputData:    workflow.OutputData,
		Steps:         make([]exportStep, 0, len(steps)),
	}

	for _, step := range steps {
		record.Steps = append(record.Steps, exportStep{
			StepName:                step.StepName,
			SequenceNumber:          step.SequenceNumber,
			Status:                  step.Status,
			ErrorMessage:            step.ErrorMessage,
			StartedAt:               step.StartedAt,
			CompletedAt:             step.CompletedAt,
			CompensationStartedAt:   step.CompensationStartedAt,
			CompensationCompletedAt: step.CompensationCompletedAt,
		})
	}

	return record
}

func (e *Exporter) writeJSON(w io.Writer, records []exportRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(records)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	return nil
}

// writeCSV emits one row per step, repeating the workflow columns, so the
// output loads directly into a spreadsheet. Workflows without steps get a
// single row with empty step columns.
func (e *Exporter) writeCSV(w io.Writer, records []exportRecord) error {
	writer := csv.NewWriter(w)

	header := []string{
		"workflow_id", "tenant_id", "workflow_type", "status", "retry_count",
		"created_at", "started_at", "completed_at", "error_message",
		"step_name", "step_sequence", "step_status", "step_started_at",
		"step_completed_at", "step_compensation_completed_at", "step_error",
	}

	err := writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for _, record := range records {
		base := []string{
			record.WorkflowID,
			record.TenantID,
			string(record.WorkflowType),
			string(record.Status),
			strconv.Itoa(record.RetryCount),
			record.CreatedAt.Format(time.RFC3339),
			formatTime(record.StartedAt),
			formatTime(record.CompletedAt),
			record.ErrorMessage,
		}

		if len(record.Steps) == 0 {
			err = writer.Write(append(base, "", "", "", "", "", "", ""))
			if err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}

			continue
		}

		for _, step := range record.Steps {
			row := append(append([]string{}, base...),
				step.StepName,
				strconv.Itoa(step.SequenceNumber),
				string(step.Status),
				formatTime(step.StartedAt),
				formatTime(step.CompletedAt),
				formatTime(step.CompensationCompletedAt),
				step.ErrorMessage,
			)

			err = writer.Write(row)
			if err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}
		}
	}

	writer.Flush()

	return writer.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}

	return t.Format(time.RFC3339)
}
