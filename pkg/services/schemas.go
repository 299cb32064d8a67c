package services

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ispforge/sagaflow/pkg/models"
)

// inputSchemas holds one JSON schema per workflow type. The executor stays
// generic over an opaque context map; input shape is enforced here, at the
// boundary, before any workflow row exists.
var inputSchemas = map[models.WorkflowType]map[string]any{
	models.WorkflowTypeProvisionSubscriber: {
		"type":     "object",
		"required": []string{"subscriber_id", "service_plan"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
			"service_plan":  map[string]any{"type": "string", "minLength": 1},
			"onu_serial":    map[string]any{"type": "string"},
			"cpe_mac":       map[string]any{"type": "string"},
		},
	},
	models.WorkflowTypeDeprovisionSubscriber: {
		"type":     "object",
		"required": []string{"subscriber_id"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.WorkflowTypeActivateService: {
		"type":     "object",
		"required": []string{"subscriber_id"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.WorkflowTypeSuspendService: {
		"type":     "object",
		"required": []string{"subscriber_id"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
			"reason":        map[string]any{"type": "string"},
		},
	},
	models.WorkflowTypeChangeServicePlan: {
		"type":     "object",
		"required": []string{"subscriber_id", "new_plan"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
			"new_plan":      map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.WorkflowTypeUpdateNetworkConfig: {
		"type":     "object",
		"required": []string{"subscriber_id", "network_config"},
		"properties": map[string]any{
			"subscriber_id":  map[string]any{"type": "string", "minLength": 1},
			"network_config": map[string]any{"type": "object"},
		},
	},
	models.WorkflowTypeMigrateSubscriber: {
		"type":     "object",
		"required": []string{"subscriber_id", "target_olt"},
		"properties": map[string]any{
			"subscriber_id": map[string]any{"type": "string", "minLength": 1},
			"target_olt":    map[string]any{"type": "string", "minLength": 1},
		},
	},
}

// validateInputData checks input against the workflow type's JSON schema.
func validateInputData(workflowType models.WorkflowType, input map[string]any) error {
	schema, exists := inputSchemas[workflowType]
	if !exists {
		return fmt.Errorf("no input schema for workflow type %q: %w", workflowType, ErrInvalidWorkflowType)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(input)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate input data: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidInputData, strings.Join(details, "; "))
	}

	return nil
}
