package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

func noopHandler(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
	return &StepResult{}, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{Name: "allocate_ip", Handler: noopHandler},
			{Name: "create_radius_account", Handler: noopHandler},
		},
	}

	require.NoError(t, registry.Register(def))

	found, err := registry.Definition(models.WorkflowTypeProvisionSubscriber)
	require.NoError(t, err)
	assert.Equal(t, def, found)

	_, err = registry.Definition(models.WorkflowTypeSuspendService)
	assert.ErrorIs(t, err, ErrUnknownWorkflowType)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	registry := NewRegistry()

	assert.ErrorIs(t, registry.Register(nil), ErrNilDefinition)

	assert.ErrorIs(t, registry.Register(&Definition{
		Type: models.WorkflowType("not_a_thing"),
		Steps: []StepDefinition{
			{Name: "x", Handler: noopHandler},
		},
	}), ErrUnknownWorkflowType)

	assert.ErrorIs(t, registry.Register(&Definition{
		Type: models.WorkflowTypeActivateService,
	}), ErrEmptyDefinition)

	assert.ErrorIs(t, registry.Register(&Definition{
		Type: models.WorkflowTypeActivateService,
		Steps: []StepDefinition{
			{Name: "", Handler: noopHandler},
		},
	}), ErrInvalidStep)

	assert.ErrorIs(t, registry.Register(&Definition{
		Type: models.WorkflowTypeActivateService,
		Steps: []StepDefinition{
			{Name: "enable_radius"},
		},
	}), ErrInvalidStep)

	assert.ErrorIs(t, registry.Register(&Definition{
		Type: models.WorkflowTypeActivateService,
		Steps: []StepDefinition{
			{Name: "enable_radius", Handler: noopHandler},
			{Name: "enable_radius", Handler: noopHandler},
		},
	}), ErrDuplicateStep)
}

func TestRegistry_RejectsDuplicateType(t *testing.T) {
	registry := NewRegistry()

	def := &Definition{
		Type: models.WorkflowTypeActivateService,
		Steps: []StepDefinition{
			{Name: "enable_radius", Handler: noopHandler},
		},
	}

	require.NoError(t, registry.Register(def))
	assert.ErrorIs(t, registry.Register(def), ErrDuplicateDefinition)
}

func TestRegistry_TypesSorted(t *testing.T) {
	registry := NewRegistry()

	for _, workflowType := range []models.WorkflowType{
		models.WorkflowTypeSuspendService,
		models.WorkflowTypeActivateService,
	} {
		require.NoError(t, registry.Register(&Definition{
			Type: workflowType,
			Steps: []StepDefinition{
				{Name: "step", Handler: noopHandler},
			},
		}))
	}

	assert.Equal(t, []models.WorkflowType{
		models.WorkflowTypeActivateService,
		models.WorkflowTypeSuspendService,
	}, registry.Types())
}
