// Package saga implements the workflow orchestration engine: the step handler
// contract, the workflow definition registry, and the executor that drives one
// workflow instance through its steps and, on failure, compensates completed
// steps in reverse order.
package saga

import (
	"context"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// StepResult is what a forward handler produces on success.
type StepResult struct {
	// Output is persisted on the step record.
	Output map[string]any

	// ContextUpdates are merged into the workflow context so that later
	// steps observe this step's contribution.
	ContextUpdates map[string]any

	// CompensationData is persisted on the step record and handed to the
	// compensation handler if this step must later be undone.
	CompensationData map[string]any
}

// StepHandler is the forward action of one saga step. It receives the
// workflow's immutable input, the accumulated context of all prior steps, and
// a persistence handle. Handlers perform network I/O against external systems
// and must honor ctx cancellation; a cancelled handler surfaces as a step
// failure and enters normal compensation.
type StepHandler func(ctx context.Context, input, wfContext map[string]any, store persistence.Persistence) (*StepResult, error)

// CompensationHandler undoes a completed step. It receives the compensation
// data its forward handler produced and the workflow context as of the
// failure. Compensation handlers must be idempotent.
type CompensationHandler func(ctx context.Context, compensationData, wfContext map[string]any, store persistence.Persistence) error

// StepDefinition describes one step of a workflow definition.
type StepDefinition struct {
	Name    string
	Type    string
	Handler StepHandler

	// Compensation may be nil for steps with no externally visible side
	// effect; such steps are left completed when the saga unwinds.
	Compensation CompensationHandler
}

// Definition is the ordered step list for one workflow type.
type Definition struct {
	Type  models.WorkflowType
	Steps []StepDefinition
}
