package saga

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ispforge/sagaflow/pkg/models"
)

// Registry is the static mapping from workflow type to its definition.
// Definitions are registered at startup; adding a new workflow type means
// adding one registry entry, never modifying the executor.
type Registry struct {
	mu          sync.RWMutex
	definitions map[models.WorkflowType]*Definition
}

// NewRegistry creates an empty workflow definition registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[models.WorkflowType]*Definition),
	}
}

// Register adds a definition to the registry. Registering the same workflow
// type twice is an error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("register definition: %w", ErrNilDefinition)
	}

	if !def.Type.Valid() {
		return fmt.Errorf("register definition %q: %w", def.Type, ErrUnknownWorkflowType)
	}

	if len(def.Steps) == 0 {
		return fmt.Errorf("register definition %q: %w", def.Type, ErrEmptyDefinition)
	}

	seen := make(map[string]bool, len(def.Steps))

	for _, step := range def.Steps {
		if step.Name == "" || step.Handler == nil {
			return fmt.Errorf("register definition %q: step %q: %w", def.Type, step.Name, ErrInvalidStep)
		}

		if seen[step.Name] {
			return fmt.Errorf("register definition %q: step %q: %w", def.Type, step.Name, ErrDuplicateStep)
		}

		seen[step.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("register definition %q: %w", def.Type, ErrDuplicateDefinition)
	}

	r.definitions[def.Type] = def

	return nil
}

// Definition returns the definition for a workflow type.
func (r *Registry) Definition(workflowType models.WorkflowType) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[workflowType]
	if !exists {
		return nil, fmt.Errorf("lookup definition %q: %w", workflowType, ErrUnknownWorkflowType)
	}

	return def, nil
}

// Types returns the registered workflow types in stable order.
func (r *Registry) Types() []models.WorkflowType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.WorkflowType, 0, len(r.definitions))
	for workflowType := range r.definitions {
		types = append(types, workflowType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
