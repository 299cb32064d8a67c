package provisioning

import (
	"context"
	"fmt"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/saga"
)

// Definitions builds the step lists for every supported workflow type over
// the injected clients. Registered once at startup; adding a workflow type
// means adding one entry here.
func Definitions(clients Clients) []*saga.Definition {
	return []*saga.Definition{
		provisionSubscriber(clients),
		deprovisionSubscriber(clients),
		activateService(clients),
		suspendService(clients),
		changeServicePlan(clients),
		updateNetworkConfig(clients),
		migrateSubscriber(clients),
	}
}

// provisionSubscriber is the canonical four-step saga: allocate an address,
// create the AAA account, activate the ONU, configure the CPE. Each step's
// compensation releases exactly what its forward handler claimed.
func provisionSubscriber(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []saga.StepDefinition{
			{
				Name: "allocate_ip",
				Type: "ipam",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					address, err := clients.IPAM.Allocate(ctx, subscriberID, stringValue(input, "service_plan"))
					if err != nil {
						return nil, fmt.Errorf("failed to allocate address for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						Output:           map[string]any{"ipv4_address": address},
						ContextUpdates:   map[string]any{"ipv4_address": address},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.IPAM.Release(ctx, stringValue(compensationData, "subscriber_id"))
				},
			},
			{
				Name: "create_radius_account",
				Type: "radius",
				Handler: func(ctx context.Context, input, wfContext map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					accountID, err := clients.RADIUS.CreateAccount(ctx,
						subscriberID,
						stringValue(wfContext, "ipv4_address"),
						stringValue(input, "service_plan"),
					)
					if err != nil {
						return nil, fmt.Errorf("failed to create RADIUS account for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						Output:           map[string]any{"radius_account_id": accountID},
						ContextUpdates:   map[string]any{"radius_account_id": accountID},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.RADIUS.DeleteAccount(ctx, stringValue(compensationData, "subscriber_id"))
				},
			},
			{
				Name: "provision_onu",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					onuID, err := clients.ONU.Provision(ctx, subscriberID, stringValue(input, "onu_serial"), "")
					if err != nil {
						return nil, fmt.Errorf("failed to provision ONU for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						Output:           map[string]any{"onu_id": onuID},
						ContextUpdates:   map[string]any{"onu_id": onuID},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.ONU.Deprovision(ctx, stringValue(compensationData, "subscriber_id"), "")
				},
			},
			{
				Name: "provision_cpe",
				Type: "acs",
				Handler: func(ctx context.Context, input, wfContext map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					cpeID, err := clients.CPE.Configure(ctx,
						subscriberID,
						stringValue(input, "cpe_mac"),
						stringValue(wfContext, "ipv4_address"),
					)
					if err != nil {
						return nil, fmt.Errorf("failed to configure CPE for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						Output:           map[string]any{"cpe_id": cpeID},
						ContextUpdates:   map[string]any{"cpe_id": cpeID},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.CPE.Deconfigure(ctx, stringValue(compensationData, "subscriber_id"))
				},
			},
		},
	}
}

// deprovisionSubscriber tears down in reverse provisioning order. Teardown
// steps are idempotent deletes with nothing to undo, so none carries a
// compensation handler.
func deprovisionSubscriber(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeDeprovisionSubscriber,
		Steps: []saga.StepDefinition{
			{
				Name: "deconfigure_cpe",
				Type: "acs",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					err := clients.CPE.Deconfigure(ctx, stringValue(input, "subscriber_id"))
					if err != nil {
						return nil, fmt.Errorf("failed to deconfigure CPE: %w", err)
					}

					return &saga.StepResult{}, nil
				},
			},
			{
				Name: "deprovision_onu",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					err := clients.ONU.Deprovision(ctx, stringValue(input, "subscriber_id"), "")
					if err != nil {
						return nil, fmt.Errorf("failed to deprovision ONU: %w", err)
					}

					return &saga.StepResult{}, nil
				},
			},
			{
				Name: "delete_radius_account",
				Type: "radius",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					err := clients.RADIUS.DeleteAccount(ctx, stringValue(input, "subscriber_id"))
					if err != nil {
						return nil, fmt.Errorf("failed to delete RADIUS account: %w", err)
					}

					return &saga.StepResult{}, nil
				},
			},
			{
				Name: "release_ip",
				Type: "ipam",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					err := clients.IPAM.Release(ctx, stringValue(input, "subscriber_id"))
					if err != nil {
						return nil, fmt.Errorf("failed to release address: %w", err)
					}

					return &saga.StepResult{}, nil
				},
			},
		},
	}
}

func activateService(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeActivateService,
		Steps: []saga.StepDefinition{
			{
				Name: "enable_radius",
				Type: "radius",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.RADIUS.SetEnabled(ctx, subscriberID, true)
					if err != nil {
						return nil, fmt.Errorf("failed to enable RADIUS for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						ContextUpdates:   map[string]any{"radius_enabled": true},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.RADIUS.SetEnabled(ctx, stringValue(compensationData, "subscriber_id"), false)
				},
			},
			{
				Name: "enable_onu_port",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.ONU.SetAdminState(ctx, subscriberID, true)
					if err != nil {
						return nil, fmt.Errorf("failed to enable ONU port for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						ContextUpdates:   map[string]any{"onu_port_up": true},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.ONU.SetAdminState(ctx, stringValue(compensationData, "subscriber_id"), false)
				},
			},
		},
	}
}

func suspendService(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeSuspendService,
		Steps: []saga.StepDefinition{
			{
				Name: "disable_radius",
				Type: "radius",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.RADIUS.SetEnabled(ctx, subscriberID, false)
					if err != nil {
						return nil, fmt.Errorf("failed to disable RADIUS for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						ContextUpdates:   map[string]any{"radius_enabled": false},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.RADIUS.SetEnabled(ctx, stringValue(compensationData, "subscriber_id"), true)
				},
			},
			{
				Name: "disable_onu_port",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.ONU.SetAdminState(ctx, subscriberID, false)
					if err != nil {
						return nil, fmt.Errorf("failed to disable ONU port for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						ContextUpdates:   map[string]any{"onu_port_up": false},
						CompensationData: map[string]any{"subscriber_id": subscriberID},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.ONU.SetAdminState(ctx, stringValue(compensationData, "subscriber_id"), true)
				},
			},
		},
	}
}

// changeServicePlan swaps the RADIUS rate limits, keeping the previous plan
// in compensation data so a failed CPE push restores it. The profile push has
// no compensation: re-pushing the old profile happens via the restored plan on
// the next session.
func changeServicePlan(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeChangeServicePlan,
		Steps: []saga.StepDefinition{
			{
				Name: "update_radius_plan",
				Type: "radius",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")
					newPlan := stringValue(input, "new_plan")

					previousPlan, err := clients.RADIUS.UpdatePlan(ctx, subscriberID, newPlan)
					if err != nil {
						return nil, fmt.Errorf("failed to update plan for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						Output:         map[string]any{"previous_plan": previousPlan},
						ContextUpdates: map[string]any{"service_plan": newPlan, "previous_plan": previousPlan},
						CompensationData: map[string]any{
							"subscriber_id": subscriberID,
							"previous_plan": previousPlan,
						},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					_, err := clients.RADIUS.UpdatePlan(ctx,
						stringValue(compensationData, "subscriber_id"),
						stringValue(compensationData, "previous_plan"),
					)

					return err
				},
			},
			{
				Name: "push_cpe_profile",
				Type: "acs",
				Handler: func(ctx context.Context, input, wfContext map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.CPE.PushConfig(ctx, subscriberID, map[string]any{
						"service_plan": stringValue(wfContext, "service_plan"),
					})
					if err != nil {
						return nil, fmt.Errorf("failed to push CPE profile for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{}, nil
				},
			},
		},
	}
}

func updateNetworkConfig(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeUpdateNetworkConfig,
		Steps: []saga.StepDefinition{
			{
				Name: "push_cpe_config",
				Type: "acs",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")
					config, _ := input["network_config"].(map[string]any)

					err := clients.CPE.PushConfig(ctx, subscriberID, config)
					if err != nil {
						return nil, fmt.Errorf("failed to push network config for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{
						ContextUpdates: map[string]any{"config_applied": true},
					}, nil
				},
			},
		},
	}
}

// migrateSubscriber moves a subscriber to another OLT: bring the target up
// first, rebind the CPE, then tear the source down. The source teardown is
// last so a failed migration compensates back to the original OLT.
func migrateSubscriber(clients Clients) *saga.Definition {
	return &saga.Definition{
		Type: models.WorkflowTypeMigrateSubscriber,
		Steps: []saga.StepDefinition{
			{
				Name: "provision_target_onu",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")
					targetOLT := stringValue(input, "target_olt")

					onuID, err := clients.ONU.Provision(ctx, subscriberID, stringValue(input, "onu_serial"), targetOLT)
					if err != nil {
						return nil, fmt.Errorf("failed to provision ONU on %s: %w", targetOLT, err)
					}

					return &saga.StepResult{
						Output:         map[string]any{"target_onu_id": onuID},
						ContextUpdates: map[string]any{"target_onu_id": onuID},
						CompensationData: map[string]any{
							"subscriber_id": subscriberID,
							"target_olt":    targetOLT,
						},
					}, nil
				},
				Compensation: func(ctx context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
					return clients.ONU.Deprovision(ctx,
						stringValue(compensationData, "subscriber_id"),
						stringValue(compensationData, "target_olt"),
					)
				},
			},
			{
				Name: "rebind_cpe",
				Type: "acs",
				Handler: func(ctx context.Context, input, wfContext map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.CPE.PushConfig(ctx, subscriberID, map[string]any{
						"onu_id": stringValue(wfContext, "target_onu_id"),
					})
					if err != nil {
						return nil, fmt.Errorf("failed to rebind CPE for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{}, nil
				},
			},
			{
				Name: "deprovision_source_onu",
				Type: "pon",
				Handler: func(ctx context.Context, input, _ map[string]any, _ persistence.Persistence) (*saga.StepResult, error) {
					subscriberID := stringValue(input, "subscriber_id")

					err := clients.ONU.Deprovision(ctx, subscriberID, stringValue(input, "source_olt"))
					if err != nil {
						return nil, fmt.Errorf("failed to deprovision source ONU for %s: %w", subscriberID, err)
					}

					return &saga.StepResult{}, nil
				},
			},
		},
	}
}

func stringValue(m map[string]any, key string) string {
	value, _ := m[key].(string)

	return value
}
