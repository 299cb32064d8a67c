// Package provisioning wires the workflow definitions for subscriber
// lifecycle operations. The concrete integrations (NetBox, FreeRADIUS,
// VOLTHA, GenieACS) live behind small interfaces so step handlers stay
// testable and the engine never links against a vendor SDK.
package provisioning

import "context"

// IPAddressAllocator reserves and releases subscriber addresses in the IPAM.
type IPAddressAllocator interface {
	// Allocate reserves an IPv4 address for the subscriber's plan.
	Allocate(ctx context.Context, subscriberID, servicePlan string) (string, error)

	// Release returns the subscriber's address to the pool. Releasing a
	// subscriber with no allocation is a no-op.
	Release(ctx context.Context, subscriberID string) error
}

// RADIUSProvisioner manages AAA accounts on the RADIUS server.
type RADIUSProvisioner interface {
	// CreateAccount creates the subscriber's AAA account bound to the given
	// framed address and returns the account id.
	CreateAccount(ctx context.Context, subscriberID, ipv4Address, servicePlan string) (string, error)

	// DeleteAccount removes the subscriber's AAA account. Deleting a missing
	// account is a no-op.
	DeleteAccount(ctx context.Context, subscriberID string) error

	// SetEnabled toggles whether the subscriber may authenticate.
	SetEnabled(ctx context.Context, subscriberID string, enabled bool) error

	// UpdatePlan switches the subscriber's rate-limit attributes and returns
	// the previous plan so a failed saga can restore it.
	UpdatePlan(ctx context.Context, subscriberID, servicePlan string) (string, error)
}

// ONUProvisioner manages the subscriber's optical network unit on the OLT.
type ONUProvisioner interface {
	// Provision activates the ONU with the given serial on the OLT named by
	// olt (empty means the default OLT) and returns the ONU id.
	Provision(ctx context.Context, subscriberID, onuSerial, olt string) (string, error)

	// Deprovision deactivates and unbinds the subscriber's ONU on the given
	// OLT. Deprovisioning an unbound subscriber is a no-op.
	Deprovision(ctx context.Context, subscriberID, olt string) error

	// SetAdminState brings the subscriber's ONU port up or down.
	SetAdminState(ctx context.Context, subscriberID string, up bool) error
}

// CPEProvisioner manages the customer premises device via the ACS.
type CPEProvisioner interface {
	// Configure binds the CPE by MAC, pushes the base configuration for the
	// framed address, and returns the CPE id.
	Configure(ctx context.Context, subscriberID, cpeMAC, ipv4Address string) (string, error)

	// Deconfigure resets and unbinds the subscriber's CPE. Deconfiguring an
	// unbound subscriber is a no-op.
	Deconfigure(ctx context.Context, subscriberID string) error

	// PushConfig applies a parameter set to the subscriber's CPE.
	PushConfig(ctx context.Context, subscriberID string, config map[string]any) error
}

// Clients bundles the external systems the step handlers call. Injected into
// Definitions at startup, never looked up from process-global state.
type Clients struct {
	IPAM   IPAddressAllocator
	RADIUS RADIUSProvisioner
	ONU    ONUProvisioner
	CPE    CPEProvisioner
}
