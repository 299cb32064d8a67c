package provisioning

import (
	"context"
	"fmt"
	"sync"
)

// DevClients is an in-memory implementation of all four client interfaces,
// used by development deployments and tests. Operations are deterministic and
// idempotent; no network I/O happens.
type DevClients struct {
	mu        sync.Mutex
	nextAddr  int
	addresses map[string]string
	accounts  map[string]string
	enabled   map[string]bool
	plans     map[string]string
	onus      map[string]string
	portsUp   map[string]bool
	cpes      map[string]string
	configs   map[string]map[string]any
}

// NewDevClients creates the in-memory client set.
func NewDevClients() *DevClients {
	return &DevClients{
		addresses: make(map[string]string),
		accounts:  make(map[string]string),
		enabled:   make(map[string]bool),
		plans:     make(map[string]string),
		onus:      make(map[string]string),
		portsUp:   make(map[string]bool),
		cpes:      make(map[string]string),
		configs:   make(map[string]map[string]any),
	}
}

// Clients returns the bundle wired to this instance.
func (d *DevClients) Clients() Clients {
	return Clients{IPAM: d, RADIUS: d, ONU: d, CPE: d}
}

func (d *DevClients) Allocate(_ context.Context, subscriberID, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if address, exists := d.addresses[subscriberID]; exists {
		return address, nil
	}

	// CGNAT range, one address per subscriber.
	address := fmt.Sprintf("100.64.%d.%d", d.nextAddr/254, d.nextAddr%254+1)
	d.nextAddr++
	d.addresses[subscriberID] = address

	return address, nil
}

func (d *DevClients) Release(_ context.Context, subscriberID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.addresses, subscriberID)

	return nil
}

func (d *DevClients) CreateAccount(_ context.Context, subscriberID, _, servicePlan string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	accountID := "rad-" + subscriberID
	d.accounts[subscriberID] = accountID
	d.plans[subscriberID] = servicePlan
	d.enabled[subscriberID] = true

	return accountID, nil
}

func (d *DevClients) DeleteAccount(_ context.Context, subscriberID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.accounts, subscriberID)
	delete(d.plans, subscriberID)
	delete(d.enabled, subscriberID)

	return nil
}

func (d *DevClients) SetEnabled(_ context.Context, subscriberID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.enabled[subscriberID] = enabled

	return nil
}

func (d *DevClients) UpdatePlan(_ context.Context, subscriberID, servicePlan string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.plans[subscriberID]
	d.plans[subscriberID] = servicePlan

	return previous, nil
}

func (d *DevClients) Provision(_ context.Context, subscriberID, _, olt string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	onuID := "onu-" + subscriberID
	if olt != "" {
		onuID = "onu-" + olt + "-" + subscriberID
	}

	d.onus[subscriberID] = onuID
	d.portsUp[subscriberID] = true

	return onuID, nil
}

func (d *DevClients) Deprovision(_ context.Context, subscriberID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.onus, subscriberID)
	delete(d.portsUp, subscriberID)

	return nil
}

func (d *DevClients) SetAdminState(_ context.Context, subscriberID string, up bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.portsUp[subscriberID] = up

	return nil
}

func (d *DevClients) Configure(_ context.Context, subscriberID, _, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cpeID := "cpe-" + subscriberID
	d.cpes[subscriberID] = cpeID

	return cpeID, nil
}

func (d *DevClients) Deconfigure(_ context.Context, subscriberID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.cpes, subscriberID)
	delete(d.configs, subscriberID)

	return nil
}

func (d *DevClients) PushConfig(_ context.Context, subscriberID string, config map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.configs[subscriberID] = config

	return nil
}

var (
	_ IPAddressAllocator = (*DevClients)(nil)
	_ RADIUSProvisioner  = (*DevClients)(nil)
	_ ONUProvisioner     = (*DevClients)(nil)
	_ CPEProvisioner     = (*DevClients)(nil)
)
