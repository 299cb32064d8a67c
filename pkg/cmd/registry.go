package cmd

import (
	"github.com/ispforge/sagaflow/pkg/provisioning"
	"github.com/ispforge/sagaflow/pkg/saga"
)

// NewRegistry builds the definition registry over the given clients. Every
// supported workflow type is registered here, at startup.
func NewRegistry(clients provisioning.Clients) (*saga.Registry, error) {
	registry := saga.NewRegistry()

	for _, def := range provisioning.Definitions(clients) {
		err := registry.Register(def)
		if err != nil {
			return nil, err
		}
	}

	return registry, nil
}
