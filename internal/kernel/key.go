package kernel

import (
	"fmt"

	"chairctl/pkg/chairtypes"
)

// Key is a typed token that binds a service identifier to the concrete service type S
// and the state type T that service publishes. Registering and looking up through the
// same key recovers the concrete types without the caller writing a type assertion.
type Key[S chairtypes.Service, T any] struct {
	id chairtypes.ServiceID
}

// NewKey creates the key for a service identifier.
func NewKey[S chairtypes.Service, T any](id chairtypes.ServiceID) Key[S, T] {
	return Key[S, T]{id: id}
}

// ID returns the service identifier the key names.
func (key Key[S, T]) ID() chairtypes.ServiceID {
	return key.id
}

// Register inserts svc and its initial state into the kernel. The service must report
// the key's identifier. Registration is atomic: on error neither the service nor the
// state is recorded.
func Register[S chairtypes.Service, T any](k *Kernel, key Key[S, T], svc S, st T) error {
	if svc.ID() != key.id {
		return fmt.Errorf("service reports id %s but was registered as %s", svc.ID(), key.id)
	}
	return k.register(svc, st)
}

// Lookup returns the service registered under key. It fails before Initialize.
func Lookup[S chairtypes.Service, T any](k *Kernel, key Key[S, T]) (S, error) {
	var zero S

	e, err := k.lookup(key.id)
	if err != nil {
		return zero, err
	}

	svc, ok := e.service.(S)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrServiceType, key.id, e.service)
	}
	return svc, nil
}

// StateOf returns the state object published under key. It fails before Initialize.
func StateOf[S chairtypes.Service, T any](k *Kernel, key Key[S, T]) (T, error) {
	var zero T

	e, err := k.lookup(key.id)
	if err != nil {
		return zero, err
	}

	st, ok := e.state.(T)
	if !ok {
		return zero, fmt.Errorf("%w: state of %s is %T", ErrServiceType, key.id, e.state)
	}
	return st, nil
}

func (k *Kernel) lookup(id chairtypes.ServiceID) (entry, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.initialized {
		return entry{}, ErrNotInitialized
	}
	e, ok := k.entries[id]
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrMissingService, id)
	}
	return e, nil
}
