// Package chairtypes defines the core types shared by every chair subsystem.
// It contains the closed identifier sets (run modes, services, scripts, states)
// and the service contract that the kernel registry is built around.
package chairtypes

import (
	"errors"
	"fmt"
)

// Service defines the contract every chair subsystem implements.
// Services are constructed once at boot, registered with the kernel and terminated once at shutdown.
type Service interface {
	ID() ServiceID
	Terminate() error
}

// ConfigError marks a fatal configuration problem detected at boot, such as a run mode
// without a driver or a profile field that a driver requires.
type ConfigError struct {
	Service ServiceID
	Reason  string
	// Err is the underlying failure, if any.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Service, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for the given service.
func NewConfigError(service ServiceID, format string, args ...interface{}) error {
	return &ConfigError{Service: service, Reason: fmt.Sprintf(format, args...)}
}

// WrapConfigError creates a ConfigError for the given service whose reason is err.
func WrapConfigError(service ServiceID, err error) error {
	return &ConfigError{Service: service, Reason: err.Error(), Err: err}
}

// IsConfigError reports whether err, or any error it wraps, is a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
