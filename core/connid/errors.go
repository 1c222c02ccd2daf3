package connid

import (
	"errors"
	"fmt"

	"idm-reconciler/core/clienterr"
)

// ErrAlreadyExists is wrapped by bundles when a create clashes with an existing object.
var ErrAlreadyExists = errors.New("object already exists")

// ErrUnknownUID is wrapped by bundles when an update or delete targets a missing object.
var ErrUnknownUID = errors.New("unknown uid")

// ConnectorError is a failure raised while talking to the external system.
type ConnectorError struct {
	Op  string
	Err error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// ConfigurationError is raised when a bundle cannot be built from its configuration.
type ConfigurationError struct {
	Bundle string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("connector bundle %s: %v", e.Bundle, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Wrap tags err with the operation that raised it, leaving existing connector errors intact.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectorError{Op: op, Err: err}
}

// Classify turns bundle build failures into Configuration errors and external system
// failures into Connector errors. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clienterr.As(err); ok {
		return err
	}
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		return clienterr.Wrap(clienterr.Configuration, err)
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return clienterr.Wrap(clienterr.Connector, err)
	}
	return err
}
