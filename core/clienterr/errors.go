package clienterr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
)

// Type classifies a client facing error.
type Type string

const (
	NotFound                Type = "NotFound"
	InvalidRealm            Type = "InvalidRealm"
	InvalidRelation         Type = "InvalidRelation"
	InvalidValues           Type = "InvalidValues"
	DelegatedAdministration Type = "DelegatedAdministration"
	Reconciliation          Type = "Reconciliation"
	Connector               Type = "Connector"
	Configuration           Type = "Configuration"
	AssociatedResources     Type = "AssociatedResources"
	Unauthorized            Type = "Unauthorized"
)

// Error is a typed error with its detail elements.
type Error struct {
	Type     Type     `json:"type"`
	Elements []string `json:"elements"`

	cause error
}

// New creates an error of the given type.
func New(t Type, elements ...string) *Error {
	return &Error{Type: t, Elements: elements}
}

// Newf creates an error of the given type with one formatted element.
func Newf(t Type, format string, args ...any) *Error {
	return &Error{Type: t, Elements: []string{fmt.Sprintf(format, args...)}}
}

// Wrap classifies err, keeping it as the cause.
func Wrap(t Type, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Elements: []string{err.Error()}, cause: err}
}

func (e *Error) Error() string {
	if len(e.Elements) == 0 {
		return string(e.Type)
	}
	return string(e.Type) + ": " + strings.Join(e.Elements, "; ")
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Add appends a detail element.
func (e *Error) Add(element string) {
	e.Elements = append(e.Elements, element)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is reports whether err carries a client error of type t.
func Is(err error, t Type) bool {
	ce, ok := As(err)
	return ok && ce.Type == t
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	ce, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ce.Type {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case DelegatedAdministration:
		return http.StatusForbidden
	case AssociatedResources:
		return http.StatusConflict
	case InvalidRealm, InvalidRelation, InvalidValues, Configuration:
		return http.StatusBadRequest
	case Connector, Reconciliation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Collector accumulates the failures of a bulk operation.
type Collector struct {
	errs error
}

// Append records err; nil is ignored.
func (c *Collector) Append(err error) {
	c.errs = multierr.Append(c.errs, err)
}

// Len returns the number of collected errors.
func (c *Collector) Len() int {
	return len(multierr.Errors(c.errs))
}

// Err returns a composite error of type t, or nil when nothing was collected.
func (c *Collector) Err(t Type) error {
	if c.errs == nil {
		return nil
	}
	composite := &Error{Type: t, cause: c.errs}
	for _, err := range multierr.Errors(c.errs) {
		composite.Add(err.Error())
	}
	return composite
}
