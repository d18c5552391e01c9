// Package apperrors provides structured client errors with sentinel-based
// classification via errors.Is().
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation error")
	ErrCommunication = errors.New("communication error")
)

// Error provides a structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Resource string // For not found/conflict (e.g., "job", "service")
	Op       string // Operation that failed (e.g., "webdav.Put")
	Endpoint string // Remote endpoint involved, if any
	Status   int    // HTTP status that triggered the error, if any
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Validation creates a validation error for a caller-supplied value.
func Validation(resource, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Resource: resource,
	}
}

// JobNotFound reports that a job does not exist on the service. Either it was
// never submitted, or it was deleted.
func JobNotFound(id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("job %s not found", id),
		Resource: "job",
	}
}

// ServiceNotFound reports that the requested service does not exist.
func ServiceNotFound(name string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("service %s not found", name),
		Resource: "service",
	}
}

// MissingOutput reports that an output location no longer resolves to a file.
// Maybe the owning job was deleted.
func MissingOutput(location string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("output %s no longer exists", location),
		Resource: "output",
		Endpoint: location,
	}
}

// FileNotFound reports that a local input file could not be read.
func FileNotFound(path string, cause error) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("file %s not found", path),
		Resource: "file",
		Cause:    cause,
	}
}

// JobAlreadyExists reports a job name collision, or a second Run() on a job
// that was already submitted.
func JobAlreadyExists(name string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("job %s already exists", name),
		Resource: "job",
	}
}

// ServiceAlreadyExists reports a service name collision.
func ServiceAlreadyExists(name string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("service %s already exists", name),
		Resource: "service",
	}
}

// PortNotAvailable reports that the requested host port is already bound.
func PortNotAvailable(port int) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("port %d is not available", port),
		Resource: "service",
	}
}

// InvalidJob reports that the service rejected a submission as structurally
// invalid. Did you forget to set a workflow?
func InvalidJob(name string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("job %s is invalid", name),
		Resource: "job",
	}
}

// NoPrimaryFile reports an attempt to attach a secondary file to an input
// that has no primary file yet.
func NoPrimaryFile(input string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("input %s has no primary file", input),
		Resource: "input",
	}
}

// UnknownInput reports a binding for an input name the workflow does not
// declare.
func UnknownInput(input string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("input %s is not declared by the workflow", input),
		Resource: "input",
	}
}

// FromStatus maps an unexpected HTTP status to the taxonomy: 404 to the
// not-found class, 405 and 409 to the conflict class, 400 to the validation
// class, everything else to the communication class.
func FromStatus(op, resource, endpoint string, status int) error {
	switch status {
	case http.StatusNotFound:
		return &Error{
			Sentinel: ErrNotFound,
			Message:  fmt.Sprintf("%s %s not found", resource, endpoint),
			Resource: resource,
			Op:       op,
			Endpoint: endpoint,
			Status:   status,
		}
	case http.StatusMethodNotAllowed, http.StatusConflict:
		return &Error{
			Sentinel: ErrConflict,
			Message:  fmt.Sprintf("%s %s already exists", resource, endpoint),
			Resource: resource,
			Op:       op,
			Endpoint: endpoint,
			Status:   status,
		}
	case http.StatusBadRequest:
		return &Error{
			Sentinel: ErrValidation,
			Message:  fmt.Sprintf("%s %s was rejected as invalid", resource, endpoint),
			Resource: resource,
			Op:       op,
			Endpoint: endpoint,
			Status:   status,
		}
	default:
		return Communication(op, endpoint, status, nil)
	}
}

// Communication reports an unexpected status or transport failure talking to
// the service.
func Communication(op, endpoint string, status int, cause error) error {
	msg := fmt.Sprintf("%s: unexpected response from %s", op, endpoint)
	if status > 0 {
		msg = fmt.Sprintf("%s: unexpected status %d from %s", op, status, endpoint)
	}
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Sentinel: ErrCommunication,
		Message:  msg,
		Op:       op,
		Endpoint: endpoint,
		Status:   status,
		Cause:    cause,
	}
}
