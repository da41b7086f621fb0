package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// Neo4jErrorMessage describes graph store failures.
	Neo4jErrorMessage = "graph store operation failed"
)

// Sentinel errors for the conversation core. Every one of these is
// recoverable at the turn level; none is fatal to a session or the process.
var (
	// ErrPlanning indicates the generator returned output that could not be
	// parsed into a structured plan.
	ErrPlanning = errors.New("planning failed: unparsable generator output")
	// ErrSecurityRejected indicates a generated read query contained a
	// mutation keyword and was refused before reaching the store.
	ErrSecurityRejected = errors.New("query rejected for security reasons")
	// ErrAuthorization indicates an ownership check failed or the customer
	// identity could not be resolved.
	ErrAuthorization = errors.New("authorization failed")
	// ErrCatalogLoad indicates an intent catalog reload failed; the previous
	// snapshot stays in effect.
	ErrCatalogLoad = errors.New("intent catalog reload failed")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Planning wraps a parse failure of generator output.
func Planning(err error) error {
	return fmt.Errorf("%w: %v", ErrPlanning, err)
}

// StatusOf extracts the HTTP status from an error chain, defaulting to 500.
func StatusOf(err error) int {
	var app *AppError
	if errors.As(err, &app) {
		return app.Status
	}
	return http.StatusInternalServerError
}
