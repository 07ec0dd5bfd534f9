package iap

import (
	"errors"
	"fmt"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/ownership"
	"github.com/xraph/iap/settings"
	"github.com/xraph/iap/verify"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound = errors.New("iap: not found")

	// Programmer errors
	ErrInvalidState = errors.New("iap: invalid state: public key is not set")

	// Initialization errors
	ErrAlreadyInitialized = errors.New("iap: orchestrator already initialized")
	ErrNotInitialized     = errors.New("iap: orchestrator not initialized")
	ErrNoBackend          = errors.New("iap: no billing backend configured")
	ErrMissingPublicKey   = errors.New("iap: public key missing from arguments and settings")
	ErrMissingSecret      = errors.New("iap: custom secret missing from arguments and settings")

	// Catalog errors
	ErrItemNotFound    = catalog.ErrItemNotFound
	ErrProductNotFound = catalog.ErrProductNotFound

	// Ownership and settings errors
	ErrUnknownKind     = ownership.ErrUnknownKind
	ErrSettingNotFound = settings.ErrNotFound

	// Purchase errors
	ErrConsumeFailed     = errors.New("iap: consume failed")
	ErrPurchaseRejected  = errors.New("iap: purchase rejected by receipt validator")
	ErrBadSignature      = verify.ErrBadSignature
	ErrHostDestroyed     = errors.New("iap: host destroyed during purchase")
	ErrBackendNotStarted = errors.New("iap: billing backend not initialized")

	// Store errors
	ErrStoreClosed     = errors.New("iap: store is closed")
	ErrMigrationFailed = errors.New("iap: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("iap: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "iap: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("iap: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns the multi-error when it has collected anything.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrSettingNotFound)
}

// IsConfigError returns true if the error stems from missing or repeated
// initialization.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrNoBackend) ||
		errors.Is(err, ErrMissingPublicKey) ||
		errors.Is(err, ErrMissingSecret)
}
