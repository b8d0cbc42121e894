package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/store"
)

// Service-level sentinel errors. The API layer maps them to HTTP statuses
// with errors.Is.
var (
	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrTaskNotFound indicates the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotOwned indicates a resource is owned by a different user than the
	// one making the request.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrConflict indicates a uniqueness violation, such as a taken email.
	ErrConflict = errors.New("resource already exists")

	// ErrStoreUnavailable wraps unexpected persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ServiceError carries the operation that failed along with the cause.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError translates a store or domain error into the service
// taxonomy. Not-found errors become the matching sentinel, validation
// errors pass through, and everything else is wrapped in a ServiceError.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, store.ErrProjectNotFound):
		return ErrProjectNotFound
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, ErrUserNotFound), errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, domain.ErrValidation):
		return err
	case errors.Is(err, store.ErrInvalidEntity):
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	case errors.Is(err, store.ErrDuplicate):
		return &ServiceError{Operation: operation, Message: message, Err: fmt.Errorf("%w: %w", ErrConflict, err)}
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
	}
}

// validationError wraps validator output so callers can match
// domain.ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", domain.ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}
