// Package apperr defines the error taxonomy shared across services. Handlers
// map these onto HTTP status codes; services wrap them with context.
package apperr

import "errors"

var (
	// ErrProductNotFound is returned when a referenced product id does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrAlertNotFound is returned when a referenced alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidTransition is returned for an alert status change the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid alert status transition")

	// ErrInsufficientData is returned when a forecast tier or a retrain pass
	// has fewer history points than it requires.
	ErrInsufficientData = errors.New("insufficient sales history")

	// ErrForecastUnavailable is returned when the external forecasting
	// service is unreachable or erroring.
	ErrForecastUnavailable = errors.New("forecast service unavailable")
)

// ValidationError marks a malformed client payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validation builds a ValidationError with the given reason.
func Validation(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
