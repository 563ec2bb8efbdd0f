package errors

import "errors"

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsIntegrity checks if an error is an integrity error.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// IsBusy checks if an error means the writer lost the retry race.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
