package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrDetectionInconclusive marks a probe that could not decide; it is
	// treated as a non-match.
	ErrDetectionInconclusive = errors.New("detection inconclusive")
	// ErrFetchFailed is a network or HTTP failure. Retryable.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrParseFailed means the response did not have the expected shape.
	ErrParseFailed = errors.New("parse failed")
	// ErrTimeout covers deadlines, including an abandoned attempt.
	ErrTimeout = errors.New("timeout")
)

// ValidationError rejects caller input before any network work.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FetchError wraps err as ErrFetchFailed, or ErrTimeout when it is a deadline.
func FetchError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrFetchFailed, err)
}

// ParseError wraps err as ErrParseFailed.
func ParseError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrParseFailed, err)
}

// Classify tags an untyped error with the taxonomy. Already classified
// errors and validation errors pass through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrFetchFailed),
		errors.Is(err, ErrParseFailed), IsValidation(err):
		return err
	case isTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
