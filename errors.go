package gravix

import (
	"errors"
	"fmt"

	"github.com/hupe1980/gravix/internal/pagestore"
	"github.com/hupe1980/gravix/internal/radix"
	"github.com/hupe1980/gravix/internal/resource"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrContention is returned when an operation exhausted its retry
	// budget against concurrent writers. The operation had no effect and
	// may be retried.
	ErrContention = errors.New("operation lost too many races, retry")

	// ErrAllocationFailed is returned when page or table memory could not
	// be allocated, typically because a configured resource budget is
	// exhausted.
	ErrAllocationFailed = errors.New("allocation failed")
)

// ErrValueTooLarge indicates a payload that exceeds the page capacity.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrValueTooLarge struct {
	Size  int
	Max   int
	cause error
}

func (e *ErrValueTooLarge) Error() string {
	return fmt.Sprintf("value of %d bytes exceeds page capacity %d", e.Size, e.Max)
}

func (e *ErrValueTooLarge) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pagestore.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, radix.ErrContention) {
		return fmt.Errorf("%w: %w", ErrContention, err)
	}

	// Allocation unification.
	if errors.Is(err, pagestore.ErrAllocationFailed) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded) ||
		errors.Is(err, resource.ErrAllocRateExceeded) ||
		errors.Is(err, radix.ErrTableLimit) {
		return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	var vtl *pagestore.ErrValueTooLarge
	if errors.As(err, &vtl) {
		return &ErrValueTooLarge{Size: vtl.Size, Max: vtl.Max, cause: err}
	}

	return err
}
