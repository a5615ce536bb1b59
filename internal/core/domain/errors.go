package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRunNotFound        = errors.New("workflow run not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrStorage            = errors.New("checkpoint storage failure")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRunNotFinished     = errors.New("workflow run not finished")
	ErrRetryExhausted     = errors.New("retry budget exhausted")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
