package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantIsolation is fatal: a retrieval request reached the engine
	// without a usable tenant id, or a filter lost its tenant clause. It always
	// propagates to the caller.
	ErrTenantIsolation = errors.New("tenant isolation violation")

	ErrSourceNotFound = errors.New("source not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTemporary      = errors.New("temporary failure")

	// Recoverable quality-step failures. The orchestrator absorbs these with a
	// fallback ordering instead of failing the request.
	ErrRerankerFailure    = errors.New("reranker failure")
	ErrDiversifierFailure = errors.New("diversifier failure")
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
