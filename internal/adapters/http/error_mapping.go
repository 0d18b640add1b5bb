package httpadapter

import (
	"net/http"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Tenant isolation failures map to 403 rather than 400: the request was well
// formed, the caller just may not see what it asked for.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrTenantIsolation):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSourceNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
