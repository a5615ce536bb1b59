package httpadapter

import (
	"net/http"

	"github.com/haithamq/visaflow/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRunNotFinished):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrRetryExhausted):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
