package web

import (
	"errors"
	"net/http"

	"github.com/amrlab/amrflow/internal/amr"
)

// errorResponse is the uniform failure envelope. Detail carries the
// user-visible Turkish message; Code is the stable machine-readable code.
type errorResponse struct {
	Detail string   `json:"detail"`
	Code   amr.Code `json:"code,omitempty"`
}

// statusForCode maps domain error codes to HTTP status values.
func statusForCode(code amr.Code) int {
	switch code {
	case amr.CodeAuthMissing, amr.CodeAuthInvalid:
		return http.StatusUnauthorized

	case amr.CodePendingApproval, amr.CodeTransitionForbidden,
		amr.CodeExportAccess:

		return http.StatusForbidden

	case amr.CodeTransitionNotDefined, amr.CodeInvalidCount,
		amr.CodeUnknownStrategy, amr.CodeValidationFailed,
		amr.CodeExportFormatUnsupported, amr.CodeBadRequest:

		return http.StatusBadRequest

	case amr.CodeNotFound, amr.CodeNoEligibleCandidates,
		amr.CodeExportNotFound:

		return http.StatusNotFound

	case amr.CodeAssignmentNotAllowed, amr.CodeReassignRequiresRejection,
		amr.CodeInsufficientCandidates, amr.CodeConflict:

		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// writeError maps a domain error to its HTTP status and the {detail}
// envelope. Non-domain errors become an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request,
	err error) {

	var domainErr *amr.Error
	if !errors.As(err, &domainErr) {
		s.log.ErrorContext(r.Context(), "internal error",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Detail: "Sunucu hatası"})
		return
	}

	writeJSON(w, statusForCode(domainErr.Code), errorResponse{
		Detail: domainErr.Message,
		Code:   domainErr.Code,
	})
}
