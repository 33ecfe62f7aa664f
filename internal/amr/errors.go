package amr

import (
	"errors"
	"fmt"
)

// Code is a stable, language-neutral error code. The HTTP edge maps codes to
// status values; the Turkish detail message travels alongside.
type Code string

const (
	CodeAuthMissing     Code = "AuthMissing"
	CodeAuthInvalid     Code = "AuthInvalid"
	CodePendingApproval Code = "PendingApproval"

	CodeTransitionNotDefined Code = "TransitionNotDefined"
	CodeTransitionForbidden  Code = "TransitionForbidden"

	CodeAssignmentNotAllowed       Code = "AssignmentNotAllowed"
	CodeReassignRequiresRejection  Code = "ReassignRequiresRejection"
	CodeInvalidCount               Code = "InvalidCount"
	CodeNoEligibleCandidates       Code = "NoEligibleCandidates"
	CodeInsufficientCandidates     Code = "InsufficientCandidates"
	CodeUnknownStrategy            Code = "UnknownStrategy"

	CodeValidationFailed Code = "ValidationFailed"

	CodeExportAccess            Code = "ExportAccessError"
	CodeExportNotFound          Code = "ExportNotFound"
	CodeExportFormatUnsupported Code = "ExportFormatUnsupported"

	CodeNotFound   Code = "NotFound"
	CodeConflict   Code = "Conflict"
	CodeBadRequest Code = "BadRequest"
)

// Error is a domain error carrying a stable code and a user-visible (Turkish)
// message.
type Error struct {
	Code    Code
	Message string
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs a domain error with the given code and message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the stable code from err, or empty if err is not a domain
// error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	return ""
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
