package apperr

import (
	"errors"
	"net/http"
)

// Error is an application error with a stable code. Origin is the error that
// caused it, if any.
type Error struct {
	Code    string
	Message string
	Origin  error
}

func (e *Error) Error() string {
	if e.Origin != nil {
		return e.Message + ": " + e.Origin.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Origin }

// Standard error codes
const (
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
)

func New(code, message string, origin error) *Error {
	return &Error{Code: code, Message: message, Origin: origin}
}

// ErrUnauthenticated is returned by every operation invoked without a user.
var ErrUnauthenticated = New(CodeUnauthenticated, "not authenticated", nil)

func NotFound(message string) *Error {
	return New(CodeNotFound, message, nil)
}

func InvalidInput(message string, origin error) *Error {
	return New(CodeInvalidInput, message, origin)
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error code onto a response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUploadFailed:
		return http.StatusBadGateway
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
