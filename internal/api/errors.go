package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of gateway failure. Codes are stable and
// part of the HTTP API contract.
type ErrorCode string

const (
	CodeServerNotFound         ErrorCode = "SERVER_NOT_FOUND"
	CodeServerAlreadyExists    ErrorCode = "SERVER_ALREADY_EXISTS"
	CodeServerUnavailable      ErrorCode = "SERVER_UNAVAILABLE"
	CodeServerConnectionFailed ErrorCode = "SERVER_CONNECTION_FAILED"
	CodeToolNotFound           ErrorCode = "TOOL_NOT_FOUND"
	CodeToolAmbiguous          ErrorCode = "TOOL_AMBIGUOUS"
	CodeSessionNotFound        ErrorCode = "SESSION_NOT_FOUND"
	CodeRoutingFailed          ErrorCode = "ROUTING_FAILED"
	CodeExecutionFailed        ErrorCode = "EXECUTION_FAILED"
	CodeHealthCheckFailed      ErrorCode = "HEALTH_CHECK_FAILED"
	CodeClassificationFailed   ErrorCode = "CLASSIFICATION_FAILED"
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus maps the code onto the status used by the HTTP API.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeServerNotFound, CodeToolNotFound:
		return http.StatusNotFound
	case CodeServerAlreadyExists, CodeToolAmbiguous:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeServerUnavailable, CodeServerConnectionFailed:
		return http.StatusServiceUnavailable
	case CodeExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by every gateway operation.
type Error struct {
	Code    ErrorCode
	Message string
	Detail  string

	// CandidateServerIDs is set for TOOL_AMBIGUOUS.
	CandidateServerIDs []string
	// ServerStatus is set for SERVER_UNAVAILABLE.
	ServerStatus ServerStatus
	// Routing is set when a call failed after it was routed.
	Routing *CallMetadata

	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail sets the detail text and returns e.
func (e *Error) WithDetail(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithRouting attaches the routing metadata of a failed call and returns e.
func (e *Error) WithRouting(md CallMetadata) *Error {
	e.Routing = &md
	return e
}

// WithCause sets the wrapped error and returns e.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, CodeInternal for untyped errors and the
// empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if apiErr, ok := AsError(err); ok {
		return apiErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func ErrServerNotFound(ref string) *Error {
	return NewError(CodeServerNotFound, "server %q not found", ref)
}

func ErrServerAlreadyExists(name string) *Error {
	return NewError(CodeServerAlreadyExists, "server %q already exists", name)
}

// ErrServerUnavailable reports that the owning server is not accepting calls.
func ErrServerUnavailable(name string, status ServerStatus) *Error {
	e := NewError(CodeServerUnavailable, "server %q is unavailable", name)
	e.ServerStatus = status
	return e
}

func ErrServerConnectionFailed(name string, cause error) *Error {
	return NewError(CodeServerConnectionFailed, "failed to connect to server %q", name).WithCause(cause)
}

func ErrToolNotFound(name string) *Error {
	return NewError(CodeToolNotFound, "tool %q not found", name)
}

// ErrToolAmbiguous reports that a bare tool name matches tools on several
// servers. candidates must already be sorted.
func ErrToolAmbiguous(name string, candidates []string) *Error {
	e := NewError(CodeToolAmbiguous, "tool %q is provided by %d servers; specify server_id", name, len(candidates))
	e.CandidateServerIDs = candidates
	return e
}

// ErrRoutingFailed reports a tool that resolved to a server which is no
// longer registered.
func ErrRoutingFailed(tool, reason string) *Error {
	return NewError(CodeRoutingFailed, "cannot route %q: %s", tool, reason)
}

func ErrSessionNotFound(serverID string) *Error {
	return NewError(CodeSessionNotFound, "no active session for server %s", serverID)
}

func ErrExecutionFailed(tool string, cause error) *Error {
	return NewError(CodeExecutionFailed, "execution of %q failed", tool).WithCause(cause)
}

func ErrHealthCheckFailed(name string, cause error) *Error {
	return NewError(CodeHealthCheckFailed, "health check for %q failed", name).WithCause(cause)
}

func ErrClassificationFailed(tool string, cause error) *Error {
	return NewError(CodeClassificationFailed, "classification of %q failed", tool).WithCause(cause)
}

func ErrValidation(format string, args ...interface{}) *Error {
	return NewError(CodeValidation, format, args...)
}

// ErrorBody is the JSON envelope for failed API requests.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload is the error object inside ErrorBody.
type ErrorPayload struct {
	Code               ErrorCode     `json:"code"`
	Message            string        `json:"message"`
	Detail             string        `json:"detail,omitempty"`
	CandidateServerIDs []string      `json:"candidate_server_ids,omitempty"`
	ServerStatus       ServerStatus  `json:"server_status,omitempty"`
	Metadata           *CallMetadata `json:"metadata,omitempty"`
}

// ToBody converts any error into the API envelope. Untyped errors become
// INTERNAL_ERROR with a generic message; their text stays in the server log.
func ToBody(err error) ErrorBody {
	apiErr, ok := AsError(err)
	if !ok {
		return ErrorBody{Error: ErrorPayload{Code: CodeInternal, Message: "internal error"}}
	}
	detail := apiErr.Detail
	if detail == "" && apiErr.Cause != nil {
		detail = apiErr.Cause.Error()
	}
	return ErrorBody{Error: ErrorPayload{
		Code:               apiErr.Code,
		Message:            apiErr.Message,
		Detail:             detail,
		CandidateServerIDs: apiErr.CandidateServerIDs,
		ServerStatus:       apiErr.ServerStatus,
		Metadata:           apiErr.Routing,
	}}
}

// FromBody reconstructs a typed error from a decoded envelope.
func FromBody(body ErrorBody) *Error {
	return &Error{
		Code:               body.Error.Code,
		Message:            body.Error.Message,
		Detail:             body.Error.Detail,
		CandidateServerIDs: body.Error.CandidateServerIDs,
		ServerStatus:       body.Error.ServerStatus,
		Routing:            body.Error.Metadata,
	}
}
