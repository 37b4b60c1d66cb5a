package routes

import (
	"errors"
	"net/http"

	"gadify-server/internal/identity"
	"gadify-server/internal/lifecycle"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error    // The underlying error
	StatusCode int      // HTTP status code
	Message    string   // User-friendly message
	StopCodes  []string // Optional stop codes for client-side handling
	Internal   bool     // Whether this is an internal error (hide details from user)
}

// ErrorInfo contains error metadata for user-facing errors
type ErrorInfo struct {
	Message   string   // User-friendly message
	StopCodes []string // Optional stop codes for client-side application
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string, stopCodes ...string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		StopCodes:  stopCodes,
		Internal:   statusCode >= 500,
	}
}

// Routes-specific errors (that don't conflict with other packages)
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrMissingParameter = errors.New("missing required parameter")

	ErrPassNotAvailable = errors.New("device pass not available")

	ErrInternalServer = errors.New("internal server error")
)

// errorStatusMap maps errors to HTTP status codes
var errorStatusMap = map[error]int{
	// 400 Bad Request
	ErrInvalidRequest:         http.StatusBadRequest,
	ErrMissingParameter:       http.StatusBadRequest,
	lifecycle.ErrInvalidInput: http.StatusBadRequest,
	identity.ErrMissingField:  http.StatusBadRequest,
	identity.ErrWeakPassword:  http.StatusBadRequest,

	// 401 Unauthorized
	identity.ErrUnauthenticated:    http.StatusUnauthorized,
	identity.ErrInvalidCredentials: http.StatusUnauthorized,

	// 403 Forbidden
	lifecycle.ErrUnauthorized: http.StatusForbidden,
	ErrPassNotAvailable:       http.StatusForbidden,

	// 404 Not Found
	lifecycle.ErrNotFound: http.StatusNotFound,

	// 409 Conflict (state machine refusals)
	lifecycle.ErrConstraintViolation:   http.StatusConflict,
	lifecycle.ErrDuplicateActiveReport: http.StatusConflict,
	lifecycle.ErrAlreadyResolved:       http.StatusConflict,
	lifecycle.ErrStaleState:            http.StatusConflict,
	identity.ErrEmailTaken:             http.StatusConflict,

	// 500 Internal Server Error
	ErrInternalServer: http.StatusInternalServerError,

	// 503 Service Unavailable
	lifecycle.ErrBackendUnavailable: http.StatusServiceUnavailable,
}

// errorInfoMap maps errors to user-friendly messages and optional stop codes
var errorInfoMap = map[error]ErrorInfo{
	// Authentication
	identity.ErrUnauthenticated: {
		Message:   "Authentication required",
		StopCodes: []string{"AUTH_REQUIRED"},
	},
	identity.ErrInvalidCredentials: {
		Message:   "Invalid credentials provided",
		StopCodes: []string{"AUTH_INVALID_CREDENTIALS"},
	},
	identity.ErrEmailTaken: {
		Message:   "An account with this email already exists",
		StopCodes: []string{"EMAIL_TAKEN"},
	},
	identity.ErrWeakPassword: {
		Message:   "Password does not meet the minimum length",
		StopCodes: []string{"WEAK_PASSWORD"},
	},
	identity.ErrMissingField: {
		Message:   "A required field is missing",
		StopCodes: []string{"MISSING_FIELD"},
	},

	// Authorization
	lifecycle.ErrUnauthorized: {
		Message:   "You don't have permission to perform this action",
		StopCodes: []string{"FORBIDDEN"},
	},
	ErrPassNotAvailable: {
		Message:   "Device passes are only issued for verified devices",
		StopCodes: []string{"PASS_NOT_AVAILABLE"},
	},

	// State machine refusals
	lifecycle.ErrConstraintViolation: {
		Message:   "The device is not in a state that allows this action",
		StopCodes: []string{"CONSTRAINT_VIOLATION"},
	},
	lifecycle.ErrDuplicateActiveReport: {
		Message:   "This device already has an active report",
		StopCodes: []string{"DUPLICATE_ACTIVE_REPORT"},
	},
	lifecycle.ErrAlreadyResolved: {
		Message:   "This report has already been resolved",
		StopCodes: []string{"ALREADY_RESOLVED"},
	},
	lifecycle.ErrStaleState: {
		Message:   "The record changed while you were acting on it, reload and retry",
		StopCodes: []string{"STALE_STATE"},
	},

	// Lookup and validation
	lifecycle.ErrNotFound: {
		Message:   "Record not found",
		StopCodes: []string{"NOT_FOUND"},
	},
	lifecycle.ErrInvalidInput: {
		Message:   "Invalid input",
		StopCodes: []string{"INVALID_INPUT"},
	},
	ErrInvalidRequest: {
		Message:   "Invalid request format",
		StopCodes: []string{"INVALID_REQUEST"},
	},
	ErrMissingParameter: {
		Message:   "Required parameter is missing",
		StopCodes: []string{"MISSING_PARAMETER"},
	},

	// Internal (no stop codes for internal errors)
	ErrInternalServer: {
		Message: "An internal error occurred",
	},
	lifecycle.ErrBackendUnavailable: {
		Message: "Service is temporarily unavailable",
	},
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	return http.StatusInternalServerError
}

// GetErrorInfo returns error information including message and stop codes
func GetErrorInfo(err error) ErrorInfo {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ErrorInfo{
			Message:   httpErr.Message,
			StopCodes: httpErr.StopCodes,
		}
	}

	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	for knownErr, info := range errorInfoMap {
		if errors.Is(err, knownErr) {
			return info
		}
	}

	// For unknown errors, return a generic message for 5xx, specific for others
	status := GetErrorStatus(err)
	if status >= 500 {
		return ErrorInfo{Message: "An internal error occurred"}
	}
	return ErrorInfo{Message: err.Error()}
}

// GetErrorMessage returns a user-friendly message for an error
func GetErrorMessage(err error) string {
	return GetErrorInfo(err).Message
}
