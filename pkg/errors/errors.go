// Package errors provides the structured error taxonomy used by volstore: every
// failure carries a code, a category, a retryable hint and the underlying cause.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Connection
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"

	// Remote storage
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"
	ErrCodeThrottled      ErrorCode = "THROTTLED"

	// Local filesystem
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodePathInvalid      ErrorCode = "PATH_INVALID"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Operations
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"

	// Authentication
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	// Service state
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Internal
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
)

// ErrorCategory groups codes.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryOperation     ErrorCategory = "operation"
	CategoryAuth          ErrorCategory = "auth"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

var categories = map[ErrorCode]ErrorCategory{
	ErrCodeInvalidConfig:        CategoryConfiguration,
	ErrCodeMissingConfig:        CategoryConfiguration,
	ErrCodeConfigLoad:           CategoryConfiguration,
	ErrCodeNetworkError:         CategoryConnection,
	ErrCodeConnectionTimeout:    CategoryConnection,
	ErrCodeObjectNotFound:       CategoryStorage,
	ErrCodeBucketNotFound:       CategoryStorage,
	ErrCodeAccessDenied:         CategoryStorage,
	ErrCodeThrottled:            CategoryStorage,
	ErrCodeFileNotFound:         CategoryFilesystem,
	ErrCodePathInvalid:          CategoryFilesystem,
	ErrCodePermissionDenied:     CategoryFilesystem,
	ErrCodeOperationTimeout:     CategoryOperation,
	ErrCodeOperationCanceled:    CategoryOperation,
	ErrCodeOperationFailed:      CategoryOperation,
	ErrCodeResolutionFailed:     CategoryOperation,
	ErrCodeAuthenticationFailed: CategoryAuth,
	ErrCodeServiceUnavailable:   CategoryState,
	ErrCodeInternalError:        CategoryInternal,
	ErrCodePanicRecovered:       CategoryInternal,
}

// VolstoreError is a structured error with context and the original cause.
type VolstoreError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Context  map[string]string      `json:"context,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *VolstoreError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *VolstoreError) Unwrap() error {
	return e.Cause
}

// Is matches another VolstoreError by code, so errors.Is(err, NewError(code, "")) works.
func (e *VolstoreError) Is(target error) bool {
	if t, ok := target.(*VolstoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for debug logging.
func (e *VolstoreError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("VolstoreError{%s}", strings.Join(parts, ", "))
}

// NewError creates an error with defaults derived from the code.
func NewError(code ErrorCode, message string) *VolstoreError {
	return &VolstoreError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Wrap creates an error with the given cause attached.
func Wrap(code ErrorCode, message string, cause error) *VolstoreError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory returns the category for a code.
func GetCategory(code ErrorCode) ErrorCategory {
	if c, ok := categories[code]; ok {
		return c
	}
	return CategoryInternal
}

// IsRetryableByDefault reports whether a code describes a transient failure.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError,
		ErrCodeConnectionTimeout,
		ErrCodeOperationTimeout,
		ErrCodeThrottled,
		ErrCodeServiceUnavailable:
		return true
	}
	return false
}

// GetDefaultHTTPStatus returns the HTTP status an API should answer with.
func GetDefaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodePathInvalid:
		return 400
	case ErrCodeAuthenticationFailed:
		return 401
	case ErrCodeAccessDenied, ErrCodePermissionDenied:
		return 403
	case ErrCodeObjectNotFound, ErrCodeBucketNotFound, ErrCodeFileNotFound:
		return 404
	case ErrCodeThrottled:
		return 429
	case ErrCodeOperationCanceled:
		return 499
	case ErrCodeNetworkError, ErrCodeResolutionFailed:
		return 502
	case ErrCodeServiceUnavailable:
		return 503
	case ErrCodeOperationTimeout, ErrCodeConnectionTimeout:
		return 504
	}
	return 500
}

// WithContext adds a key/value pair of context.
func (e *VolstoreError) WithContext(key, value string) *VolstoreError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds structured detail.
func (e *VolstoreError) WithDetail(key string, value interface{}) *VolstoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component.
func (e *VolstoreError) WithComponent(component string) *VolstoreError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *VolstoreError) WithOperation(operation string) *VolstoreError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *VolstoreError) WithCause(cause error) *VolstoreError {
	e.Cause = cause
	return e
}

// As returns the first VolstoreError in err's chain.
func As(err error) (*VolstoreError, bool) {
	var ve *VolstoreError
	if stderr.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// CodeOf returns the code of the first VolstoreError in the chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	if ve, ok := As(err); ok {
		return ve.Code
	}
	return ErrCodeInternalError
}

// HTTPStatusOf returns the HTTP status for err, defaulting to 500.
func HTTPStatusOf(err error) int {
	if ve, ok := As(err); ok && ve.HTTPStatus != 0 {
		return ve.HTTPStatus
	}
	return 500
}

// IsNotFound reports whether err means the requested object, bucket or file does not exist.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeObjectNotFound, ErrCodeBucketNotFound, ErrCodeFileNotFound:
		return true
	}
	return false
}

// IsTransient reports whether retrying err later may succeed.
func IsTransient(err error) bool {
	if ve, ok := As(err); ok {
		return ve.Retryable
	}
	return false
}

// IsDenied reports whether err is a permanent permission or credential failure.
func IsDenied(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAccessDenied, ErrCodePermissionDenied, ErrCodeAuthenticationFailed:
		return true
	}
	return false
}
