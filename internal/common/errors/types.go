package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeSecretNotFound means the secret reference does not exist in the store
	ErrTypeSecretNotFound ErrorType = "secret_not_found"
	// ErrTypeSecretMalformed means the secret exists but lacks fields for the auth kind
	ErrTypeSecretMalformed ErrorType = "secret_malformed"
	// ErrTypeSecretNamespace means the secret reference violates the namespace convention
	ErrTypeSecretNamespace ErrorType = "secret_namespace_invalid"
	// ErrTypeAuth represents authentication failures against the source system
	ErrTypeAuth ErrorType = "authentication_failed"
	// ErrTypeNotFound means the source system has no record for the correlation id
	ErrTypeNotFound ErrorType = "metadata_not_found"
	// ErrTypePathNotFound means response_metadata_path did not resolve
	ErrTypePathNotFound ErrorType = "metadata_path_not_found"
	// ErrTypeTransport represents connection failures and 5xx responses
	ErrTypeTransport ErrorType = "transport"
	// ErrTypeTimeout represents per-attempt timeouts
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeNormalization means the payload cannot anchor an identifier
	ErrTypeNormalization ErrorType = "normalization_validation_failed"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeValidation represents validation errors, including non-retryable 4xx responses
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeCancelled means the caller cancelled the invocation
	ErrTypeCancelled ErrorType = "cancelled"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	HTTPStatus int                    `json:"http_status,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.HTTPStatus))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithStatus records the HTTP status that produced the error
func (e *AppError) WithStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// SecretNotFoundError creates an error for an absent secret reference
func SecretNotFoundError(ref string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeSecretNotFound,
		Message: fmt.Sprintf("secret %s not found", ref),
		Cause:   cause,
	}
}

// SecretMalformedError creates an error for a secret missing required fields
func SecretMalformedError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeSecretMalformed,
		Message: msg,
	}
}

// SecretNamespaceError creates an error for a reference outside the allowed namespace
func SecretNamespaceError(ref, prefix string) *AppError {
	return &AppError{
		Type:    ErrTypeSecretNamespace,
		Message: fmt.Sprintf("secret reference %q must start with %q", ref, prefix),
	}
}

// AuthenticationError creates a new authentication error
func AuthenticationError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
		Cause:   cause,
	}
}

// MetadataNotFoundError creates an error for a correlation id with no source record
func MetadataNotFoundError(correlationID string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("no metadata for correlation id %q", correlationID),
	}
}

// MetadataPathNotFoundError creates an error for an unresolvable response path segment
func MetadataPathNotFoundError(path, segment string) *AppError {
	return &AppError{
		Type:    ErrTypePathNotFound,
		Message: fmt.Sprintf("segment %q of metadata path %q not found", segment, path),
	}
}

// TransportError creates a new retryable transport error
func TransportError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
		Cause:   cause,
	}
}

// NormalizationError creates a new normalization validation error
func NormalizationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeNormalization,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// CancelledError creates an error for a cancelled invocation
func CancelledError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeCancelled,
		Message: fmt.Sprintf("%s cancelled", operation),
		Cause:   cause,
	}
}

// HTTPStatusError maps a non-2xx response status onto the taxonomy:
// 404 is not found, 401/403 are authentication failures, 5xx are
// transport failures and every other status is a validation error.
func HTTPStatusError(status int, correlationID, body string) *AppError {
	var e *AppError
	switch {
	case status == 404:
		e = MetadataNotFoundError(correlationID)
	case status == 401 || status == 403:
		e = AuthenticationError("source system rejected credentials", nil)
	case status >= 500:
		e = TransportError("source system error", nil)
	default:
		e = ValidationError("source system rejected request")
	}
	if body != "" {
		e.WithContext("body", body)
	}
	return e.WithStatus(status)
}

// IsType checks if an error, or any error it wraps, is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeInternal
	}

	return appErr.Type
}

// IsRetryable reports whether err is a transient transport or timeout failure
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrTypeTransport, ErrTypeTimeout:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return 0
}
