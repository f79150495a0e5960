package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Domain Error Types
// ============================================================================

// Error codes surfaced to callers
const (
	CodeNetworkUnavailable  = "NETWORK_UNAVAILABLE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeAuthExpired         = "AUTH_EXPIRED"
	CodeServerError         = "SERVER_ERROR"
	CodeOperationInProgress = "OPERATION_IN_PROGRESS"
)

// DomainError represents a domain-specific error with a code and message.
// Status is the HTTP status that produced it (0 when no response was
// received) and Fields holds per-field messages for form display.
type DomainError struct {
	Code    string
	Message string
	Status  int
	Fields  map[string][]string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code, so
// errors.Is(err, ErrInvalidCredentials) works on wrapped server errors.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ============================================================================
// Common Domain Errors
// ============================================================================

var (
	ErrNetworkUnavailable = &DomainError{
		Code:    CodeNetworkUnavailable,
		Message: "no response from server",
	}
	ErrInvalidCredentials = &DomainError{
		Code:    CodeInvalidCredentials,
		Message: "invalid credentials",
	}
	ErrValidationFailed = &DomainError{
		Code:    CodeValidationFailed,
		Message: "validation failed",
	}
	ErrAuthExpired = &DomainError{
		Code:    CodeAuthExpired,
		Message: "session expired or invalid",
	}
	ErrServerError = &DomainError{
		Code:    CodeServerError,
		Message: "server error",
	}
	ErrOperationInProgress = &DomainError{
		Code:    CodeOperationInProgress,
		Message: "operation already in progress",
	}
)

// ============================================================================
// Error Wrapping Helpers
// ============================================================================

// WrapNetworkUnavailable wraps a transport failure
func WrapNetworkUnavailable(operation string, cause error) error {
	return &DomainError{
		Code:    CodeNetworkUnavailable,
		Message: fmt.Sprintf("no response from server during %s", operation),
		Cause:   cause,
	}
}

// WrapValidationError wraps field validation failures. fields may be nil.
func WrapValidationError(message string, fields map[string][]string, cause error) error {
	if message == "" {
		message = firstFieldMessage(fields)
	}
	if message == "" {
		message = ErrValidationFailed.Message
	}
	return &DomainError{
		Code:    CodeValidationFailed,
		Message: message,
		Fields:  fields,
		Cause:   cause,
	}
}

// WrapServerError wraps an unexpected server answer
func WrapServerError(status int, message string, cause error) error {
	if message == "" {
		message = ErrServerError.Message
	}
	return &DomainError{
		Code:    CodeServerError,
		Message: message,
		Status:  status,
		Cause:   cause,
	}
}

// ============================================================================
// Error Checking Helpers
// ============================================================================

// CodeOf returns the domain code of err, or "" for foreign errors
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsAuthError reports whether the server rejected the credential
func IsAuthError(err error) bool {
	code := CodeOf(err)
	return code == CodeInvalidCredentials || code == CodeAuthExpired
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return CodeOf(err) == CodeValidationFailed
}

// IsNetworkError checks if no response was received
func IsNetworkError(err error) bool {
	return CodeOf(err) == CodeNetworkUnavailable
}

// FieldErrors returns per-field messages carried by err
func FieldErrors(err error) map[string][]string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Fields
	}
	return nil
}

// PublicMessage returns the text shown next to a form
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return "An error occurred"
}

func firstFieldMessage(fields map[string][]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := fields[k]; len(msgs) > 0 {
			if k == "non_field_errors" || k == "__all__" {
				return strings.Join(msgs, " ")
			}
			return fmt.Sprintf("%s: %s", k, strings.Join(msgs, " "))
		}
	}
	return ""
}
