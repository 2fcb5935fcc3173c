// Package domain defines the core domain models for protobee.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a protocol or engine error with a structured error code.
// Codes have the form PB-<AREA>-<NNNN> and survive the trip over the wire.
type DomainError struct {
	Code    string // Error code (e.g., "PB-HDL-4050")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
// The cause's message is kept as details so it survives serialization.
func (e *DomainError) Wrap(cause error) *DomainError {
	if cause == nil {
		return e
	}
	out := e.WithCause(cause)
	if out.Details == "" {
		out.Details = cause.Error()
	}
	return out
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Lookup returns the predefined error registered for code, if any.
func Lookup(code string) (*DomainError, bool) {
	de, ok := registry[code]
	return de, ok
}

// ============================================================================
// RPC Errors (RPC)
// ============================================================================

var (
	// ErrInvalidRequest indicates a malformed request or parameters.
	ErrInvalidRequest = NewDomainError("PB-RPC-4000", "invalid request")

	// ErrProtocolViolation indicates a request referenced a resource owned by another connection.
	ErrProtocolViolation = NewDomainError("PB-RPC-4030", "protocol violation")

	// ErrNotFound indicates a resource id is not registered.
	ErrNotFound = NewDomainError("PB-RPC-4040", "resource not found")

	// ErrUnknownMethod indicates the method is not part of the protocol.
	ErrUnknownMethod = NewDomainError("PB-RPC-4041", "unknown method")

	// ErrRateLimited indicates the connection exceeded its request budget.
	ErrRateLimited = NewDomainError("PB-RPC-4290", "too many requests")
)

// ============================================================================
// Option Errors (OPT)
// ============================================================================

var (
	// ErrUnsupportedOption indicates an option that cannot be honored remotely.
	ErrUnsupportedOption = NewDomainError("PB-OPT-4001", "unsupported option")

	// ErrVersionOutOfRange indicates a checkout or diff past the current version.
	ErrVersionOutOfRange = NewDomainError("PB-OPT-4002", "version out of range")
)

// ============================================================================
// Handle Errors (HDL)
// ============================================================================

var (
	// ErrReadOnly indicates a write on a checkout or snapshot.
	ErrReadOnly = NewDomainError("PB-HDL-4050", "handle is read-only")

	// ErrNotBatch indicates lock or flush on a handle that is not a batch.
	ErrNotBatch = NewDomainError("PB-HDL-4051", "handle is not a batch")

	// ErrNestedDerivation indicates batch, checkout or snapshot from a derived handle.
	ErrNestedDerivation = NewDomainError("PB-HDL-4052", "only allowed from the main handle")

	// ErrHandleClosed indicates an operation on a closed handle.
	ErrHandleClosed = NewDomainError("PB-HDL-4100", "handle closed")

	// ErrInstanceLost indicates a derived handle outlived the connection that created it.
	ErrInstanceLost = NewDomainError("PB-HDL-4101", "remote instance lost after reconnect")
)

// ============================================================================
// Network Errors (NET)
// ============================================================================

var (
	// ErrTransport indicates the connection to the server failed or closed.
	ErrTransport = NewDomainError("PB-NET-5030", "transport failure")

	// ErrFirewall indicates the remote identity was rejected.
	ErrFirewall = NewDomainError("PB-NET-4030", "remote key rejected")
)

// ============================================================================
// Engine Errors (ENG)
// ============================================================================

var (
	// ErrEngine indicates the storage engine failed the operation.
	ErrEngine = NewDomainError("PB-ENG-5000", "engine failure")

	// ErrEngineClosed indicates the storage engine is closed.
	ErrEngineClosed = NewDomainError("PB-ENG-5001", "engine closed")
)

var registry = func() map[string]*DomainError {
	m := make(map[string]*DomainError)
	for _, e := range []*DomainError{
		ErrInvalidRequest, ErrProtocolViolation, ErrNotFound, ErrUnknownMethod, ErrRateLimited,
		ErrUnsupportedOption, ErrVersionOutOfRange,
		ErrReadOnly, ErrNotBatch, ErrNestedDerivation, ErrHandleClosed, ErrInstanceLost,
		ErrTransport, ErrFirewall,
		ErrEngine, ErrEngineClosed,
	} {
		m[e.Code] = e
	}
	return m
}()
