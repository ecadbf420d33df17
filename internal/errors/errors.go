// Package errors provides typed errors for browser lifecycle, protocol,
// and evasion operations.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind categorizes errors for handling decisions.
type Kind int

const (
	// Unknown is an uncategorized error.
	Unknown Kind = iota
	// Validation represents rejected caller input, such as an empty navigation URL.
	Validation
	// NotFound represents a missing local resource, such as the browser executable.
	NotFound
	// Timeout represents deadline expiry while waiting on the browser.
	Timeout
	// Protocol represents a DevTools error reply or a malformed protocol payload.
	Protocol
	// State represents an operation invoked out of lifecycle order.
	State
	// Ban represents an access denial attributed to a perimeter defense vendor.
	Ban
	// Captcha represents an unresolved human-verification challenge.
	Captcha
	// Network represents transport failures (DNS, connection).
	Network
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case Protocol:
		return "protocol"
	case State:
		return "state"
	case Ban:
		return "ban"
	case Captcha:
		return "captcha"
	case Network:
		return "network"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// BrowserError represents a categorized browser operation error.
type BrowserError struct {
	Kind    Kind
	URL     string
	Op      string
	Message string
	Cause   error
	// Vendor names the defense that triggered a Ban or Captcha error.
	Vendor string
}

// Error implements the error interface.
func (e *BrowserError) Error() string {
	target := e.URL
	if target == "" {
		target = "browser"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Kind.String(), e.Op, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Kind.String(), e.Op, target, e.Message)
}

// Unwrap returns the underlying error.
func (e *BrowserError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target by kind.
func (e *BrowserError) Is(target error) bool {
	t, ok := target.(*BrowserError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a BrowserError.
func New(kind Kind, url, op, message string, cause error) *BrowserError {
	return &BrowserError{
		Kind:    kind,
		URL:     url,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a validation error for rejected input.
func NewValidationError(op, message string) *BrowserError {
	return New(Validation, "", op, message, nil)
}

// NewNotFoundError creates a not found error for a missing local resource.
func NewNotFoundError(op, message string) *BrowserError {
	return New(NotFound, "", op, message, nil)
}

// NewTimeoutError creates a timeout error wrapping the last failure seen
// before the deadline expired.
func NewTimeoutError(url, op, message string, cause error) *BrowserError {
	return New(Timeout, url, op, message, cause)
}

// NewProtocolError creates a protocol error for an error reply or a
// payload missing a required field.
func NewProtocolError(url, op, message string) *BrowserError {
	return New(Protocol, url, op, message, nil)
}

// NewStateError creates a state error for an out-of-order operation.
func NewStateError(op, message string) *BrowserError {
	return New(State, "", op, message, nil)
}

// NewBanError creates a ban error naming the detected defense vendor.
func NewBanError(url, vendor string) *BrowserError {
	err := New(Ban, url, "navigation", fmt.Sprintf("blocked by %s", vendor), nil)
	err.Vendor = vendor
	return err
}

// NewCaptchaError creates a captcha error naming the detected challenge vendor.
func NewCaptchaError(url, vendor string) *BrowserError {
	err := New(Captcha, url, "navigation", fmt.Sprintf("challenge presented by %s", vendor), nil)
	err.Vendor = vendor
	return err
}

// NewNetworkError creates a network error.
func NewNetworkError(url, op string, cause error) *BrowserError {
	return New(Network, url, op, "network failure", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, op string) *BrowserError {
	return New(Cancelled, url, op, "operation cancelled", nil)
}

// Categorize determines the error kind from a generic error.
func Categorize(err error, url string) *BrowserError {
	if err == nil {
		return nil
	}

	// Already categorized
	var berr *BrowserError
	if errors.As(err, &berr) {
		return berr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", "deadline exceeded", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsTimeout checks if an error carries the Timeout kind.
func IsTimeout(err error) bool {
	return GetKind(err) == Timeout
}

// IsProtocol checks if an error carries the Protocol kind.
func IsProtocol(err error) bool {
	return GetKind(err) == Protocol
}

// IsValidation checks if an error carries the Validation kind.
func IsValidation(err error) bool {
	return GetKind(err) == Validation
}

// IsState checks if an error carries the State kind.
func IsState(err error) bool {
	return GetKind(err) == State
}

// IsNotFound checks if an error carries the NotFound kind.
func IsNotFound(err error) bool {
	return GetKind(err) == NotFound
}

// IsBan checks if an error carries the Ban kind.
func IsBan(err error) bool {
	return GetKind(err) == Ban
}

// IsCaptcha checks if an error carries the Captcha kind.
func IsCaptcha(err error) bool {
	return GetKind(err) == Captcha
}

// GetKind extracts the error kind from an error.
func GetKind(err error) Kind {
	var berr *BrowserError
	if errors.As(err, &berr) {
		return berr.Kind
	}
	return Unknown
}

// GetVendor extracts the defense vendor from a Ban or Captcha error.
func GetVendor(err error) string {
	var berr *BrowserError
	if errors.As(err, &berr) {
		return berr.Vendor
	}
	return ""
}
