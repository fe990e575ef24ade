// Package errors defines the error taxonomy shared by the bot's components.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionExhausted is wrapped by the error returned when every credential
// exchange attempt failed. It is the only condition that stops the process.
var ErrSessionExhausted = errors.New("session refresh retries exhausted")

// ConfigError indicates a problem with the bot configuration.
type ConfigError struct {
	// Field contains the name of the configuration field that caused the error
	Field string
	// Message contains the detailed error message
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// AuthError indicates an authentication failure, either while exchanging
// credentials or because an authenticated call was rejected twice.
type AuthError struct {
	// StatusCode is the HTTP status code (if from an HTTP response)
	StatusCode int
	// Message contains the detailed error message
	Message string
	// Body contains the raw response body (if available)
	Body string
	// Err contains the underlying error if available
	Err error
}

func (e *AuthError) Error() string {
	parts := []string{}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status code %d", e.StatusCode))
	}
	if e.Body != "" {
		parts = append(parts, fmt.Sprintf("body: %q", e.Body))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("err: %v", e.Err))
	}

	if len(parts) == 0 {
		return "auth error"
	}
	return "auth error: " + strings.Join(parts, ", ")
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError indicates a transport failure that persisted after retries.
type RequestError struct {
	// Operation is the name of the API operation that failed
	Operation string
	// URL is the URL that was being accessed
	URL string
	// Attempts is the number of attempts made before giving up
	Attempts int
	// Err contains the underlying error
	Err error
}

func (e *RequestError) Error() string {
	msg := "unknown failure"
	if e.Err != nil {
		msg = e.Err.Error()
	}

	switch {
	case e.Operation != "" && e.URL != "":
		return fmt.Sprintf("request error during %s to %s after %d attempt(s): %s", e.Operation, e.URL, e.Attempts, msg)
	case e.Operation != "":
		return fmt.Sprintf("request error during %s after %d attempt(s): %s", e.Operation, e.Attempts, msg)
	}
	return fmt.Sprintf("request error after %d attempt(s): %s", e.Attempts, msg)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ParseError indicates a problem parsing an API response.
type ParseError struct {
	// Operation is the name of the API operation where parsing failed
	Operation string
	// Message contains the detailed error message
	Message string
	// Err contains the underlying error if available
	Err error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Operation != "" {
		return fmt.Sprintf("parse error during %s: %s", e.Operation, msg)
	}
	return fmt.Sprintf("parse error: %s", msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// APIError represents a rejection by the Reddit API: either a non-2xx status
// or a well-formed response carrying application-level errors.
type APIError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// ErrorCode is the error code from Reddit (if available), e.g. "RATELIMIT"
	ErrorCode string
	// Message is the error message from Reddit
	Message string
	// Body is the raw response body, kept for diagnosis
	Body string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("reddit API error (status %d, code %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
}

// LedgerError indicates the durable reply ledger could not be read or written.
// A reply that cannot be recorded risks a duplicate later, so callers treat it
// as fatal for the thread being crawled.
type LedgerError struct {
	// Operation is the ledger operation that failed
	Operation string
	// CommentID is the comment whose record was affected, if any
	CommentID string
	// Err contains the underlying storage error
	Err error
}

func (e *LedgerError) Error() string {
	if e.CommentID != "" {
		return fmt.Sprintf("ledger error during %s for comment %s: %v", e.Operation, e.CommentID, e.Err)
	}
	return fmt.Sprintf("ledger error during %s: %v", e.Operation, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is an authenticated call rejected with 401.
func IsAuthFailure(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.StatusCode == http.StatusUnauthorized
}

// IsFatal reports whether err must halt the current thread's traversal
// instead of being logged and skipped. Cancellation is checked by callers on
// their own context, since client timeouts also unwrap to DeadlineExceeded.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ledgerErr *LedgerError
	return errors.As(err, &ledgerErr) || errors.Is(err, ErrSessionExhausted)
}
