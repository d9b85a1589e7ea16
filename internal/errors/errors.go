package errors

import (
	stderrors "errors"
	"fmt"
)

// RetrievalError is the structured error type for searchfuse.
// It carries an error code, category, and retryability so callers can decide
// between degradation and hard failure without string matching.
type RetrievalError struct {
	// Code is the unique error code (e.g., "ERR_201_EMPTY_CORPUS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Corpus, Upstream, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is matches against another RetrievalError by code.
// This makes errors.Is work with the package sentinels below even when the
// error was created fresh at a call site with extra context.
func (e *RetrievalError) Is(target error) bool {
	if t, ok := target.(*RetrievalError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new RetrievalError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RetrievalError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *RetrievalError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the retrieval taxonomy. Compare with errors.Is; wrapped
// instances created with the same code match the sentinel.
var (
	// ErrEmptyCorpus signals there was nothing to index. Recoverable: the
	// lexical branch is treated as empty.
	ErrEmptyCorpus = New(ErrCodeEmptyCorpus, "corpus snapshot is empty", nil)

	// ErrEmptyRewrite signals the generator returned nothing usable.
	// Recoverable: callers fall back to the original query.
	ErrEmptyRewrite = New(ErrCodeEmptyRewrite, "generator returned an empty rewrite", nil)

	// ErrUpstreamUnavailable signals an external capability call failed or
	// timed out. Recoverable via branch degradation.
	ErrUpstreamUnavailable = New(ErrCodeUpstreamUnavailable, "upstream capability unavailable", nil)

	// ErrRetrievalUnavailable is surfaced when no branch produced results.
	ErrRetrievalUnavailable = New(ErrCodeRetrievalUnavailable, "all retrieval branches failed", nil)
)

// UpstreamError wraps an upstream capability failure with context about which
// capability failed.
func UpstreamError(capability string, cause error) *RetrievalError {
	return New(ErrCodeUpstreamUnavailable,
		fmt.Sprintf("%s call failed: %v", capability, cause), cause)
}

// TimeoutError wraps an upstream timeout. It carries a distinct code from
// ErrUpstreamUnavailable; use IsUpstream when deciding on branch degradation.
func TimeoutError(capability string, cause error) *RetrievalError {
	return New(ErrCodeUpstreamTimeout,
		fmt.Sprintf("%s call timed out: %v", capability, cause), cause)
}

// IsUpstream reports whether an error originated at an external capability
// boundary (failure or timeout). The orchestrator uses this to degrade a
// branch instead of failing the whole call.
func IsUpstream(err error) bool {
	if err == nil {
		return false
	}
	var re *RetrievalError
	if stderrors.As(err, &re) {
		return re.Category == CategoryUpstream
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RetrievalError); ok {
		return re.Retryable
	}
	return false
}

// GetCode extracts the error code from a RetrievalError.
// Returns empty string if not a RetrievalError.
func GetCode(err error) string {
	if re, ok := err.(*RetrievalError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RetrievalError.
func GetCategory(err error) Category {
	if re, ok := err.(*RetrievalError); ok {
		return re.Category
	}
	return ""
}
