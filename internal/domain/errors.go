package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSubmission marks a URL that is already tracked.
	ErrDuplicateSubmission = errors.New("link already submitted")
	// ErrCatalogConflict marks a scholarship name that already exists.
	ErrCatalogConflict = errors.New("scholarship already exists")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// StorageError wraps connectivity or engine failures of a store. It aborts the
// current operation only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// FetchErrorKind classifies content fetch failures.
type FetchErrorKind string

const (
	FetchForbidden FetchErrorKind = "forbidden"
	FetchTimeout   FetchErrorKind = "timeout"
	FetchNetwork   FetchErrorKind = "network"
	FetchNotHTML   FetchErrorKind = "notHtml"
)

// Retryable reports whether another attempt may succeed.
func (k FetchErrorKind) Retryable() bool {
	return k == FetchTimeout || k == FetchNetwork
}

// FetchError describes why a page could not be fetched.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Extraction failure reasons.
const (
	ReasonNotScholarship     = "not_scholarship"
	ReasonAIUnavailable      = "ai_unavailable"
	ReasonContentFetchFailed = "content_fetch_failed"
)

// ExtractionError carries one of the extraction failure reasons.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "extraction failed: " + e.Reason
	}
	return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *ExtractionError) Retryable() bool {
	return e.Reason == ReasonAIUnavailable
}
