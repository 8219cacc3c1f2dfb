package civic

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by Store implementations.
var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateArticle is returned when an article URL is already stored.
	ErrDuplicateArticle = errors.New("article already stored")
)

// FetchErrorKind classifies terminal fetch outcomes.
type FetchErrorKind string

const (
	// FetchTransientExhausted means every retry budget was spent on errors
	// that were individually retryable.
	FetchTransientExhausted FetchErrorKind = "transient-exhausted"
	// FetchPermanent means retrying is futile: bad URL, non-429 4xx,
	// content-type mismatch.
	FetchPermanent FetchErrorKind = "permanent"
)

// FetchError is the terminal error of a fetch. Callers log and skip the
// document; it never aborts a batch.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s (%s after %d attempts): %v", e.URL, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s after %d attempts): status %d", e.URL, e.Kind, e.Attempts, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RejectReason classifies validator rejections.
type RejectReason string

const (
	RejectTitleTooShort RejectReason = "title-too-short"
	RejectBodyTooShort  RejectReason = "body-too-short"
	RejectBoilerplate   RejectReason = "boilerplate"
	RejectNotRelevant   RejectReason = "not-relevant"
)

// ValidationReject reports a document dropped before storage.
type ValidationReject struct {
	Reason RejectReason
	URL    string
}

func (e *ValidationReject) Error() string {
	return fmt.Sprintf("validate %s: rejected (%s)", e.URL, e.Reason)
}

// ExtractionErrorKind classifies extraction failures.
type ExtractionErrorKind string

const (
	// ExtractionSchemaViolation is a terminal model-output failure: the
	// article is marked processed with an annotation and never retried.
	ExtractionSchemaViolation ExtractionErrorKind = "schema-violation"
	// ExtractionBackendUnavailable is an infrastructure failure calling the
	// model; the article stays unprocessed for a later batch.
	ExtractionBackendUnavailable ExtractionErrorKind = "backend-unavailable"
)

// ExtractionError reports a failed extraction call.
type ExtractionError struct {
	Kind   ExtractionErrorKind
	Detail string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract (%s): %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("extract (%s): %s", e.Kind, e.Detail)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// MergeFailureKind classifies merge failures.
type MergeFailureKind string

const (
	// MergeStorageUnavailable aborts only that article's transaction; the
	// article remains eligible for reprocessing.
	MergeStorageUnavailable MergeFailureKind = "storage-unavailable"
	// MergeIdempotenceConflict means the (project, article) update already
	// exists; the merge is a no-op.
	MergeIdempotenceConflict MergeFailureKind = "idempotence-conflict"
)

// MergeFailure reports a failed or skipped merge transaction.
type MergeFailure struct {
	Kind MergeFailureKind
	Err  error
}

func (e *MergeFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("merge (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("merge (%s)", e.Kind)
}

func (e *MergeFailure) Unwrap() error { return e.Err }

// IsSchemaViolation reports whether err is a terminal extraction failure.
func IsSchemaViolation(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == ExtractionSchemaViolation
}

// IsBackendUnavailable reports whether err is a retryable extraction failure.
func IsBackendUnavailable(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == ExtractionBackendUnavailable
}

// IsPermanentFetch reports whether err is a non-retryable fetch failure.
func IsPermanentFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchPermanent
}
