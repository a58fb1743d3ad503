package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEncoding          = errors.New("request encoding failed")
	ErrTransport         = errors.New("remote transport failure")
	ErrQuota             = errors.New("remote quota exceeded")
	ErrNotFound          = errors.New("remote resource not found")
	ErrChunkFileConflict = errors.New("chunk file exists with different content")
	ErrChunkFileMissing  = errors.New("chunk request file is missing")
	ErrLedgerCorrupt     = errors.New("ledger file is corrupt")
	ErrChunkNotTracked   = errors.New("chunk is not tracked in the ledger")
	ErrReportNotFound    = errors.New("validation report not found")
)

// EncodingError reports a document that could not be turned into a request record.
type EncodingError struct {
	CorrelationID string
	Field         string
	Reason        string
}

func (e *EncodingError) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("encoding document: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("encoding document %q: %s: %s", e.CorrelationID, e.Field, e.Reason)
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// TransportError is a network or server-side failure talking to the remote service.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError wraps err as a TransportError for operation op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// QuotaError indicates the remote service refused work because of a rate,
// spend or queue limit.
type QuotaError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

// NewQuotaError creates a QuotaError. If retryAfterSecs is 0, defaults to 60s.
func NewQuotaError(op string, err error, retryAfterSecs int) *QuotaError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &QuotaError{
		Op:         op,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Err:        err,
	}
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: quota exceeded (retry after %s): %v", e.Op, e.RetryAfter, e.Err)
}

func (e *QuotaError) Unwrap() []error {
	return []error{ErrQuota, e.Err}
}

// NotFoundError reports an unknown remote job or file identifier.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found: %v", e.Kind, e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrNotFound, e.Err}
}
