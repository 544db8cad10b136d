package rollup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/salesboard/backend/internal/domain/shared"
)

// Domain-level errors surfaced by the rollup engine.
var (
	ErrBucketNotFound = shared.NewDomainError("BUCKET_NOT_FOUND", "No daily bucket exists for this date")
	ErrInvalidRange   = shared.NewDomainError("INVALID_RANGE", "Range end precedes range start")
	ErrInvalidDateKey = shared.NewDomainError("INVALID_DATE_KEY", "Date key is not a valid ISO date")
)

// TransientFetchError marks a source fetch failure that is retryable at the
// day level: rate limits, network timeouts, upstream 5xx.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure in %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// FatalFetchError marks a source fetch failure that retrying cannot fix:
// bad credentials, misconfiguration. It aborts the current backfill run.
type FatalFetchError struct {
	Op  string
	Err error
}

func (e *FatalFetchError) Error() string {
	return fmt.Sprintf("fatal fetch failure in %s: %v", e.Op, e.Err)
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is (or wraps) a TransientFetchError.
func IsTransientFetch(err error) bool {
	var t *TransientFetchError
	return errors.As(err, &t)
}

// IsFatalFetch reports whether err is (or wraps) a FatalFetchError.
func IsFatalFetch(err error) bool {
	var f *FatalFetchError
	return errors.As(err, &f)
}

// RangeTooLargeError rejects an oversized range before any work begins.
type RangeTooLargeError struct {
	Start   DateKey
	End     DateKey
	Days    int
	MaxDays int
}

func (e *RangeTooLargeError) Error() string {
	return fmt.Sprintf("range %s..%s spans %d days, limit is %d", e.Start, e.End, e.Days, e.MaxDays)
}

// IsRangeTooLarge reports whether err is (or wraps) a RangeTooLargeError.
func IsRangeTooLarge(err error) bool {
	var r *RangeTooLargeError
	return errors.As(err, &r)
}

// BackfillIncompleteError summarizes a partially failed backfill. It is a
// report, not a hard failure: the listed dates remain without buckets and a
// later run can retry them.
type BackfillIncompleteError struct {
	Missing []DateKey
}

func (e *BackfillIncompleteError) Error() string {
	keys := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		keys[i] = string(k)
	}
	return fmt.Sprintf("data incomplete for dates: [%s]", strings.Join(keys, ", "))
}

// IsBackfillIncomplete reports whether err is (or wraps) a
// BackfillIncompleteError and returns the still-missing dates.
func IsBackfillIncomplete(err error) ([]DateKey, bool) {
	var b *BackfillIncompleteError
	if errors.As(err, &b) {
		return b.Missing, true
	}
	return nil, false
}
