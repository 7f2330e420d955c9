package deck

import (
	"errors"
	"fmt"
)

// ErrLimitReached is returned by an engagement backend when the viewer has
// used up their allowance. It is never rolled back locally; the caller hands
// control to the upgrade flow instead.
var ErrLimitReached = errors.New("engagement limit reached")

// ErrItemNotFound is returned when an item id is not present in any loaded page.
var ErrItemNotFound = errors.New("item not found")

// ErrorCode categorizes feed errors.
type ErrorCode string

const (
	// ErrCodeFetchFailed marks a retryable page fetch failure.
	ErrCodeFetchFailed ErrorCode = "FETCH_FAILED"

	// ErrCodeMutationFailed marks a failed like, comment or delete call that
	// was rolled back.
	ErrCodeMutationFailed ErrorCode = "MUTATION_FAILED"

	// ErrCodeLimitReached marks a mutation refused because of a quota.
	ErrCodeLimitReached ErrorCode = "LIMIT_REACHED"
)

// Error is a feed error scoped to one operation and, for mutations, one item.
type Error struct {
	Code ErrorCode
	Op   string
	Item ItemID
	Page int
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Item != "":
		return fmt.Sprintf("%s: %s (item=%s): %v", e.Code, e.Op, e.Item, e.Err)
	case e.Code == ErrCodeFetchFailed:
		return fmt.Sprintf("%s: %s (page=%d): %v", e.Code, e.Op, e.Page, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a page source failure.
func NewFetchError(page int, err error) *Error {
	return &Error{Code: ErrCodeFetchFailed, Op: "fetch page", Page: page, Err: err}
}

// NewMutationError wraps an engagement failure. ErrLimitReached is classified
// as ErrCodeLimitReached.
func NewMutationError(op string, item ItemID, err error) *Error {
	code := ErrCodeMutationFailed
	if errors.Is(err, ErrLimitReached) {
		code = ErrCodeLimitReached
	}
	return &Error{Code: code, Op: op, Item: item, Err: err}
}

// IsFetchError reports whether err is a retryable fetch failure.
func IsFetchError(err error) bool {
	return hasCode(err, ErrCodeFetchFailed)
}

// IsMutationError reports whether err is a rolled-back mutation failure.
func IsMutationError(err error) bool {
	return hasCode(err, ErrCodeMutationFailed)
}

// IsLimitError reports whether err is a quota refusal. Matches both a wrapped
// *Error and a bare ErrLimitReached.
func IsLimitError(err error) bool {
	return hasCode(err, ErrCodeLimitReached) || errors.Is(err, ErrLimitReached)
}

func hasCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
